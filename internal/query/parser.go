// Package query runs batch command files against an index. Each line is a
// tab-separated command:
//
//	INSERT	<pos>	<string>
//	DELETE	<pos>	<length>
//	COUNT	<pattern>
//	LOCATE	<pattern>
//	LOCATE_SUM	<pattern>
//	PRINT
//
// Lines that match none of these are skipped. Operands cannot contain raw
// tabs or newlines; a Parser can map replacement codes back to them.
package query

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

type Kind int

const (
	KindNone Kind = iota
	KindInsert
	KindDelete
	KindCount
	KindLocate
	KindLocateSum
	KindPrint
)

var kindNames = [...]string{"NONE", "INSERT", "DELETE", "COUNT", "LOCATE", "LOCATE_SUM", "PRINT"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Command is one parsed line.
type Command struct {
	Kind    Kind
	Pos     int
	Length  int
	Pattern []byte
}

// Parser turns command lines into Commands. Empty codes disable replacement.
type Parser struct {
	TabCode     string
	NewlineCode string
}

// Parse reads one line. Unrecognised lines yield KindNone; a recognised
// command with a malformed number is an error.
func (p Parser) Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "\t")
	switch {
	case fields[0] == "INSERT" && len(fields) == 3:
		pos, err := parseUint(fields[1])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindInsert, Pos: pos, Pattern: p.operand(fields[2])}, nil
	case fields[0] == "DELETE" && len(fields) == 3:
		pos, err := parseUint(fields[1])
		if err != nil {
			return Command{}, err
		}
		length, err := parseUint(fields[2])
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindDelete, Pos: pos, Length: length}, nil
	case fields[0] == "COUNT" && len(fields) == 2:
		return Command{Kind: KindCount, Pattern: p.operand(fields[1])}, nil
	case fields[0] == "LOCATE" && len(fields) == 2:
		return Command{Kind: KindLocate, Pattern: p.operand(fields[1])}, nil
	case fields[0] == "LOCATE_SUM" && len(fields) == 2:
		return Command{Kind: KindLocateSum, Pattern: p.operand(fields[1])}, nil
	case fields[0] == "PRINT" && len(fields) == 1:
		return Command{Kind: KindPrint}, nil
	}
	return Command{Kind: KindNone}, nil
}

func (p Parser) operand(s string) []byte {
	if p.TabCode != "" {
		s = strings.ReplaceAll(s, p.TabCode, "\t")
	}
	if p.NewlineCode != "" {
		s = strings.ReplaceAll(s, p.NewlineCode, "\n")
	}
	return []byte(s)
}

func parseUint(s string) (int, error) {
	v, err := strconv.ParseUint(s, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", apperrors.ErrInvalidInput, s)
	}
	return int(v), nil
}
