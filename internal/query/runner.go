package query

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// Target is the index a batch runs against; *rindex.Index satisfies it.
type Target interface {
	InsertString(pos int, s []byte) (rindex.EditResult, error)
	DeleteString(pos, length int) (rindex.EditResult, error)
	Locate(pattern []byte, withPositions bool) (rindex.QueryResults, error)
	Text() ([]byte, error)
	BWT() []byte
}

// Runner executes command files, writing one log line per command.
type Runner struct {
	target Target
	parser Parser
	logger *slog.Logger
	now    func() time.Time
}

func NewRunner(target Target, parser Parser) *Runner {
	return &Runner{
		target: target,
		parser: parser,
		logger: slog.Default().With("component", "query-runner"),
		now:    time.Now,
	}
}

// Run executes every command read from r. Edits the index rejects are
// recorded and the batch continues; any other error stops it.
func (rn *Runner) Run(ctx context.Context, r io.Reader, log io.Writer) (*BatchResults, error) {
	res := &BatchResults{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cmd, err := rn.parser.Parse(sc.Text())
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line+1, err)
		}
		rec, err := rn.exec(line, cmd)
		if err != nil {
			if !apperrors.IsEditRejection(err) {
				return res, fmt.Errorf("line %d: %s: %w", line+1, cmd.Kind, err)
			}
			rec.Err = err.Error()
			rn.logger.Warn("edit rejected", "line", line+1, "kind", cmd.Kind, "error", err)
		}
		res.add(rec)
		if log != nil {
			if _, err := io.WriteString(log, rec.logLine()); err != nil {
				return res, fmt.Errorf("writing query log: %w", err)
			}
		}
		if line > 0 && line%1000 == 0 {
			rn.logger.Info("processed queries", "count", line)
		}
		line++
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("reading commands: %w", err)
	}
	return res, nil
}

func (rn *Runner) exec(line int, cmd Command) (Record, error) {
	rec := Record{Line: line, Kind: cmd.Kind, PatternLen: len(cmd.Pattern)}
	start := rn.now()
	var err error
	switch cmd.Kind {
	case KindInsert:
		var er rindex.EditResult
		er, err = rn.target.InsertString(cmd.Pos, cmd.Pattern)
		rec.Reorders = er.Reorders
	case KindDelete:
		rec.PatternLen = cmd.Length
		var er rindex.EditResult
		er, err = rn.target.DeleteString(cmd.Pos, cmd.Length)
		rec.Reorders = er.Reorders
	case KindCount:
		var qr rindex.QueryResults
		qr, err = rn.target.Locate(cmd.Pattern, false)
		rec.Occurrences = qr.Count
	case KindLocate, KindLocateSum:
		var qr rindex.QueryResults
		qr, err = rn.target.Locate(cmd.Pattern, true)
		rec.Occurrences = qr.Count
		rec.Sum = qr.Sum()
		if cmd.Kind == KindLocate {
			rec.Positions = qr.SortedPositions()
		}
	case KindPrint:
		var text []byte
		text, err = rn.target.Text()
		rec.Text = string(text)
		rec.BWT = string(rn.target.BWT())
	}
	rec.Elapsed = rn.now().Sub(start)
	return rec, err
}

func (r Record) logLine() string {
	b := strconv.AppendInt(nil, int64(r.Line), 10)
	b = append(b, '\t')
	b = append(b, r.Kind.String()...)
	switch r.Kind {
	case KindInsert, KindDelete:
		if r.Err != "" {
			b = fmt.Appendf(b, "\terror\t%s", r.Err)
			break
		}
		b = fmt.Appendf(b, "\treorders\t%d", r.Reorders)
	case KindCount:
		b = fmt.Appendf(b, "\toccurrences\t%d", r.Occurrences)
	case KindLocate:
		b = fmt.Appendf(b, "\tpositions\t%v", r.Positions)
	case KindLocateSum:
		b = fmt.Appendf(b, "\tsum\t%d\toccurrences\t%d", r.Sum, r.Occurrences)
	case KindPrint:
		b = fmt.Appendf(b, "\ttext\t%q\tbwt\t%q", r.Text, r.BWT)
	}
	if r.Kind != KindNone {
		b = fmt.Appendf(b, "\ttime_us\t%d", r.Elapsed.Microseconds())
	}
	return string(append(b, '\n'))
}
