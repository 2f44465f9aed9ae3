// Package events describes committed index edits as replayable events and
// publishes them to Kafka.
package events

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

type Op string

const (
	OpInsert Op = "insert"
	OpDelete Op = "delete"
	OpUndo   Op = "undo"
)

// EditEvent is one committed logical edit. Seq is the index version right
// after the edit, so a follower can tell duplicates from gaps.
type EditEvent struct {
	Seq    uint64    `json:"seq"`
	Op     Op        `json:"op"`
	Pos    int       `json:"pos,omitempty"`
	Text   []byte    `json:"text,omitempty"`
	Length int       `json:"length,omitempty"`
	Count  int       `json:"count,omitempty"`
	Time   time.Time `json:"time"`
}

// Steps is the number of version increments the event accounts for.
func (e EditEvent) Steps() uint64 {
	if e.Op == OpUndo {
		return uint64(e.Count)
	}
	return 1
}

// Apply replays the event against ix.
func (e EditEvent) Apply(ix *rindex.Index) (rindex.EditResult, error) {
	switch e.Op {
	case OpInsert:
		return ix.InsertString(e.Pos, e.Text)
	case OpDelete:
		return ix.DeleteString(e.Pos, e.Length)
	case OpUndo:
		if err := ix.Undo(e.Count); err != nil {
			return rindex.EditResult{}, err
		}
		return rindex.EditResult{Runs: ix.RunCount(), Version: ix.Version()}, nil
	default:
		return rindex.EditResult{}, fmt.Errorf("%w: unknown edit op %q", apperrors.ErrInvalidInput, e.Op)
	}
}
