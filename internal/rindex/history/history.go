// Package history records every low-level mutation of an r-index as a tagged
// reversible entry. Mutations go through the Log so that the inverse is
// appended before the structure changes; UndoLast replays inverses newest
// first through a single apply routine.
package history

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/phi"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/rlbwt"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/sample"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// Kind tags an entry.
type Kind uint8

const (
	// ReplacedChar keeps the character that was overwritten at Pos.
	ReplacedChar Kind = iota + 1
	InsertedChar
	RemovedChar
	// ReplacedSAIndex keeps the sample previously stored at Pos, if any.
	ReplacedSAIndex
	ShiftedSARows
	ShiftedSAValues
	InsertedPhiEntry
	RemovedPhiEntry
	ShiftedPhiValues
)

var kindNames = map[Kind]string{
	ReplacedChar:     "replaced_char",
	InsertedChar:     "inserted_char",
	RemovedChar:      "removed_char",
	ReplacedSAIndex:  "replaced_sa_index",
	ShiftedSARows:    "shifted_sa_rows",
	ShiftedSAValues:  "shifted_sa_values",
	InsertedPhiEntry: "inserted_phi_entry",
	RemovedPhiEntry:  "removed_phi_entry",
	ShiftedPhiValues: "shifted_phi_values",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Entry is one reversible micro-operation. Only the fields relevant to Kind
// are set.
type Entry struct {
	Kind    Kind     `json:"kind"`
	Pos     int      `json:"pos,omitempty"`
	Char    uint8    `json:"char,omitempty"`
	Value   int      `json:"value,omitempty"`
	Present bool     `json:"present,omitempty"`
	Delta   int      `json:"delta,omitempty"`
	Side    phi.Side `json:"side,omitempty"`
}

// Log is the append-only entry sequence bound to the structures it mutates.
type Log struct {
	bwt     *rlbwt.BWT
	samples *sample.Store
	phi     *phi.Function
	entries []Entry
}

func New(bwt *rlbwt.BWT, samples *sample.Store, f *phi.Function) *Log {
	return &Log{bwt: bwt, samples: samples, phi: f}
}

func (l *Log) Len() int { return len(l.entries) }

// Commit discards the pending entries and hands them to the caller.
func (l *Log) Commit() []Entry {
	out := l.entries
	l.entries = nil
	return out
}

// UndoLast reverts the newest n entries.
func (l *Log) UndoLast(n int) error {
	if n < 0 || n > len(l.entries) {
		return fmt.Errorf("%w: undo of %d entries requested, %d recorded", apperrors.ErrInconsistentHistory, n, len(l.entries))
	}
	for n > 0 {
		last := len(l.entries) - 1
		if err := l.apply(l.entries[last]); err != nil {
			return fmt.Errorf("%w: reverting %s: %v", apperrors.ErrInconsistentHistory, l.entries[last].Kind, err)
		}
		l.entries = l.entries[:last]
		n--
	}
	return nil
}

// Revert undoes entries produced by an earlier, already committed edit. The
// pending log must be empty.
func (l *Log) Revert(entries []Entry) error {
	if len(l.entries) != 0 {
		return fmt.Errorf("%w: %d entries still pending", apperrors.ErrInconsistentHistory, len(l.entries))
	}
	for k := len(entries) - 1; k >= 0; k-- {
		if err := l.apply(entries[k]); err != nil {
			return fmt.Errorf("%w: reverting %s: %v", apperrors.ErrInconsistentHistory, entries[k].Kind, err)
		}
	}
	return nil
}

// apply performs the inverse of e.
func (l *Log) apply(e Entry) error {
	switch e.Kind {
	case ReplacedChar:
		_, err := l.bwt.Replace(rlbwt.At(e.Pos), e.Char)
		return err
	case InsertedChar:
		_, err := l.bwt.Remove(rlbwt.At(e.Pos))
		return err
	case RemovedChar:
		return l.bwt.Insert(rlbwt.At(e.Pos), e.Char)
	case ReplacedSAIndex:
		if !e.Present {
			_, err := l.samples.Remove(e.Pos)
			return err
		}
		_, _, err := l.samples.Replace(e.Pos, e.Value, true)
		return err
	case ShiftedSARows:
		return l.samples.ShiftRows(e.Pos+e.Delta, -e.Delta)
	case ShiftedSAValues:
		return l.samples.ShiftValues(e.Pos+e.Delta, -e.Delta)
	case InsertedPhiEntry:
		_, err := l.phi.Table(e.Side).Remove(e.Pos)
		return err
	case RemovedPhiEntry:
		return l.phi.Table(e.Side).Insert(phi.Entry{Key: e.Pos, Value: e.Value})
	case ShiftedPhiValues:
		return l.phi.ShiftValues(e.Pos+e.Delta, -e.Delta)
	default:
		return fmt.Errorf("unknown history kind %d", e.Kind)
	}
}

func (l *Log) record(e Entry, mutate func() error) error {
	l.entries = append(l.entries, e)
	if err := mutate(); err != nil {
		l.entries = l.entries[:len(l.entries)-1]
		return err
	}
	return nil
}

// ReplaceChar overwrites BWT[pos] with c.
func (l *Log) ReplaceChar(pos int, c uint8) (uint8, error) {
	prev, err := l.bwt.Access(rlbwt.At(pos))
	if err != nil {
		return 0, err
	}
	err = l.record(Entry{Kind: ReplacedChar, Pos: pos, Char: prev}, func() error {
		_, err := l.bwt.Replace(rlbwt.At(pos), c)
		return err
	})
	return prev, err
}

// InsertChar inserts c before BWT row pos.
func (l *Log) InsertChar(pos int, c uint8) error {
	return l.record(Entry{Kind: InsertedChar, Pos: pos, Char: c}, func() error {
		return l.bwt.Insert(rlbwt.At(pos), c)
	})
}

// RemoveChar deletes BWT row pos and returns its character.
func (l *Log) RemoveChar(pos int) (uint8, error) {
	c, err := l.bwt.Access(rlbwt.At(pos))
	if err != nil {
		return 0, err
	}
	err = l.record(Entry{Kind: RemovedChar, Pos: pos, Char: c}, func() error {
		_, err := l.bwt.Remove(rlbwt.At(pos))
		return err
	})
	return c, err
}

// MoveChar moves the character at row from so that it ends up at row to.
func (l *Log) MoveChar(from, to int) error {
	c, err := l.RemoveChar(from)
	if err != nil {
		return err
	}
	return l.InsertChar(to, c)
}

// SetSample stores value at row, creating the sample if needed.
func (l *Log) SetSample(row, value int) error {
	prev, ok := l.samples.Get(row)
	if ok && prev == value {
		return nil
	}
	return l.record(Entry{Kind: ReplacedSAIndex, Pos: row, Value: prev, Present: ok}, func() error {
		_, _, err := l.samples.Replace(row, value, true)
		return err
	})
}

// RemoveSample drops the sample at row.
func (l *Log) RemoveSample(row int) error {
	prev, ok := l.samples.Get(row)
	if !ok {
		return fmt.Errorf("%w: no sample at row %d", apperrors.ErrOutOfRangePosition, row)
	}
	return l.record(Entry{Kind: ReplacedSAIndex, Pos: row, Value: prev, Present: true}, func() error {
		_, err := l.samples.Remove(row)
		return err
	})
}

// ShiftSampleRows adds delta to every sampled row >= from.
func (l *Log) ShiftSampleRows(from, delta int) error {
	return l.record(Entry{Kind: ShiftedSARows, Pos: from, Delta: delta}, func() error {
		return l.samples.ShiftRows(from, delta)
	})
}

// ShiftSampleValues adds delta to every sampled value >= from.
func (l *Log) ShiftSampleValues(from, delta int) error {
	return l.record(Entry{Kind: ShiftedSAValues, Pos: from, Delta: delta}, func() error {
		return l.samples.ShiftValues(from, delta)
	})
}

// InsertPhi adds an anchor to one phi table.
func (l *Log) InsertPhi(side phi.Side, e phi.Entry) error {
	return l.record(Entry{Kind: InsertedPhiEntry, Side: side, Pos: e.Key, Value: e.Value}, func() error {
		return l.phi.Table(side).Insert(e)
	})
}

// RemovePhi drops an anchor from one phi table.
func (l *Log) RemovePhi(side phi.Side, e phi.Entry) error {
	return l.record(Entry{Kind: RemovedPhiEntry, Side: side, Pos: e.Key, Value: e.Value}, func() error {
		_, err := l.phi.Table(side).Remove(e.Key)
		return err
	})
}

// ShiftPhiValues adds delta to every phi key and value >= from.
func (l *Log) ShiftPhiValues(from, delta int) error {
	return l.record(Entry{Kind: ShiftedPhiValues, Pos: from, Delta: delta}, func() error {
		return l.phi.ShiftValues(from, delta)
	})
}
