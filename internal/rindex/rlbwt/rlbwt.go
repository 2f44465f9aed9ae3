// Package rlbwt is the run-aware view of the BWT. It adds positions that can
// name a run directly, LF mapping, and run-head rank/select used by backward
// search to jump from one run of a character to the next.
package rlbwt

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/runtable"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

type positionKind uint8

const (
	absolute positionKind = iota
	runRelative
)

// Position addresses one BWT row either absolutely or as (run, offset).
type Position struct {
	kind   positionKind
	abs    int
	run    int
	offset int
}

// At is an absolute row.
func At(i int) Position { return Position{kind: absolute, abs: i} }

// InRun is offset rows into run.
func InRun(run, offset int) Position { return Position{kind: runRelative, run: run, offset: offset} }

func (p Position) String() string {
	if p.kind == runRelative {
		return fmt.Sprintf("run %d+%d", p.run, p.offset)
	}
	return fmt.Sprintf("row %d", p.abs)
}

// Resolved carries both forms of a position.
type Resolved struct {
	Run    int
	Offset int
	Abs    int
}

// BWT wraps a run table with the C array and LF mapping.
type BWT struct {
	runs *runtable.Table
}

// New wraps an existing table.
func New(t *runtable.Table) *BWT { return &BWT{runs: t} }

// FromRuns builds a BWT from a run sequence over sigma codes.
func FromRuns(sigma int, runs []runtable.Run) (*BWT, error) {
	t, err := runtable.FromRuns(sigma, runs)
	if err != nil {
		return nil, err
	}
	return &BWT{runs: t}, nil
}

func (b *BWT) Sigma() int { return b.runs.Sigma() }
func (b *BWT) Len() int { return b.runs.Len() }
func (b *BWT) RunCount() int { return b.runs.RunCount() }
func (b *BWT) Count(c uint8) int { return b.runs.Count(c) }
func (b *BWT) Runs() []runtable.Run { return b.runs.Runs() }
func (b *BWT) Run(run int) (runtable.Run, error) { return b.runs.Run(run) }
func (b *BWT) RunStart(run int) (int, error) { return b.runs.RunStart(run) }

// Resolve converts p to both representations. Every in-range position
// resolves; a run-relative position may not point past its run.
func (b *BWT) Resolve(p Position) (Resolved, error) {
	switch p.kind {
	case runRelative:
		r, err := b.runs.Run(p.run)
		if err != nil {
			return Resolved{}, err
		}
		if p.offset < 0 || p.offset >= r.Len {
			return Resolved{}, fmt.Errorf("%w: %s exceeds run length %d", apperrors.ErrOutOfRangePosition, p, r.Len)
		}
		start, err := b.runs.RunStart(p.run)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Run: p.run, Offset: p.offset, Abs: start + p.offset}, nil
	default:
		run, off, err := b.runs.Locate(p.abs)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Run: run, Offset: off, Abs: p.abs}, nil
	}
}

// Rank counts c in the rows before p. A run-relative position is answered
// from the run index directly; an absolute one is resolved first. The
// absolute form also accepts p == Len().
func (b *BWT) Rank(c uint8, p Position) (int, error) {
	if p.kind == runRelative {
		return b.runs.RankAtRun(c, p.run, p.offset)
	}
	if p.abs == b.runs.Len() {
		return b.runs.Count(c), nil
	}
	run, off, err := b.runs.Locate(p.abs)
	if err != nil {
		return 0, err
	}
	return b.runs.RankAtRun(c, run, off)
}

// RankOnFirstCharacters counts the runs before run that start with c.
func (b *BWT) RankOnFirstCharacters(c uint8, run int) (int, error) {
	return b.runs.RankRunHeads(c, run)
}

// SelectOnFirstCharacters returns the index of the k-th run of c.
func (b *BWT) SelectOnFirstCharacters(c uint8, k int) (int, error) {
	return b.runs.SelectRunHead(c, k)
}

// NextRunHead returns the first row at or after i where a run of c begins.
// ok is false when no run of c starts there.
func (b *BWT) NextRunHead(c uint8, i int) (row int, ok bool, err error) {
	run, off, err := b.runs.Locate(i)
	if err != nil {
		return 0, false, err
	}
	if off > 0 {
		run++
	}
	k, err := b.runs.RankRunHeads(c, run)
	if err != nil {
		return 0, false, err
	}
	if k >= b.runs.HeadCount(c) {
		return 0, false, nil
	}
	target, err := b.runs.SelectRunHead(c, k)
	if err != nil {
		return 0, false, err
	}
	row, err = b.runs.RunStart(target)
	return row, err == nil, err
}

// Access returns the character at p.
func (b *BWT) Access(p Position) (uint8, error) {
	if p.kind == runRelative {
		r, err := b.runs.Run(p.run)
		if err != nil {
			return 0, err
		}
		return r.Char, nil
	}
	return b.runs.Access(p.abs)
}

// C returns the number of characters smaller than c.
func (b *BWT) C(c uint8) int {
	total := 0
	for k := range c {
		total += b.runs.Count(k)
	}
	return total
}

// LF maps row i to the row of the suffix one text position earlier.
func (b *BWT) LF(i int) (int, error) {
	c, err := b.runs.Access(i)
	if err != nil {
		return 0, err
	}
	r, err := b.runs.Rank(c, i)
	if err != nil {
		return 0, err
	}
	return b.C(c) + r, nil
}

// InverseLF maps row i to the row of the suffix one text position later.
func (b *BWT) InverseLF(i int) (int, error) {
	if i < 0 || i >= b.Len() {
		return 0, fmt.Errorf("%w: row %d (limit %d)", apperrors.ErrOutOfRangePosition, i, b.Len())
	}
	lo := 0
	for c := range b.Sigma() {
		hi := lo + b.runs.Count(uint8(c))
		if i < hi {
			return b.runs.Select(uint8(c), i-lo)
		}
		lo = hi
	}
	return 0, fmt.Errorf("%w: row %d not covered by C array", apperrors.ErrCorruptIndex, i)
}

// Insert places c before p.
func (b *BWT) Insert(p Position, c uint8) error {
	i := p.abs
	if p.kind == runRelative {
		r, err := b.Resolve(p)
		if err != nil {
			return err
		}
		i = r.Abs
	}
	return b.runs.Insert(i, c)
}

// Remove deletes one character. The run shrinks, disappears, or disappears
// and lets its neighbours merge.
func (b *BWT) Remove(p Position) (uint8, error) {
	r, err := b.Resolve(p)
	if err != nil {
		return 0, err
	}
	return b.runs.Remove(r.Abs)
}

// Replace overwrites the character at p and returns the previous one.
func (b *BWT) Replace(p Position, c uint8) (uint8, error) {
	r, err := b.Resolve(p)
	if err != nil {
		return 0, err
	}
	return b.runs.Replace(r.Abs, c)
}

// RemoveBWTRun deletes a whole run.
func (b *BWT) RemoveBWTRun(run int) (runtable.Run, error) {
	return b.runs.RemoveRun(run)
}

// IsRunBoundary reports whether row i starts or ends its run.
func (b *BWT) IsRunBoundary(i int) (start, end bool, err error) {
	run, off, err := b.runs.Locate(i)
	if err != nil {
		return false, false, err
	}
	r, err := b.runs.Run(run)
	if err != nil {
		return false, false, err
	}
	return off == 0, off == r.Len-1, nil
}

// Boundaries returns the first and last row of every run in order.
func (b *BWT) Boundaries() []Boundary {
	runs := b.runs.Runs()
	out := make([]Boundary, len(runs))
	pos := 0
	for k, r := range runs {
		out[k] = Boundary{Start: pos, End: pos + r.Len - 1, Char: r.Char}
		pos += r.Len
	}
	return out
}

// Boundary is the row span of one run.
type Boundary struct {
	Start int
	End   int
	Char  uint8
}
