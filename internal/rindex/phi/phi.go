// Package phi maintains the run-structured phi function and its inverse.
//
// For SA rows j, phi(SA[j]) = SA[j-1] and inverse phi(SA[j]) = SA[j+1], both
// cyclic. phi(v) - v only changes at SA values sampled at run heads, and
// inverse phi(v) - v only at values sampled at run tails, so each function is
// stored as one sorted entry per BWT run and evaluated from the predecessor
// entry: f(v) = f(p) + (v - p).
package phi

import (
	"fmt"
	"slices"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// Side selects one of the two tables.
type Side uint8

const (
	Forward Side = iota
	Inverse
)

func (s Side) String() string {
	if s == Inverse {
		return "inverse"
	}
	return "forward"
}

// Entry anchors the function at Key: f(Key) = Value.
type Entry struct {
	Key   int `json:"k"`
	Value int `json:"v"`
}

// Span is the pair of SA values sampled at the first and last row of a run.
type Span struct {
	Head int
	Tail int
}

// Table is a key-sorted entry list.
type Table struct {
	entries []Entry
}

func newTable(entries []Entry) Table {
	slices.SortFunc(entries, func(a, b Entry) int { return a.Key - b.Key })
	return Table{entries: entries}
}

func (t *Table) Len() int { return len(t.entries) }

func (t *Table) Entries() []Entry { return slices.Clone(t.entries) }

func (t *Table) search(key int) (int, bool) {
	k := sort.Search(len(t.entries), func(k int) bool { return t.entries[k].Key >= key })
	return k, k < len(t.entries) && t.entries[k].Key == key
}

// Lookup evaluates the function at v.
func (t *Table) Lookup(v int) (int, error) {
	k := sort.Search(len(t.entries), func(k int) bool { return t.entries[k].Key > v })
	if k == 0 {
		return 0, fmt.Errorf("%w: no phi anchor at or below %d", apperrors.ErrCorruptIndex, v)
	}
	e := t.entries[k-1]
	return e.Value + (v - e.Key), nil
}

func (t *Table) Insert(e Entry) error {
	k, ok := t.search(e.Key)
	if ok {
		return fmt.Errorf("%w: phi anchor %d already present", apperrors.ErrCorruptIndex, e.Key)
	}
	t.entries = slices.Insert(t.entries, k, e)
	return nil
}

func (t *Table) Remove(key int) (Entry, error) {
	k, ok := t.search(key)
	if !ok {
		return Entry{}, fmt.Errorf("%w: no phi anchor %d", apperrors.ErrOutOfRangePosition, key)
	}
	e := t.entries[k]
	t.entries = slices.Delete(t.entries, k, k+1)
	return e, nil
}

// Get returns the anchor stored at key.
func (t *Table) Get(key int) (Entry, bool) {
	k, ok := t.search(key)
	if !ok {
		return Entry{}, false
	}
	return t.entries[k], true
}

func (t *Table) shift(from, delta int) {
	for i := range t.entries {
		if t.entries[i].Key >= from {
			t.entries[i].Key += delta
		}
		if t.entries[i].Value >= from {
			t.entries[i].Value += delta
		}
	}
}

// Function holds both tables.
type Function struct {
	fwd Table
	inv Table
}

// Build derives both tables from per-run sampled values in row order.
func Build(spans []Span) *Function {
	fwd, inv := Tables(spans)
	return &Function{fwd: newTable(fwd), inv: newTable(inv)}
}

// Tables computes the entries of both tables, sorted by key.
func Tables(spans []Span) (fwd, inv []Entry) {
	r := len(spans)
	fwd = make([]Entry, r)
	inv = make([]Entry, r)
	for k, s := range spans {
		fwd[k] = Entry{Key: s.Head, Value: spans[(k+r-1)%r].Tail}
		inv[k] = Entry{Key: s.Tail, Value: spans[(k+1)%r].Head}
	}
	slices.SortFunc(fwd, func(a, b Entry) int { return a.Key - b.Key })
	slices.SortFunc(inv, func(a, b Entry) int { return a.Key - b.Key })
	return fwd, inv
}

// Diff lists the entries to remove from cur and insert into it to obtain
// want. Both inputs are key-sorted.
func Diff(cur, want []Entry) (remove, insert []Entry) {
	i, j := 0, 0
	for i < len(cur) || j < len(want) {
		switch {
		case j == len(want) || (i < len(cur) && cur[i].Key < want[j].Key):
			remove = append(remove, cur[i])
			i++
		case i == len(cur) || want[j].Key < cur[i].Key:
			insert = append(insert, want[j])
			j++
		default:
			if cur[i].Value != want[j].Value {
				remove = append(remove, cur[i])
				insert = append(insert, want[j])
			}
			i++
			j++
		}
	}
	return remove, insert
}

func (f *Function) Table(side Side) *Table {
	if side == Inverse {
		return &f.inv
	}
	return &f.fwd
}

// RunCount is the number of phi runs.
func (f *Function) RunCount() int { return f.fwd.Len() }

// Phi returns the SA value of the row preceding the row of v.
func (f *Function) Phi(v int) (int, error) { return f.fwd.Lookup(v) }

// InversePhi returns the SA value of the row following the row of v.
func (f *Function) InversePhi(v int) (int, error) { return f.inv.Lookup(v) }

// PhiK applies phi k times.
func (f *Function) PhiK(v, k int) (int, error) { return chain(&f.fwd, v, k) }

// InversePhiK applies inverse phi k times.
func (f *Function) InversePhiK(v, k int) (int, error) { return chain(&f.inv, v, k) }

func chain(t *Table, v, k int) (int, error) {
	var err error
	for range k {
		if v, err = t.Lookup(v); err != nil {
			return 0, err
		}
	}
	return v, nil
}

// ShiftValues adds delta to every key and value >= from in both tables.
// Entries touching from+delta..from-1 must be removed before a negative shift.
func (f *Function) ShiftValues(from, delta int) error {
	if delta < 0 {
		for _, t := range []*Table{&f.fwd, &f.inv} {
			for _, e := range t.entries {
				if (e.Key < from && e.Key >= from+delta) || (e.Value < from && e.Value >= from+delta) {
					return fmt.Errorf("%w: shifting phi values from %d by %d collides with %+v", apperrors.ErrCorruptIndex, from, delta, e)
				}
			}
		}
	}
	f.fwd.shift(from, delta)
	f.inv.shift(from, delta)
	return nil
}
