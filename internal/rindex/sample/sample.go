// Package sample holds the partial suffix array: SA values memorised at a
// subset of BWT rows, kept in a row-sorted arena with a value-sorted index
// beside it.
package sample

import (
	"fmt"
	"slices"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// Entry is one memorised SA value.
type Entry struct {
	Row   int `json:"row"`
	Value int `json:"value"`
}

// Store keeps entries sorted by row, and a copy of them sorted by value.
// Rows and values are both unique.
type Store struct {
	entries []Entry
	byValue []Entry
}

// New returns a store over entries, which are sorted by row.
func New(entries []Entry) (*Store, error) {
	s := &Store{entries: slices.Clone(entries)}
	slices.SortFunc(s.entries, func(a, b Entry) int { return a.Row - b.Row })
	for k := 1; k < len(s.entries); k++ {
		if s.entries[k].Row == s.entries[k-1].Row {
			return nil, fmt.Errorf("%w: duplicate sample at row %d", apperrors.ErrCorruptIndex, s.entries[k].Row)
		}
	}
	s.byValue = slices.Clone(s.entries)
	slices.SortFunc(s.byValue, byValue)
	return s, nil
}

func byValue(a, b Entry) int {
	if a.Value != b.Value {
		return a.Value - b.Value
	}
	return a.Row - b.Row
}

func (s *Store) Len() int { return len(s.entries) }

// Entries returns a copy in row order.
func (s *Store) Entries() []Entry { return slices.Clone(s.entries) }

func (s *Store) search(row int) (int, bool) {
	k := sort.Search(len(s.entries), func(k int) bool { return s.entries[k].Row >= row })
	return k, k < len(s.entries) && s.entries[k].Row == row
}

// Get returns the value sampled at row.
func (s *Store) Get(row int) (int, bool) {
	k, ok := s.search(row)
	if !ok {
		return 0, false
	}
	return s.entries[k].Value, true
}

// Around returns the nearest samples at or before row and at or after it.
func (s *Store) Around(row int) (pred, succ Entry, err error) {
	k, ok := s.search(row)
	if ok {
		return s.entries[k], s.entries[k], nil
	}
	if k == 0 || k == len(s.entries) {
		return Entry{}, Entry{}, fmt.Errorf("%w: row %d is not enclosed by samples", apperrors.ErrCorruptIndex, row)
	}
	return s.entries[k-1], s.entries[k], nil
}

// NearestByValue returns the sample whose value is closest to v. On a tie the
// smaller value wins.
func (s *Store) NearestByValue(v int) (Entry, bool) {
	if len(s.byValue) == 0 {
		return Entry{}, false
	}
	k := sort.Search(len(s.byValue), func(k int) bool { return s.byValue[k].Value >= v })
	switch {
	case k == len(s.byValue):
		return s.byValue[k-1], true
	case k == 0:
		return s.byValue[0], true
	}
	if below, above := s.byValue[k-1], s.byValue[k]; v-below.Value <= above.Value-v {
		return below, true
	}
	return s.byValue[k], true
}

func (s *Store) indexValue(e Entry) {
	k, _ := slices.BinarySearchFunc(s.byValue, e, byValue)
	s.byValue = slices.Insert(s.byValue, k, e)
}

func (s *Store) unindexValue(e Entry) {
	if k, ok := slices.BinarySearchFunc(s.byValue, e, byValue); ok {
		s.byValue = slices.Delete(s.byValue, k, k+1)
	}
}

// Remove drops the sample at row and returns its value. The store does not
// resample; the caller supplies any replacement.
func (s *Store) Remove(row int) (int, error) {
	k, ok := s.search(row)
	if !ok {
		return 0, fmt.Errorf("%w: no sample at row %d", apperrors.ErrOutOfRangePosition, row)
	}
	e := s.entries[k]
	s.entries = slices.Delete(s.entries, k, k+1)
	s.unindexValue(e)
	return e.Value, nil
}

// Replace sets the sample at row to value. Without create, a missing sample
// is an error. It returns the previous value and whether one existed.
func (s *Store) Replace(row, value int, create bool) (prev int, existed bool, err error) {
	k, ok := s.search(row)
	if ok {
		prev = s.entries[k].Value
		s.unindexValue(s.entries[k])
		s.entries[k].Value = value
		s.indexValue(s.entries[k])
		return prev, true, nil
	}
	if !create {
		return 0, false, fmt.Errorf("%w: no sample at row %d", apperrors.ErrOutOfRangePosition, row)
	}
	s.entries = slices.Insert(s.entries, k, Entry{Row: row, Value: value})
	s.indexValue(Entry{Row: row, Value: value})
	return 0, false, nil
}

// ShiftRows adds delta to every row >= from. A negative shift must not land
// on an existing row.
func (s *Store) ShiftRows(from, delta int) error {
	k, _ := s.search(from)
	if delta < 0 && k > 0 && s.entries[k-1].Row >= from+delta && k < len(s.entries) {
		return fmt.Errorf("%w: shifting rows from %d by %d collides with row %d", apperrors.ErrCorruptIndex, from, delta, s.entries[k-1].Row)
	}
	for i := k; i < len(s.entries); i++ {
		s.entries[i].Row += delta
	}
	for i := range s.byValue {
		if s.byValue[i].Row >= from {
			s.byValue[i].Row += delta
		}
	}
	return nil
}

// ShiftValues adds delta to every value >= from.
func (s *Store) ShiftValues(from, delta int) error {
	if delta < 0 {
		for _, e := range s.entries {
			if e.Value < from && e.Value >= from+delta {
				return fmt.Errorf("%w: shifting values from %d by %d collides with value %d", apperrors.ErrCorruptIndex, from, delta, e.Value)
			}
		}
	}
	for i := range s.entries {
		if s.entries[i].Value >= from {
			s.entries[i].Value += delta
		}
	}
	k := sort.Search(len(s.byValue), func(k int) bool { return s.byValue[k].Value >= from })
	for i := k; i < len(s.byValue); i++ {
		s.byValue[i].Value += delta
	}
	return nil
}
