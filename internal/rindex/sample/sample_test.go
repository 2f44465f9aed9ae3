package sample

import (
	"math/rand/v2"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New([]Entry{{Row: 6, Value: 1}, {Row: 0, Value: 6}, {Row: 3, Value: 0}})
	require.NoError(t, err)
	return s
}

func TestNewSortsAndRejectsDuplicates(t *testing.T) {
	s := newStore(t)
	assert.Equal(t, []Entry{{0, 6}, {3, 0}, {6, 1}}, s.Entries())

	_, err := New([]Entry{{Row: 1, Value: 1}, {Row: 1, Value: 2}})
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestLookups(t *testing.T) {
	s := newStore(t)

	v, ok := s.Get(3)
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	_, ok = s.Get(4)
	assert.False(t, ok)

	pred, succ, err := s.Around(4)
	require.NoError(t, err)
	assert.Equal(t, Entry{3, 0}, pred)
	assert.Equal(t, Entry{6, 1}, succ)

	_, _, err = s.Around(7)
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)

	e, ok := s.NearestByValue(5)
	assert.True(t, ok)
	assert.Equal(t, Entry{0, 6}, e)
}

func TestReplaceAndRemove(t *testing.T) {
	s := newStore(t)

	prev, existed, err := s.Replace(3, 9, false)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 0, prev)

	_, _, err = s.Replace(4, 2, false)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
	_, existed, err = s.Replace(4, 2, true)
	require.NoError(t, err)
	assert.False(t, existed)

	v, err := s.Remove(4)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = s.Remove(4)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
}

func TestShifts(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.ShiftRows(3, 2))
	assert.Equal(t, []Entry{{0, 6}, {5, 0}, {8, 1}}, s.Entries())
	require.NoError(t, s.ShiftRows(5, -2))
	assert.Equal(t, []Entry{{0, 6}, {3, 0}, {6, 1}}, s.Entries())
	assert.ErrorIs(t, s.ShiftRows(3, -3), apperrors.ErrCorruptIndex)

	require.NoError(t, s.ShiftValues(1, 1))
	assert.Equal(t, []Entry{{0, 7}, {3, 0}, {6, 2}}, s.Entries())
	assert.ErrorIs(t, s.ShiftValues(2, -2), apperrors.ErrCorruptIndex)
}

func nearestByScan(entries []Entry, v int) Entry {
	best := entries[0]
	for _, e := range entries[1:] {
		d, bd := e.Value-v, best.Value-v
		if d < 0 {
			d = -d
		}
		if bd < 0 {
			bd = -bd
		}
		if d < bd || (d == bd && e.Value < best.Value) {
			best = e
		}
	}
	return best
}

// TestNearestByValueFollowsMutations keeps the value index honest through
// every kind of update the edit path makes.
func TestNearestByValueFollowsMutations(t *testing.T) {
	rng := rand.New(rand.NewPCG(17, 19))
	s, err := New(nil)
	require.NoError(t, err)
	_, ok := s.NearestByValue(3)
	assert.False(t, ok)

	next := 0
	for step := range 400 {
		switch rng.IntN(5) {
		case 0, 1:
			next += 1 + rng.IntN(3)
			_, _, err := s.Replace(rng.IntN(200), next, true)
			require.NoError(t, err)
		case 2:
			if s.Len() > 0 {
				_, err := s.Remove(s.Entries()[rng.IntN(s.Len())].Row)
				require.NoError(t, err)
			}
		case 3:
			require.NoError(t, s.ShiftRows(rng.IntN(200), 1+rng.IntN(2)))
		case 4:
			require.NoError(t, s.ShiftValues(rng.IntN(next+1), 1))
			next++
		}
		if s.Len() == 0 {
			continue
		}
		entries := s.Entries()
		for v := -2; v <= next+2; v++ {
			got, ok := s.NearestByValue(v)
			require.True(t, ok)
			require.Equal(t, nearestByScan(entries, v), got, "step %d value %d", step, v)
		}
	}
}
