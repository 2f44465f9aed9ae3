package phi

import (
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SA of banana$ is [6 5 3 1 0 4 2] with runs a|nn|b|$|aa.
var bananaSA = []int{6, 5, 3, 1, 0, 4, 2}

var bananaSpans = []Span{{6, 6}, {5, 3}, {1, 1}, {0, 0}, {4, 2}}

func TestPhiMatchesSuffixArray(t *testing.T) {
	f := Build(bananaSpans)
	assert.Equal(t, 5, f.RunCount())

	n := len(bananaSA)
	for j, v := range bananaSA {
		prev, err := f.Phi(v)
		require.NoError(t, err)
		assert.Equal(t, bananaSA[(j+n-1)%n], prev, "phi(%d)", v)

		next, err := f.InversePhi(v)
		require.NoError(t, err)
		assert.Equal(t, bananaSA[(j+1)%n], next, "inverse phi(%d)", v)
	}

	v, err := f.InversePhiK(6, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	v, err = f.PhiK(0, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, v)
}

func TestDiff(t *testing.T) {
	cur := []Entry{{0, 4}, {2, 5}, {6, 1}}
	want := []Entry{{0, 4}, {2, 3}, {5, 1}}

	remove, insert := Diff(cur, want)
	assert.Equal(t, []Entry{{2, 5}, {6, 1}}, remove)
	assert.Equal(t, []Entry{{2, 3}, {5, 1}}, insert)

	remove, insert = Diff(want, want)
	assert.Empty(t, remove)
	assert.Empty(t, insert)
}

func TestTableEdits(t *testing.T) {
	f := Build(bananaSpans)
	tb := f.Table(Inverse)

	assert.ErrorIs(t, tb.Insert(Entry{Key: 6, Value: 0}), apperrors.ErrCorruptIndex)
	_, err := tb.Remove(4)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)

	e, err := tb.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, Entry{0, 4}, e)
	_, err = tb.Lookup(0)
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
	require.NoError(t, tb.Insert(e))

	got, ok := tb.Get(0)
	assert.True(t, ok)
	assert.Equal(t, Entry{0, 4}, got)
	_, ok = tb.Get(5)
	assert.False(t, ok)
}

func TestShiftValues(t *testing.T) {
	f := Build(bananaSpans)
	require.NoError(t, f.ShiftValues(3, 2))
	v, err := f.Phi(7)
	require.NoError(t, err)
	assert.Equal(t, 8, v)

	assert.ErrorIs(t, f.ShiftValues(5, -3), apperrors.ErrCorruptIndex)
	require.NoError(t, f.ShiftValues(5, -2))
	assert.Equal(t, Build(bananaSpans).Table(Forward).Entries(), f.Table(Forward).Entries())
}
