package rlbwt

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/runtable"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// banana over {$:0, a:1, b:2, n:3}: BWT "annb$aa".
func bananaBWT(t *testing.T) *BWT {
	t.Helper()
	b, err := FromRuns(4, []runtable.Run{{Char: 1, Len: 1}, {Char: 3, Len: 2}, {Char: 2, Len: 1}, {Char: 0, Len: 1}, {Char: 1, Len: 2}})
	require.NoError(t, err)
	return b
}

func TestRankBothPositionForms(t *testing.T) {
	b := bananaBWT(t)

	got, err := b.Rank(1, At(7))
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	abs, err := b.Rank(1, At(6))
	require.NoError(t, err)
	rel, err := b.Rank(1, InRun(4, 1))
	require.NoError(t, err)
	assert.Equal(t, abs, rel)
	assert.Equal(t, 2, rel)

	res, err := b.Resolve(InRun(1, 1))
	require.NoError(t, err)
	assert.Equal(t, Resolved{Run: 1, Offset: 1, Abs: 2}, res)

	_, err = b.Resolve(InRun(1, 2))
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
}

func TestLFRoundTrip(t *testing.T) {
	b := bananaBWT(t)
	assert.Equal(t, 0, b.C(0))
	assert.Equal(t, 1, b.C(1))
	assert.Equal(t, 4, b.C(2))
	assert.Equal(t, 5, b.C(3))

	// Row 0 is "$"; walking LF visits every row once.
	seen := make(map[int]bool)
	row := 0
	for range b.Len() {
		require.False(t, seen[row])
		seen[row] = true
		next, err := b.LF(row)
		require.NoError(t, err)
		back, err := b.InverseLF(next)
		require.NoError(t, err)
		require.Equal(t, row, back)
		row = next
	}
	assert.Equal(t, 0, row)
}

func TestRunHeads(t *testing.T) {
	b := bananaBWT(t)

	k, err := b.RankOnFirstCharacters(1, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, k)
	run, err := b.SelectOnFirstCharacters(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, run)

	row, ok, err := b.NextRunHead(1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, row)

	row, ok, err = b.NextRunHead(3, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, row)

	_, ok, err = b.NextRunHead(3, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdatesAndBoundaries(t *testing.T) {
	b := bananaBWT(t)

	start, end, err := b.IsRunBoundary(2)
	require.NoError(t, err)
	assert.False(t, start)
	assert.True(t, end)

	prev, err := b.Replace(At(3), 3)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), prev)
	assert.Equal(t, 4, b.RunCount())

	require.NoError(t, b.Insert(InRun(0, 0), 2))
	c, err := b.Remove(At(1))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), c)

	removed, err := b.RemoveBWTRun(0)
	require.NoError(t, err)
	assert.Equal(t, runtable.Run{Char: 2, Len: 1}, removed)
	assert.Equal(t, []Boundary{
		{Start: 0, End: 2, Char: 3},
		{Start: 3, End: 3, Char: 0},
		{Start: 4, End: 5, Char: 1},
	}, b.Boundaries())
}
