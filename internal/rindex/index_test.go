package rindex

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/alphabet"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/update"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func mustIndex(t *testing.T, text, chars string) *Index {
	t.Helper()
	var a *alphabet.Alphabet
	if chars != "" {
		a = alphabet.MustNew(chars, alphabet.DefaultEndMarker)
	}
	ix, err := New([]byte(text), a, Options{})
	require.NoError(t, err)
	return ix
}

func naiveOccurrences(text, pattern string) []int {
	out := make([]int, 0)
	if pattern == "" {
		return out
	}
	for i := 0; i+len(pattern) <= len(text); i++ {
		if text[i:i+len(pattern)] == pattern {
			out = append(out, i)
		}
	}
	return out
}

// requireMatchesRebuild checks ix against an index built from scratch on text.
func requireMatchesRebuild(t *testing.T, ix *Index, text string) {
	t.Helper()
	fresh, err := New([]byte(text), ix.Alphabet(), Options{})
	require.NoError(t, err)
	require.NoError(t, ix.Verify())
	got, want := ix.Snapshot(), fresh.Snapshot()
	require.Equal(t, want.Runs, got.Runs, "runs after edits on %q", text)
	require.Equal(t, want.Samples, got.Samples, "samples after edits on %q", text)
	gotText, err := ix.Text()
	require.NoError(t, err)
	require.Equal(t, text, string(gotText))
}

func sameState(t *testing.T, want, got Snapshot) {
	t.Helper()
	assert.Equal(t, want.Runs, got.Runs)
	assert.Equal(t, want.Samples, got.Samples)
	assert.Equal(t, want.Edits, got.Edits)
}

// ---------------------------------------------------------------------------
// Construction and queries
// ---------------------------------------------------------------------------

func TestBananaRank(t *testing.T) {
	ix := mustIndex(t, "banana", "")
	assert.Equal(t, "annb\x01aa", string(ix.BWT()))
	assert.Equal(t, 5, ix.RunCount())

	got, err := ix.Rank('a', 7)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = ix.Rank('n', 3)
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	_, err = ix.Rank('z', 3)
	assert.ErrorIs(t, err, apperrors.ErrUnknownCharacter)
	_, err = ix.Rank('a', 8)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
}

func TestBananaLocate(t *testing.T) {
	ix := mustIndex(t, "banana", "")

	res, err := ix.Locate([]byte("ana"), true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []int{1, 3}, res.SortedPositions())
	assert.Equal(t, 4, res.Sum())
	assert.Equal(t, []int{0, 1, 1}, res.ReorderCountVector("abn"))

	n, err := ix.Count([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, p := range []string{"", "x", "nab", "bananas"} {
		res, err := ix.Locate([]byte(p), true)
		require.NoError(t, err, p)
		assert.Zero(t, res.Count, p)
		assert.Empty(t, res.Positions, p)
	}
}

func TestExtractAndAccess(t *testing.T) {
	ix := mustIndex(t, "mississippi", "")

	out, err := ix.Extract(2, 5)
	require.NoError(t, err)
	assert.Equal(t, "ssiss", string(out))

	c, err := ix.Access(10)
	require.NoError(t, err)
	assert.Equal(t, byte('i'), c)

	out, err = ix.Extract(11, 0)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = ix.Extract(8, 4)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
	_, err = ix.Access(-1)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
}

func TestEmptyText(t *testing.T) {
	ix := mustIndex(t, "", "ab")
	assert.Equal(t, 0, ix.Len())
	assert.Equal(t, 1, ix.RunCount())
	require.NoError(t, ix.Verify())

	_, err := ix.Insert(0, 'a')
	require.NoError(t, err)
	_, err = ix.Insert(1, 'b')
	require.NoError(t, err)
	requireMatchesRebuild(t, ix, "ab")

	_, err = ix.DeleteString(0, 2)
	require.NoError(t, err)
	requireMatchesRebuild(t, ix, "")
}

// ---------------------------------------------------------------------------
// Edits
// ---------------------------------------------------------------------------

func TestBananaDelete(t *testing.T) {
	ix := mustIndex(t, "banana", "")
	before := ix.RunCount()

	res, err := ix.Delete(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Version)
	assert.Equal(t, ix.RunCount(), res.Runs)
	assert.LessOrEqual(t, before-ix.RunCount(), 1)

	got, err := ix.Rank('a', 6)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	requireMatchesRebuild(t, ix, "banan")
}

func TestInsertAtEveryPosition(t *testing.T) {
	const text = "abracadabra"
	for pos := 0; pos <= len(text); pos++ {
		for _, c := range []byte("abrcd") {
			ix := mustIndex(t, text, "abcdr")
			_, err := ix.Insert(pos, c)
			require.NoError(t, err, "insert %q at %d", c, pos)
			requireMatchesRebuild(t, ix, text[:pos]+string(c)+text[pos:])
		}
	}
}

func TestDeleteAtEveryPosition(t *testing.T) {
	const text = "abracadabra"
	for pos := range len(text) {
		ix := mustIndex(t, text, "abcdr")
		_, err := ix.Delete(pos)
		require.NoError(t, err, "delete at %d", pos)
		requireMatchesRebuild(t, ix, text[:pos]+text[pos+1:])
	}
}

func TestUnknownCharacterLeavesIndexUntouched(t *testing.T) {
	ix := mustIndex(t, "banana", "")
	before := ix.Snapshot()

	_, err := ix.Insert(2, 'z')
	assert.ErrorIs(t, err, apperrors.ErrUnknownCharacter)
	_, err = ix.InsertString(2, []byte("naz"))
	assert.ErrorIs(t, err, apperrors.ErrUnknownCharacter)
	_, err = ix.Insert(2, alphabet.DefaultEndMarker)
	assert.ErrorIs(t, err, apperrors.ErrUnknownCharacter)

	sameState(t, before, ix.Snapshot())
	assert.Zero(t, ix.Version())
}

func TestOutOfRangeEdits(t *testing.T) {
	ix := mustIndex(t, "banana", "")
	before := ix.Snapshot()

	_, err := ix.Insert(7, 'a')
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
	_, err = ix.Insert(-1, 'a')
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
	_, err = ix.Delete(6)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
	_, err = ix.DeleteString(4, 3)
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)

	sameState(t, before, ix.Snapshot())
}

func TestStringEdits(t *testing.T) {
	ix := mustIndex(t, "banana", "")

	res, err := ix.InsertString(3, []byte("nab"))
	require.NoError(t, err)
	assert.Len(t, res.PerChar, 3)
	requireMatchesRebuild(t, ix, "bannabana")

	_, err = ix.DeleteString(1, 4)
	require.NoError(t, err)
	requireMatchesRebuild(t, ix, "bbana")
	assert.Equal(t, 2, ix.Stats().Edits)
}

func TestRandomEditsMatchRebuild(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	const chars = "acgt"
	text := []byte("gattacagattaca")
	ix := mustIndex(t, string(text), chars)

	for step := range 300 {
		if len(text) > 0 && rng.IntN(3) == 0 {
			pos := rng.IntN(len(text))
			_, err := ix.Delete(pos)
			require.NoError(t, err, "step %d delete at %d of %q", step, pos, text)
			text = slices.Delete(text, pos, pos+1)
		} else {
			pos := rng.IntN(len(text) + 1)
			c := chars[rng.IntN(len(chars))]
			_, err := ix.Insert(pos, c)
			require.NoError(t, err, "step %d insert %q at %d of %q", step, c, pos, text)
			text = slices.Insert(text, pos, c)
		}
		requireMatchesRebuild(t, ix, string(text))

		if step%10 == 0 && len(text) > 0 {
			start := rng.IntN(len(text))
			end := min(len(text), start+1+rng.IntN(3))
			pattern := string(text[start:end])
			res, err := ix.Locate([]byte(pattern), true)
			require.NoError(t, err)
			want := naiveOccurrences(string(text), pattern)
			assert.Equal(t, len(want), res.Count, "count of %q in %q", pattern, text)
			assert.Equal(t, want, res.SortedPositions(), "positions of %q in %q", pattern, text)
		}
	}
}

// TestEveryEditOnShortBinaryTexts applies every single-character insert and
// delete to every text over {a, b} of length at most 9. Binary texts are
// dense in equal characters, so the BWT rows that tie on their last column
// are exercised in every arrangement.
func TestEveryEditOnShortBinaryTexts(t *testing.T) {
	if testing.Short() {
		t.Skip("exhaustive edit sweep")
	}
	ab := alphabet.MustNew("ab", alphabet.DefaultEndMarker)
	fresh := func(text []byte) *Index {
		ix, err := New(text, ab, Options{UndoDepth: -1})
		require.NoError(t, err)
		return ix
	}
	for n := 0; n <= 9; n++ {
		for mask := range 1 << n {
			text := make([]byte, n)
			for i := range text {
				text[i] = "ab"[mask>>i&1]
			}
			for i := 0; i <= n; i++ {
				for _, c := range []byte("ab") {
					ix := fresh(text)
					_, err := ix.Insert(i, c)
					require.NoError(t, err, "insert %q at %d of %q", c, i, text)
					requireEditMatchesRebuild(t, ix, string(slices.Insert(slices.Clone(text), i, c)))
				}
			}
			for i := range n {
				ix := fresh(text)
				_, err := ix.Delete(i)
				require.NoError(t, err, "delete at %d of %q", i, text)
				requireEditMatchesRebuild(t, ix, string(slices.Delete(slices.Clone(text), i, i+1)))
			}
		}
	}
}

// requireEditMatchesRebuild extends requireMatchesRebuild with locate
// answers, which follow the phi tables rather than the samples alone.
func requireEditMatchesRebuild(t *testing.T, ix *Index, text string) {
	t.Helper()
	requireMatchesRebuild(t, ix, text)
	for _, pattern := range []string{"a", "b", "ab", "ba", "aab"} {
		res, err := ix.Locate([]byte(pattern), true)
		require.NoError(t, err)
		require.ElementsMatch(t, naiveOccurrences(text, pattern), res.Positions, "positions of %q in %q", pattern, text)
	}
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

func TestInsertThenDeleteRestoresState(t *testing.T) {
	ix := mustIndex(t, "mississippi", "")
	before := ix.Snapshot()

	_, err := ix.Insert(4, 'p')
	require.NoError(t, err)
	_, err = ix.Delete(4)
	require.NoError(t, err)

	after := ix.Snapshot()
	assert.Equal(t, before.Runs, after.Runs)
	assert.Equal(t, before.Samples, after.Samples)
}

func TestUndoRestoresState(t *testing.T) {
	ix := mustIndex(t, "mississippi", "")
	snaps := []Snapshot{ix.Snapshot()}

	edits := []func() error{
		func() error { _, err := ix.Insert(0, 'p'); return err },
		func() error { _, err := ix.Delete(5); return err },
		func() error { _, err := ix.InsertString(3, []byte("sip")); return err },
		func() error { _, err := ix.DeleteString(0, 4); return err },
	}
	for _, edit := range edits {
		require.NoError(t, edit())
		snaps = append(snaps, ix.Snapshot())
	}

	require.NoError(t, ix.Undo(1))
	sameState(t, snaps[3], ix.Snapshot())
	require.NoError(t, ix.Undo(3))
	sameState(t, snaps[0], ix.Snapshot())
	require.NoError(t, ix.Verify())

	err := ix.Undo(1)
	assert.ErrorIs(t, err, apperrors.ErrInconsistentHistory)
	assert.Equal(t, uint64(2*len(edits)), ix.Version())
}

func TestUndoDepthBoundsJournal(t *testing.T) {
	ix, err := New([]byte("abc"), nil, Options{UndoDepth: 2})
	require.NoError(t, err)
	for range 3 {
		_, err := ix.Insert(0, 'a')
		require.NoError(t, err)
	}
	assert.Equal(t, 2, ix.Stats().Undoable)
	assert.ErrorIs(t, ix.Undo(3), apperrors.ErrInconsistentHistory)
	require.NoError(t, ix.Undo(2))
	requireMatchesRebuild(t, ix, "aabc")

	noJournal, err := New([]byte("abc"), nil, Options{UndoDepth: -1})
	require.NoError(t, err)
	_, err = noJournal.Insert(0, 'b')
	require.NoError(t, err)
	assert.ErrorIs(t, noJournal.Undo(1), apperrors.ErrInconsistentHistory)
}

func TestHookFailureRollsBack(t *testing.T) {
	boom := errors.New("boom")
	for _, failAt := range []update.State{update.Pending, update.RunUpdated, update.SAUpdated, update.PhiUpdated} {
		t.Run(failAt.String(), func(t *testing.T) {
			ix, err := New([]byte("mississippi"), nil, Options{Hook: func(s update.State) error {
				if s == failAt {
					return boom
				}
				return nil
			}})
			require.NoError(t, err)
			before := ix.Snapshot()

			_, err = ix.Insert(3, 'p')
			assert.ErrorIs(t, err, boom)
			_, err = ix.DeleteString(2, 3)
			assert.ErrorIs(t, err, boom)

			sameState(t, before, ix.Snapshot())
			require.NoError(t, ix.Verify())
			assert.Zero(t, ix.Version())
		})
	}
}

func TestConcurrentEditRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once bool
	ix, err := New([]byte("banana"), nil, Options{Hook: func(s update.State) error {
		if s == update.RunUpdated && !once {
			once = true
			close(started)
			<-release
		}
		return nil
	}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ix.Insert(0, 'n')
		done <- err
	}()
	<-started

	_, err = ix.Insert(1, 'a')
	assert.ErrorIs(t, err, apperrors.ErrEditInProgress)
	_, err = ix.Delete(1)
	assert.ErrorIs(t, err, apperrors.ErrEditInProgress)
	assert.ErrorIs(t, ix.Undo(0), apperrors.ErrEditInProgress)

	close(release)
	require.NoError(t, <-done)
	requireMatchesRebuild(t, ix, "nbanana")
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

func TestSnapshotRoundTrip(t *testing.T) {
	ix := mustIndex(t, "abracadabra", "")
	_, err := ix.Insert(5, 'r')
	require.NoError(t, err)

	restored, err := FromSnapshot(ix.Snapshot(), Options{})
	require.NoError(t, err)
	sameState(t, ix.Snapshot(), restored.Snapshot())
	assert.Equal(t, ix.BWT(), restored.BWT())
	assert.Equal(t, ix.Version(), restored.Version())

	res, err := restored.Locate([]byte("abra"), true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 8}, res.SortedPositions())
}

func TestFromSnapshotRejectsCorruptSamples(t *testing.T) {
	snap := mustIndex(t, "banana", "").Snapshot()
	snap.Samples = snap.Samples[1:]
	_, err := FromSnapshot(snap, Options{})
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestFromSnapshotRejectsWrongSampleValues(t *testing.T) {
	snap := mustIndex(t, "banana", "").Snapshot()
	// Rows stay on run boundaries and the phi tables are rebuilt from the
	// samples, so only the SA walk can tell.
	snap.Samples[1].Value, snap.Samples[2].Value = snap.Samples[2].Value, snap.Samples[1].Value
	_, err := FromSnapshot(snap, Options{})
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestStats(t *testing.T) {
	ix := mustIndex(t, "banana", "")
	st := ix.Stats()
	assert.Equal(t, 6, st.TextLength)
	assert.Equal(t, 5, st.Runs)
	assert.Equal(t, 5, st.PhiRuns)
	assert.Equal(t, 2*5-3, st.Samples)
	assert.Equal(t, "abn", st.Alphabet)
}
