package update

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/alphabet"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/history"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/phi"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/rlbwt"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/runtable"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/sample"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dna = alphabet.MustNew("acgt", alphabet.DefaultEndMarker)

type structures struct {
	bwt     *rlbwt.BWT
	samples *sample.Store
	phi     *phi.Function
	log     *history.Log
}

// build constructs the structures for text straight from its suffix array.
func build(t *testing.T, text string) *structures {
	t.Helper()
	codes, err := dna.Encode([]byte(text))
	require.NoError(t, err)
	codes = append(codes, 0)
	sa := builder.SuffixArray(codes)
	runs := builder.Runs(builder.BWT(codes, sa))

	b, err := rlbwt.FromRuns(dna.Size(), runs)
	require.NoError(t, err)
	var entries []sample.Entry
	var spans []phi.Span
	for _, bd := range b.Boundaries() {
		entries = append(entries, sample.Entry{Row: bd.Start, Value: sa[bd.Start]})
		if bd.End != bd.Start {
			entries = append(entries, sample.Entry{Row: bd.End, Value: sa[bd.End]})
		}
		spans = append(spans, phi.Span{Head: sa[bd.Start], Tail: sa[bd.End]})
	}
	s, err := sample.New(entries)
	require.NoError(t, err)
	f := phi.Build(spans)
	return &structures{bwt: b, samples: s, phi: f, log: history.New(b, s, f)}
}

type view struct {
	runs    []runtable.Run
	samples []sample.Entry
	fwd     []phi.Entry
	inv     []phi.Entry
}

func (st *structures) view() view {
	return view{
		runs:    st.bwt.Runs(),
		samples: st.samples.Entries(),
		fwd:     st.phi.Table(phi.Forward).Entries(),
		inv:     st.phi.Table(phi.Inverse).Entries(),
	}
}

func TestISAAndSAValue(t *testing.T) {
	const text = "gattacagattaca"
	st := build(t, text)
	codes, err := dna.Encode([]byte(text))
	require.NoError(t, err)
	sa := builder.SuffixArray(append(codes, 0))

	for row, v := range sa {
		got, err := ISA(st.bwt, st.samples, v)
		require.NoError(t, err)
		assert.Equal(t, row, got, "ISA(%d)", v)

		val, err := SAValue(st.samples, st.phi, row)
		require.NoError(t, err)
		assert.Equal(t, v, val, "SA[%d]", row)
	}
	_, err = ISA(st.bwt, st.samples, len(sa))
	assert.ErrorIs(t, err, apperrors.ErrOutOfRangePosition)
}

func TestEditorMatchesRebuild(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		insert bool
		pos    int
		c      byte
		want   string
	}{
		{"insert front", "gattaca", true, 0, 't', "tgattaca"},
		{"insert middle", "gattaca", true, 3, 'c', "gatctaca"},
		{"insert end", "gattaca", true, 7, 'g', "gattacag"},
		{"insert into empty", "", true, 0, 'a', "a"},
		{"delete front", "gattaca", false, 0, 0, "attaca"},
		{"delete middle", "gattaca", false, 4, 0, "gattca"},
		{"delete last", "gattaca", false, 6, 0, "gattac"},
		{"delete only", "t", false, 0, 0, ""},
		{"insert beside equal character", "aac", true, 2, 'a', "aaac"},
		{"insert into run of equal characters", "aaaa", true, 2, 'a', "aaaaa"},
		{"delete before equal characters", "aacaac", false, 5, 0, "aacaa"},
		{"delete inside repeats", "aacacac", false, 2, 0, "aaacac"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := build(t, tc.text)
			ed := New(st.bwt, st.samples, st.phi, st.log, nil)

			var res Result
			var err error
			if tc.insert {
				code, ok := dna.Code(tc.c)
				require.True(t, ok)
				res, err = ed.Insert(tc.pos, code)
			} else {
				res, err = ed.Delete(tc.pos)
			}
			require.NoError(t, err)
			assert.NotEmpty(t, res.Entries)
			assert.Zero(t, st.log.Len())
			assert.Equal(t, build(t, tc.want).view(), st.view())

			require.NoError(t, st.log.Revert(res.Entries))
			assert.Equal(t, build(t, tc.text).view(), st.view())
		})
	}
}

func TestTraceCarriesDirtyRows(t *testing.T) {
	tr := &trace{insert: true}
	tr.touch(0)
	tr.push(rowOp{kind: rowInserted, to: 1})
	tr.push(rowOp{kind: rowMoved, from: 4, to: 0})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 7}, tr.dirtyRows(8))
	assert.Equal(t, 3, tr.origin(0))
	assert.Equal(t, newRow, tr.origin(2))
}

// TestEditTouchesOnlyRowsNearTheChange checks that an edit on a text with
// many runs revisits a handful of rows, not every run boundary.
func TestEditTouchesOnlyRowsNearTheChange(t *testing.T) {
	rng := rand.New(rand.NewPCG(23, 29))
	text := make([]byte, 600)
	for i := range text {
		text[i] = "acgt"[rng.IntN(4)]
	}
	st := build(t, string(text))
	require.Greater(t, st.bwt.RunCount(), 200)
	ed := New(st.bwt, st.samples, st.phi, st.log, nil)

	tr, err := ed.insertRows(300, 2)
	require.NoError(t, err)
	p, err := ed.plan(tr)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(p.dirty), 6+5*tr.moves)
	for _, side := range []phi.Side{phi.Forward, phi.Inverse} {
		assert.LessOrEqual(t, len(p.anchors[side]), 2*len(p.dirty))
		assert.LessOrEqual(t, len(p.stale[side]), 2*len(p.dirty))
	}
	require.NoError(t, ed.reconcileSamples(tr, p))
	require.NoError(t, ed.reconcilePhi(tr, p))
	st.log.Commit()

	want := string(text[:300]) + "c" + string(text[300:])
	assert.Equal(t, build(t, want).view(), st.view())
}

func TestRandomEditsMatchRebuild(t *testing.T) {
	rng := rand.New(rand.NewPCG(31, 37))
	text := []byte("acgtacgtacgtaacgtacgtacgtaacgttacgtacgtacgtaacgt")
	st := build(t, string(text))
	ed := New(st.bwt, st.samples, st.phi, st.log, nil)
	for step := range 60 {
		pos := rng.IntN(len(text) + 1)
		if rng.IntN(2) == 0 || len(text) == 0 || pos == len(text) {
			c := "acgt"[rng.IntN(4)]
			code, _ := dna.Code(c)
			_, err := ed.Insert(pos, code)
			require.NoError(t, err, "step %d", step)
			text = slices.Insert(text, pos, c)
		} else {
			_, err := ed.Delete(pos)
			require.NoError(t, err, "step %d", step)
			text = slices.Delete(text, pos, pos+1)
		}
		require.Equal(t, build(t, string(text)).view(), st.view(), "step %d text %s", step, text)
	}
}

func TestHookSeesStatesInOrder(t *testing.T) {
	st := build(t, "acgtacgt")
	var seen []State
	ed := New(st.bwt, st.samples, st.phi, st.log, func(s State) error {
		seen = append(seen, s)
		return nil
	})
	_, err := ed.Insert(4, 1)
	require.NoError(t, err)
	assert.Equal(t, []State{Pending, RunUpdated, SAUpdated, PhiUpdated}, seen)
}

func TestHookFailureRollsBackEveryState(t *testing.T) {
	boom := errors.New("boom")
	for _, failAt := range []State{Pending, RunUpdated, SAUpdated, PhiUpdated} {
		t.Run(failAt.String(), func(t *testing.T) {
			st := build(t, "acgtacgt")
			before := st.view()
			ed := New(st.bwt, st.samples, st.phi, st.log, func(s State) error {
				if s == failAt {
					return boom
				}
				return nil
			})

			_, err := ed.Delete(2)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, before, st.view())
			assert.Zero(t, st.log.Len())
		})
	}
}

func TestPendingEntriesBlockNewEdit(t *testing.T) {
	st := build(t, "acgt")
	require.NoError(t, st.log.SetSample(1, 99))
	ed := New(st.bwt, st.samples, st.phi, st.log, nil)
	_, err := ed.Insert(0, 1)
	assert.ErrorIs(t, err, apperrors.ErrEditInProgress)
}

func TestReorderCountOnRepetitiveText(t *testing.T) {
	st := build(t, "aaaaaaaa")
	ed := New(st.bwt, st.samples, st.phi, st.log, nil)
	res, err := ed.Insert(4, 2)
	require.NoError(t, err)
	assert.Positive(t, res.Reorders)
	assert.Equal(t, build(t, "aaaacaaaa").view(), st.view())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "sa_updated", SAUpdated.String())
	assert.Equal(t, "unknown", State(9).String())
}
