// Package rindex is a dynamic r-index: a run-length compressed BWT with SA
// samples at run boundaries and run-structured phi tables, answering rank,
// count and locate while the indexed text is edited one character at a time.
//
// Readers share a read lock. An edit holds the write lock from its first
// mutation to its commit or rollback, so queries never observe a partially
// applied edit. At most one edit may be in flight; a second one is rejected
// with ErrEditInProgress rather than queued.
package rindex

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/alphabet"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/history"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/phi"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/rlbwt"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/runtable"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/sample"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/update"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// DefaultUndoDepth bounds the committed-edit journal when Options leave it unset.
const DefaultUndoDepth = 64

// Options tunes an index.
type Options struct {
	// UndoDepth is how many committed edits Undo can revert. Zero selects
	// DefaultUndoDepth; a negative value disables the journal.
	UndoDepth int
	// Hook observes edit state transitions; an error aborts the edit.
	Hook update.Hook
}

// Index is safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	editing atomic.Bool
	version atomic.Uint64

	alpha   *alphabet.Alphabet
	bwt     *rlbwt.BWT
	samples *sample.Store
	phi     *phi.Function
	log     *history.Log
	editor  *update.Editor

	journal   []journalEntry
	undoDepth int
	edits     int
	logger    *slog.Logger
}

// journalEntry holds the history of one logical edit, one slice per
// single-character step.
type journalEntry struct {
	steps [][]history.Entry
}

// New indexes text. A nil alphabet is derived from the text.
func New(text []byte, a *alphabet.Alphabet, opts Options) (*Index, error) {
	if a == nil {
		var err error
		if a, err = alphabet.FromText(text, alphabet.DefaultEndMarker); err != nil {
			return nil, err
		}
	}
	runs, err := builder.Build(text, a)
	if err != nil {
		return nil, err
	}
	return FromRuns(runs, a, opts)
}

// FromRuns builds an index from a BWT run sequence, deriving the SA samples
// by walking LF once around the text.
func FromRuns(runs []runtable.Run, a *alphabet.Alphabet, opts Options) (*Index, error) {
	b, err := rlbwt.FromRuns(a.Size(), runs)
	if err != nil {
		return nil, err
	}
	entries, err := boundarySamples(b)
	if err != nil {
		return nil, err
	}
	s, err := sample.New(entries)
	if err != nil {
		return nil, err
	}
	return assemble(a, b, s, opts)
}

// boundarySamples walks LF once around the text from the end-marker row and
// returns the SA value of every run head and tail, in walk order.
func boundarySamples(b *rlbwt.BWT) ([]sample.Entry, error) {
	n := b.Len()
	if n == 0 || b.Count(0) != 1 {
		return nil, fmt.Errorf("%w: bwt must contain the end marker exactly once", apperrors.ErrCorruptIndex)
	}
	boundary := make(map[int]struct{}, 2*b.RunCount())
	for _, bd := range b.Boundaries() {
		boundary[bd.Start] = struct{}{}
		boundary[bd.End] = struct{}{}
	}
	entries := make([]sample.Entry, 0, len(boundary))
	row := 0
	for v := n - 1; v >= 0; v-- {
		if _, ok := boundary[row]; ok {
			entries = append(entries, sample.Entry{Row: row, Value: v})
		}
		var err error
		if row, err = b.LF(row); err != nil {
			return nil, err
		}
		if row == 0 && v > 0 {
			return nil, fmt.Errorf("%w: LF cycle closes after %d of %d rows", apperrors.ErrCorruptIndex, n-v, n)
		}
	}
	return entries, nil
}

// FromState restores an index from runs and samples saved earlier. The
// samples must hold the true SA values, which Verify checks.
func FromState(runs []runtable.Run, samples []sample.Entry, a *alphabet.Alphabet, opts Options) (*Index, error) {
	b, err := rlbwt.FromRuns(a.Size(), runs)
	if err != nil {
		return nil, err
	}
	s, err := sample.New(samples)
	if err != nil {
		return nil, err
	}
	ix, err := assemble(a, b, s, opts)
	if err != nil {
		return nil, err
	}
	if err := ix.Verify(); err != nil {
		return nil, err
	}
	return ix, nil
}

func assemble(a *alphabet.Alphabet, b *rlbwt.BWT, s *sample.Store, opts Options) (*Index, error) {
	spans, err := spansOf(b, s)
	if err != nil {
		return nil, err
	}
	f := phi.Build(spans)
	log := history.New(b, s, f)
	depth := opts.UndoDepth
	if depth == 0 {
		depth = DefaultUndoDepth
	}
	ix := &Index{
		alpha:     a,
		bwt:       b,
		samples:   s,
		phi:       f,
		log:       log,
		editor:    update.New(b, s, f, log, opts.Hook),
		undoDepth: max(depth, 0),
		logger:    slog.Default().With("component", "rindex"),
	}
	ix.logger.Debug("index ready", "length", b.Len(), "runs", b.RunCount(), "samples", s.Len())
	return ix, nil
}

func spansOf(b *rlbwt.BWT, s *sample.Store) ([]phi.Span, error) {
	bounds := b.Boundaries()
	spans := make([]phi.Span, len(bounds))
	for k, bd := range bounds {
		head, ok := s.Get(bd.Start)
		if !ok {
			return nil, fmt.Errorf("%w: run %d head row %d unsampled", apperrors.ErrCorruptIndex, k, bd.Start)
		}
		tail, ok := s.Get(bd.End)
		if !ok {
			return nil, fmt.Errorf("%w: run %d tail row %d unsampled", apperrors.ErrCorruptIndex, k, bd.End)
		}
		spans[k] = phi.Span{Head: head, Tail: tail}
	}
	return spans, nil
}

// Alphabet returns the character mapping of the index.
func (ix *Index) Alphabet() *alphabet.Alphabet { return ix.alpha }

// Version changes whenever the indexed text changes.
func (ix *Index) Version() uint64 { return ix.version.Load() }

// Len is the text length, end marker excluded.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.bwt.Len() - 1
}

// Rank counts c in the first i BWT characters.
func (ix *Index) Rank(c byte, i int) (int, error) {
	code, ok := ix.alpha.Code(c)
	if !ok {
		return 0, fmt.Errorf("%w: %q", apperrors.ErrUnknownCharacter, c)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.bwt.Rank(code, rlbwt.At(i))
}

// RunCount is the number of BWT runs.
func (ix *Index) RunCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.bwt.RunCount()
}

// Stats summarises the index.
type Stats struct {
	TextLength int    `json:"text_length"`
	Runs       int    `json:"runs"`
	Samples    int    `json:"samples"`
	PhiRuns    int    `json:"phi_runs"`
	Edits      int    `json:"edits"`
	Undoable   int    `json:"undoable"`
	Version    uint64 `json:"version"`
	Alphabet   string `json:"alphabet"`
}

func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		TextLength: ix.bwt.Len() - 1,
		Runs:       ix.bwt.RunCount(),
		Samples:    ix.samples.Len(),
		PhiRuns:    ix.phi.RunCount(),
		Edits:      ix.edits,
		Undoable:   len(ix.journal),
		Version:    ix.version.Load(),
		Alphabet:   string(ix.alpha.Chars()),
	}
}

// Verify checks that samples sit exactly on run boundaries, that each one
// holds the SA value of its row, and that the phi tables match them. It walks
// LF over the whole text.
func (ix *Index) Verify() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	spans, err := spansOf(ix.bwt, ix.samples)
	if err != nil {
		return err
	}
	if want := 2*len(spans) - singletonRuns(ix.bwt); ix.samples.Len() != want {
		return fmt.Errorf("%w: %d samples for %d boundary rows", apperrors.ErrCorruptIndex, ix.samples.Len(), want)
	}
	truth, err := boundarySamples(ix.bwt)
	if err != nil {
		return err
	}
	for _, e := range truth {
		if v, _ := ix.samples.Get(e.Row); v != e.Value {
			return fmt.Errorf("%w: row %d sampled as %d, SA value is %d", apperrors.ErrCorruptIndex, e.Row, v, e.Value)
		}
	}
	fwd, inv := phi.Tables(spans)
	for _, t := range []struct {
		side phi.Side
		want []phi.Entry
	}{{phi.Forward, fwd}, {phi.Inverse, inv}} {
		remove, insert := phi.Diff(ix.phi.Table(t.side).Entries(), t.want)
		if len(remove)+len(insert) > 0 {
			return fmt.Errorf("%w: %s phi table differs in %d anchors", apperrors.ErrCorruptIndex, t.side, len(remove)+len(insert))
		}
	}
	return nil
}

func singletonRuns(b *rlbwt.BWT) int {
	n := 0
	for _, r := range b.Runs() {
		if r.Len == 1 {
			n++
		}
	}
	return n
}

// Snapshot is a self-contained copy of the index state.
type Snapshot struct {
	Alphabet  []byte
	EndMarker byte
	Runs      []runtable.Run
	Samples   []sample.Entry
	Edits     int
	Version   uint64
}

// Snapshot copies the current state under the read lock.
func (ix *Index) Snapshot() Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Snapshot{
		Alphabet:  ix.alpha.Chars(),
		EndMarker: ix.alpha.End(),
		Runs:      ix.bwt.Runs(),
		Samples:   ix.samples.Entries(),
		Edits:     ix.edits,
		Version:   ix.version.Load(),
	}
}

// FromSnapshot restores an index saved with Snapshot.
func FromSnapshot(s Snapshot, opts Options) (*Index, error) {
	a, err := alphabet.New(s.Alphabet, s.EndMarker)
	if err != nil {
		return nil, err
	}
	ix, err := FromState(s.Runs, s.Samples, a, opts)
	if err != nil {
		return nil, err
	}
	ix.edits = s.Edits
	ix.version.Store(s.Version)
	return ix, nil
}
