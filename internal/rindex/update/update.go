// Package update applies one logical text edit to an r-index. An edit runs in
// three fixed steps: the BWT is rewritten row by row until every suffix sits
// in its sorted place, the SA samples are moved onto the new run boundaries,
// and the phi tables are re-anchored. Only rows next to a changed BWT row are
// revisited in the last two steps. Every mutation goes through the history
// log, so a failure at any step rolls the whole edit back.
package update

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/history"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/phi"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/rlbwt"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/sample"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// State is the progress of one edit.
type State uint8

const (
	Pending State = iota
	RunUpdated
	SAUpdated
	PhiUpdated
	Committed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case RunUpdated:
		return "run_updated"
	case SAUpdated:
		return "sa_updated"
	case PhiUpdated:
		return "phi_updated"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// Hook observes every state an edit reaches before it commits. A non-nil
// error aborts the edit and rolls it back.
type Hook func(State) error

// Result describes a committed edit.
type Result struct {
	// Reorders is the number of BWT rows moved to restore sorted order.
	Reorders int
	Entries  []history.Entry
}

// Editor owns the structures of one index for the duration of an edit.
type Editor struct {
	bwt     *rlbwt.BWT
	samples *sample.Store
	phi     *phi.Function
	log     *history.Log
	hook    Hook
	logger  *slog.Logger
}

func New(b *rlbwt.BWT, s *sample.Store, f *phi.Function, log *history.Log, hook Hook) *Editor {
	return &Editor{
		bwt:     b,
		samples: s,
		phi:     f,
		log:     log,
		hook:    hook,
		logger:  slog.Default().With("component", "rindex-update"),
	}
}

type rowOpKind uint8

const (
	rowInserted rowOpKind = iota
	rowRemoved
	rowMoved
)

type rowOp struct {
	kind rowOpKind
	from int
	to   int
}

// trace records how BWT rows were permuted so that final rows can be mapped
// back to rows of the pre-edit matrix. dirty holds, in current row
// coordinates, every row whose character or neighbour changed.
type trace struct {
	insert  bool
	textPos int
	ops     []rowOp
	moves   int
	dirty   []int
}

// touch marks row and both of its neighbours.
func (tr *trace) touch(row int) {
	tr.dirty = append(tr.dirty, row-1, row, row+1)
}

// occupy carries the dirty rows past a row inserted at to.
func (tr *trace) occupy(to int) {
	for k, row := range tr.dirty {
		if row >= to {
			tr.dirty[k]++
		}
	}
	tr.touch(to)
}

// vacate carries the dirty rows past the removal of row from, whose two
// neighbours become adjacent.
func (tr *trace) vacate(from int) {
	for k, row := range tr.dirty {
		if row > from {
			tr.dirty[k]--
		}
	}
	tr.dirty = append(tr.dirty, from-1, from)
}

// push records op and carries the dirty rows through it.
func (tr *trace) push(op rowOp) {
	tr.ops = append(tr.ops, op)
	switch op.kind {
	case rowInserted:
		tr.occupy(op.to)
	case rowRemoved:
		tr.vacate(op.from)
	case rowMoved:
		tr.vacate(op.from)
		tr.occupy(op.to)
	}
}

// dirtyRows returns the distinct dirty rows of an n-row matrix, wrapped
// cyclically and sorted.
func (tr *trace) dirtyRows(n int) []int {
	rows := make([]int, len(tr.dirty))
	for k, row := range tr.dirty {
		rows[k] = ((row % n) + n) % n
	}
	slices.Sort(rows)
	return slices.Compact(rows)
}

const newRow = -1

func (tr *trace) origin(u int) int {
	for k := len(tr.ops) - 1; k >= 0; k-- {
		op := tr.ops[k]
		switch op.kind {
		case rowInserted:
			if u == op.to {
				return newRow
			}
			if u > op.to {
				u--
			}
		case rowRemoved:
			if u >= op.from {
				u++
			}
		case rowMoved:
			if u == op.to {
				u = op.from
				continue
			}
			if u > op.to {
				u--
			}
			if u >= op.from {
				u++
			}
		}
	}
	return u
}

// shift maps a pre-edit SA value to its post-edit value.
func (tr *trace) shift(v int) int {
	if tr.insert {
		if v >= tr.textPos {
			return v + 1
		}
		return v
	}
	if v > tr.textPos {
		return v - 1
	}
	return v
}

// Insert adds code c at text position i.
func (e *Editor) Insert(i int, c uint8) (Result, error) {
	return e.run("insert", i, func() (*trace, error) { return e.insertRows(i, c) })
}

// Delete removes the character at text position i.
func (e *Editor) Delete(i int) (Result, error) {
	return e.run("delete", i, func() (*trace, error) { return e.deleteRows(i) })
}

func (e *Editor) run(op string, pos int, rows func() (*trace, error)) (Result, error) {
	if e.log.Len() != 0 {
		return Result{}, fmt.Errorf("%w: %d uncommitted history entries", apperrors.ErrEditInProgress, e.log.Len())
	}
	state := Pending
	fail := func(err error) (Result, error) {
		if rbErr := e.log.UndoLast(e.log.Len()); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		e.logger.Warn("edit rolled back", "op", op, "pos", pos, "state", state.String(), "error", err)
		return Result{}, err
	}
	if err := e.enter(state); err != nil {
		return fail(err)
	}

	tr, err := rows()
	if err != nil {
		return fail(fmt.Errorf("updating runs: %w", err))
	}
	state = RunUpdated
	if err := e.enter(state); err != nil {
		return fail(err)
	}

	p, err := e.plan(tr)
	if err != nil {
		return fail(fmt.Errorf("planning sample update: %w", err))
	}
	if err := e.reconcileSamples(tr, p); err != nil {
		return fail(fmt.Errorf("reconciling samples: %w", err))
	}
	state = SAUpdated
	if err := e.enter(state); err != nil {
		return fail(err)
	}

	if err := e.reconcilePhi(tr, p); err != nil {
		return fail(fmt.Errorf("reconciling phi: %w", err))
	}
	state = PhiUpdated
	if err := e.enter(state); err != nil {
		return fail(err)
	}

	entries := e.log.Commit()
	e.logger.Debug("edit committed",
		"op", op,
		"pos", pos,
		"reorders", tr.moves,
		"dirty_rows", len(p.dirty),
		"history_entries", len(entries),
		"runs", e.bwt.RunCount(),
	)
	return Result{Reorders: tr.moves, Entries: entries}, nil
}

func (e *Editor) enter(s State) error {
	if e.hook == nil {
		return nil
	}
	return e.hook(s)
}

func (e *Editor) insertRows(i int, c uint8) (*trace, error) {
	k, err := ISA(e.bwt, e.samples, i)
	if err != nil {
		return nil, err
	}
	j, err := e.bwt.LF(k)
	if err != nil {
		return nil, err
	}
	a, err := e.log.ReplaceChar(k, c)
	if err != nil {
		return nil, err
	}
	tr := &trace{insert: true, textPos: i}
	tr.touch(k)
	rank, err := e.bwt.Rank(c, rlbwt.At(k))
	if err != nil {
		return nil, err
	}
	// C(c) no longer counts the displaced a when a < c. When a == c the new
	// row goes after the row LF(k) still points at.
	pos := e.bwt.C(c) + rank
	if a <= c {
		pos++
	}
	if err := e.log.InsertChar(pos, a); err != nil {
		return nil, err
	}
	tr.push(rowOp{kind: rowInserted, to: pos})
	if pos <= j {
		j++
	}
	jp, err := e.bwt.LF(pos)
	if err != nil {
		return nil, err
	}
	return tr, e.reorder(tr, j, jp)
}

func (e *Editor) deleteRows(i int) (*trace, error) {
	k, err := ISA(e.bwt, e.samples, i+1)
	if err != nil {
		return nil, err
	}
	kk, err := e.bwt.LF(k)
	if err != nil {
		return nil, err
	}
	a, err := e.bwt.Access(rlbwt.At(kk))
	if err != nil {
		return nil, err
	}
	j, err := e.bwt.LF(kk)
	if err != nil {
		return nil, err
	}
	if _, err := e.log.ReplaceChar(k, a); err != nil {
		return nil, err
	}
	if _, err := e.log.RemoveChar(kk); err != nil {
		return nil, err
	}
	tr := &trace{textPos: i}
	tr.touch(k)
	tr.push(rowOp{kind: rowRemoved, from: kk})
	if kk < j {
		j--
	}
	if kk < k {
		k--
	}
	jp, err := e.bwt.LF(k)
	if err != nil {
		return nil, err
	}
	return tr, e.reorder(tr, j, jp)
}

// reorder moves the row at j to its sorted place jp and follows LF to the
// next stale row until a row is already in place. The next stale row is
// LF(j) taken before the move: when it shares the first character of the
// moved row the move puts it at exactly that index, and otherwise it lies
// outside the range the move shifts.
func (e *Editor) reorder(tr *trace, j, jp int) error {
	limit := e.bwt.Len()
	for j != jp {
		if tr.moves > limit {
			return fmt.Errorf("%w: reorder did not converge after %d moves", apperrors.ErrCorruptIndex, tr.moves)
		}
		next, err := e.bwt.LF(j)
		if err != nil {
			return err
		}
		if err := e.log.MoveChar(j, jp); err != nil {
			return err
		}
		tr.push(rowOp{kind: rowMoved, from: j, to: jp})
		tr.moves++
		j = next
		if jp, err = e.bwt.LF(jp); err != nil {
			return err
		}
	}
	return nil
}

// patch is the sample and phi rewrite of one edit. It is computed from the
// untouched pre-edit samples and phi before either is modified.
type patch struct {
	// samples holds the final value of every dirty row that bounds a run;
	// cleared lists the dirty rows that no longer do.
	samples map[int]int
	dirty   []int
	cleared []int
	// stale holds pre-edit anchor keys per table that may no longer hold;
	// anchors holds their replacements in post-edit values.
	stale   [2][]int
	anchors [2][]phi.Entry
}

// plan collects the rewrite around the dirty rows. A run boundary away from
// every dirty row keeps its character and both neighbours, so its sample and
// its anchors stay valid once the text shift is applied. A forward anchor
// depends on a head row and the row before it, an inverse anchor on a tail
// row and the row after it.
func (e *Editor) plan(tr *trace) (*patch, error) {
	n := e.bwt.Len()
	p := &patch{samples: make(map[int]int), dirty: tr.dirtyRows(n)}
	values := make(map[int]int)
	value := func(row int) (int, error) {
		if v, ok := values[row]; ok {
			return v, nil
		}
		v, err := e.finalValue(tr, row)
		if err != nil {
			return 0, err
		}
		values[row] = v
		return v, nil
	}

	for _, row := range p.dirty {
		start, end, err := e.bwt.IsRunBoundary(row)
		if err != nil {
			return nil, err
		}
		if !start && !end {
			p.cleared = append(p.cleared, row)
			continue
		}
		if p.samples[row], err = value(row); err != nil {
			return nil, err
		}
	}

	for _, side := range []phi.Side{phi.Forward, phi.Inverse} {
		step := 1
		if side == phi.Inverse {
			step = -1
		}
		rows := make([]int, 0, 2*len(p.dirty))
		for _, row := range p.dirty {
			rows = append(rows, row, (row+step+n)%n)
		}
		slices.Sort(rows)
		for _, row := range slices.Compact(rows) {
			if o := tr.origin(row); o != newRow {
				if v, ok := e.samples.Get(o); ok {
					p.stale[side] = append(p.stale[side], v)
				}
			}
			start, end, err := e.bwt.IsRunBoundary(row)
			if err != nil {
				return nil, err
			}
			if (side == phi.Forward && !start) || (side == phi.Inverse && !end) {
				continue
			}
			key, err := value(row)
			if err != nil {
				return nil, err
			}
			at, err := value((row - step + n) % n)
			if err != nil {
				return nil, err
			}
			p.anchors[side] = append(p.anchors[side], phi.Entry{Key: key, Value: at})
		}
		if !tr.insert {
			p.stale[side] = append(p.stale[side], tr.textPos)
		}
	}
	return p, nil
}

// reconcileSamples shifts the sampled values with the text, carries every
// sample along with its row, and then rewrites the dirty rows.
func (e *Editor) reconcileSamples(tr *trace, p *patch) error {
	if tr.insert {
		if err := e.log.ShiftSampleValues(tr.textPos, 1); err != nil {
			return err
		}
	} else {
		removed := tr.ops[0].from
		if _, ok := e.samples.Get(removed); ok {
			if err := e.log.RemoveSample(removed); err != nil {
				return err
			}
		}
		if err := e.log.ShiftSampleValues(tr.textPos+1, -1); err != nil {
			return err
		}
	}
	for _, op := range tr.ops {
		if err := e.replayRowOp(op); err != nil {
			return err
		}
	}

	for _, row := range p.cleared {
		if _, ok := e.samples.Get(row); ok {
			if err := e.log.RemoveSample(row); err != nil {
				return err
			}
		}
	}
	for _, row := range p.dirty {
		if v, ok := p.samples[row]; ok {
			if err := e.log.SetSample(row, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Editor) finalValue(tr *trace, row int) (int, error) {
	o := tr.origin(row)
	if o == newRow {
		return tr.textPos, nil
	}
	v, err := SAValue(e.samples, e.phi, o)
	if err != nil {
		return 0, fmt.Errorf("recovering SA of pre-edit row %d: %w", o, err)
	}
	return tr.shift(v), nil
}

func (e *Editor) replayRowOp(op rowOp) error {
	switch op.kind {
	case rowInserted:
		return e.log.ShiftSampleRows(op.to, 1)
	case rowRemoved:
		return e.log.ShiftSampleRows(op.from+1, -1)
	default:
		v, held := e.samples.Get(op.from)
		if held {
			if err := e.log.RemoveSample(op.from); err != nil {
				return err
			}
		}
		if err := e.log.ShiftSampleRows(op.from+1, -1); err != nil {
			return err
		}
		if err := e.log.ShiftSampleRows(op.to, 1); err != nil {
			return err
		}
		if held {
			return e.log.SetSample(op.to, v)
		}
		return nil
	}
}

// reconcilePhi drops the stale anchors, shifts the rest with the text and
// inserts the replacements.
func (e *Editor) reconcilePhi(tr *trace, p *patch) error {
	for _, side := range []phi.Side{phi.Forward, phi.Inverse} {
		for _, key := range p.stale[side] {
			if entry, ok := e.phi.Table(side).Get(key); ok {
				if err := e.log.RemovePhi(side, entry); err != nil {
					return err
				}
			}
		}
	}
	from, delta := tr.textPos, 1
	if !tr.insert {
		from, delta = tr.textPos+1, -1
	}
	if err := e.log.ShiftPhiValues(from, delta); err != nil {
		return err
	}
	for _, side := range []phi.Side{phi.Forward, phi.Inverse} {
		for _, entry := range p.anchors[side] {
			if err := e.log.InsertPhi(side, entry); err != nil {
				return err
			}
		}
	}
	return nil
}
