package rindex

import (
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/history"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/update"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// EditResult reports a committed edit.
type EditResult struct {
	// Reorders is the number of BWT rows moved, summed over all characters.
	Reorders int `json:"reorders"`
	// PerChar holds the reorder count of every single-character step.
	PerChar []int  `json:"per_char,omitempty"`
	Runs    int    `json:"runs"`
	Version uint64 `json:"version"`
}

// Insert places c before text position pos, 0 <= pos <= Len().
func (ix *Index) Insert(pos int, c byte) (EditResult, error) {
	return ix.InsertString(pos, []byte{c})
}

// Delete removes the text character at pos, 0 <= pos < Len().
func (ix *Index) Delete(pos int) (EditResult, error) {
	return ix.DeleteString(pos, 1)
}

// InsertString places s before text position pos as one logical edit. The
// characters are inserted back to front at the same position.
func (ix *Index) InsertString(pos int, s []byte) (EditResult, error) {
	codes, err := ix.alpha.Encode(s)
	if err != nil {
		return EditResult{}, err
	}
	return ix.edit("insert", func(n int) error {
		if pos < 0 || pos > n {
			return fmt.Errorf("%w: insert at %d (text length %d)", apperrors.ErrOutOfRangePosition, pos, n)
		}
		return nil
	}, len(codes), func(step int) (update.Result, error) {
		return ix.editor.Insert(pos, codes[len(codes)-1-step])
	})
}

// DeleteString removes length characters starting at pos as one logical edit.
func (ix *Index) DeleteString(pos, length int) (EditResult, error) {
	return ix.edit("delete", func(n int) error {
		if length < 0 || pos < 0 || pos+length > n {
			return fmt.Errorf("%w: delete [%d, %d) (text length %d)", apperrors.ErrOutOfRangePosition, pos, pos+length, n)
		}
		return nil
	}, length, func(int) (update.Result, error) {
		return ix.editor.Delete(pos)
	})
}

// edit runs steps single-character edits as one logical edit. A failing step
// has already rolled itself back; the steps committed before it are reverted
// here.
func (ix *Index) edit(op string, validate func(n int) error, steps int, step func(int) (update.Result, error)) (EditResult, error) {
	if !ix.editing.CompareAndSwap(false, true) {
		return EditResult{}, apperrors.ErrEditInProgress
	}
	defer ix.editing.Store(false)
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := validate(ix.bwt.Len() - 1); err != nil {
		return EditResult{}, err
	}
	committed := make([][]history.Entry, 0, steps)
	res := EditResult{PerChar: make([]int, 0, steps)}
	for k := range steps {
		r, err := step(k)
		if err != nil {
			if rbErr := ix.revertSteps(committed); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			ix.logger.Warn("edit failed", "op", op, "step", k, "of", steps, "error", err)
			return EditResult{}, err
		}
		committed = append(committed, r.Entries)
		res.Reorders += r.Reorders
		res.PerChar = append(res.PerChar, r.Reorders)
	}
	if steps > 0 {
		ix.pushJournal(committed)
		ix.edits++
		ix.version.Add(1)
	}
	res.Runs = ix.bwt.RunCount()
	res.Version = ix.version.Load()
	ix.logger.Debug("edit applied", "op", op, "chars", steps, "reorders", res.Reorders, "runs", res.Runs)
	return res, nil
}

func (ix *Index) revertSteps(steps [][]history.Entry) error {
	for k := len(steps) - 1; k >= 0; k-- {
		if err := ix.log.Revert(steps[k]); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) pushJournal(steps [][]history.Entry) {
	if ix.undoDepth == 0 {
		return
	}
	ix.journal = append(ix.journal, journalEntry{steps: steps})
	if over := len(ix.journal) - ix.undoDepth; over > 0 {
		ix.journal = append(ix.journal[:0:0], ix.journal[over:]...)
	}
}

// Undo reverts the last n committed edits, newest first.
func (ix *Index) Undo(n int) error {
	if !ix.editing.CompareAndSwap(false, true) {
		return apperrors.ErrEditInProgress
	}
	defer ix.editing.Store(false)
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if n < 0 || n > len(ix.journal) {
		return fmt.Errorf("%w: undo of %d edits requested, %d recorded", apperrors.ErrInconsistentHistory, n, len(ix.journal))
	}
	for range n {
		last := ix.journal[len(ix.journal)-1]
		if err := ix.revertSteps(last.steps); err != nil {
			return err
		}
		ix.journal = ix.journal[:len(ix.journal)-1]
		ix.edits--
		ix.version.Add(1)
	}
	ix.logger.Debug("edits undone", "count", n, "runs", ix.bwt.RunCount())
	return nil
}
