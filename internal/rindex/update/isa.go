package update

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/phi"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/rlbwt"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/sample"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// ISA returns the BWT row of the suffix starting at text position i, walking
// LF or inverse LF from the sample whose value is closest to i.
func ISA(b *rlbwt.BWT, s *sample.Store, i int) (int, error) {
	if i < 0 || i >= b.Len() {
		return 0, fmt.Errorf("%w: text position %d (length %d)", apperrors.ErrOutOfRangePosition, i, b.Len())
	}
	e, ok := s.NearestByValue(i)
	if !ok {
		return 0, fmt.Errorf("%w: no samples", apperrors.ErrCorruptIndex)
	}
	row, v := e.Row, e.Value
	var err error
	for ; v > i; v-- {
		if row, err = b.LF(row); err != nil {
			return 0, err
		}
	}
	for ; v < i; v++ {
		if row, err = b.InverseLF(row); err != nil {
			return 0, err
		}
	}
	return row, nil
}

// SAValue recovers SA[row] from the sample store, chaining phi from the
// closer of the enclosing samples when row itself is not sampled.
func SAValue(s *sample.Store, f *phi.Function, row int) (int, error) {
	pred, succ, err := s.Around(row)
	if err != nil {
		return 0, err
	}
	if pred.Row == row {
		return pred.Value, nil
	}
	if row-pred.Row <= succ.Row-row {
		return f.InversePhiK(pred.Value, row-pred.Row)
	}
	return f.PhiK(succ.Value, succ.Row-row)
}
