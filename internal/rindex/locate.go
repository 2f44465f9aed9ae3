package rindex

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/rlbwt"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/update"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// Locate finds every occurrence of pattern. Matches are counted always and
// their text offsets are listed when withPositions is set. A pattern that is
// empty or holds characters outside the alphabet matches nothing.
func (ix *Index) Locate(pattern []byte, withPositions bool) (QueryResults, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	sigma := ix.alpha.Size()
	res := QueryResults{
		CharCounts: make([]int, sigma),
		Alphabet:   string(ix.alpha.Decode(codeRange(sigma))),
		Version:    ix.version.Load(),
	}
	b, e, saB, ok, err := ix.backwardSearch(pattern)
	if err != nil || !ok {
		return res, err
	}
	res.Count = e - b + 1
	for c := range sigma {
		hi, err := ix.bwt.Rank(uint8(c), rlbwt.At(e+1))
		if err != nil {
			return res, err
		}
		lo, err := ix.bwt.Rank(uint8(c), rlbwt.At(b))
		if err != nil {
			return res, err
		}
		res.CharCounts[c] = hi - lo
	}
	if !withPositions {
		return res, nil
	}
	res.Positions = make([]int, 0, res.Count)
	v := saB
	for k := range res.Count {
		if k > 0 {
			if v, err = ix.phi.InversePhi(v); err != nil {
				return res, err
			}
		}
		res.Positions = append(res.Positions, v)
	}
	return res, nil
}

// Count returns the number of occurrences of pattern.
func (ix *Index) Count(pattern []byte) (int, error) {
	res, err := ix.Locate(pattern, false)
	return res.Count, err
}

// backwardSearch narrows the SA range [b, e] one pattern character at a time
// from the right, tracking saB = SA[b]. When BWT[b] is not the next
// character, the range start jumps to the next run head of it, whose SA value
// is sampled.
func (ix *Index) backwardSearch(pattern []byte) (b, e, saB int, ok bool, err error) {
	if len(pattern) == 0 {
		return 0, 0, 0, false, nil
	}
	n := ix.bwt.Len()
	b, e, saB = 0, n-1, n-1
	for p := len(pattern) - 1; p >= 0; p-- {
		c, known := ix.alpha.Code(pattern[p])
		if !known {
			return 0, 0, 0, false, nil
		}
		lc, err := ix.bwt.Access(rlbwt.At(b))
		if err != nil {
			return 0, 0, 0, false, err
		}
		var nb, nsa int
		if lc == c {
			if nb, err = ix.bwt.LF(b); err != nil {
				return 0, 0, 0, false, err
			}
			nsa = saB - 1
		} else {
			y, found, err := ix.bwt.NextRunHead(c, b)
			if err != nil {
				return 0, 0, 0, false, err
			}
			if !found || y > e {
				return 0, 0, 0, false, nil
			}
			r, err := ix.bwt.Rank(c, rlbwt.At(y))
			if err != nil {
				return 0, 0, 0, false, err
			}
			nb = ix.bwt.C(c) + r
			v, sampled := ix.samples.Get(y)
			if !sampled {
				return 0, 0, 0, false, fmt.Errorf("%w: run head row %d unsampled", apperrors.ErrCorruptIndex, y)
			}
			nsa = v - 1
		}
		if nsa < 0 {
			nsa += n
		}
		re, err := ix.bwt.Rank(c, rlbwt.At(e+1))
		if err != nil {
			return 0, 0, 0, false, err
		}
		ne := ix.bwt.C(c) + re - 1
		if nb > ne {
			return 0, 0, 0, false, nil
		}
		b, e, saB = nb, ne, nsa
	}
	return b, e, saB, true, nil
}

// Extract returns length text characters starting at pos.
func (ix *Index) Extract(pos, length int) ([]byte, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := ix.bwt.Len() - 1
	if length < 0 || pos < 0 || pos+length > n {
		return nil, fmt.Errorf("%w: extract [%d, %d) (text length %d)", apperrors.ErrOutOfRangePosition, pos, pos+length, n)
	}
	row, err := update.ISA(ix.bwt, ix.samples, pos+length)
	if err != nil {
		return nil, err
	}
	return ix.walkBack(row, length)
}

// Access returns the text character at pos.
func (ix *Index) Access(pos int) (byte, error) {
	out, err := ix.Extract(pos, 1)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Text reconstructs the whole text, end marker excluded.
func (ix *Index) Text() ([]byte, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.walkBack(0, ix.bwt.Len()-1)
}

// BWT returns the BWT as bytes, end marker included.
func (ix *Index) BWT() []byte {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]byte, 0, ix.bwt.Len())
	for _, r := range ix.bwt.Runs() {
		for range r.Len {
			out = append(out, ix.alpha.Char(r.Char))
		}
	}
	return out
}

// walkBack collects the length characters preceding the suffix at row.
func (ix *Index) walkBack(row, length int) ([]byte, error) {
	codes := make([]uint8, length)
	for k := length - 1; k >= 0; k-- {
		c, err := ix.bwt.Access(rlbwt.At(row))
		if err != nil {
			return nil, err
		}
		codes[k] = c
		if row, err = ix.bwt.LF(row); err != nil {
			return nil, err
		}
	}
	return ix.alpha.Decode(codes), nil
}

func codeRange(sigma int) []uint8 {
	out := make([]uint8, sigma)
	for c := range out {
		out[c] = uint8(c)
	}
	return out
}
