// Package builder performs the one-shot static construction of an RLBWT from
// raw text. It keeps no state between calls.
package builder

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/alphabet"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex/runtable"
)

// Build encodes text with a, appends the end marker, and returns the BWT as
// a run sequence. The empty text yields the single run of the end marker.
func Build(text []byte, a *alphabet.Alphabet) ([]runtable.Run, error) {
	codes, err := a.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("building rlbwt: %w", err)
	}
	codes = append(codes, 0)
	return Runs(BWT(codes, SuffixArray(codes))), nil
}

// SuffixArray sorts the suffixes of codes, which must end with a unique
// smallest code, by induced sorting (SA-IS) in linear time.
func SuffixArray(codes []uint8) []int {
	s := make([]int, len(codes))
	k := 0
	for i, c := range codes {
		s[i] = int(c)
		k = max(k, int(c)+1)
	}
	return sais(s, k)
}

// sais sorts the suffixes of s, a string over [0, k) ending in a unique
// smallest symbol. It sorts the LMS substrings by one induction pass, names
// them, recurses on the names when two are equal, and induces the full order
// from the sorted LMS suffixes.
func sais(s []int, k int) []int {
	n := len(s)
	sa := make([]int, n)
	if n < 2 {
		return sa
	}
	// stype[i] is set when suffix i sorts before suffix i+1.
	stype := make([]bool, n)
	stype[n-1] = true
	for i := n - 2; i >= 0; i-- {
		stype[i] = s[i] < s[i+1] || s[i] == s[i+1] && stype[i+1]
	}
	isLMS := func(i int) bool { return i > 0 && stype[i] && !stype[i-1] }
	lms := make([]int, 0, n/2+1)
	for i := 1; i < n; i++ {
		if isLMS(i) {
			lms = append(lms, i)
		}
	}

	sizes := make([]int, k)
	for _, c := range s {
		sizes[c]++
	}
	induce(s, sa, stype, sizes, lms)

	names := make([]int, n)
	name, prev := -1, -1
	for _, p := range sa {
		if !isLMS(p) {
			continue
		}
		if prev < 0 || !equalLMS(s, isLMS, prev, p) {
			name++
		}
		names[p] = name
		prev = p
	}
	reduced := make([]int, len(lms))
	for i, p := range lms {
		reduced[i] = names[p]
	}

	var order []int
	if name+1 < len(reduced) {
		order = sais(reduced, name+1)
	} else {
		order = make([]int, len(reduced))
		for i, nm := range reduced {
			order[nm] = i
		}
	}
	sorted := make([]int, len(order))
	for i, idx := range order {
		sorted[i] = lms[idx]
	}
	induce(s, sa, stype, sizes, sorted)
	return sa
}

// induce seeds the bucket tails with the LMS suffixes in the given order,
// then places L-type suffixes left to right and S-type suffixes right to
// left.
func induce(s, sa []int, stype []bool, sizes, lms []int) {
	for i := range sa {
		sa[i] = -1
	}
	tails := bucketTails(sizes)
	for i := len(lms) - 1; i >= 0; i-- {
		c := s[lms[i]]
		sa[tails[c]] = lms[i]
		tails[c]--
	}
	heads := bucketHeads(sizes)
	for i := range sa {
		if p := sa[i]; p > 0 && !stype[p-1] {
			c := s[p-1]
			sa[heads[c]] = p - 1
			heads[c]++
		}
	}
	tails = bucketTails(sizes)
	for i := len(sa) - 1; i >= 0; i-- {
		if p := sa[i]; p > 0 && stype[p-1] {
			c := s[p-1]
			sa[tails[c]] = p - 1
			tails[c]--
		}
	}
}

func bucketHeads(sizes []int) []int {
	out := make([]int, len(sizes))
	sum := 0
	for c, v := range sizes {
		out[c] = sum
		sum += v
	}
	return out
}

func bucketTails(sizes []int) []int {
	out := make([]int, len(sizes))
	sum := 0
	for c, v := range sizes {
		sum += v
		out[c] = sum - 1
	}
	return out
}

// equalLMS reports whether the LMS substrings at i and j, each running up to
// and including the next LMS position, are equal.
func equalLMS(s []int, isLMS func(int) bool, i, j int) bool {
	for d := 0; ; d++ {
		a, b := i+d, j+d
		if a == len(s) || b == len(s) || s[a] != s[b] {
			return false
		}
		if d == 0 {
			continue
		}
		endA, endB := isLMS(a), isLMS(b)
		if endA || endB {
			return endA && endB
		}
	}
}

// BWT returns L[j] = codes[sa[j]-1], wrapping to the last code for sa[j] = 0.
func BWT(codes []uint8, sa []int) []uint8 {
	n := len(codes)
	out := make([]uint8, n)
	for j, p := range sa {
		out[j] = codes[(p+n-1)%n]
	}
	return out
}

// Runs run-length encodes s.
func Runs(s []uint8) []runtable.Run {
	out := make([]runtable.Run, 0)
	for _, c := range s {
		if k := len(out) - 1; k >= 0 && out[k].Char == c {
			out[k].Len++
			continue
		}
		out = append(out, runtable.Run{Char: c, Len: 1})
	}
	return out
}
