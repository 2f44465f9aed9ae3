package rindex

import (
	"slices"
	"strings"
)

// QueryResults is the outcome of a backward search.
type QueryResults struct {
	Count int `json:"count"`
	// Positions holds the text offsets of the matches in SA order when they
	// were requested.
	Positions []int `json:"positions,omitempty"`
	// CharCounts[k] counts the matches preceded by the k-th character of
	// Alphabet, the internal code order with the end marker first.
	CharCounts []int  `json:"char_counts"`
	Alphabet   string `json:"alphabet"`
	// Version is the index version the search ran against.
	Version uint64 `json:"version"`
}

// ReorderCountVector returns CharCounts permuted into the order of the given
// characters. Characters outside the alphabet report zero.
func (q QueryResults) ReorderCountVector(order string) []int {
	out := make([]int, len(order))
	for k := range len(order) {
		if idx := strings.IndexByte(q.Alphabet, order[k]); idx >= 0 && idx < len(q.CharCounts) {
			out[k] = q.CharCounts[idx]
		}
	}
	return out
}

// SortedPositions returns the located positions in ascending text order.
func (q QueryResults) SortedPositions() []int {
	out := slices.Clone(q.Positions)
	slices.Sort(out)
	return out
}

// Sum adds up the located positions.
func (q QueryResults) Sum() int {
	total := 0
	for _, p := range q.Positions {
		total += p
	}
	return total
}
