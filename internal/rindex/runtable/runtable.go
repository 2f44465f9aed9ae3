// Package runtable stores a run-length encoded BWT as an order-statistics
// treap over runs. Nodes live in an integer-indexed arena; every node
// aggregates, for its subtree, the total length, the number of runs, and per
// character both the occurrence count and the number of runs headed by that
// character. All queries and single-character updates run in O(log r + sigma)
// expected time.
package runtable

import (
	"fmt"
	"math/rand/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// Run is a maximal block of one repeated character code.
type Run struct {
	Char uint8 `json:"c"`
	Len  int   `json:"l"`
}

const nilNode int32 = -1

type node struct {
	char   uint8
	length int
	prio   uint32
	left   int32
	right  int32
	size   int
	runs   int
}

// Table is the run treap. The zero value is not usable; call New.
type Table struct {
	sigma int
	nodes []node
	// agg holds 2*sigma ints per node: occurrence counts, then run-head counts.
	agg  []int
	free []int32
	root int32
	rng  *rand.Rand
}

// New returns an empty table over an alphabet of sigma codes.
func New(sigma int) *Table {
	return &Table{
		sigma: sigma,
		root:  nilNode,
		rng:   rand.New(rand.NewPCG(0x9e3779b97f4a7c15, uint64(sigma))),
	}
}

// FromRuns builds a table holding runs in order. Zero-length runs are
// dropped and adjacent runs of one character are merged.
func FromRuns(sigma int, runs []Run) (*Table, error) {
	t := New(sigma)
	for i, r := range runs {
		if int(r.Char) >= sigma {
			return nil, fmt.Errorf("%w: run %d has code %d outside alphabet of %d", apperrors.ErrUnknownCharacter, i, r.Char, sigma)
		}
		if r.Len < 0 {
			return nil, fmt.Errorf("%w: run %d has negative length %d", apperrors.ErrInvalidInput, i, r.Len)
		}
	}
	t.root = t.build(normalize(runs))
	return t, nil
}

// Sigma is the alphabet size the table was created with.
func (t *Table) Sigma() int { return t.sigma }

// Len is the number of characters.
func (t *Table) Len() int { return t.size(t.root) }

// RunCount is the number of runs.
func (t *Table) RunCount() int { return t.runs(t.root) }

// Count returns the total occurrences of c.
func (t *Table) Count(c uint8) int { return t.count(t.root, c) }

// HeadCount returns the number of runs of c.
func (t *Table) HeadCount(c uint8) int { return t.heads(t.root, c) }

// Rank returns the occurrences of c in positions [0, i).
func (t *Table) Rank(c uint8, i int) (int, error) {
	if i < 0 || i > t.Len() {
		return 0, outOfRange("rank", i, t.Len())
	}
	res := 0
	x := t.root
	for x != nilNode && i > 0 {
		n := &t.nodes[x]
		ls := t.size(n.left)
		if i <= ls {
			x = n.left
			continue
		}
		res += t.count(n.left, c)
		i -= ls
		if i <= n.length {
			if n.char == c {
				res += i
			}
			return res, nil
		}
		if n.char == c {
			res += n.length
		}
		i -= n.length
		x = n.right
	}
	return res, nil
}

// RankAtRun returns the occurrences of c before offset within run, without
// resolving the run from an absolute position.
func (t *Table) RankAtRun(c uint8, run, offset int) (int, error) {
	x, err := t.nodeAt(run)
	if err != nil {
		return 0, err
	}
	if offset < 0 || offset > t.nodes[x].length {
		return 0, outOfRange("run offset", offset, t.nodes[x].length)
	}
	res := 0
	k := run
	y := t.root
	for y != x {
		n := &t.nodes[y]
		lr := t.runs(n.left)
		if k < lr {
			y = n.left
			continue
		}
		res += t.count(n.left, c)
		if n.char == c {
			res += n.length
		}
		k -= lr + 1
		y = n.right
	}
	res += t.count(t.nodes[x].left, c)
	if t.nodes[x].char == c {
		res += offset
	}
	return res, nil
}

// RankRunHeads returns how many of the first run runs carry character c.
func (t *Table) RankRunHeads(c uint8, run int) (int, error) {
	if run < 0 || run > t.RunCount() {
		return 0, outOfRange("run", run, t.RunCount())
	}
	res := 0
	x := t.root
	for x != nilNode && run > 0 {
		n := &t.nodes[x]
		lr := t.runs(n.left)
		if run <= lr {
			x = n.left
			continue
		}
		res += t.heads(n.left, c)
		if n.char == c {
			res++
		}
		run -= lr + 1
		x = n.right
	}
	return res, nil
}

// SelectRunHead returns the index of the k-th (0-based) run of c.
func (t *Table) SelectRunHead(c uint8, k int) (int, error) {
	if k < 0 || k >= t.HeadCount(c) {
		return 0, outOfRange("run head", k, t.HeadCount(c))
	}
	before := 0
	x := t.root
	for {
		n := &t.nodes[x]
		lh := t.heads(n.left, c)
		if k < lh {
			x = n.left
			continue
		}
		k -= lh
		before += t.runs(n.left)
		if n.char == c {
			if k == 0 {
				return before, nil
			}
			k--
		}
		before++
		x = n.right
	}
}

// Select returns the position of the k-th (0-based) occurrence of c.
func (t *Table) Select(c uint8, k int) (int, error) {
	if k < 0 || k >= t.Count(c) {
		return 0, outOfRange("select", k, t.Count(c))
	}
	pos := 0
	x := t.root
	for {
		n := &t.nodes[x]
		lc := t.count(n.left, c)
		if k < lc {
			x = n.left
			continue
		}
		k -= lc
		pos += t.size(n.left)
		if n.char == c {
			if k < n.length {
				return pos + k, nil
			}
			k -= n.length
		}
		pos += n.length
		x = n.right
	}
}

// Access returns the character at position i.
func (t *Table) Access(i int) (uint8, error) {
	run, _, err := t.Locate(i)
	if err != nil {
		return 0, err
	}
	x, _ := t.nodeAt(run)
	return t.nodes[x].char, nil
}

// Locate returns the run holding position i and the offset inside it.
func (t *Table) Locate(i int) (run, offset int, err error) {
	if i < 0 || i >= t.Len() {
		return 0, 0, outOfRange("position", i, t.Len())
	}
	x := t.root
	for {
		n := &t.nodes[x]
		ls := t.size(n.left)
		if i < ls {
			x = n.left
			continue
		}
		i -= ls
		run += t.runs(n.left)
		if i < n.length {
			return run, i, nil
		}
		i -= n.length
		run++
		x = n.right
	}
}

// RunStart returns the absolute position of the first character of run.
func (t *Table) RunStart(run int) (int, error) {
	if run < 0 || run > t.RunCount() {
		return 0, outOfRange("run", run, t.RunCount())
	}
	pos := 0
	x := t.root
	for x != nilNode && run > 0 {
		n := &t.nodes[x]
		lr := t.runs(n.left)
		if run <= lr {
			x = n.left
			continue
		}
		pos += t.size(n.left) + n.length
		run -= lr + 1
		x = n.right
	}
	return pos, nil
}

// Run returns run number run.
func (t *Table) Run(run int) (Run, error) {
	x, err := t.nodeAt(run)
	if err != nil {
		return Run{}, err
	}
	return Run{Char: t.nodes[x].char, Len: t.nodes[x].length}, nil
}

// Runs returns a copy of all runs in order.
func (t *Table) Runs() []Run {
	out := make([]Run, 0, t.RunCount())
	return t.collect(t.root, out)
}

// Insert places c before position i; i == Len() appends.
func (t *Table) Insert(i int, c uint8) error {
	if int(c) >= t.sigma {
		return fmt.Errorf("%w: code %d", apperrors.ErrUnknownCharacter, c)
	}
	n := t.Len()
	if i < 0 || i > n {
		return outOfRange("insert", i, n)
	}
	run := t.RunCount()
	if i < n {
		run, _, _ = t.Locate(i)
	}
	t.rewriteAround(run, i, func(w []Run, p int) []Run {
		return insertAt(w, p, c)
	})
	return nil
}

// Remove deletes the character at position i and returns it.
func (t *Table) Remove(i int) (uint8, error) {
	run, _, err := t.Locate(i)
	if err != nil {
		return 0, err
	}
	var removed uint8
	t.rewriteAround(run, i, func(w []Run, p int) []Run {
		var out []Run
		out, removed = removeAt(w, p)
		return out
	})
	return removed, nil
}

// Replace overwrites the character at position i and returns the previous one.
func (t *Table) Replace(i int, c uint8) (uint8, error) {
	if int(c) >= t.sigma {
		return 0, fmt.Errorf("%w: code %d", apperrors.ErrUnknownCharacter, c)
	}
	run, _, err := t.Locate(i)
	if err != nil {
		return 0, err
	}
	var prev uint8
	t.rewriteAround(run, i, func(w []Run, p int) []Run {
		var out []Run
		out, prev = removeAt(w, p)
		return insertAt(out, p, c)
	})
	return prev, nil
}

// RemoveRun deletes a whole run, merging its neighbours when they match.
func (t *Table) RemoveRun(run int) (Run, error) {
	x, err := t.nodeAt(run)
	if err != nil {
		return Run{}, err
	}
	removed := Run{Char: t.nodes[x].char, Len: t.nodes[x].length}
	first := max(run-1, 0)
	last := min(run+2, t.RunCount())
	t.rewrite(first, last, func(w []Run) []Run {
		k := run - first
		return append(w[:k:k], w[k+1:]...)
	})
	return removed, nil
}

// rewriteAround replaces the runs adjacent to run with fn's output. p is the
// position i relative to the start of the window.
func (t *Table) rewriteAround(run, i int, fn func(w []Run, p int) []Run) {
	first := max(run-1, 0)
	last := min(run+2, t.RunCount())
	base, _ := t.RunStart(first)
	t.rewrite(first, last, func(w []Run) []Run { return fn(w, i-base) })
}

// rewrite cuts runs [first, last) out of the tree, transforms them, and
// splices the normalised result back. The window always includes the
// unchanged neighbours of the edited run, so no merge can cross its border.
func (t *Table) rewrite(first, last int, fn func(w []Run) []Run) {
	left, rest := t.split(t.root, first)
	mid, right := t.split(rest, last-first)
	window := t.collect(mid, make([]Run, 0, last-first))
	t.release(mid)
	t.root = t.merge(t.merge(left, t.build(normalize(fn(window)))), right)
}

func insertAt(w []Run, p int, c uint8) []Run {
	out := make([]Run, 0, len(w)+2)
	done := false
	for _, r := range w {
		if !done && p <= r.Len {
			out = append(out, Run{r.Char, p}, Run{c, 1}, Run{r.Char, r.Len - p})
			done = true
			continue
		}
		if !done {
			p -= r.Len
		}
		out = append(out, r)
	}
	if !done {
		out = append(out, Run{c, 1})
	}
	return out
}

func removeAt(w []Run, p int) ([]Run, uint8) {
	out := make([]Run, 0, len(w))
	var removed uint8
	done := false
	for _, r := range w {
		if !done && p < r.Len {
			removed = r.Char
			out = append(out, Run{r.Char, r.Len - 1})
			done = true
			continue
		}
		if !done {
			p -= r.Len
		}
		out = append(out, r)
	}
	return out, removed
}

func normalize(runs []Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, r := range runs {
		if r.Len == 0 {
			continue
		}
		if k := len(out) - 1; k >= 0 && out[k].Char == r.Char {
			out[k].Len += r.Len
			continue
		}
		out = append(out, r)
	}
	return out
}

func (t *Table) nodeAt(run int) (int32, error) {
	if run < 0 || run >= t.RunCount() {
		return nilNode, outOfRange("run", run, t.RunCount())
	}
	x := t.root
	for {
		n := &t.nodes[x]
		lr := t.runs(n.left)
		switch {
		case run < lr:
			x = n.left
		case run == lr:
			return x, nil
		default:
			run -= lr + 1
			x = n.right
		}
	}
}

func (t *Table) size(x int32) int {
	if x == nilNode {
		return 0
	}
	return t.nodes[x].size
}

func (t *Table) runs(x int32) int {
	if x == nilNode {
		return 0
	}
	return t.nodes[x].runs
}

func (t *Table) count(x int32, c uint8) int {
	if x == nilNode {
		return 0
	}
	return t.agg[int(x)*2*t.sigma+int(c)]
}

func (t *Table) heads(x int32, c uint8) int {
	if x == nilNode {
		return 0
	}
	return t.agg[int(x)*2*t.sigma+t.sigma+int(c)]
}

func (t *Table) alloc(r Run) int32 {
	n := node{char: r.Char, length: r.Len, prio: t.rng.Uint32(), left: nilNode, right: nilNode}
	var x int32
	if k := len(t.free); k > 0 {
		x = t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[x] = n
	} else {
		x = int32(len(t.nodes))
		t.nodes = append(t.nodes, n)
		t.agg = append(t.agg, make([]int, 2*t.sigma)...)
	}
	t.pull(x)
	return x
}

func (t *Table) release(x int32) {
	if x == nilNode {
		return
	}
	t.release(t.nodes[x].left)
	t.release(t.nodes[x].right)
	t.free = append(t.free, x)
}

func (t *Table) pull(x int32) {
	n := &t.nodes[x]
	n.size = n.length + t.size(n.left) + t.size(n.right)
	n.runs = 1 + t.runs(n.left) + t.runs(n.right)
	base := int(x) * 2 * t.sigma
	agg := t.agg[base : base+2*t.sigma]
	clear(agg)
	for _, child := range [2]int32{n.left, n.right} {
		if child == nilNode {
			continue
		}
		cb := int(child) * 2 * t.sigma
		for k, v := range t.agg[cb : cb+2*t.sigma] {
			agg[k] += v
		}
	}
	agg[n.char] += n.length
	agg[t.sigma+int(n.char)]++
}

// split cuts x into its first k runs and the rest.
func (t *Table) split(x int32, k int) (int32, int32) {
	if x == nilNode {
		return nilNode, nilNode
	}
	lr := t.runs(t.nodes[x].left)
	if k <= lr {
		a, b := t.split(t.nodes[x].left, k)
		t.nodes[x].left = b
		t.pull(x)
		return a, x
	}
	a, b := t.split(t.nodes[x].right, k-lr-1)
	t.nodes[x].right = a
	t.pull(x)
	return x, b
}

func (t *Table) merge(a, b int32) int32 {
	if a == nilNode {
		return b
	}
	if b == nilNode {
		return a
	}
	if t.nodes[a].prio > t.nodes[b].prio {
		t.nodes[a].right = t.merge(t.nodes[a].right, b)
		t.pull(a)
		return a
	}
	t.nodes[b].left = t.merge(a, t.nodes[b].left)
	t.pull(b)
	return b
}

func (t *Table) build(runs []Run) int32 {
	root := nilNode
	for _, r := range runs {
		root = t.merge(root, t.alloc(r))
	}
	return root
}

func (t *Table) collect(x int32, out []Run) []Run {
	if x == nilNode {
		return out
	}
	out = t.collect(t.nodes[x].left, out)
	out = append(out, Run{Char: t.nodes[x].char, Len: t.nodes[x].length})
	return t.collect(t.nodes[x].right, out)
}

func outOfRange(what string, i, limit int) error {
	return fmt.Errorf("%w: %s %d (limit %d)", apperrors.ErrOutOfRangePosition, what, i, limit)
}
