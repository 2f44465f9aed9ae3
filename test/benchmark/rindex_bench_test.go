// Package benchmark contains Go benchmarks for index construction, backward
// search, dynamic edits and snapshot encoding, measuring throughput and
// allocation behaviour.
package benchmark

import (
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/query"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/snapshot"
)

// genomeLike returns n characters over acgt with long repeats, so the BWT
// has few runs relative to its length.
func genomeLike(n int) []byte {
	r := rand.New(rand.NewPCG(7, 11))
	base := make([]byte, 512)
	for i := range base {
		base[i] = "acgt"[r.IntN(4)]
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		out = append(out, base...)
		base[r.IntN(len(base))] = "acgt"[r.IntN(4)]
	}
	return out[:n]
}

func newIndex(b *testing.B, n int, opts rindex.Options) *rindex.Index {
	b.Helper()
	ix, err := rindex.New(genomeLike(n), nil, opts)
	if err != nil {
		b.Fatal(err)
	}
	return ix
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// BenchmarkBuild measures static construction of a 64 KiB text.
func BenchmarkBuild(b *testing.B) {
	text := genomeLike(64 << 10)
	b.SetBytes(int64(len(text)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := rindex.New(text, nil, rindex.Options{}); err != nil {
			b.Fatal(err)
		}
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// BenchmarkCount measures backward search without position recovery.
func BenchmarkCount(b *testing.B) {
	ix := newIndex(b, 64<<10, rindex.Options{})
	pattern := genomeLike(64 << 10)[1000:1012]
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ix.Count(pattern); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkLocate measures backward search plus phi walks over every
// occurrence.
func BenchmarkLocate(b *testing.B) {
	ix := newIndex(b, 64<<10, rindex.Options{})
	pattern := []byte("acg")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := ix.Locate(pattern, true)
		if err != nil {
			b.Fatal(err)
		}
		_ = res
	}
}

// BenchmarkRankParallel measures concurrent read throughput.
func BenchmarkRankParallel(b *testing.B) {
	ix := newIndex(b, 64<<10, rindex.Options{})
	n := ix.Len()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := ix.Rank('a', i%n); err != nil {
				b.Fatal(err)
			}
			i += 7919
		}
	})
}

// ---------------------------------------------------------------------------
// Edits
// ---------------------------------------------------------------------------

// BenchmarkInsertDelete measures a single-character insert followed by its
// deletion, which keeps the text length fixed.
func BenchmarkInsertDelete(b *testing.B) {
	ix := newIndex(b, 16<<10, rindex.Options{UndoDepth: -1})
	r := rand.New(rand.NewPCG(3, 5))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pos := r.IntN(ix.Len())
		if _, err := ix.Insert(pos, "acgt"[i%4]); err != nil {
			b.Fatal(err)
		}
		if _, err := ix.Delete(pos); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkInsertUndo measures an insert rolled back through the journal.
func BenchmarkInsertUndo(b *testing.B) {
	ix := newIndex(b, 16<<10, rindex.Options{UndoDepth: 1})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ix.Insert(i%ix.Len(), 'g'); err != nil {
			b.Fatal(err)
		}
		if err := ix.Undo(1); err != nil {
			b.Fatal(err)
		}
	}
}

// ---------------------------------------------------------------------------
// Persistence and batch parsing
// ---------------------------------------------------------------------------

// BenchmarkSnapshotEncode measures binary encoding of the index state.
func BenchmarkSnapshotEncode(b *testing.B) {
	snap := newIndex(b, 64<<10, rindex.Options{}).Snapshot()
	now := time.Now()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = snapshot.Encode(snap, now)
	}
}

// BenchmarkSnapshotDecode measures checksum verification and decoding.
func BenchmarkSnapshotDecode(b *testing.B) {
	data := snapshot.Encode(newIndex(b, 64<<10, rindex.Options{}).Snapshot(), time.Now())
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := snapshot.Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParse measures command line parsing with replacement codes.
func BenchmarkParse(b *testing.B) {
	p := query.Parser{TabCode: "<T>", NewlineCode: "<N>"}
	line := "INSERT\t12\t" + strings.Repeat("ac<T>gt<N>", 8)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Parse(line); err != nil {
			b.Fatal(err)
		}
	}
}
