package query

import "time"

// Record is the outcome of one command line.
type Record struct {
	Line        int           `json:"line"`
	Kind        Kind          `json:"kind"`
	PatternLen  int           `json:"pattern_length"`
	Elapsed     time.Duration `json:"elapsed"`
	Reorders    int           `json:"reorders,omitempty"`
	Occurrences int           `json:"occurrences,omitempty"`
	Sum         int           `json:"sum,omitempty"`
	Positions   []int         `json:"positions,omitempty"`
	Text        string        `json:"text,omitempty"`
	BWT         string        `json:"bwt,omitempty"`
	Err         string        `json:"error,omitempty"`
}

// BatchResults collects the records of a batch run.
type BatchResults struct {
	Records []Record
	// Checksum adds up the reorder counts of every edit.
	Checksum int
}

func (b *BatchResults) add(r Record) {
	b.Records = append(b.Records, r)
	b.Checksum += r.Reorders
}

// ReorderCounts lists the reorder count of every edit that was applied, in
// batch order.
func (b *BatchResults) ReorderCounts() []int {
	out := []int{}
	for _, r := range b.Records {
		if (r.Kind == KindInsert || r.Kind == KindDelete) && r.Err == "" {
			out = append(out, r.Reorders)
		}
	}
	return out
}

// Summary aggregates the records of one kind.
type Summary struct {
	Count       int           `json:"count"`
	TotalTime   time.Duration `json:"total_time"`
	MinTime     time.Duration `json:"min_time"`
	MaxTime     time.Duration `json:"max_time"`
	PatternLen  int           `json:"pattern_length"`
	Reorders    int           `json:"reorders"`
	Occurrences int           `json:"occurrences"`
}

// Average is the mean elapsed time, zero for an empty summary.
func (s Summary) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Count)
}

// Summarize groups the records by kind.
func (b *BatchResults) Summarize() map[Kind]Summary {
	out := make(map[Kind]Summary)
	for _, r := range b.Records {
		s := out[r.Kind]
		if s.Count == 0 || r.Elapsed < s.MinTime {
			s.MinTime = r.Elapsed
		}
		s.MaxTime = max(s.MaxTime, r.Elapsed)
		s.Count++
		s.TotalTime += r.Elapsed
		s.PatternLen += r.PatternLen
		s.Reorders += r.Reorders
		s.Occurrences += r.Occurrences
		out[r.Kind] = s
	}
	return out
}
