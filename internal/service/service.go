// Package service wraps an index with the locate cache, edit event sinks,
// snapshot persistence and metrics that the HTTP API and the replica share.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/rindex"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/server/cache"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/tracing"
)

// Compactor drops journaled edits already covered by a snapshot.
type Compactor interface {
	Truncate(ctx context.Context, upTo uint64) (int64, error)
}

type Options struct {
	Cache     *cache.LocateCache
	Sinks     []events.Sink
	Snapshots *snapshot.Writer
	Compactor Compactor
	Metrics   *metrics.Metrics
	// ReadOnly rejects client edits; events may still be applied.
	ReadOnly bool
}

type Service struct {
	ix   *rindex.Index
	opts Options
	// mu orders edits with their events so sinks see versions ascending.
	mu     sync.Mutex
	logger *slog.Logger
}

func New(ix *rindex.Index, opts Options) *Service {
	s := &Service{
		ix:     ix,
		opts:   opts,
		logger: slog.Default().With("component", "rindex-service"),
	}
	s.observeSize()
	return s
}

func (s *Service) Index() *rindex.Index { return s.ix }

func (s *Service) Version() uint64 { return s.ix.Version() }

func (s *Service) ReadOnly() bool { return s.opts.ReadOnly }

// Rank counts occurrences of c in BWT[0, i).
func (s *Service) Rank(ctx context.Context, c byte, i int) (int, error) {
	defer s.observeQuery("rank", time.Now())
	n, err := s.ix.Rank(c, i)
	s.countQuery("rank", err)
	return n, err
}

// Locate runs a backward search through the cache. The boolean reports a
// cache hit.
func (s *Service) Locate(ctx context.Context, pattern []byte, positions bool) (rindex.QueryResults, bool, error) {
	kind := "count"
	if positions {
		kind = "locate"
	}
	defer s.observeQuery(kind, time.Now())
	if span := tracing.FromContext(ctx); span != nil {
		span.SetAttr("pattern_length", len(pattern))
	}
	res, hit, err := s.opts.Cache.GetOrCompute(ctx, s.ix.Version(), pattern, positions, func() (rindex.QueryResults, error) {
		return s.ix.Locate(pattern, positions)
	})
	s.countQuery(kind, err)
	return res, hit, err
}

func (s *Service) Count(ctx context.Context, pattern []byte) (int, error) {
	res, _, err := s.Locate(ctx, pattern, false)
	return res.Count, err
}

// Extract returns length text characters starting at pos.
func (s *Service) Extract(ctx context.Context, pos, length int) ([]byte, error) {
	defer s.observeQuery("extract", time.Now())
	out, err := s.ix.Extract(pos, length)
	s.countQuery("extract", err)
	return out, err
}

func (s *Service) Text(ctx context.Context) ([]byte, error) {
	defer s.observeQuery("text", time.Now())
	out, err := s.ix.Text()
	s.countQuery("text", err)
	return out, err
}

func (s *Service) Insert(ctx context.Context, pos int, text []byte) (rindex.EditResult, error) {
	return s.clientEdit(ctx, events.EditEvent{Op: events.OpInsert, Pos: pos, Text: text})
}

func (s *Service) Delete(ctx context.Context, pos, length int) (rindex.EditResult, error) {
	return s.clientEdit(ctx, events.EditEvent{Op: events.OpDelete, Pos: pos, Length: length})
}

func (s *Service) Undo(ctx context.Context, n int) (rindex.EditResult, error) {
	return s.clientEdit(ctx, events.EditEvent{Op: events.OpUndo, Count: n})
}

func (s *Service) clientEdit(ctx context.Context, ev events.EditEvent) (rindex.EditResult, error) {
	if s.opts.ReadOnly {
		return rindex.EditResult{}, apperrors.ErrReadOnly
	}
	if !s.mu.TryLock() {
		s.countEdit(ev.Op, apperrors.ErrEditInProgress)
		return rindex.EditResult{}, apperrors.ErrEditInProgress
	}
	defer s.mu.Unlock()

	before := s.ix.Version()
	res, err := s.apply(ctx, ev)
	if err != nil || res.Version == before {
		return res, err
	}
	ev.Seq = res.Version
	ev.Time = time.Now().UTC()
	s.publish(ctx, ev)
	return res, nil
}

// Apply replays an edit that was committed elsewhere, as a follower or while
// rolling a journal forward. Sinks are not notified.
func (s *Service) Apply(ctx context.Context, ev events.EditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.apply(ctx, ev)
	return err
}

func (s *Service) apply(ctx context.Context, ev events.EditEvent) (rindex.EditResult, error) {
	log := logger.FromContext(ctx)
	res, err := ev.Apply(s.ix)
	s.countEdit(ev.Op, err)
	if err != nil {
		log.Warn("edit failed", "op", ev.Op, "pos", ev.Pos, "error", err)
		return res, err
	}
	if s.opts.Metrics != nil {
		switch ev.Op {
		case events.OpUndo:
			s.opts.Metrics.UndosTotal.Add(float64(ev.Count))
		default:
			s.opts.Metrics.EditReorders.Observe(float64(res.Reorders))
		}
	}
	s.observeSize()
	log.Info("edit committed", "op", ev.Op, "pos", ev.Pos, "reorders", res.Reorders, "runs", res.Runs, "version", res.Version)
	return res, nil
}

func (s *Service) publish(ctx context.Context, ev events.EditEvent) {
	for _, sink := range s.opts.Sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			s.logger.Error("edit event not delivered", "seq", ev.Seq, "error", err)
		}
	}
}

// Stats reports the index statistics plus cache counters.
type Stats struct {
	rindex.Stats
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	ReadOnly    bool  `json:"read_only"`
}

func (s *Service) Stats() Stats {
	hits, misses := s.opts.Cache.Stats()
	return Stats{Stats: s.ix.Stats(), CacheHits: hits, CacheMisses: misses, ReadOnly: s.opts.ReadOnly}
}

// Snapshot writes the current state and compacts the journal up to it.
func (s *Service) Snapshot(ctx context.Context) (string, error) {
	if s.opts.Snapshots == nil {
		return "", apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "snapshots are not configured")
	}
	snap := s.ix.Snapshot()
	path, err := s.opts.Snapshots.Write(snap)
	if err != nil {
		return "", err
	}
	s.logger.Info("snapshot written", "path", path, "version", snap.Version, "runs", len(snap.Runs))
	if s.opts.Compactor != nil {
		n, err := s.opts.Compactor.Truncate(ctx, snap.Version)
		if err != nil {
			s.logger.Warn("journal compaction failed", "version", snap.Version, "error", err)
		} else {
			s.logger.Info("journal compacted", "version", snap.Version, "removed", n)
		}
	}
	return path, nil
}

// InvalidateCache drops cached locate results.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.opts.Cache.Invalidate(ctx)
}

// CacheStats reports the cache counters; enabled is false without a cache.
func (s *Service) CacheStats() (hits, misses int64, enabled bool) {
	hits, misses = s.opts.Cache.Stats()
	return hits, misses, s.opts.Cache != nil
}

func (s *Service) observeSize() {
	if s.opts.Metrics == nil {
		return
	}
	st := s.ix.Stats()
	s.opts.Metrics.BWTRuns.Set(float64(st.Runs))
	s.opts.Metrics.TextLength.Set(float64(st.TextLength))
}

func (s *Service) observeQuery(kind string, start time.Time) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.QueryLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

func (s *Service) countQuery(kind string, err error) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.QueriesTotal.WithLabelValues(kind, outcome(err)).Inc()
	}
}

func (s *Service) countEdit(op events.Op, err error) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.EditsTotal.WithLabelValues(string(op), outcome(err)).Inc()
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperrors.IsEditRejection(err), errors.Is(err, apperrors.ErrInconsistentHistory):
		return "rejected"
	default:
		return "error"
	}
}
