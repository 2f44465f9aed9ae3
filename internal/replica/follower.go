// Package replica keeps a follower index in step with a leader by applying
// the leader's edit events in sequence order.
package replica

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/metrics"
	"github.com/google/uuid"
)

// Target is the index a follower writes to.
type Target interface {
	Version() uint64
	Apply(ctx context.Context, ev events.EditEvent) error
}

type Follower struct {
	target  Target
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewFollower(target Target, m *metrics.Metrics) *Follower {
	return &Follower{
		target:  target,
		metrics: m,
		logger:  slog.Default().With("component", "replica"),
	}
}

// Handle applies one encoded event. Events at or below the current version
// were already applied and are skipped; an event that does not continue the
// current version exactly means the follower missed edits.
func (f *Follower) Handle(ctx context.Context, _ []byte, value []byte) error {
	ev, err := kafka.DecodeJSON[events.EditEvent](value)
	if err != nil {
		f.record("invalid")
		return err
	}
	current := f.target.Version()
	if ev.Seq <= current {
		f.record("duplicate")
		f.logger.Debug("skipping applied event", "seq", ev.Seq, "version", current)
		return nil
	}
	if want := current + ev.Steps(); ev.Seq != want {
		f.record("gap")
		return fmt.Errorf("%w: event seq %d does not follow version %d (expected %d)",
			apperrors.ErrInconsistentHistory, ev.Seq, current, want)
	}
	if err := f.target.Apply(ctx, ev); err != nil {
		f.record("failed")
		return fmt.Errorf("applying event %d: %w", ev.Seq, err)
	}
	f.record("applied")
	f.logger.Debug("event applied", "seq", ev.Seq, "op", ev.Op)
	return nil
}

// Run consumes the edit topic from its beginning until ctx is cancelled or an
// event cannot be applied. Every run joins a fresh consumer group, since the
// follower's state starts from its own snapshot rather than a shared offset.
func (f *Follower) Run(ctx context.Context, cfg config.KafkaConfig) error {
	cfg.ConsumerGroup = fmt.Sprintf("%s-%s", cfg.ConsumerGroup, uuid.NewString())
	f.logger.Info("following edits", "topic", cfg.Topics.Edits, "group", cfg.ConsumerGroup, "version", f.target.Version())
	c := kafka.NewConsumer(cfg, cfg.Topics.Edits, f.Handle, kafka.ConsumerOptions{
		FromBeginning: true,
		StopOnError:   true,
	})
	return c.Start(ctx)
}

func (f *Follower) record(status string) {
	if f.metrics != nil {
		f.metrics.EventsAppliedTotal.WithLabelValues(status).Inc()
	}
}
