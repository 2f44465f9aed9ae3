package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/resilience"
)

// PartitionKey routes every edit of an index to one partition so that
// followers see them in commit order.
const PartitionKey = "rindex"

// Sink receives committed edits.
type Sink interface {
	Publish(ctx context.Context, ev EditEvent) error
}

// Writer is the transport a Publisher writes to; *kafka.Producer satisfies it.
type Writer interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Publisher sends edit events to Kafka, retrying transient failures.
type Publisher struct {
	w       Writer
	retry   resilience.RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewPublisher(w Writer, m *metrics.Metrics) *Publisher {
	return &Publisher{
		w: w,
		retry: resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable: func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			},
		},
		metrics: m,
		logger:  slog.Default().With("component", "edit-publisher"),
	}
}

// Publish sends ev, stamping the time if unset.
func (p *Publisher) Publish(ctx context.Context, ev EditEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	err := resilience.Retry(ctx, "publish-edit", p.retry, func(ctx context.Context) error {
		return p.w.Publish(ctx, kafka.Event{Key: PartitionKey, Value: ev})
	})
	status := "ok"
	if err != nil {
		status = "error"
		p.logger.Error("edit event not published", "seq", ev.Seq, "op", ev.Op, "error", err)
	}
	if p.metrics != nil {
		p.metrics.EventsPublishedTotal.WithLabelValues(status).Inc()
	}
	return err
}

// Discard is a Sink that drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, EditEvent) error { return nil }
