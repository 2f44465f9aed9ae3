package journal

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/events"
	apperrors "github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/errors"
)

// Source lists journaled events after a version.
type Source interface {
	Since(ctx context.Context, after uint64) ([]events.EditEvent, error)
}

// Replay applies every event newer than version, checking that each one
// continues the sequence. It returns the number of events applied.
func Replay(ctx context.Context, src Source, version uint64, apply func(events.EditEvent) error) (int, error) {
	evs, err := src.Since(ctx, version)
	if err != nil {
		return 0, err
	}
	for k, ev := range evs {
		if err := ctx.Err(); err != nil {
			return k, err
		}
		if want := version + ev.Steps(); ev.Seq != want {
			return k, fmt.Errorf("%w: journal seq %d after version %d (expected %d)",
				apperrors.ErrInconsistentHistory, ev.Seq, version, want)
		}
		if err := apply(ev); err != nil {
			return k, fmt.Errorf("replaying edit %d: %w", ev.Seq, err)
		}
		version = ev.Seq
	}
	return len(evs), nil
}
