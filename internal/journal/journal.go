// Package journal records committed edit events in PostgreSQL so that an
// index restored from an older snapshot can be rolled forward.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/internal/events"
	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/postgres"
)

// Schema creates the journal table. seq is the index version after the edit.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS rindex_edits (
		seq        BIGINT PRIMARY KEY,
		op         TEXT NOT NULL,
		pos        INTEGER NOT NULL DEFAULT 0,
		payload    BYTEA,
		length     INTEGER NOT NULL DEFAULT 0,
		count      INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Journal persists edit events. It satisfies events.Sink and Source.
type Journal struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Journal {
	return &Journal{
		db:     db,
		logger: slog.Default().With("component", "edit-journal"),
	}
}

func (j *Journal) Migrate(ctx context.Context) error {
	return j.db.Exec(ctx, Schema...)
}

// Publish appends a single event.
func (j *Journal) Publish(ctx context.Context, ev events.EditEvent) error {
	return j.Append(ctx, ev)
}

// Append stores events in one transaction. Re-appending a stored seq is a
// no-op.
func (j *Journal) Append(ctx context.Context, evs ...events.EditEvent) error {
	err := j.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO rindex_edits (seq, op, pos, payload, length, count, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (seq) DO NOTHING`)
		if err != nil {
			return fmt.Errorf("preparing journal insert: %w", err)
		}
		defer stmt.Close()
		for _, ev := range evs {
			if _, err := stmt.ExecContext(ctx, int64(ev.Seq), string(ev.Op), ev.Pos, ev.Text, ev.Length, ev.Count, ev.Time.UTC()); err != nil {
				return fmt.Errorf("inserting edit %d: %w", ev.Seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.logger.Debug("edits journaled", "count", len(evs))
	return nil
}

// Since returns the events with seq greater than after, oldest first.
func (j *Journal) Since(ctx context.Context, after uint64) ([]events.EditEvent, error) {
	rows, err := j.db.DB.QueryContext(ctx,
		`SELECT seq, op, pos, payload, length, count, created_at
		 FROM rindex_edits WHERE seq > $1 ORDER BY seq`,
		int64(after),
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var out []events.EditEvent
	for rows.Next() {
		var (
			ev  events.EditEvent
			seq int64
			op  string
		)
		if err := rows.Scan(&seq, &op, &ev.Pos, &ev.Text, &ev.Length, &ev.Count, &ev.Time); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.Op = events.Op(op)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Truncate drops events with seq at or below upTo, typically after a
// snapshot at that version has been written.
func (j *Journal) Truncate(ctx context.Context, upTo uint64) (int64, error) {
	res, err := j.db.DB.ExecContext(ctx, `DELETE FROM rindex_edits WHERE seq <= $1`, int64(upTo))
	if err != nil {
		return 0, fmt.Errorf("truncating journal: %w", err)
	}
	return res.RowsAffected()
}
