package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/baechuer/newsroom/internal/domain"
)

// TrackingRepo stores ingested tracking batches. Event ids are unique, so a
// batch re-sent after an offline period is not stored twice.
type TrackingRepo struct {
	db *sql.DB
}

func NewTrackingRepo(db *sql.DB) *TrackingRepo { return &TrackingRepo{db: db} }

// InsertBatch writes every event of the batch in one transaction and returns
// how many rows were new. fallbackUserID attributes events sent without one.
func (r *TrackingRepo) InsertBatch(ctx context.Context, kind string, b domain.TrackingBatch, fallbackUserID string, receivedAt time.Time) (int, error) {
	envJSON, err := json.Marshal(b.Context)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	inserted := 0
	for _, ev := range b.Events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("event %s payload: %w", ev.ID, err)
		}
		sessionID := ev.SessionID
		if sessionID == "" {
			sessionID = b.SessionID
		}
		userID := ev.UserID
		if userID == "" {
			userID = fallbackUserID
		}

		res, err := tx.ExecContext(ctx, insertTrackingEventSQL,
			ev.ID, kind, string(ev.Type), sessionID, nullIfEmpty(userID), b.BatchID,
			payload, envJSON, time.UnixMilli(ev.Timestamp).UTC(), receivedAt,
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}
