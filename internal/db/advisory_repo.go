package db

import (
	"context"

	"github.com/google/uuid"

	"agriweather/internal/types"
)

// AdvisoryRepository records the messages handed to the SMS outbox.
type AdvisoryRepository struct {
	db DBTX
}

// NewAdvisoryRepository creates an AdvisoryRepository backed by the given
// connection.
func NewAdvisoryRepository(db DBTX) *AdvisoryRepository {
	return &AdvisoryRepository{db: db}
}

// Record inserts a log entry. It returns false without error when an entry
// for the same user, farm, kind and run date already exists.
func (r *AdvisoryRepository) Record(ctx context.Context, e *types.AdvisoryLogEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	tag, err := r.db.Exec(ctx,
		`INSERT INTO advisory_log (
			id, user_id, farm_id, kind, run_date, file_date, highest_tier,
			message_id, body, created_at
		) VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, COALESCE($10, NOW()))
		ON CONFLICT (user_id, farm_id, kind, run_date) DO NOTHING`,
		e.ID,
		e.UserID,
		e.FarmID,
		e.Kind,
		e.RunDate,
		nilIfEmpty(e.FileDate),
		nilIfEmpty(e.HighestTier),
		e.MessageID,
		e.Body,
		nilIfZeroTime(e.CreatedAt),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record advisory", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Sent reports whether the user was already sent kind for the farm on the
// run date. Scheduled jobs check it before publishing so a retried
// invocation does not message a farmer twice.
func (r *AdvisoryRepository) Sent(ctx context.Context, userID, farmID string, kind types.AdvisoryKind, runDate string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM advisory_log
			WHERE user_id = $1 AND farm_id = $2 AND kind = $3 AND run_date = $4::date
		)`,
		userID, farmID, kind, runDate,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check advisory log", err)
	}
	return exists, nil
}
