package reminders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bulkflow/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) BookingStart(ctx context.Context, bookingID string) (time.Time, bool, error) {
	var start time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT sl.start_ts
		FROM bookings b
		JOIN slots sl ON sl.id = b.slot_id
		WHERE b.id = $1 AND b.status = 'CONFIRMED'
	`, bookingID).Scan(&start)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return start, true, nil
}
