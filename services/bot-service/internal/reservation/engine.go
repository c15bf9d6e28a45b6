// Package reservation converts a confirmed selection into a booking while
// holding the slot-capacity invariant: booked_count never exceeds capacity,
// even under concurrent confirmation attempts for the last remaining seat.
package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bulkflow/libs/db"
	otelx "github.com/md-rashed-zaman/bulkflow/libs/otel"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	ErrSlotFull     = errors.New("slot is full")
)

type Booking struct {
	ID        string
	ChatID    string
	ServiceID string
	SlotID    string
	Status    string
}

// Enqueuer hands a follow-up job to the remote queue.
type Enqueuer interface {
	Send(ctx context.Context, payload string) (string, error)
}

type Engine struct {
	pool   *db.Pool
	queue  Enqueuer // nil when no queue is configured
	logger *slog.Logger
}

func NewEngine(pool *db.Pool, queue Enqueuer, logger *slog.Logger) *Engine {
	return &Engine{pool: pool, queue: queue, logger: logger}
}

// Confirm checks capacity and, in one transaction, inserts the booking,
// increments the slot counter and deletes the requester's session snapshot.
// Two concurrent confirms for the last seat serialize on the slot row lock;
// the loser gets ErrSlotFull.
//
// On success a reminder job is enqueued best-effort: an enqueue failure is
// logged but never undoes the committed booking.
func (e *Engine) Confirm(ctx context.Context, serviceID, slotID, chatID string) (Booking, error) {
	booking := Booking{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		ServiceID: serviceID,
		SlotID:    slotID,
		Status:    "CONFIRMED",
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var capacity, booked int
	err = tx.QueryRow(ctx, `
		SELECT capacity, booked_count FROM slots WHERE id = $1 FOR UPDATE
	`, slotID).Scan(&capacity, &booked)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrSlotNotFound
	}
	if err != nil {
		return Booking{}, err
	}
	if booked >= capacity {
		return Booking{}, ErrSlotFull
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bookings (id, chat_id, service_id, slot_id, status)
		VALUES ($1, $2, $3, $4, $5)
	`, booking.ID, booking.ChatID, booking.ServiceID, booking.SlotID, booking.Status); err != nil {
		return Booking{}, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE slots SET booked_count = booked_count + 1 WHERE id = $1
	`, slotID); err != nil {
		return Booking{}, err
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM sessions WHERE chat_id = $1
	`, chatID); err != nil {
		return Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Booking{}, err
	}

	e.enqueueReminder(ctx, booking)
	return booking, nil
}

func (e *Engine) enqueueReminder(ctx context.Context, b Booking) {
	if e.queue == nil {
		return
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	payload, err := json.Marshal(map[string]string{
		"kind":        "REMINDER",
		"bookingId":   b.ID,
		"chatId":      b.ChatID,
		"traceparent": traceparent,
		"tracestate":  tracestate,
	})
	if err != nil {
		e.logger.Warn("reminder payload marshal failed", "err", err, "booking_id", b.ID)
		return
	}
	if _, err := e.queue.Send(ctx, string(payload)); err != nil {
		e.logger.Warn("reminder enqueue failed", "err", err, "booking_id", b.ID)
	}
}
