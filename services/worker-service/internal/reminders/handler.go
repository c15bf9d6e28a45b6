/// Package reminders handles REMINDER jobs: notify the chat shortly before
// the booked slot starts. Sends are duplicate-tolerant rather than
// deduplicated; the due window plus the queue's visibility timeout bounds
// how often the same reminder can fire.
package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/bulkflow/libs/telegram"
	"github.com/md-rashed-zaman/bulkflow/services/worker-service/internal/jobs"
)

// Store looks up the slot start time for a still-confirmed booking.
type Store interface {
	BookingStart(ctx context.Context, bookingID string) (time.Time, bool, error)
}

type Handler struct {
	store  Store
	sender telegram.Sender
	logger *slog.Logger
	window time.Duration
	now    func() time.Time
}

func NewHandler(store Store, sender telegram.Sender, logger *slog.Logger, window time.Duration) *Handler {
	if window <= 0 {
		window = time.Hour
	}
	return &Handler{
		store:  store,
		sender: sender,
		logger: logger,
		window: window,
		now:    time.Now,
	}
}

func (h *Handler) Handle(ctx context.Context, env jobs.Envelope) (jobs.Outcome, error) {
	if env.BookingID == "" || env.ChatID == "" {
		h.logger.Warn("reminder job missing booking or chat id")
		return jobs.Ack, nil
	}

	start, ok, err := h.store.BookingStart(ctx, env.BookingID)
	if err != nil {
		return jobs.Retry, err
	}
	if !ok {
		// Booking cancelled or gone: the reminder no longer applies.
		return jobs.Ack, nil
	}

	until := start.Sub(h.now())
	switch {
	case until <= 0:
		// Slot already started; nothing useful left to say.
		return jobs.Ack, nil
	case until > h.window:
		// Not due yet: leave it for the visibility timeout to redeliver.
		return jobs.Retry, nil
	default:
		if err := h.sender.Send(ctx, env.ChatID, "Reminder: your booking starts soon.", nil); err != nil {
			return jobs.Retry, err
		}
		return jobs.Ack, nil
	}
}
