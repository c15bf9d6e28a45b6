// Package delivery consumes campaign fan-out jobs: one queued message per
// recipient, settled against the delivery_records row the dispatcher seeded.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/bulkflow/libs/telegram"
	"github.com/md-rashed-zaman/bulkflow/services/worker-service/internal/jobs"
)

const (
	StatusPending   = "PENDING"
	StatusDelivered = "DELIVERED"
	StatusFailed    = "FAILED"
)

type Store interface {
	CampaignBody(ctx context.Context, campaignID string) (string, bool, error)
	UpsertStatus(ctx context.Context, campaignID, recipient, status string) error
	AppendLog(ctx context.Context, campaignID, recipient, status string, at time.Time) error
}

type Handler struct {
	store  Store
	sender telegram.Sender
	logger *slog.Logger
	now    func() time.Time
}

func NewHandler(store Store, sender telegram.Sender, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// Handle sends the campaign body to one recipient and records the outcome.
// A notifier failure is terminal for that recipient (FAILED, acked); only
// storage errors leave the job for redelivery.
func (h *Handler) Handle(ctx context.Context, env jobs.Envelope) (jobs.Outcome, error) {
	if env.CampaignID == "" || env.Recipient == "" {
		h.logger.Warn("delivery job missing ids", "campaignId", env.CampaignID)
		return jobs.Ack, nil
	}

	body, ok, err := h.store.CampaignBody(ctx, env.CampaignID)
	if err != nil {
		return jobs.Retry, err
	}
	if !ok {
		h.logger.Warn("campaign vanished before delivery", "campaignId", env.CampaignID)
		return jobs.Ack, nil
	}

	status := StatusDelivered
	if err := h.sender.Send(ctx, env.Recipient, body, nil); err != nil {
		h.logger.Warn("campaign send failed",
			"campaignId", env.CampaignID,
			"recipient", env.Recipient,
			"error", err,
		)
		status = StatusFailed
	}

	if err := h.store.UpsertStatus(ctx, env.CampaignID, env.Recipient, status); err != nil {
		return jobs.Retry, err
	}
	if err := h.store.AppendLog(ctx, env.CampaignID, env.Recipient, status, h.now()); err != nil {
		return jobs.Retry, err
	}
	return jobs.Ack, nil
}
