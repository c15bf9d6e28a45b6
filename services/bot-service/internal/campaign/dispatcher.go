// Package campaign fans a bulk notification out to every known chat user:
// one queue job per (campaign, recipient), with a PENDING delivery record
// seeded up front. The worker consumes the jobs and settles each record to
// DELIVERED or FAILED.
package campaign

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bulkflow/libs/db"
	otelx "github.com/md-rashed-zaman/bulkflow/libs/otel"
)

type Enqueuer interface {
	Send(ctx context.Context, payload string) (string, error)
}

type Dispatcher struct {
	pool   *db.Pool
	queue  Enqueuer
	logger *slog.Logger
}

func NewDispatcher(pool *db.Pool, queue Enqueuer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{pool: pool, queue: queue, logger: logger}
}

type Result struct {
	CampaignID string
	Enqueued   int
	Failed     int
}

// Dispatch creates the campaign and enqueues one job per recipient. A
// failed enqueue for one recipient does not stop the rest; its delivery
// record stays PENDING and the failure is logged.
func (d *Dispatcher) Dispatch(ctx context.Context, body string) (Result, error) {
	campaignID := uuid.NewString()
	if _, err := d.pool.Exec(ctx, `
		INSERT INTO campaigns (id, body, created_at) VALUES ($1, $2, now())
	`, campaignID, body); err != nil {
		return Result{}, err
	}

	recipients, err := d.listRecipients(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{CampaignID: campaignID}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	for _, recipient := range recipients {
		if err := d.seedPending(ctx, campaignID, recipient); err != nil {
			return res, err
		}
		payload, err := json.Marshal(map[string]string{
			"campaignId":  campaignID,
			"recipient":   recipient,
			"traceparent": traceparent,
			"tracestate":  tracestate,
		})
		if err != nil {
			return res, err
		}
		if _, err := d.queue.Send(ctx, string(payload)); err != nil {
			d.logger.Warn("campaign enqueue failed", "err", err, "campaign_id", campaignID, "recipient", recipient)
			res.Failed++
			continue
		}
		res.Enqueued++
	}
	return res, nil
}

func (d *Dispatcher) listRecipients(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT chat_id FROM tg_users ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recipients []string
	for rows.Next() {
		var chatID string
		if err := rows.Scan(&chatID); err != nil {
			return nil, err
		}
		recipients = append(recipients, chatID)
	}
	return recipients, rows.Err()
}

func (d *Dispatcher) seedPending(ctx context.Context, campaignID, recipient string) error {
	if _, err := d.pool.Exec(ctx, `
		INSERT INTO delivery_records (campaign_id, recipient, status, updated_at)
		VALUES ($1, $2, 'PENDING', now())
		ON CONFLICT (campaign_id, recipient) DO NOTHING
	`, campaignID, recipient); err != nil {
		return err
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO delivery_log (id, campaign_id, recipient, status, attempted_at)
		VALUES ($1, $2, $3, 'PENDING', now())
	`, uuid.NewString(), campaignID, recipient)
	return err
}
