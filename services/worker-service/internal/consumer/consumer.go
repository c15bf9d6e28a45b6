// Package consumer polls the remote queue and dispatches decoded jobs.
// Delivery is at-least-once: every handler must tolerate a duplicate
// invocation, and the only acknowledgment is an explicit delete.
package consumer

import (
	"context"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/bulkflow/libs/otel"
	"github.com/md-rashed-zaman/bulkflow/libs/sqs"
	"github.com/md-rashed-zaman/bulkflow/services/worker-service/internal/jobs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Queue interface {
	Receive(ctx context.Context, max, waitSeconds int) ([]sqs.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Handler processes one decoded job and decides its acknowledgment. An
// error always means Retry.
type Handler func(ctx context.Context, env jobs.Envelope) (jobs.Outcome, error)

type Config struct {
	MaxMessages int
	WaitSeconds int
	PollEvery   time.Duration
}

type Consumer struct {
	queue     Queue
	logger    *slog.Logger
	reminder  Handler
	delivery  Handler
	max       int
	wait      int
	pollEvery time.Duration
}

func New(queue Queue, logger *slog.Logger, reminder, delivery Handler, cfg Config) *Consumer {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = sqs.MaxReceiveBatch
	}
	if cfg.WaitSeconds <= 0 {
		cfg.WaitSeconds = 10
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 30 * time.Second
	}
	return &Consumer{
		queue:     queue,
		logger:    logger,
		reminder:  reminder,
		delivery:  delivery,
		max:       cfg.MaxMessages,
		wait:      cfg.WaitSeconds,
		pollEvery: cfg.PollEvery,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ProcessOnce(ctx); err != nil {
				c.logger.Error("queue poll failed", "err", err)
			}
		}
	}
}

// ProcessOnce receives one batch and settles every job in it. A receive
// failure is returned as-is: nothing was taken off the queue, so nothing
// is lost.
func (c *Consumer) ProcessOnce(ctx context.Context) error {
	msgs, err := c.queue.Receive(ctx, c.max, c.wait)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		c.processMessage(ctx, msg)
	}
	return nil
}

func (c *Consumer) processMessage(ctx context.Context, msg sqs.Message) {
	env, err := jobs.Decode(msg.Body)
	if err != nil {
		// Poison: redelivery cannot fix an unparsable body.
		c.logger.Warn("deleting poison message", "err", err, "message_id", msg.MessageID)
		c.ack(ctx, msg)
		return
	}

	msgCtx := otelx.ContextWithTraceContext(ctx, env.Traceparent, env.Tracestate)
	msgCtx, span := otel.Tracer("queue").Start(msgCtx, "queue.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "sqs"),
			attribute.String("messaging.message_id", msg.MessageID),
		),
	)
	defer span.End()

	outcome, err := c.dispatch(msgCtx, env)
	if err != nil {
		c.logger.Error("job handling failed", "err", err, "message_id", msg.MessageID)
		span.RecordError(err)
		return // left for redelivery
	}
	if outcome == jobs.Ack {
		c.ack(msgCtx, msg)
	}
}

func (c *Consumer) dispatch(ctx context.Context, env jobs.Envelope) (jobs.Outcome, error) {
	switch {
	case env.Kind == jobs.KindReminder:
		return c.reminder(ctx, env)
	case env.Kind == "" && env.CampaignID != "":
		return c.delivery(ctx, env)
	default:
		c.logger.Warn("unrecognized job kind", "kind", string(env.Kind))
		return jobs.Ack, nil
	}
}

func (c *Consumer) ack(ctx context.Context, msg sqs.Message) {
	if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		// The job will come back; handlers are idempotent, so a duplicate
		// run is tolerable.
		c.logger.Error("message delete failed", "err", err, "message_id", msg.MessageID)
	}
}
