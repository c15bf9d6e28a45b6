package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bulkflow/libs/db"
)

// Repository settles per-recipient delivery state seeded by the dispatcher.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// CampaignBody loads the message body for a campaign. The second return is
// false when the campaign row no longer exists.
func (r *Repository) CampaignBody(ctx context.Context, campaignID string) (string, bool, error) {
	var body string
	err := r.pool.QueryRow(ctx,
		`SELECT body FROM campaigns WHERE id = $1`, campaignID,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

// UpsertStatus records the terminal state for one (campaign, recipient)
// pair. Redelivered jobs land on the conflict arm, so settling twice is
// harmless.
func (r *Repository) UpsertStatus(ctx context.Context, campaignID, recipient, status string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO delivery_records (campaign_id, recipient, status, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (campaign_id, recipient)
		DO UPDATE SET status = EXCLUDED.status, updated_at = now()`,
		campaignID, recipient, status,
	)
	return err
}

func (r *Repository) AppendLog(ctx context.Context, campaignID, recipient, status string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO delivery_log (id, campaign_id, recipient, status, attempted_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), campaignID, recipient, status, at.UTC(),
	)
	return err
}
