// Package session persists one conversation-flow snapshot per chat
// identity. Writes are last-write-wins; a missing row means no flow is in
// progress.
package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bulkflow/libs/db"
)

type State string

const (
	StateChooseService State = "CHOOSE_SERVICE"
	StateChooseDate    State = "CHOOSE_DATE"
	StateChooseSlot    State = "CHOOSE_SLOT"
	StateConfirm       State = "CONFIRM"
)

// Context accumulates the user's selections across flow steps.
type Context struct {
	ServiceID string `json:"service_id,omitempty"`
	Date      string `json:"date,omitempty"`
	SlotID    string `json:"slot_id,omitempty"`
}

type Snapshot struct {
	State State
	Ctx   Context
}

type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, chatID string) (Snapshot, bool, error) {
	var state string
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state, ctx FROM sessions WHERE chat_id = $1
	`, chatID).Scan(&state, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	snap := Snapshot{State: State(state)}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &snap.Ctx); err != nil {
			return Snapshot{}, false, err
		}
	}
	return snap, true, nil
}

func (s *Store) Set(ctx context.Context, chatID string, snap Snapshot) error {
	raw, err := json.Marshal(snap.Ctx)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (chat_id, state, ctx, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chat_id) DO UPDATE
		SET state = EXCLUDED.state,
			ctx = EXCLUDED.ctx,
			updated_at = now()
	`, chatID, string(snap.State), raw)
	return err
}

func (s *Store) Clear(ctx context.Context, chatID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE chat_id = $1`, chatID)
	return err
}
