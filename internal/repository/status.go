package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"anon-chat-server/internal/model"
)

// StatusRepository persists the last reported presence per user so a
// partner reconnecting after a restart still sees a state.
type StatusRepository struct {
	pool *pgxpool.Pool
}

// NewStatusRepository creates a new StatusRepository instance.
func NewStatusRepository(pool *pgxpool.Pool) *StatusRepository {
	return &StatusRepository{pool: pool}
}

// Upsert stores the presence state for a user, overwriting any prior one.
func (r *StatusRepository) Upsert(ctx context.Context, userID, status string) error {
	const query = `
		INSERT INTO user_statuses (user_id, status, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, userID, status)
	if err != nil {
		return fmt.Errorf("failed to upsert status: %w", err)
	}

	return nil
}

// Get returns the last stored presence state for a user. Users who have
// never reported a status are considered offline.
func (r *StatusRepository) Get(ctx context.Context, userID string) (string, error) {
	const query = `
		SELECT status
		FROM user_statuses
		WHERE user_id = $1
	`

	var status string
	err := r.pool.QueryRow(ctx, query, userID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StatusOffline, nil
		}
		return "", fmt.Errorf("failed to get status: %w", err)
	}

	return status, nil
}
