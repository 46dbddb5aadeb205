package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"anon-chat-server/internal/model"
)

// Chat-related errors.
var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrChatCompleted = errors.New("chat already completed")
)

// ChatRepository handles chat pairing persistence.
type ChatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository creates a new ChatRepository instance.
func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

// Create inserts a new open chat between two users.
func (r *ChatRepository) Create(ctx context.Context, chatID, user1ID, user2ID string) (*model.Chat, error) {
	const query = `
		INSERT INTO chats (id, user1_id, user2_id, is_completed, created_at)
		VALUES ($1, $2, $3, FALSE, NOW())
		RETURNING id, user1_id, user2_id, is_completed, created_at, completed_at
	`

	var chat model.Chat
	err := r.pool.QueryRow(ctx, query, chatID, user1ID, user2ID).Scan(
		&chat.ID,
		&chat.User1ID,
		&chat.User2ID,
		&chat.IsCompleted,
		&chat.CreatedAt,
		&chat.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return &chat, nil
}

// GetByID retrieves a chat by id.
// Returns ErrChatNotFound if the chat does not exist.
func (r *ChatRepository) GetByID(ctx context.Context, chatID string) (*model.Chat, error) {
	const query = `
		SELECT id, user1_id, user2_id, is_completed, created_at, completed_at
		FROM chats
		WHERE id = $1
	`

	var chat model.Chat
	err := r.pool.QueryRow(ctx, query, chatID).Scan(
		&chat.ID,
		&chat.User1ID,
		&chat.User2ID,
		&chat.IsCompleted,
		&chat.CreatedAt,
		&chat.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	return &chat, nil
}

// FindOpenBetween returns the open chat between the two users regardless
// of participant order, or ErrChatNotFound when none exists.
func (r *ChatRepository) FindOpenBetween(ctx context.Context, user1ID, user2ID string) (*model.Chat, error) {
	const query = `
		SELECT id, user1_id, user2_id, is_completed, created_at, completed_at
		FROM chats
		WHERE ((user1_id = $1 AND user2_id = $2) OR (user1_id = $2 AND user2_id = $1))
		AND is_completed = FALSE
		LIMIT 1
	`

	var chat model.Chat
	err := r.pool.QueryRow(ctx, query, user1ID, user2ID).Scan(
		&chat.ID,
		&chat.User1ID,
		&chat.User2ID,
		&chat.IsCompleted,
		&chat.CreatedAt,
		&chat.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to find open chat: %w", err)
	}

	return &chat, nil
}

// ListOpenByUser returns all open chats the user participates in.
// Used for presence fan-out to chat partners.
func (r *ChatRepository) ListOpenByUser(ctx context.Context, userID string) ([]*model.Chat, error) {
	const query = `
		SELECT id, user1_id, user2_id, is_completed, created_at, completed_at
		FROM chats
		WHERE (user1_id = $1 OR user2_id = $1) AND is_completed = FALSE
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open chats: %w", err)
	}
	defer rows.Close()

	var chats []*model.Chat
	for rows.Next() {
		var chat model.Chat
		err := rows.Scan(
			&chat.ID,
			&chat.User1ID,
			&chat.User2ID,
			&chat.IsCompleted,
			&chat.CreatedAt,
			&chat.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, &chat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}

	return chats, nil
}

// Complete marks an open chat as completed. The flag is one-way: calling
// Complete on an already completed chat returns ErrChatCompleted.
func (r *ChatRepository) Complete(ctx context.Context, chatID string) error {
	const query = `
		UPDATE chats
		SET is_completed = TRUE, completed_at = NOW()
		WHERE id = $1 AND is_completed = FALSE
	`

	tag, err := r.pool.Exec(ctx, query, chatID)
	if err != nil {
		return fmt.Errorf("failed to complete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing chat from double completion.
		if _, getErr := r.GetByID(ctx, chatID); getErr != nil {
			return getErr
		}
		return ErrChatCompleted
	}

	return nil
}
