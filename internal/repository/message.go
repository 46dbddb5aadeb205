package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"anon-chat-server/internal/model"
)

// ErrMessageNotFound indicates the requested message does not exist.
var ErrMessageNotFound = errors.New("message not found")

// MessageRepository persists chat messages.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository instance.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts a message into a chat. replyTo may be nil.
func (r *MessageRepository) Create(ctx context.Context, msgID, chatID, userID, text string, replyTo *string) (*model.Message, error) {
	const query = `
		INSERT INTO messages (id, chat_id, user_id, text, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, chat_id, user_id, text, reply_to, created_at
	`

	var msg model.Message
	err := r.pool.QueryRow(ctx, query, msgID, chatID, userID, text, replyTo).Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.UserID,
		&msg.Text,
		&msg.ReplyTo,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return &msg, nil
}

// GetByID retrieves a message by id, for building reply snippets.
func (r *MessageRepository) GetByID(ctx context.Context, msgID string) (*model.Message, error) {
	const query = `
		SELECT id, chat_id, user_id, text, reply_to, created_at
		FROM messages
		WHERE id = $1
	`

	var msg model.Message
	err := r.pool.QueryRow(ctx, query, msgID).Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.UserID,
		&msg.Text,
		&msg.ReplyTo,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &msg, nil
}

// ListByChat returns messages of a chat ordered oldest first.
func (r *MessageRepository) ListByChat(ctx context.Context, chatID string, limit int) ([]*model.Message, error) {
	const query = `
		SELECT id, chat_id, user_id, text, reply_to, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		var msg model.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.UserID,
			&msg.Text,
			&msg.ReplyTo,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return msgs, nil
}
