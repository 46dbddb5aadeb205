// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"anon-chat-server/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// UserRepository reads user records and adjusts coin balances. The chat
// core never creates or mutates profiles; that belongs to the profile
// service writing the same table.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID retrieves a user by id.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*model.User, error) {
	const query = `
		SELECT id, name, age, interests, coins, COALESCE(rating_average, 0), created_at
		FROM users
		WHERE id = $1
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Name,
		&user.Age,
		&user.Interests,
		&user.Coins,
		&user.Rating,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// Exists reports whether a user record exists for the given id.
func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// AdjustBalance atomically adds amount (which may be negative) to the
// user's coin balance. The balance never goes negative: a debit past zero
// returns ErrInsufficientFunds and leaves the row unchanged.
func (r *UserRepository) AdjustBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	const query = `
		UPDATE users
		SET coins = coins + $2
		WHERE id = $1 AND coins + $2 >= 0
		RETURNING coins
	`

	var balance int64
	err := r.pool.QueryRow(ctx, query, userID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the user is missing or the debit would go negative.
			exists, existsErr := r.Exists(ctx, userID)
			if existsErr != nil {
				return 0, existsErr
			}
			if !exists {
				return 0, ErrUserNotFound
			}
			return 0, ErrInsufficientFunds
		}
		return 0, fmt.Errorf("failed to adjust balance: %w", err)
	}

	return balance, nil
}

// GetBalance returns the user's current coin balance.
func (r *UserRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT coins FROM users WHERE id = $1`

	var balance int64
	err := r.pool.QueryRow(ctx, query, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
