// Package service holds the coordination services between transport,
// matchmaking, sessions and games: wager escrow, presence fan-out and
// the game orchestration around requests, moves and settlement.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"anon-chat-server/internal/model"
	"anon-chat-server/internal/repository"
)

// Escrow errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds for stake")
	ErrInvalidStake      = errors.New("invalid stake")
	ErrUserNotFound      = errors.New("user not found")
)

// Wallet abstracts the atomic balance primitives. Implemented by
// repository.UserRepository.
type Wallet interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	AdjustBalance(ctx context.Context, userID string, amount int64) (int64, error)
}

// TxRecorder records coin movements. Implemented by
// repository.TransactionRepository.
type TxRecorder interface {
	Create(ctx context.Context, userID string, amount int64, txType, description string) error
}

// EscrowService holds wager stakes between game start and settlement.
// All-or-nothing: either both players are debited or neither is.
type EscrowService struct {
	wallet   Wallet
	txs      TxRecorder
	maxStake int64
	log      zerolog.Logger
}

// NewEscrowService creates an escrow service. maxStake of 0 disables
// the upper bound.
func NewEscrowService(wallet Wallet, txs TxRecorder, maxStake int64, log zerolog.Logger) *EscrowService {
	return &EscrowService{
		wallet:   wallet,
		txs:      txs,
		maxStake: maxStake,
		log:      log.With().Str("component", "escrow").Logger(),
	}
}

// ValidStake checks the stake bounds without touching balances.
func (s *EscrowService) ValidStake(stake int64) error {
	if stake < 0 {
		return ErrInvalidStake
	}
	if s.maxStake > 0 && stake > s.maxStake {
		return ErrInvalidStake
	}
	return nil
}

// Hold debits both players by the stake before the first move is
// accepted. Both balances are verified first, so a reject leaves both
// untouched; a failed second debit rolls back the first.
func (s *EscrowService) Hold(ctx context.Context, user1ID, user2ID string, stake int64, gameRef string) error {
	if err := s.ValidStake(stake); err != nil {
		return err
	}
	if stake == 0 {
		return nil
	}

	for _, id := range []string{user1ID, user2ID} {
		balance, err := s.wallet.GetBalance(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to check balance: %w", err)
		}
		if balance < stake {
			return ErrInsufficientFunds
		}
	}

	if _, err := s.wallet.AdjustBalance(ctx, user1ID, -stake); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("failed to debit stake: %w", err)
	}
	if _, err := s.wallet.AdjustBalance(ctx, user2ID, -stake); err != nil {
		// Roll back the first debit so the hold stays all-or-nothing.
		if _, rbErr := s.wallet.AdjustBalance(ctx, user1ID, stake); rbErr != nil {
			s.log.Error().Err(rbErr).Str("user_id", user1ID).Msg("stake rollback failed")
		}
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("failed to debit stake: %w", err)
	}

	desc := fmt.Sprintf("stake held for game %s", gameRef)
	_ = s.txs.Create(ctx, user1ID, -stake, model.TxTypeWagerStake, desc)
	_ = s.txs.Create(ctx, user2ID, -stake, model.TxTypeWagerStake, desc)

	s.log.Info().
		Str("user1_id", user1ID).
		Str("user2_id", user2ID).
		Int64("stake", stake).
		Str("game", gameRef).
		Msg("stake held")
	return nil
}

// SettleWin pays the winner both stakes.
func (s *EscrowService) SettleWin(ctx context.Context, winnerID string, stake int64, gameRef string) error {
	if stake == 0 {
		return nil
	}

	payout := 2 * stake
	if _, err := s.wallet.AdjustBalance(ctx, winnerID, payout); err != nil {
		return fmt.Errorf("failed to pay winner: %w", err)
	}
	_ = s.txs.Create(ctx, winnerID, payout, model.TxTypeWagerWin, fmt.Sprintf("won game %s", gameRef))

	s.log.Info().
		Str("winner_id", winnerID).
		Int64("payout", payout).
		Str("game", gameRef).
		Msg("wager settled")
	return nil
}

// Refund returns the stake to both players, on a draw or when a game
// is discarded before finishing.
func (s *EscrowService) Refund(ctx context.Context, user1ID, user2ID string, stake int64, gameRef string) error {
	if stake == 0 {
		return nil
	}

	desc := fmt.Sprintf("stake refunded for game %s", gameRef)
	var firstErr error
	for _, id := range []string{user1ID, user2ID} {
		if _, err := s.wallet.AdjustBalance(ctx, id, stake); err != nil {
			s.log.Error().Err(err).Str("user_id", id).Str("game", gameRef).Msg("stake refund failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to refund stake: %w", err)
			}
			continue
		}
		_ = s.txs.Create(ctx, id, stake, model.TxTypeWagerRefund, desc)
	}
	return firstErr
}
