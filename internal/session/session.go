// Package session manages the lifecycle of a paired chat: created open
// on a successful match, completed exactly once, never reopened.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"anon-chat-server/internal/model"
	"anon-chat-server/internal/repository"
)

// Session-related errors.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionCompleted = errors.New("session already completed")
	ErrNotParticipant   = errors.New("user is not a session participant")
)

// Store abstracts chat persistence. Implemented by
// repository.ChatRepository; tests use an in-memory fake returning the
// same repository sentinels.
type Store interface {
	Create(ctx context.Context, chatID, user1ID, user2ID string) (*model.Chat, error)
	GetByID(ctx context.Context, chatID string) (*model.Chat, error)
	FindOpenBetween(ctx context.Context, user1ID, user2ID string) (*model.Chat, error)
	ListOpenByUser(ctx context.Context, userID string) ([]*model.Chat, error)
	Complete(ctx context.Context, chatID string) error
}

// Service enforces session lifecycle rules on top of a Store.
type Service struct {
	store Store
	log   zerolog.Logger
}

// NewService creates a session service.
func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("component", "session").Logger(),
	}
}

// Create opens a new session between two users.
func (s *Service) Create(ctx context.Context, user1ID, user2ID string) (*model.Chat, error) {
	chat, err := s.store.Create(ctx, uuid.NewString(), user1ID, user2ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.log.Info().
		Str("session_id", chat.ID).
		Str("user1_id", user1ID).
		Str("user2_id", user2ID).
		Msg("session opened")
	return chat, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, sessionID string) (*model.Chat, error) {
	chat, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return chat, nil
}

// CanSend checks that the session accepts messages and game moves from
// the given user: the session must be open and the user a participant.
// Returns the session on success.
func (s *Service) CanSend(ctx context.Context, sessionID, userID string) (*model.Chat, error) {
	chat, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if chat.IsCompleted {
		return nil, ErrSessionCompleted
	}
	return chat, nil
}

// Complete transitions an open session to completed. Only participants
// may complete, and completing twice is an error, not a silent
// success. Returns the session so the caller can notify the peer.
func (s *Service) Complete(ctx context.Context, sessionID, requesterID string) (*model.Chat, error) {
	chat, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(requesterID) {
		return nil, ErrNotParticipant
	}
	if chat.IsCompleted {
		return nil, ErrSessionCompleted
	}

	if err := s.store.Complete(ctx, sessionID); err != nil {
		switch {
		case errors.Is(err, repository.ErrChatNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, repository.ErrChatCompleted):
			// Lost a race with the peer's session_end.
			return nil, ErrSessionCompleted
		}
		return nil, err
	}

	s.log.Info().
		Str("session_id", sessionID).
		Str("requested_by", requesterID).
		Msg("session completed")
	return chat, nil
}

// HasOpenBetween reports whether the two users already share an open
// session. Used by the matchmaker as a pre-commit duplicate check.
func (s *Service) HasOpenBetween(ctx context.Context, user1ID, user2ID string) (bool, error) {
	_, err := s.store.FindOpenBetween(ctx, user1ID, user2ID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// OpenPeers returns the ids of users sharing an open session with
// userID. Used for presence fan-out.
func (s *Service) OpenPeers(ctx context.Context, userID string) ([]string, error) {
	chats, err := s.store.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	peers := make([]string, 0, len(chats))
	for _, c := range chats {
		if p := c.Partner(userID); p != "" {
			peers = append(peers, p)
		}
	}
	return peers, nil
}
