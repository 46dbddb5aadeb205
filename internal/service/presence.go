package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"anon-chat-server/internal/model"
	"anon-chat-server/internal/ws"
)

// ErrInvalidStatus rejects presence states outside the known set.
var ErrInvalidStatus = errors.New("invalid presence status")

// StatusStore persists the last reported presence per user.
// Implemented by repository.StatusRepository.
type StatusStore interface {
	Upsert(ctx context.Context, userID, status string) error
	Get(ctx context.Context, userID string) (string, error)
}

// PeerSource lists users sharing an open session with a user.
// Implemented by session.Service.
type PeerSource interface {
	OpenPeers(ctx context.Context, userID string) ([]string, error)
}

// PresencePayload is the presence_update event body.
type PresencePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// PresenceService stores presence changes and fans them out to the
// users who share an open session with the subject. Nobody else learns
// about a user's state.
type PresenceService struct {
	statuses StatusStore
	peers    PeerSource
	sender   ws.Sender
	log      zerolog.Logger
}

// NewPresenceService creates a presence service.
func NewPresenceService(statuses StatusStore, peers PeerSource, sender ws.Sender, log zerolog.Logger) *PresenceService {
	return &PresenceService{
		statuses: statuses,
		peers:    peers,
		sender:   sender,
		log:      log.With().Str("component", "presence").Logger(),
	}
}

// Set records the user's presence and notifies open-session peers.
func (s *PresenceService) Set(ctx context.Context, userID, status string) error {
	if !model.ValidStatus(status) {
		return ErrInvalidStatus
	}

	if err := s.statuses.Upsert(ctx, userID, status); err != nil {
		return fmt.Errorf("failed to store presence: %w", err)
	}

	peers, err := s.peers.OpenPeers(ctx, userID)
	if err != nil {
		// The state change is stored; fan-out failure only delays
		// peers until the next change.
		s.log.Warn().Err(err).Str("user_id", userID).Msg("presence peer lookup failed")
		return nil
	}

	ev := ws.Outbound{Type: ws.EventPresenceUpdate, Payload: PresencePayload{UserID: userID, Status: status}}
	for _, peer := range peers {
		s.sender.SendTo(peer, ev)
	}
	return nil
}

// Get returns the user's last stored presence; users with a live
// connection but no stored state count as online.
func (s *PresenceService) Get(ctx context.Context, userID string) (string, error) {
	status, err := s.statuses.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if status == model.StatusOffline && s.sender.IsOnline(userID) {
		return model.StatusOnline, nil
	}
	return status, nil
}
