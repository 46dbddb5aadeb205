package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"anon-chat-server/internal/model"
	"anon-chat-server/internal/repository"
	"anon-chat-server/internal/session"
	"anon-chat-server/internal/ws"
)

// Chat errors.
var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrBadReply     = errors.New("replied-to message does not belong to this session")
)

// MessageStore persists relayed messages. Implemented by
// repository.MessageRepository.
type MessageStore interface {
	Create(ctx context.Context, msgID, chatID, userID, text string, replyTo *string) (*model.Message, error)
	GetByID(ctx context.Context, msgID string) (*model.Message, error)
}

// ReplySnippet is the quoted part of a reply, embedded in new_message.
type ReplySnippet struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

// MessageBody is the message object inside a new_message event.
type MessageBody struct {
	ID        string        `json:"id"`
	SessionID string        `json:"sessionId"`
	UserID    string        `json:"userId"`
	Text      string        `json:"text"`
	ReplyTo   *ReplySnippet `json:"replyTo,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// NewMessagePayload is the new_message event body.
type NewMessagePayload struct {
	SessionID string      `json:"sessionId"`
	Message   MessageBody `json:"message"`
}

// TypingPayload is the typing_start / typing_stop event body.
type TypingPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// ChatService relays and persists chat traffic within open sessions.
type ChatService struct {
	messages MessageStore
	sessions *session.Service
	sender   ws.Sender
	log      zerolog.Logger
}

// NewChatService creates a chat relay service.
func NewChatService(messages MessageStore, sessions *session.Service, sender ws.Sender, log zerolog.Logger) *ChatService {
	return &ChatService{
		messages: messages,
		sessions: sessions,
		sender:   sender,
		log:      log.With().Str("component", "chat").Logger(),
	}
}

// SendMessage persists one message, relays it to the session peer and
// echoes it back to the sender so they learn the server-assigned id
// and timestamp. The session must be open and the sender a
// participant; a replyToID, when present, must name a message of the
// same session.
func (s *ChatService) SendMessage(ctx context.Context, sessionID, senderID, text string, replyToID *string) (*MessageBody, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	chat, err := s.sessions.CanSend(ctx, sessionID, senderID)
	if err != nil {
		return nil, err
	}

	var snippet *ReplySnippet
	if replyToID != nil && *replyToID != "" {
		quoted, err := s.messages.GetByID(ctx, *replyToID)
		if err != nil {
			if errors.Is(err, repository.ErrMessageNotFound) {
				return nil, ErrBadReply
			}
			return nil, fmt.Errorf("failed to load replied-to message: %w", err)
		}
		if quoted.ChatID != sessionID {
			return nil, ErrBadReply
		}
		snippet = &ReplySnippet{ID: quoted.ID, UserID: quoted.UserID, Text: quoted.Text}
	}

	msg, err := s.messages.Create(ctx, uuid.NewString(), sessionID, senderID, text, replyToID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	body := MessageBody{
		ID:        msg.ID,
		SessionID: sessionID,
		UserID:    senderID,
		Text:      msg.Text,
		ReplyTo:   snippet,
		CreatedAt: msg.CreatedAt,
	}

	ev := ws.Outbound{
		Type:    ws.EventNewMessage,
		Payload: NewMessagePayload{SessionID: sessionID, Message: body},
	}
	s.sender.SendTo(chat.Partner(senderID), ev)
	s.sender.SendTo(senderID, ev)
	return &body, nil
}

// Typing relays a typing indicator to the session peer. Indicators are
// not persisted.
func (s *ChatService) Typing(ctx context.Context, sessionID, userID string, start bool) error {
	chat, err := s.sessions.CanSend(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	eventType := ws.EventTypingStop
	if start {
		eventType = ws.EventTypingStart
	}
	s.sender.SendTo(chat.Partner(userID), ws.Outbound{
		Type:    eventType,
		Payload: TypingPayload{SessionID: sessionID, UserID: userID},
	})
	return nil
}
