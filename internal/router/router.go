// Package router dispatches inbound websocket events to the
// matchmaker, session, chat, game and presence services, and pushes
// the resulting outbound events through the connection registry. It
// performs routing and precondition mapping only; business rules live
// in the services it calls.
package router

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"anon-chat-server/internal/game"
	"anon-chat-server/internal/matchmaker"
	"anon-chat-server/internal/model"
	"anon-chat-server/internal/repository"
	"anon-chat-server/internal/service"
	"anon-chat-server/internal/session"
	"anon-chat-server/internal/ws"
)

// UserSource looks up users during registration and match fan-out.
type UserSource interface {
	GetByID(ctx context.Context, userID string) (*model.User, error)
}

// registeredPayload acknowledges a successful register event.
type registeredPayload struct {
	UserID string `json:"userId"`
}

// PartnerSnippet is the public profile slice shared with a matched
// partner. Nothing else about a user crosses the pairing boundary.
type PartnerSnippet struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Age    int     `json:"age"`
	Rating float64 `json:"rating"`
}

// MatchFoundPayload is the match_found event body.
type MatchFoundPayload struct {
	SessionID string         `json:"sessionId"`
	Partner   PartnerSnippet `json:"partner"`
}

// SessionEndedPayload is the session_ended event body.
type SessionEndedPayload struct {
	SessionID string `json:"sessionId"`
	EndedBy   string `json:"endedBy"`
}

type registerPayload struct {
	UserID string `json:"userId"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId"`
}

type chatMessagePayload struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	ReplyToID *string `json:"replyToId"`
}

type gameRequestPayload struct {
	SessionID string `json:"sessionId"`
	GameKind  string `json:"gameKind"`
	ToUserID  string `json:"toUserId"`
	Stake     int64  `json:"stake"`
}

type gameResponsePayload struct {
	SessionID string `json:"sessionId"`
	GameKind  string `json:"gameKind"`
	Accepted  bool   `json:"accepted"`
}

type movePayload struct {
	SessionID string          `json:"sessionId"`
	GameKind  string          `json:"gameKind"`
	Move      json.RawMessage `json:"move"`
}

type presencePayload struct {
	Status string `json:"status"`
}

// Router is the inbound event dispatch point.
type Router struct {
	hub      *ws.Hub
	users    UserSource
	queue    *matchmaker.Service
	sessions *session.Service
	chat     *service.ChatService
	games    *service.GameService
	presence *service.PresenceService
	log      zerolog.Logger
}

// New creates a router and wires it into the hub and matchmaker
// callbacks.
func New(
	hub *ws.Hub,
	users UserSource,
	queue *matchmaker.Service,
	sessions *session.Service,
	chat *service.ChatService,
	games *service.GameService,
	presence *service.PresenceService,
	log zerolog.Logger,
) *Router {
	r := &Router{
		hub:      hub,
		users:    users,
		queue:    queue,
		sessions: sessions,
		chat:     chat,
		games:    games,
		presence: presence,
		log:      log.With().Str("component", "router").Logger(),
	}

	hub.OnMessage = r.Dispatch
	hub.OnDisconnect = r.handleDisconnect
	queue.OnMatch = r.handleMatch
	return r
}

// Dispatch routes one inbound frame. It runs on the reading goroutine
// of the connection that produced the frame, so one connection's
// events are handled in submission order. A handler failure answers
// the sender with an error event and never takes the process down.
func (r *Router) Dispatch(c *ws.Client, in ws.Inbound) {
	ctx := context.Background()

	if in.Type == ws.EventRegister {
		r.handleRegister(ctx, c, in)
		return
	}

	userID := c.UserID()
	if userID == "" {
		c.Reply(ws.Errorf("register first"))
		return
	}

	switch in.Type {
	case ws.EventStartSearch:
		if err := r.queue.Enqueue(ctx, userID); err != nil {
			r.log.Error().Err(err).Str("user_id", userID).Msg("enqueue failed")
			c.Reply(ws.Errorf("could not start search"))
		}

	case ws.EventStopSearch:
		if err := r.queue.Dequeue(ctx, userID); err != nil {
			r.log.Error().Err(err).Str("user_id", userID).Msg("dequeue failed")
			c.Reply(ws.Errorf("could not stop search"))
		}

	case ws.EventChatMessage:
		var p chatMessagePayload
		if err := in.Decode(&p); err != nil {
			c.Reply(ws.Errorf("invalid chat_message payload"))
			return
		}
		if _, err := r.chat.SendMessage(ctx, p.SessionID, userID, p.Text, p.ReplyToID); err != nil {
			c.Reply(r.errorEvent(err))
		}

	case ws.EventTypingStart, ws.EventTyping, ws.EventTypingStop:
		var p sessionPayload
		if err := in.Decode(&p); err != nil {
			c.Reply(ws.Errorf("invalid typing payload"))
			return
		}
		start := in.Type != ws.EventTypingStop
		if err := r.chat.Typing(ctx, p.SessionID, userID, start); err != nil {
			c.Reply(r.errorEvent(err))
		}

	case ws.EventGameRequest:
		var p gameRequestPayload
		if err := in.Decode(&p); err != nil {
			c.Reply(ws.Errorf("invalid game_request payload"))
			return
		}
		if err := r.games.Request(ctx, p.SessionID, userID, p.ToUserID, game.Kind(p.GameKind), p.Stake); err != nil {
			c.Reply(r.errorEvent(err))
		}

	case ws.EventGameRequestResponse:
		var p gameResponsePayload
		if err := in.Decode(&p); err != nil {
			c.Reply(ws.Errorf("invalid game_request_response payload"))
			return
		}
		if err := r.games.Respond(ctx, p.SessionID, userID, game.Kind(p.GameKind), p.Accepted); err != nil {
			c.Reply(r.errorEvent(err))
		}

	case ws.EventMove:
		var p movePayload
		if err := in.Decode(&p); err != nil {
			c.Reply(ws.Errorf("invalid move payload"))
			return
		}
		if err := r.games.Move(ctx, p.SessionID, userID, game.Kind(p.GameKind), p.Move); err != nil {
			c.Reply(r.errorEvent(err))
		}

	case ws.EventSessionEnd:
		var p sessionPayload
		if err := in.Decode(&p); err != nil {
			c.Reply(ws.Errorf("invalid session_end payload"))
			return
		}
		r.handleSessionEnd(ctx, c, userID, p.SessionID)

	case ws.EventPresenceUpdate:
		var p presencePayload
		if err := in.Decode(&p); err != nil {
			c.Reply(ws.Errorf("invalid presence_update payload"))
			return
		}
		if err := r.presence.Set(ctx, userID, p.Status); err != nil {
			c.Reply(r.errorEvent(err))
		}

	default:
		c.Reply(ws.Errorf("unknown event type: %s", in.Type))
	}
}

func (r *Router) handleRegister(ctx context.Context, c *ws.Client, in ws.Inbound) {
	var p registerPayload
	if err := in.Decode(&p); err != nil || p.UserID == "" {
		c.Reply(ws.Errorf("invalid register payload"))
		return
	}

	if _, err := r.users.GetByID(ctx, p.UserID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.Reply(ws.Errorf("unknown user"))
			return
		}
		r.log.Error().Err(err).Str("user_id", p.UserID).Msg("register lookup failed")
		c.Reply(ws.Errorf("registration failed"))
		return
	}

	if released := r.hub.Bind(c, p.UserID); released != "" {
		if err := r.presence.Set(ctx, released, model.StatusOffline); err != nil {
			r.log.Warn().Err(err).Str("user_id", released).Msg("presence update failed on rebind")
		}
	}
	if err := r.presence.Set(ctx, p.UserID, model.StatusOnline); err != nil {
		r.log.Warn().Err(err).Str("user_id", p.UserID).Msg("presence update failed on register")
	}
	c.Reply(ws.Outbound{Type: ws.EventRegistered, Payload: registeredPayload{UserID: p.UserID}})
}

func (r *Router) handleSessionEnd(ctx context.Context, c *ws.Client, userID, sessionID string) {
	chat, err := r.sessions.Complete(ctx, sessionID, userID)
	if err != nil {
		c.Reply(r.errorEvent(err))
		return
	}

	// In-flight games die with the session; held stakes go back.
	r.games.DiscardSession(ctx, sessionID)

	ev := ws.Outbound{Type: ws.EventSessionEnded, Payload: SessionEndedPayload{
		SessionID: sessionID,
		EndedBy:   userID,
	}}
	r.hub.SendTo(chat.Partner(userID), ev)
	c.Reply(ev)
}

// handleMatch opens the session for a pairing and tells both users
// who they got. An error keeps the pairing uncommitted so both users
// stay queued.
func (r *Router) handleMatch(ctx context.Context, user1, user2 *model.User) error {
	chat, err := r.sessions.Create(ctx, user1.ID, user2.ID)
	if err != nil {
		r.log.Error().Err(err).
			Str("user1_id", user1.ID).
			Str("user2_id", user2.ID).
			Msg("session create failed for match")
		return err
	}

	r.hub.SendTo(user1.ID, ws.Outbound{Type: ws.EventMatchFound, Payload: MatchFoundPayload{
		SessionID: chat.ID,
		Partner:   snippet(user2),
	}})
	r.hub.SendTo(user2.ID, ws.Outbound{Type: ws.EventMatchFound, Payload: MatchFoundPayload{
		SessionID: chat.ID,
		Partner:   snippet(user1),
	}})
	return nil
}

func (r *Router) handleDisconnect(userID string) {
	if err := r.presence.Set(context.Background(), userID, model.StatusOffline); err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Msg("presence update failed on disconnect")
	}
}

func snippet(u *model.User) PartnerSnippet {
	return PartnerSnippet{ID: u.ID, Name: u.Name, Age: u.Age, Rating: u.Rating}
}

// errorEvent maps a service error to the event sent back to the
// sender. Game rule and wager rejections go out as game_error, the
// rest as plain error events.
func (r *Router) errorEvent(err error) ws.Outbound {
	switch {
	case errors.Is(err, game.ErrNotPlayer),
		errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrCellOccupied),
		errors.Is(err, game.ErrInvalidMove),
		errors.Is(err, game.ErrAlreadyMoved),
		errors.Is(err, game.ErrGameInProgress),
		errors.Is(err, game.ErrNoGame),
		errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrInvalidStake),
		errors.Is(err, service.ErrUnknownGameKind),
		errors.Is(err, service.ErrNoPendingRequest),
		errors.Is(err, service.ErrNotRequestTarget):
		return ws.GameErrorf("%s", err)

	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionCompleted),
		errors.Is(err, session.ErrNotParticipant),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrBadReply),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrPeerNotInSession),
		errors.Is(err, service.ErrUserNotFound):
		return ws.Errorf("%s", err)
	}

	r.log.Error().Err(err).Msg("handler failed")
	return ws.Errorf("internal error")
}
