package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"anon-chat-server/internal/game"
	"anon-chat-server/internal/game/rps"
	"anon-chat-server/internal/game/tictactoe"
	"anon-chat-server/internal/session"
	"anon-chat-server/internal/ws"
)

// Game orchestration errors.
var (
	ErrUnknownGameKind  = errors.New("unknown game kind")
	ErrNoPendingRequest = errors.New("no pending game request")
	ErrNotRequestTarget = errors.New("game request was not addressed to this user")
	ErrPeerNotInSession = errors.New("target user is not the session peer")
)

// GameRequestPayload is the game_request event relayed to the peer.
type GameRequestPayload struct {
	SessionID  string `json:"sessionId"`
	GameKind   string `json:"gameKind"`
	FromUserID string `json:"fromUserId"`
	Stake      int64  `json:"stake"`
}

// GameResponsePayload is the game_request_response event relayed back
// to the proposer.
type GameResponsePayload struct {
	SessionID  string `json:"sessionId"`
	GameKind   string `json:"gameKind"`
	FromUserID string `json:"fromUserId"`
	Accepted   bool   `json:"accepted"`
	Stake      int64  `json:"stake"`
}

// GameUpdatePayload is the game_update event carrying board state.
type GameUpdatePayload struct {
	SessionID string         `json:"sessionId"`
	GameKind  string         `json:"gameKind"`
	State     map[string]any `json:"state"`
}

// GameResultPayload is the game_result event. Outcome is oriented per
// recipient: each player sees win, lose or draw from their own side.
type GameResultPayload struct {
	SessionID string         `json:"sessionId"`
	GameKind  string         `json:"gameKind"`
	Outcome   string         `json:"outcome"`
	Stake     int64          `json:"stake"`
	Payout    int64          `json:"payout"`
	Details   map[string]any `json:"details"`
}

type proposal struct {
	fromID string
	toID   string
	kind   game.Kind
	stake  int64
}

// GameService coordinates the full in-chat game flow: request and
// response relay, escrow around accepted stakes, move application and
// settlement fan-out.
type GameService struct {
	manager  *game.Manager
	escrow   *EscrowService
	sessions *session.Service
	sender   ws.Sender
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]*proposal // sessionID/kind
}

// NewGameService creates the game orchestration service.
func NewGameService(manager *game.Manager, escrow *EscrowService, sessions *session.Service, sender ws.Sender, log zerolog.Logger) *GameService {
	return &GameService{
		manager:  manager,
		escrow:   escrow,
		sessions: sessions,
		sender:   sender,
		log:      log.With().Str("component", "game").Logger(),
		pending:  make(map[string]*proposal),
	}
}

func pendingKey(sessionID string, kind game.Kind) string {
	return fmt.Sprintf("%s/%s", sessionID, kind)
}

// Request validates and relays a game proposal to the session peer. A
// newer proposal for the same (session, kind) replaces the previous
// one; proposals never expire on their own.
func (s *GameService) Request(ctx context.Context, sessionID, fromID, toID string, kind game.Kind, stake int64) error {
	if !game.ValidKind(kind) {
		return ErrUnknownGameKind
	}
	if err := s.escrow.ValidStake(stake); err != nil {
		return err
	}

	chat, err := s.sessions.CanSend(ctx, sessionID, fromID)
	if err != nil {
		return err
	}
	if chat.Partner(fromID) != toID {
		return ErrPeerNotInSession
	}

	s.mu.Lock()
	s.pending[pendingKey(sessionID, kind)] = &proposal{
		fromID: fromID,
		toID:   toID,
		kind:   kind,
		stake:  stake,
	}
	s.mu.Unlock()

	s.sender.SendTo(toID, ws.Outbound{Type: ws.EventGameRequest, Payload: GameRequestPayload{
		SessionID:  sessionID,
		GameKind:   string(kind),
		FromUserID: fromID,
		Stake:      stake,
	}})
	return nil
}

// Respond resolves a pending proposal. A decline just notifies the
// proposer. An accept with a stake runs the escrow hold before the
// game starts; insufficient funds abort the proposal and leave both
// balances untouched.
func (s *GameService) Respond(ctx context.Context, sessionID, responderID string, kind game.Kind, accepted bool) error {
	if !game.ValidKind(kind) {
		return ErrUnknownGameKind
	}

	if _, err := s.sessions.CanSend(ctx, sessionID, responderID); err != nil {
		return err
	}

	key := pendingKey(sessionID, kind)
	s.mu.Lock()
	prop, ok := s.pending[key]
	if ok && prop.toID != responderID {
		s.mu.Unlock()
		return ErrNotRequestTarget
	}
	delete(s.pending, key)
	s.mu.Unlock()
	if !ok {
		return ErrNoPendingRequest
	}

	if !accepted {
		s.sender.SendTo(prop.fromID, ws.Outbound{Type: ws.EventGameRequestResponse, Payload: GameResponsePayload{
			SessionID:  sessionID,
			GameKind:   string(kind),
			FromUserID: responderID,
			Accepted:   false,
			Stake:      prop.stake,
		}})
		return nil
	}

	var eng game.Engine
	switch kind {
	case game.KindRPS:
		eng = rps.New(prop.fromID, prop.toID)
	case game.KindTicTacToe:
		eng = tictactoe.New(prop.fromID, prop.toID)
	}

	// Snapshot the opening state now: once Start publishes the game,
	// a prompt first move may already be mutating the engine under the
	// manager's lock by the time the events below go out.
	initialState := eng.State()

	if err := s.manager.Start(sessionID, eng, prop.stake); err != nil {
		return err
	}
	if err := s.escrow.Hold(ctx, prop.fromID, prop.toID, prop.stake, key); err != nil {
		// The hold failed, so the game never really started.
		s.manager.Discard(sessionID, kind)
		s.sender.SendTo(prop.fromID, ws.GameErrorf("game could not start: %s", err))
		return err
	}

	s.log.Info().
		Str("session_id", sessionID).
		Str("kind", string(kind)).
		Int64("stake", prop.stake).
		Msg("game started")

	s.sender.SendTo(prop.fromID, ws.Outbound{Type: ws.EventGameRequestResponse, Payload: GameResponsePayload{
		SessionID:  sessionID,
		GameKind:   string(kind),
		FromUserID: responderID,
		Accepted:   true,
		Stake:      prop.stake,
	}})

	update := ws.Outbound{Type: ws.EventGameUpdate, Payload: GameUpdatePayload{
		SessionID: sessionID,
		GameKind:  string(kind),
		State:     initialState,
	}}
	s.sender.SendTo(prop.fromID, update)
	s.sender.SendTo(prop.toID, update)
	return nil
}

// Move applies one move and fans out the resulting state. A terminal
// move settles the wager and sends each player a game_result oriented
// to their side; the finished game is gone before the events leave.
func (s *GameService) Move(ctx context.Context, sessionID, userID string, kind game.Kind, raw json.RawMessage) error {
	if !game.ValidKind(kind) {
		return ErrUnknownGameKind
	}

	if _, err := s.sessions.CanSend(ctx, sessionID, userID); err != nil {
		return err
	}

	active, ok := s.manager.Get(sessionID, kind)
	if !ok {
		return game.ErrNoGame
	}
	players := active.Engine.Players()

	update, stake, err := s.manager.Move(sessionID, kind, userID, raw)
	if err != nil {
		return err
	}

	if update.Result == nil {
		ev := ws.Outbound{Type: ws.EventGameUpdate, Payload: GameUpdatePayload{
			SessionID: sessionID,
			GameKind:  string(kind),
			State:     update.State,
		}}
		s.sender.SendTo(players[0], ev)
		s.sender.SendTo(players[1], ev)
		return nil
	}

	s.settle(ctx, sessionID, kind, players, update.Result, stake)
	return nil
}

// DiscardSession drops every active game and pending proposal of a
// session, refunding held stakes. Called when the session completes.
func (s *GameService) DiscardSession(ctx context.Context, sessionID string) {
	s.mu.Lock()
	for _, kind := range []game.Kind{game.KindRPS, game.KindTicTacToe} {
		delete(s.pending, pendingKey(sessionID, kind))
	}
	s.mu.Unlock()

	for _, active := range s.manager.DiscardSession(sessionID) {
		players := active.Engine.Players()
		ref := pendingKey(sessionID, active.Engine.Kind())
		if err := s.escrow.Refund(ctx, players[0], players[1], active.Stake, ref); err != nil {
			s.log.Error().Err(err).Str("session_id", sessionID).Msg("abort refund failed")
		}
	}
}

func (s *GameService) settle(ctx context.Context, sessionID string, kind game.Kind, players [2]string, result *game.Result, stake int64) {
	ref := pendingKey(sessionID, kind)

	if result.Draw {
		if err := s.escrow.Refund(ctx, players[0], players[1], stake, ref); err != nil {
			s.log.Error().Err(err).Str("game", ref).Msg("draw refund failed")
		}
	} else if err := s.escrow.SettleWin(ctx, result.WinnerID, stake, ref); err != nil {
		s.log.Error().Err(err).Str("game", ref).Msg("win settlement failed")
	}

	for _, player := range players {
		outcome := "draw"
		var payout int64
		if !result.Draw {
			if player == result.WinnerID {
				outcome = "win"
				payout = 2 * stake
			} else {
				outcome = "lose"
			}
		} else {
			payout = stake
		}

		s.sender.SendTo(player, ws.Outbound{Type: ws.EventGameResult, Payload: GameResultPayload{
			SessionID: sessionID,
			GameKind:  string(kind),
			Outcome:   outcome,
			Stake:     stake,
			Payout:    payout,
			Details:   result.Details,
		}})
	}
}
