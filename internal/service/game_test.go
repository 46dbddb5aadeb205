package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anon-chat-server/internal/game"
	"anon-chat-server/internal/game/tictactoe"
	"anon-chat-server/internal/model"
	"anon-chat-server/internal/session"
	"anon-chat-server/internal/ws"
)

type gameFixture struct {
	svc      *GameService
	sessions *session.Service
	sender   *fakeSender
	wallet   *fakeWallet
	txs      *fakeTxs
	manager  *game.Manager
	chat     *model.Chat
}

func newGameFixture(t *testing.T, balances map[string]int64) *gameFixture {
	t.Helper()

	sender := newFakeSender()
	wallet := newFakeWallet(balances)
	txs := &fakeTxs{}
	sessions := session.NewService(newChatStore(), zerolog.Nop())
	manager := game.NewManager()
	escrow := NewEscrowService(wallet, txs, 0, zerolog.Nop())
	svc := NewGameService(manager, escrow, sessions, sender, zerolog.Nop())

	chat, err := sessions.Create(context.Background(), "alice", "bob")
	require.NoError(t, err)

	return &gameFixture{
		svc:      svc,
		sessions: sessions,
		sender:   sender,
		wallet:   wallet,
		txs:      txs,
		manager:  manager,
		chat:     chat,
	}
}

func rawChoice(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func rawCell(n int) json.RawMessage {
	b, _ := json.Marshal(n)
	return b
}

// startRPS walks the full request/accept flow.
func (f *gameFixture) startRPS(t *testing.T, stake int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.Request(ctx, f.chat.ID, "alice", "bob", game.KindRPS, stake))
	require.NoError(t, f.svc.Respond(ctx, f.chat.ID, "bob", game.KindRPS, true))
}

func TestRequestRelaysToPeer(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	require.NoError(t, f.svc.Request(ctx, f.chat.ID, "alice", "bob", game.KindRPS, 100))

	ev, ok := f.sender.lastOfType("bob", ws.EventGameRequest)
	require.True(t, ok)
	payload := ev.Payload.(GameRequestPayload)
	assert.Equal(t, "alice", payload.FromUserID)
	assert.Equal(t, int64(100), payload.Stake)

	// No balance moves before acceptance.
	assert.Equal(t, int64(500), f.wallet.balances["alice"])
	assert.Equal(t, int64(500), f.wallet.balances["bob"])
}

func TestRequestValidation(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Request(ctx, f.chat.ID, "alice", "bob", "chess", 0), ErrUnknownGameKind)
	assert.ErrorIs(t, f.svc.Request(ctx, f.chat.ID, "alice", "bob", game.KindRPS, -5), ErrInvalidStake)
	assert.ErrorIs(t, f.svc.Request(ctx, f.chat.ID, "alice", "carol", game.KindRPS, 0), ErrPeerNotInSession)
	assert.ErrorIs(t, f.svc.Request(ctx, "missing", "alice", "bob", game.KindRPS, 0), session.ErrSessionNotFound)
}

func TestDeclineLeavesEverythingUntouched(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	require.NoError(t, f.svc.Request(ctx, f.chat.ID, "alice", "bob", game.KindRPS, 100))
	require.NoError(t, f.svc.Respond(ctx, f.chat.ID, "bob", game.KindRPS, false))

	ev, ok := f.sender.lastOfType("alice", ws.EventGameRequestResponse)
	require.True(t, ok)
	assert.False(t, ev.Payload.(GameResponsePayload).Accepted)

	assert.Equal(t, int64(500), f.wallet.balances["alice"])
	_, running := f.manager.Get(f.chat.ID, game.KindRPS)
	assert.False(t, running)

	// The proposal is consumed either way.
	assert.ErrorIs(t, f.svc.Respond(ctx, f.chat.ID, "bob", game.KindRPS, true), ErrNoPendingRequest)
}

func TestRespondValidation(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Respond(ctx, f.chat.ID, "bob", game.KindRPS, true), ErrNoPendingRequest)

	require.NoError(t, f.svc.Request(ctx, f.chat.ID, "alice", "bob", game.KindRPS, 0))
	// Only the addressed peer may answer.
	assert.ErrorIs(t, f.svc.Respond(ctx, f.chat.ID, "alice", game.KindRPS, true), ErrNotRequestTarget)
}

func TestAcceptHoldsStakesAndStarts(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})

	f.startRPS(t, 200)

	assert.Equal(t, int64(300), f.wallet.balances["alice"])
	assert.Equal(t, int64(300), f.wallet.balances["bob"])

	_, running := f.manager.Get(f.chat.ID, game.KindRPS)
	assert.True(t, running)

	ev, ok := f.sender.lastOfType("alice", ws.EventGameRequestResponse)
	require.True(t, ok)
	assert.True(t, ev.Payload.(GameResponsePayload).Accepted)

	// Both players get the opening game_update.
	_, ok = f.sender.lastOfType("alice", ws.EventGameUpdate)
	assert.True(t, ok)
	_, ok = f.sender.lastOfType("bob", ws.EventGameUpdate)
	assert.True(t, ok)
}

func TestAcceptanceStateIgnoresInstantFirstMove(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	// Alice plays the moment she learns the game is on, like a live
	// client racing the acceptance fan-out.
	f.sender.onSend = func(userID string, ev ws.Outbound) {
		if userID == "alice" && ev.Type == ws.EventGameRequestResponse {
			require.NoError(t, f.svc.Move(ctx, f.chat.ID, "alice", game.KindRPS, rawChoice("rock")))
		}
	}

	require.NoError(t, f.svc.Request(ctx, f.chat.ID, "alice", "bob", game.KindRPS, 0))
	require.NoError(t, f.svc.Respond(ctx, f.chat.ID, "bob", game.KindRPS, true))

	// Both players still get a game_update showing the untouched
	// opening board, snapshotted before the move landed.
	for _, user := range []string{"alice", "bob"} {
		var opening bool
		for _, ev := range f.sender.sent(user) {
			if ev.Type != ws.EventGameUpdate {
				continue
			}
			if chosen, _ := ev.Payload.(GameUpdatePayload).State["chosen"].([]string); len(chosen) == 0 {
				opening = true
			}
		}
		assert.True(t, opening, "no opening game_update for %s", user)
	}
}

func TestAcceptInsufficientFundsAbortsProposal(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 50})
	ctx := context.Background()

	require.NoError(t, f.svc.Request(ctx, f.chat.ID, "alice", "bob", game.KindRPS, 200))
	err := f.svc.Respond(ctx, f.chat.ID, "bob", game.KindRPS, true)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Balances untouched, no game running, proposal gone.
	assert.Equal(t, int64(500), f.wallet.balances["alice"])
	assert.Equal(t, int64(50), f.wallet.balances["bob"])
	_, running := f.manager.Get(f.chat.ID, game.KindRPS)
	assert.False(t, running)
	assert.ErrorIs(t, f.svc.Respond(ctx, f.chat.ID, "bob", game.KindRPS, true), ErrNoPendingRequest)

	_, ok := f.sender.lastOfType("alice", ws.EventGameError)
	assert.True(t, ok)
}

func TestRPSDecisiveResultSettlesWager(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	f.startRPS(t, 100)

	require.NoError(t, f.svc.Move(ctx, f.chat.ID, "alice", game.KindRPS, rawChoice("rock")))
	require.NoError(t, f.svc.Move(ctx, f.chat.ID, "bob", game.KindRPS, rawChoice("scissors")))

	assert.Equal(t, int64(600), f.wallet.balances["alice"])
	assert.Equal(t, int64(400), f.wallet.balances["bob"])

	// Each side sees the result from their own perspective.
	aliceEv, ok := f.sender.lastOfType("alice", ws.EventGameResult)
	require.True(t, ok)
	assert.Equal(t, "win", aliceEv.Payload.(GameResultPayload).Outcome)
	assert.Equal(t, int64(200), aliceEv.Payload.(GameResultPayload).Payout)

	bobEv, ok := f.sender.lastOfType("bob", ws.EventGameResult)
	require.True(t, ok)
	assert.Equal(t, "lose", bobEv.Payload.(GameResultPayload).Outcome)

	// The finished game is gone; a new one may be proposed.
	_, running := f.manager.Get(f.chat.ID, game.KindRPS)
	assert.False(t, running)
}

func TestRPSDrawRefundsBoth(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	f.startRPS(t, 100)

	require.NoError(t, f.svc.Move(ctx, f.chat.ID, "alice", game.KindRPS, rawChoice("paper")))
	require.NoError(t, f.svc.Move(ctx, f.chat.ID, "bob", game.KindRPS, rawChoice("paper")))

	assert.Equal(t, int64(500), f.wallet.balances["alice"])
	assert.Equal(t, int64(500), f.wallet.balances["bob"])

	ev, ok := f.sender.lastOfType("alice", ws.EventGameResult)
	require.True(t, ok)
	assert.Equal(t, "draw", ev.Payload.(GameResultPayload).Outcome)
}

func TestTicTacToeFlow(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	require.NoError(t, f.svc.Request(ctx, f.chat.ID, "alice", "bob", game.KindTicTacToe, 0))
	require.NoError(t, f.svc.Respond(ctx, f.chat.ID, "bob", game.KindTicTacToe, true))

	active, ok := f.manager.Get(f.chat.ID, game.KindTicTacToe)
	require.True(t, ok)
	ttt := active.Engine.(*tictactoe.Game)

	first, second := "alice", "bob"
	if ttt.Symbol("bob") == tictactoe.SymbolX {
		first, second = "bob", "alice"
	}

	// Out-of-turn move is rejected and the peer sees nothing new.
	err := f.svc.Move(ctx, f.chat.ID, second, game.KindTicTacToe, rawCell(0))
	assert.ErrorIs(t, err, game.ErrNotYourTurn)

	// X takes the top row.
	for i, m := range []struct {
		player string
		cell   int
	}{
		{first, 0}, {second, 3}, {first, 1}, {second, 4}, {first, 2},
	} {
		require.NoError(t, f.svc.Move(ctx, f.chat.ID, m.player, game.KindTicTacToe, rawCell(m.cell)), "move %d", i)
	}

	ev, ok := f.sender.lastOfType(first, ws.EventGameResult)
	require.True(t, ok)
	assert.Equal(t, "win", ev.Payload.(GameResultPayload).Outcome)
}

func TestMoveOnCompletedSession(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	f.startRPS(t, 0)
	_, err := f.sessions.Complete(ctx, f.chat.ID, "alice")
	require.NoError(t, err)

	err = f.svc.Move(ctx, f.chat.ID, "bob", game.KindRPS, rawChoice("rock"))
	assert.ErrorIs(t, err, session.ErrSessionCompleted)
}

func TestDiscardSessionRefundsEscrow(t *testing.T) {
	f := newGameFixture(t, map[string]int64{"alice": 500, "bob": 500})
	ctx := context.Background()

	f.startRPS(t, 150)
	assert.Equal(t, int64(350), f.wallet.balances["alice"])

	f.svc.DiscardSession(ctx, f.chat.ID)

	assert.Equal(t, int64(500), f.wallet.balances["alice"])
	assert.Equal(t, int64(500), f.wallet.balances["bob"])
	_, running := f.manager.Get(f.chat.ID, game.KindRPS)
	assert.False(t, running)
	assert.Len(t, f.txs.ofType(model.TxTypeWagerRefund), 2)
}
