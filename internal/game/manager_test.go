package game

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine finishes after a configurable number of moves.
type stubEngine struct {
	kind      Kind
	players   [2]string
	movesLeft int
	applied   int
}

func (s *stubEngine) Kind() Kind            { return s.kind }
func (s *stubEngine) Players() [2]string    { return s.players }
func (s *stubEngine) State() map[string]any { return map[string]any{"applied": s.applied} }

func (s *stubEngine) Move(userID string, raw json.RawMessage) (*Update, error) {
	if userID != s.players[0] && userID != s.players[1] {
		return nil, ErrNotPlayer
	}
	s.applied++
	s.movesLeft--
	update := &Update{State: s.State()}
	if s.movesLeft <= 0 {
		update.Result = &Result{WinnerID: userID, LoserID: s.players[1]}
	}
	return update, nil
}

func newStub(kind Kind, movesLeft int) *stubEngine {
	return &stubEngine{kind: kind, players: [2]string{"p1", "p2"}, movesLeft: movesLeft}
}

func TestStartRejectsDuplicateKind(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Start("s1", newStub(KindRPS, 2), 100))
	assert.ErrorIs(t, m.Start("s1", newStub(KindRPS, 2), 100), ErrGameInProgress)

	// A different kind in the same session and the same kind in a
	// different session are both fine.
	require.NoError(t, m.Start("s1", newStub(KindTicTacToe, 2), 0))
	require.NoError(t, m.Start("s2", newStub(KindRPS, 2), 0))
}

func TestMoveOnMissingGame(t *testing.T) {
	m := NewManager()
	_, _, err := m.Move("s1", KindRPS, "p1", nil)
	assert.ErrorIs(t, err, ErrNoGame)
}

func TestTerminalMoveRemovesGame(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start("s1", newStub(KindRPS, 1), 250))

	update, stake, err := m.Move("s1", KindRPS, "p1", nil)
	require.NoError(t, err)
	require.NotNil(t, update.Result)
	assert.Equal(t, int64(250), stake)

	// Finished game is gone: no replay, and a fresh one may start.
	_, _, err = m.Move("s1", KindRPS, "p1", nil)
	assert.ErrorIs(t, err, ErrNoGame)
	require.NoError(t, m.Start("s1", newStub(KindRPS, 1), 0))
}

func TestDiscardSession(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start("s1", newStub(KindRPS, 5), 100))
	require.NoError(t, m.Start("s1", newStub(KindTicTacToe, 5), 200))
	require.NoError(t, m.Start("s2", newStub(KindRPS, 5), 300))

	discarded := m.DiscardSession("s1")
	assert.Len(t, discarded, 2)

	_, ok := m.Get("s1", KindRPS)
	assert.False(t, ok)
	_, ok = m.Get("s1", KindTicTacToe)
	assert.False(t, ok)

	// Other sessions are untouched.
	_, ok = m.Get("s2", KindRPS)
	assert.True(t, ok)
}

func TestConcurrentMovesAreSerialized(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Start("s1", newStub(KindRPS, 1000), 0))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = m.Move("s1", KindRPS, "p1", nil)
		}()
	}
	wg.Wait()

	active, ok := m.Get("s1", KindRPS)
	require.True(t, ok)
	assert.Equal(t, 100, active.Engine.(*stubEngine).applied)
}
