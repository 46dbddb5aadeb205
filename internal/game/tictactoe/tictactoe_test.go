package tictactoe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"anon-chat-server/internal/game"
)

func cell(n int) json.RawMessage {
	b, _ := json.Marshal(n)
	return b
}

// byTurn returns the players in move order: X first.
func byTurn(g *Game) (first, second string) {
	p := g.Players()
	if g.Symbol(p[0]) == SymbolX {
		return p[0], p[1]
	}
	return p[1], p[0]
}

func TestSymbolAssignment(t *testing.T) {
	g := New("p1", "p2")

	s1, s2 := g.Symbol("p1"), g.Symbol("p2")
	assert.NotEqual(t, s1, s2)
	assert.Contains(t, []string{SymbolX, SymbolO}, s1)
	assert.Contains(t, []string{SymbolX, SymbolO}, s2)
}

func TestTurnOrder(t *testing.T) {
	g := New("p1", "p2")
	first, second := byTurn(g)

	_, err := g.Move(second, cell(0))
	assert.ErrorIs(t, err, game.ErrNotYourTurn)

	_, err = g.Move(first, cell(0))
	require.NoError(t, err)

	_, err = g.Move(first, cell(1))
	assert.ErrorIs(t, err, game.ErrNotYourTurn)

	_, err = g.Move(second, cell(1))
	require.NoError(t, err)
}

func TestMoveValidation(t *testing.T) {
	g := New("p1", "p2")
	first, second := byTurn(g)

	t.Run("rejects outsider", func(t *testing.T) {
		_, err := g.Move("intruder", cell(0))
		assert.ErrorIs(t, err, game.ErrNotPlayer)
	})

	t.Run("rejects out of range cell", func(t *testing.T) {
		_, err := g.Move(first, cell(9))
		assert.ErrorIs(t, err, game.ErrInvalidMove)
		_, err = g.Move(first, cell(-1))
		assert.ErrorIs(t, err, game.ErrInvalidMove)
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		_, err := g.Move(first, json.RawMessage(`"four"`))
		assert.ErrorIs(t, err, game.ErrInvalidMove)
	})

	t.Run("rejects occupied cell", func(t *testing.T) {
		_, err := g.Move(first, cell(4))
		require.NoError(t, err)
		_, err = g.Move(second, cell(4))
		assert.ErrorIs(t, err, game.ErrCellOccupied)
	})
}

func TestWinByRow(t *testing.T) {
	g := New("p1", "p2")
	first, second := byTurn(g)

	// first: 0 1 2 (top row), second: 3 4
	moves := []struct {
		player string
		cell   int
	}{
		{first, 0}, {second, 3}, {first, 1}, {second, 4},
	}
	for _, m := range moves {
		update, err := g.Move(m.player, cell(m.cell))
		require.NoError(t, err)
		assert.Nil(t, update.Result)
	}

	update, err := g.Move(first, cell(2))
	require.NoError(t, err)
	require.NotNil(t, update.Result)
	assert.False(t, update.Result.Draw)
	assert.Equal(t, first, update.Result.WinnerID)
	assert.Equal(t, second, update.Result.LoserID)
	assert.Equal(t, []int{0, 1, 2}, update.Result.Details["winning_line"])
}

func TestWinByDiagonal(t *testing.T) {
	g := New("p1", "p2")
	first, second := byTurn(g)

	moves := []struct {
		player string
		cell   int
	}{
		{first, 0}, {second, 1}, {first, 4}, {second, 2},
	}
	for _, m := range moves {
		_, err := g.Move(m.player, cell(m.cell))
		require.NoError(t, err)
	}

	update, err := g.Move(first, cell(8))
	require.NoError(t, err)
	require.NotNil(t, update.Result)
	assert.Equal(t, first, update.Result.WinnerID)
}

func TestDrawOnFullBoard(t *testing.T) {
	g := New("p1", "p2")
	first, second := byTurn(g)

	// X: 0 1 5 6 8, O: 2 3 4 7 -> no line for either
	sequence := []struct {
		player string
		cell   int
	}{
		{first, 0}, {second, 2}, {first, 1}, {second, 3},
		{first, 5}, {second, 4}, {first, 6}, {second, 7},
	}
	for _, m := range sequence {
		update, err := g.Move(m.player, cell(m.cell))
		require.NoError(t, err)
		assert.Nil(t, update.Result)
	}

	update, err := g.Move(first, cell(8))
	require.NoError(t, err)
	require.NotNil(t, update.Result)
	assert.True(t, update.Result.Draw)
	assert.Empty(t, update.Result.WinnerID)
}

// TestGameTerminationProperty plays random legal moves to the end and
// checks every game terminates with either one winner or a full-board
// draw, never both.
func TestGameTerminationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := New("p1", "p2")
		first, second := byTurn(g)
		players := [2]string{first, second}

		free := []int{0, 1, 2, 3, 4, 5, 6, 7, 8}
		var result *game.Result
		for turn := 0; len(free) > 0; turn++ {
			idx := rapid.IntRange(0, len(free)-1).Draw(t, "cell")
			update, err := g.Move(players[turn%2], cell(free[idx]))
			if err != nil {
				t.Fatalf("legal move rejected: %v", err)
			}
			free = append(free[:idx], free[idx+1:]...)

			if update.Result != nil {
				result = update.Result
				break
			}
		}

		if result == nil {
			t.Fatalf("game must terminate by the time the board is full")
		}
		if result.Draw && result.WinnerID != "" {
			t.Fatalf("a draw cannot have a winner")
		}
		if !result.Draw && result.WinnerID == "" {
			t.Fatalf("a decisive result needs a winner")
		}
	})
}
