// Package tictactoe implements the turn-based 3x3 grid game. Symbol
// assignment is randomized per game; X always moves first.
package tictactoe

import (
	"encoding/json"
	"math/rand"

	"anon-chat-server/internal/game"
)

// Board cell markers.
const (
	SymbolX = "X"
	SymbolO = "O"
	empty   = ""
)

// winLines enumerates every three-in-a-row on the board.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8}, // rows
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8}, // columns
	{0, 4, 8}, {2, 4, 6}, // diagonals
}

// Game is one tic-tac-toe match.
type Game struct {
	players [2]string
	symbols map[string]string // user id -> symbol
	board   [9]string
	turn    string // symbol to move next
	moves   int
}

// New creates a match between the two players with random symbol
// assignment.
func New(player1ID, player2ID string) *Game {
	g := &Game{
		players: [2]string{player1ID, player2ID},
		symbols: make(map[string]string, 2),
		turn:    SymbolX,
	}
	if rand.Intn(2) == 0 {
		g.symbols[player1ID] = SymbolX
		g.symbols[player2ID] = SymbolO
	} else {
		g.symbols[player1ID] = SymbolO
		g.symbols[player2ID] = SymbolX
	}
	return g
}

// Kind implements game.Engine.
func (g *Game) Kind() game.Kind { return game.KindTicTacToe }

// Players implements game.Engine.
func (g *Game) Players() [2]string { return g.players }

// Symbol returns the marker assigned to the player.
func (g *Game) Symbol(userID string) string { return g.symbols[userID] }

// State implements game.Engine.
func (g *Game) State() map[string]any {
	return map[string]any{
		"game":    string(game.KindTicTacToe),
		"board":   g.board[:],
		"symbols": g.symbols,
		"turn":    g.turn,
	}
}

// Move places the player's symbol on a cell. A move is legal only on
// the submitter's turn and on an empty cell in range.
func (g *Game) Move(userID string, raw json.RawMessage) (*game.Update, error) {
	symbol, ok := g.symbols[userID]
	if !ok {
		return nil, game.ErrNotPlayer
	}

	var cell int
	if err := json.Unmarshal(raw, &cell); err != nil {
		return nil, game.ErrInvalidMove
	}
	if cell < 0 || cell > 8 {
		return nil, game.ErrInvalidMove
	}
	if symbol != g.turn {
		return nil, game.ErrNotYourTurn
	}
	if g.board[cell] != empty {
		return nil, game.ErrCellOccupied
	}

	g.board[cell] = symbol
	g.moves++
	if g.turn == SymbolX {
		g.turn = SymbolO
	} else {
		g.turn = SymbolX
	}

	update := &game.Update{State: g.State()}
	if result := g.terminal(symbol, userID); result != nil {
		update.Result = result
	}
	return update, nil
}

// terminal checks the board after userID placed symbol. Returns nil
// while the game continues.
func (g *Game) terminal(symbol, userID string) *game.Result {
	for _, line := range winLines {
		if g.board[line[0]] == symbol && g.board[line[1]] == symbol && g.board[line[2]] == symbol {
			return &game.Result{
				WinnerID: userID,
				LoserID:  g.other(userID),
				Details: map[string]any{
					"game":         string(game.KindTicTacToe),
					"board":        g.board[:],
					"winning_line": line[:],
					"symbol":       symbol,
				},
			}
		}
	}

	if g.moves == len(g.board) {
		return &game.Result{
			Draw: true,
			Details: map[string]any{
				"game":  string(game.KindTicTacToe),
				"board": g.board[:],
			},
		}
	}
	return nil
}

func (g *Game) other(userID string) string {
	if userID == g.players[0] {
		return g.players[1]
	}
	return g.players[0]
}
