// Package game defines the two-player game abstraction shared by all
// in-chat mini-games, and the manager that tracks active games per
// session.
package game

import (
	"encoding/json"
	"errors"
)

// Kind identifies a game variant.
type Kind string

// Supported game kinds.
const (
	KindRPS       Kind = "rps"
	KindTicTacToe Kind = "tictactoe"
)

// ValidKind reports whether k names a known game variant.
func ValidKind(k Kind) bool {
	return k == KindRPS || k == KindTicTacToe
}

// Game errors surfaced to clients as game_error events.
var (
	ErrNotPlayer      = errors.New("user is not part of this game")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrCellOccupied   = errors.New("cell is already occupied")
	ErrInvalidMove    = errors.New("invalid move")
	ErrAlreadyMoved   = errors.New("move already submitted")
	ErrGameInProgress = errors.New("a game of this kind is already in progress")
	ErrNoGame         = errors.New("no active game")
)

// Result is the terminal outcome of a game.
type Result struct {
	Draw     bool
	WinnerID string
	LoserID  string
	// Details carries variant-specific result data (choices, winning
	// line) included verbatim in the game_result event.
	Details map[string]any
}

// Update is returned by every legal move: the public state for
// game_update fan-out, plus the result once the game is terminal.
type Update struct {
	State  map[string]any
	Result *Result
}

// Engine is a single two-player game state machine. Implementations
// are not safe for concurrent use; the Manager serializes moves per
// game.
type Engine interface {
	// Kind returns the variant this engine implements.
	Kind() Kind
	// Players returns both participant ids.
	Players() [2]string
	// Move validates and applies one move from userID. raw is the
	// variant-specific move payload from the wire.
	Move(userID string, raw json.RawMessage) (*Update, error)
	// State returns the current public state, as sent to a player
	// when the game starts.
	State() map[string]any
}
