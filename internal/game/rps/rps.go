// Package rps implements rock-paper-scissors: both players submit one
// choice each in any order, and the game resolves once both are in.
package rps

import (
	"encoding/json"
	"strings"

	"anon-chat-server/internal/game"
)

// Choices.
const (
	Rock     = "rock"
	Paper    = "paper"
	Scissors = "scissors"
)

// beats maps each choice to the one it defeats.
var beats = map[string]string{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// Game is one rock-paper-scissors round between two players.
type Game struct {
	players [2]string
	choices map[string]string
}

// New creates a round between the two players.
func New(player1ID, player2ID string) *Game {
	return &Game{
		players: [2]string{player1ID, player2ID},
		choices: make(map[string]string, 2),
	}
}

// Kind implements game.Engine.
func (g *Game) Kind() game.Kind { return game.KindRPS }

// Players implements game.Engine.
func (g *Game) Players() [2]string { return g.players }

// State implements game.Engine. Choices are never exposed before the
// round resolves; only who has already chosen is public.
func (g *Game) State() map[string]any {
	chosen := make([]string, 0, len(g.choices))
	for _, id := range g.players {
		if _, ok := g.choices[id]; ok {
			chosen = append(chosen, id)
		}
	}
	return map[string]any{
		"game":   string(game.KindRPS),
		"chosen": chosen,
	}
}

// Move records a player's choice. A player cannot change a submitted
// choice. The returned update carries the result once both choices are
// present.
func (g *Game) Move(userID string, raw json.RawMessage) (*game.Update, error) {
	if userID != g.players[0] && userID != g.players[1] {
		return nil, game.ErrNotPlayer
	}

	var choice string
	if err := json.Unmarshal(raw, &choice); err != nil {
		return nil, game.ErrInvalidMove
	}
	choice = strings.ToLower(strings.TrimSpace(choice))
	if _, ok := beats[choice]; !ok {
		return nil, game.ErrInvalidMove
	}

	if _, ok := g.choices[userID]; ok {
		return nil, game.ErrAlreadyMoved
	}
	g.choices[userID] = choice

	update := &game.Update{State: g.State()}
	if len(g.choices) == 2 {
		update.Result = g.resolve()
	}
	return update, nil
}

func (g *Game) resolve() *game.Result {
	c1 := g.choices[g.players[0]]
	c2 := g.choices[g.players[1]]

	result := &game.Result{
		Details: map[string]any{
			"game": string(game.KindRPS),
			"choices": map[string]string{
				g.players[0]: c1,
				g.players[1]: c2,
			},
		},
	}

	switch {
	case c1 == c2:
		result.Draw = true
	case beats[c1] == c2:
		result.WinnerID = g.players[0]
		result.LoserID = g.players[1]
	default:
		result.WinnerID = g.players[1]
		result.LoserID = g.players[0]
	}
	return result
}
