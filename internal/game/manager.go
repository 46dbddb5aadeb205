package game

import (
	"encoding/json"
	"fmt"
	"sync"

	"anon-chat-server/internal/pkg/lock"
)

// Active is a running game with its escrowed stake.
type Active struct {
	Engine Engine
	Stake  int64
}

// Manager tracks at most one active game per (session id, kind) pair.
// The registry map has its own mutex; moves additionally hold a
// per-game lock so two concurrent moves on the same board cannot race
// each other while moves on other boards proceed.
type Manager struct {
	mu    sync.Mutex
	games map[string]*Active
	locks *lock.KeyLock
}

// NewManager creates an empty game manager.
func NewManager() *Manager {
	return &Manager{
		games: make(map[string]*Active),
		locks: lock.NewKeyLock(),
	}
}

func gameKey(sessionID string, kind Kind) string {
	return fmt.Sprintf("%s/%s", sessionID, kind)
}

// Start registers a new game for the session. Starting a second game
// of the same kind in the same session while one is active returns
// ErrGameInProgress; the first game must finish or be discarded first.
func (m *Manager) Start(sessionID string, eng Engine, stake int64) error {
	key := gameKey(sessionID, eng.Kind())

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[key]; ok {
		return ErrGameInProgress
	}
	m.games[key] = &Active{Engine: eng, Stake: stake}
	return nil
}

// Get returns the active game for the pair, if any.
func (m *Manager) Get(sessionID string, kind Kind) (*Active, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.games[gameKey(sessionID, kind)]
	return a, ok
}

// Move applies one move under the game's lock. A terminal move removes
// the game, so the finished state cannot be replayed; the returned
// stake lets the caller settle the escrow.
func (m *Manager) Move(sessionID string, kind Kind, userID string, raw json.RawMessage) (*Update, int64, error) {
	key := gameKey(sessionID, kind)

	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	m.mu.Lock()
	active, ok := m.games[key]
	m.mu.Unlock()
	if !ok {
		return nil, 0, ErrNoGame
	}

	update, err := active.Engine.Move(userID, raw)
	if err != nil {
		return nil, 0, err
	}

	if update.Result != nil {
		m.mu.Lock()
		delete(m.games, key)
		m.mu.Unlock()
	}
	return update, active.Stake, nil
}

// Discard removes the active game for the pair, if any, returning it
// so the caller can refund the escrow. Used when a session ends with a
// game still in flight.
func (m *Manager) Discard(sessionID string, kind Kind) (*Active, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := gameKey(sessionID, kind)
	a, ok := m.games[key]
	if ok {
		delete(m.games, key)
	}
	return a, ok
}

// DiscardSession removes every active game of the session, returning
// the discarded games.
func (m *Manager) DiscardSession(sessionID string) []*Active {
	var discarded []*Active
	for _, kind := range []Kind{KindRPS, KindTicTacToe} {
		if a, ok := m.Discard(sessionID, kind); ok {
			discarded = append(discarded, a)
		}
	}
	return discarded
}
