// Package model defines the data models shared across the chat server.
package model

import "time"

// User represents a registered user record as seen by this core.
// Profile CRUD lives in a separate service; the chat core only reads
// existence, interests and the coin balance, and adjusts the balance
// through the wallet primitives.
type User struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Age       int       `db:"age"`
	Interests []string  `db:"interests"`
	Coins     int64     `db:"coins"`
	Rating    float64   `db:"rating_average"`
	CreatedAt time.Time `db:"created_at"`
}

// Chat represents a pairing between exactly two users. A chat is open
// until one participant completes it; completed chats never reopen.
type Chat struct {
	ID          string     `db:"id"`
	User1ID     string     `db:"user1_id"`
	User2ID     string     `db:"user2_id"`
	IsCompleted bool       `db:"is_completed"`
	CreatedAt   time.Time  `db:"created_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// Partner returns the other participant of the chat, or "" when the
// given user is not a participant.
func (c *Chat) Partner(userID string) string {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	}
	return ""
}

// HasParticipant reports whether userID takes part in the chat.
func (c *Chat) HasParticipant(userID string) bool {
	return userID == c.User1ID || userID == c.User2ID
}

// Message represents a persisted chat message.
type Message struct {
	ID        string    `db:"id"`
	ChatID    string    `db:"chat_id"`
	UserID    string    `db:"user_id"`
	Text      string    `db:"text"`
	ReplyTo   *string   `db:"reply_to"`
	CreatedAt time.Time `db:"created_at"`
}

// Transaction represents a coin balance change record.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      string    `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Presence states tracked per user.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
	StatusBusy    = "busy"
)

// ValidStatus reports whether s is one of the known presence states.
func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline, StatusBusy:
		return true
	}
	return false
}

// Transaction types for categorizing balance changes.
const (
	TxTypeWagerStake  = "wager_stake"  // Stake debited into escrow
	TxTypeWagerWin    = "wager_win"    // Winner paid out double the stake
	TxTypeWagerRefund = "wager_refund" // Stake returned on draw or abort
)
