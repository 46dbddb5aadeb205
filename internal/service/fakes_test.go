package service

import (
	"context"
	"sync"
	"time"

	"anon-chat-server/internal/model"
	"anon-chat-server/internal/repository"
	"anon-chat-server/internal/ws"
)

// fakeSender records outbound events per user.
type fakeSender struct {
	mu      sync.Mutex
	events  map[string][]ws.Outbound
	offline map[string]bool

	// onSend, when set, runs after an event is recorded, outside the
	// mutex, so a test can react to a delivery the way a live client
	// would.
	onSend func(userID string, ev ws.Outbound)
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		events:  make(map[string][]ws.Outbound),
		offline: make(map[string]bool),
	}
}

func (f *fakeSender) SendTo(userID string, ev ws.Outbound) bool {
	f.mu.Lock()
	if f.offline[userID] {
		f.mu.Unlock()
		return false
	}
	f.events[userID] = append(f.events[userID], ev)
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(userID, ev)
	}
	return true
}

func (f *fakeSender) IsOnline(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.offline[userID]
}

func (f *fakeSender) sent(userID string) []ws.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ws.Outbound(nil), f.events[userID]...)
}

func (f *fakeSender) lastOfType(userID, eventType string) (ws.Outbound, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events[userID]) - 1; i >= 0; i-- {
		if f.events[userID][i].Type == eventType {
			return f.events[userID][i], true
		}
	}
	return ws.Outbound{}, false
}

// fakeWallet is an in-memory Wallet with the same non-negative guard
// as the real one.
type fakeWallet struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newFakeWallet(balances map[string]int64) *fakeWallet {
	if balances == nil {
		balances = make(map[string]int64)
	}
	return &fakeWallet{balances: balances}
}

func (f *fakeWallet) GetBalance(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	return balance, nil
}

func (f *fakeWallet) AdjustBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	if balance+amount < 0 {
		return 0, repository.ErrInsufficientFunds
	}
	f.balances[userID] = balance + amount
	return f.balances[userID], nil
}

func (f *fakeWallet) total() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, b := range f.balances {
		sum += b
	}
	return sum
}

// txRecord is one recorded coin movement.
type txRecord struct {
	userID string
	amount int64
	txType string
}

type fakeTxs struct {
	mu      sync.Mutex
	records []txRecord
}

func (f *fakeTxs) Create(ctx context.Context, userID string, amount int64, txType, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, txRecord{userID: userID, amount: amount, txType: txType})
	return nil
}

func (f *fakeTxs) ofType(txType string) []txRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []txRecord
	for _, r := range f.records {
		if r.txType == txType {
			out = append(out, r)
		}
	}
	return out
}

// chatStore is an in-memory session.Store.
type chatStore struct {
	mu    sync.Mutex
	chats map[string]*model.Chat
}

func newChatStore() *chatStore {
	return &chatStore{chats: make(map[string]*model.Chat)}
}

func (m *chatStore) Create(ctx context.Context, chatID, user1ID, user2ID string) (*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat := &model.Chat{ID: chatID, User1ID: user1ID, User2ID: user2ID, CreatedAt: time.Now()}
	m.chats[chatID] = chat
	c := *chat
	return &c, nil
}

func (m *chatStore) GetByID(ctx context.Context, chatID string) (*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return nil, repository.ErrChatNotFound
	}
	c := *chat
	return &c, nil
}

func (m *chatStore) FindOpenBetween(ctx context.Context, user1ID, user2ID string) (*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chat := range m.chats {
		if chat.IsCompleted {
			continue
		}
		if (chat.User1ID == user1ID && chat.User2ID == user2ID) ||
			(chat.User1ID == user2ID && chat.User2ID == user1ID) {
			c := *chat
			return &c, nil
		}
	}
	return nil, repository.ErrChatNotFound
}

func (m *chatStore) ListOpenByUser(ctx context.Context, userID string) ([]*model.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Chat
	for _, chat := range m.chats {
		if !chat.IsCompleted && chat.HasParticipant(userID) {
			c := *chat
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *chatStore) Complete(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return repository.ErrChatNotFound
	}
	if chat.IsCompleted {
		return repository.ErrChatCompleted
	}
	now := time.Now()
	chat.IsCompleted = true
	chat.CompletedAt = &now
	return nil
}

// fakeMessages is an in-memory MessageStore.
type fakeMessages struct {
	mu       sync.Mutex
	messages map[string]*model.Message
	seq      int
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{messages: make(map[string]*model.Message)}
}

func (f *fakeMessages) Create(ctx context.Context, msgID, chatID, userID, text string, replyTo *string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	msg := &model.Message{
		ID:        msgID,
		ChatID:    chatID,
		UserID:    userID,
		Text:      text,
		ReplyTo:   replyTo,
		CreatedAt: time.Now().Add(time.Duration(f.seq) * time.Millisecond),
	}
	f.messages[msgID] = msg
	m := *msg
	return &m, nil
}

func (f *fakeMessages) GetByID(ctx context.Context, msgID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[msgID]
	if !ok {
		return nil, repository.ErrMessageNotFound
	}
	m := *msg
	return &m, nil
}

// fakeStatuses is an in-memory StatusStore.
type fakeStatuses struct {
	mu       sync.Mutex
	statuses map[string]string
}

func newFakeStatuses() *fakeStatuses {
	return &fakeStatuses{statuses: make(map[string]string)}
}

func (f *fakeStatuses) Upsert(ctx context.Context, userID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[userID] = status
	return nil
}

func (f *fakeStatuses) Get(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[userID]
	if !ok {
		return model.StatusOffline, nil
	}
	return status, nil
}
