package matchmaker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"anon-chat-server/internal/config"
	"anon-chat-server/internal/model"
)

// UserSource looks up user records for interest comparison.
type UserSource interface {
	GetByID(ctx context.Context, userID string) (*model.User, error)
}

// ChatChecker reports whether two users already share an open chat.
type ChatChecker interface {
	HasOpenBetween(ctx context.Context, user1ID, user2ID string) (bool, error)
}

// Service owns the search queue and the periodic pairing scan. Scans
// run on a timer and after every enqueue, and never overlap: a scan
// that finds the lock held is skipped, the next tick picks up the work.
type Service struct {
	repo  Repo
	users UserSource
	chats ChatChecker
	cfg   config.MatchmakingConfig
	log   zerolog.Logger

	scanMu  sync.Mutex
	trigger chan struct{}

	// OnMatch opens the session for a pairing. It runs before the two
	// entries leave the queue; an error abandons the pairing and keeps
	// both users queued for the next scan. Must be set before Run.
	OnMatch func(ctx context.Context, user1, user2 *model.User) error
}

// NewService creates a matchmaking service over the given queue.
func NewService(repo Repo, users UserSource, chats ChatChecker, cfg config.MatchmakingConfig, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		chats:   chats,
		cfg:     cfg,
		log:     log.With().Str("component", "matchmaker").Logger(),
		trigger: make(chan struct{}, 1),
	}
}

// Run drives the periodic scan until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Scan(ctx)
		case <-s.trigger:
			s.Scan(ctx)
		}
	}
}

// Enqueue adds the user to the search queue and triggers a scan.
// Enqueueing an already queued user keeps their original position.
func (s *Service) Enqueue(ctx context.Context, userID string) error {
	if err := s.repo.Enqueue(ctx, userID, time.Now()); err != nil {
		return err
	}

	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue removes the user from the search queue. A dequeue racing a
// scan is resolved by the scan's membership recheck: whichever commits
// first wins, the loser is a no-op.
func (s *Service) Dequeue(ctx context.Context, userID string) error {
	return s.repo.Remove(ctx, userID)
}

// Scan runs one pairing pass. At most one pairing is committed per
// scan; concurrent calls are skipped rather than serialized.
func (s *Service) Scan(ctx context.Context) {
	if !s.scanMu.TryLock() {
		return
	}
	defer s.scanMu.Unlock()

	entries, err := s.repo.Snapshot(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("queue snapshot failed")
		return
	}
	if len(entries) < 2 {
		return
	}

	cache := make(map[string]*model.User, len(entries))

	// First pass: greedy first-fit by interest overlap, FIFO order.
	for i := 0; i < len(entries); i++ {
		u1 := s.lookup(ctx, cache, entries[i].UserID)
		if u1 == nil {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			u2 := s.lookup(ctx, cache, entries[j].UserID)
			if u2 == nil {
				continue
			}

			need := s.cfg.MinSharedInterests
			if s.cfg.IsBotID(u1.ID) || s.cfg.IsBotID(u2.ID) {
				need = s.cfg.BotMinSharedInterests
			}
			if sharedInterests(u1, u2) < need {
				continue
			}

			if s.commit(ctx, u1, u2) {
				return
			}
		}
	}

	// Fallback: once every entry has waited past the threshold, pair
	// the two longest-waiting users regardless of interests.
	now := time.Now()
	for _, e := range entries {
		if now.Sub(e.EnqueuedAt) < s.cfg.FallbackWait {
			return
		}
	}
	u1 := s.lookup(ctx, cache, entries[0].UserID)
	u2 := s.lookup(ctx, cache, entries[1].UserID)
	if u1 != nil && u2 != nil {
		s.commit(ctx, u1, u2)
	}
}

// commit finalizes one pairing. It rechecks both users are still
// queued (an explicit dequeue may have raced the scan) and that no
// open chat already exists between them. Returns true when the pairing
// was committed and the scan should stop.
func (s *Service) commit(ctx context.Context, u1, u2 *model.User) bool {
	for _, id := range []string{u1.ID, u2.ID} {
		ok, err := s.repo.Contains(ctx, id)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", id).Msg("queue recheck failed")
			return false
		}
		if !ok {
			return false
		}
	}

	open, err := s.chats.HasOpenBetween(ctx, u1.ID, u2.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("open chat check failed")
		return false
	}
	if open {
		// Already paired: drop both and let the scan move on.
		_ = s.repo.Remove(ctx, u1.ID)
		_ = s.repo.Remove(ctx, u2.ID)
		return false
	}

	// Open the session first: if that fails both users stay queued. A
	// removal failing afterwards is healed by the open-chat recheck on
	// the next scan.
	if s.OnMatch != nil {
		if err := s.OnMatch(ctx, u1, u2); err != nil {
			s.log.Error().Err(err).
				Str("user1_id", u1.ID).
				Str("user2_id", u2.ID).
				Msg("match commit failed")
			return false
		}
	}

	_ = s.repo.Remove(ctx, u1.ID)
	_ = s.repo.Remove(ctx, u2.ID)

	s.log.Info().
		Str("user1_id", u1.ID).
		Str("user2_id", u2.ID).
		Msg("pairing committed")
	return true
}

func (s *Service) lookup(ctx context.Context, cache map[string]*model.User, userID string) *model.User {
	if u, ok := cache[userID]; ok {
		return u
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("queued user lookup failed")
		cache[userID] = nil
		return nil
	}
	cache[userID] = u
	return u
}

func sharedInterests(u1, u2 *model.User) int {
	set := make(map[string]struct{}, len(u1.Interests))
	for _, in := range u1.Interests {
		set[in] = struct{}{}
	}
	n := 0
	for _, in := range u2.Interests {
		if _, ok := set[in]; ok {
			n++
		}
	}
	return n
}
