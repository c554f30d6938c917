// Package session implements the Session Store: the cross-process source of
// truth for connected-socket bookkeeping used by the Session Fan-Out Layer
// to enforce per-user connection caps and TTL-expire abandoned connections.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/models"
)

// Store persists Session records and enforces per-user connection caps.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create registers a new Session. It fails with ErrConnectionLimitExceeded
	// if userID already holds maxPerUser live sessions.
	Create(ctx context.Context, s *models.Session, maxPerUser int) error

	// Touch refreshes a session's LastActivity and extends its TTL.
	Touch(ctx context.Context, connectionID string) error

	// MarkDead flags a session as no longer alive without removing it,
	// so a cleanup sweep can reconcile against the in-memory socket set.
	MarkDead(ctx context.Context, connectionID string) error

	// Remove deletes a session outright.
	Remove(ctx context.Context, connectionID string) error

	// Get returns the session for connectionID, or ErrNotFound.
	Get(ctx context.Context, connectionID string) (*models.Session, error)

	// CountForUser returns the number of live sessions held by userID.
	CountForUser(ctx context.Context, userID string) (int, error)

	// ListForDiscussion returns every live session subscribed to discussionID.
	ListForDiscussion(ctx context.Context, discussionID string) ([]*models.Session, error)

	// Close stops any background reaper and releases resources.
	Close() error
}

// ErrNotFound is returned when a connectionId is unknown to the store.
var ErrNotFound = storeError("session: not found")

// ErrConnectionLimitExceeded is returned by Create when the user already
// holds the maximum allowed concurrent connections.
var ErrConnectionLimitExceeded = storeError("session: connection limit exceeded")

type storeError string

func (e storeError) Error() string { return string(e) }

// MemoryStore is an in-process Store backed by a map, with a background
// reaper evicting sessions whose TTL has lapsed. It is the default Store
// for single-instance deployments; a distributed deployment would back
// Store with a shared cache instead.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	ttl      time.Duration
	logger   *logger.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMemoryStore creates a MemoryStore and starts its reaper, sweeping every
// reapInterval for sessions whose LastActivity is older than ttl.
func NewMemoryStore(ttl, reapInterval time.Duration, log *logger.Logger) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*models.Session),
		ttl:      ttl,
		logger:   log.WithFields(zap.String("component", "session_store")),
		stopCh:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.reapLoop(reapInterval)
	return s
}

func (s *MemoryStore) reapLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reapExpired()
		}
	}
}

func (s *MemoryStore) reapExpired() {
	cutoff := time.Now().UTC().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			s.logger.Debug("reaped expired session",
				zap.String("connection_id", id),
				zap.String("discussion_id", sess.DiscussionID))
		}
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess *models.Session, maxPerUser int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxPerUser > 0 {
		count := 0
		for _, existing := range s.sessions {
			if existing.UserID == sess.UserID && existing.IsAlive {
				count++
			}
		}
		if count >= maxPerUser {
			return ErrConnectionLimitExceeded
		}
	}

	s.sessions[sess.ConnectionID] = sess
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[connectionID]
	if !ok {
		return ErrNotFound
	}
	sess.LastActivity = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkDead(ctx context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[connectionID]
	if !ok {
		return ErrNotFound
	}
	sess.IsAlive = false
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, connectionID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, connectionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[connectionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) CountForUser(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsAlive {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListForDiscussion(ctx context.Context, discussionID string) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.DiscussionID == discussionID && sess.IsAlive {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Close stops the reaper goroutine. Safe to call once.
func (s *MemoryStore) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

var _ Store = (*MemoryStore)(nil)
