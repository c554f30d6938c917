// Package scheduler manages per-discussion turn timers: at most one
// outstanding timer per discussion, cancellable and rearmable, with stale
// fires (those scheduled against a turn number that has since advanced)
// turned into no-ops by the caller.
package scheduler

import (
	"sync"
	"time"

	"github.com/kandev/agora/internal/common/logger"
	"go.uber.org/zap"
)

// FireFunc is invoked when a discussion's turn timer expires. turnNumber is
// the turn the timer was armed against; callers must re-check it against
// the discussion's current turn number before acting, since a manual
// AdvanceTurn may have raced the timer.
type FireFunc func(discussionID string, turnNumber int)

type entry struct {
	timer      *time.Timer
	turnNumber int
}

// Scheduler owns one timer per active discussion.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*entry
	logger  *logger.Logger
	running bool
}

// New creates an empty Scheduler.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*entry),
		logger: log.WithFields(zap.String("component", "scheduler")),
	}
}

// Start marks the scheduler active. It does not spawn a background loop —
// each discussion gets its own time.Timer, armed and cancelled by Arm and
// Cancel.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// Stop cancels every outstanding timer and marks the scheduler inactive.
// Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, id)
	}
	s.running = false
	s.logger.Info("scheduler stopped")
}

// Arm (re)schedules discussionID's turn timer for delay from now, armed
// against turnNumber. Any previously outstanding timer for the same
// discussion is cancelled first, enforcing at most one active timer per
// discussion.
func (s *Scheduler) Arm(discussionID string, turnNumber int, delay time.Duration, fire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[discussionID]; ok {
		existing.timer.Stop()
		delete(s.timers, discussionID)
	}

	t := time.AfterFunc(delay, func() {
		s.fire(discussionID, turnNumber, fire)
	})
	s.timers[discussionID] = &entry{timer: t, turnNumber: turnNumber}
}

func (s *Scheduler) fire(discussionID string, turnNumber int, fire FireFunc) {
	s.mu.Lock()
	e, ok := s.timers[discussionID]
	if !ok || e.turnNumber != turnNumber {
		// Cancelled, or superseded by a later Arm call — stale, no-op.
		s.mu.Unlock()
		return
	}
	delete(s.timers, discussionID)
	s.mu.Unlock()

	fire(discussionID, turnNumber)
}

// Cancel stops discussionID's outstanding timer, if any. Returns true if a
// timer was actually cancelled.
func (s *Scheduler) Cancel(discussionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[discussionID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.timers, discussionID)
	return true
}

// Armed reports whether discussionID currently has an outstanding timer.
func (s *Scheduler) Armed(discussionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[discussionID]
	return ok
}
