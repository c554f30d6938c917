// Package orchestrator implements the Discussion Orchestrator: it owns the
// authoritative runtime state of each active Discussion, serializes
// mutations per Discussion, coordinates turn timers, and emits domain
// events to the Event Bus and to in-process listeners (the Session Fan-Out
// Layer).
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/agora/internal/common/apperr"
	"github.com/kandev/agora/internal/common/logger"
	"github.com/kandev/agora/internal/discussion/models"
	"github.com/kandev/agora/internal/discussion/repository"
	"github.com/kandev/agora/internal/discussion/scheduler"
	"github.com/kandev/agora/internal/discussion/strategy"
	"github.com/kandev/agora/internal/events/bus"
)

// EventsChannel is the Event Bus channel every DiscussionEvent is published
// to, regardless of type.
const EventsChannel = "discussion.events"

// EventListener receives a fan-out copy of every event emitted for the
// discussion it was registered against. Used by the Session Fan-Out Layer
// to relay events to subscribed sockets without round-tripping through the
// Event Bus.
type EventListener func(event *models.DiscussionEvent)

// Orchestrator is the Discussion Orchestrator.
type Orchestrator struct {
	repo      repository.Repository
	bus       bus.EventBus
	scheduler *scheduler.Scheduler
	logger    *logger.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	cacheMu sync.RWMutex
	cache   map[string]*models.Discussion

	listenersMu  sync.RWMutex
	listeners    map[string]map[uint64]EventListener
	nextListener uint64
}

// New builds an Orchestrator over repo, bus, and sched. Callers own sched's
// lifecycle (Start/Stop).
func New(repo repository.Repository, eventBus bus.EventBus, sched *scheduler.Scheduler, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		bus:       eventBus,
		scheduler: sched,
		logger:    log.WithFields(zap.String("component", "orchestrator")),
		locks:     make(map[string]*sync.Mutex),
		cache:     make(map[string]*models.Discussion),
		listeners: make(map[string]map[uint64]EventListener),
	}
}

// lockFor returns the per-discussion mutex, creating it on first use. The
// guard mutex is only ever held long enough to read/insert a map entry,
// never across I/O.
func (o *Orchestrator) lockFor(discussionID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[discussionID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[discussionID] = l
	}
	return l
}

func (o *Orchestrator) cacheGet(discussionID string) (*models.Discussion, bool) {
	o.cacheMu.RLock()
	defer o.cacheMu.RUnlock()
	d, ok := o.cache[discussionID]
	return d, ok
}

func (o *Orchestrator) cachePut(d *models.Discussion) {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	o.cache[d.ID] = d
}

func (o *Orchestrator) cacheDrop(discussionID string) {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	delete(o.cache, discussionID)
}

// loadDiscussion returns the active-discussion cache entry if present,
// otherwise loads from the Repository and populates the cache.
func (o *Orchestrator) loadDiscussion(ctx context.Context, discussionID string) (*models.Discussion, error) {
	if d, ok := o.cacheGet(discussionID); ok {
		return d, nil
	}
	d, err := o.repo.GetDiscussion(ctx, discussionID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("discussion not found")
		}
		return nil, apperr.TransientDependency("failed to load discussion", err)
	}
	o.cachePut(d)
	return d, nil
}

// AddListener registers an EventListener for a discussion's events and
// returns a function that removes it. The returned function is idempotent
// and safe to call more than once.
func (o *Orchestrator) AddListener(discussionID string, listener EventListener) func() {
	o.listenersMu.Lock()
	id := o.nextListener
	o.nextListener++
	set, ok := o.listeners[discussionID]
	if !ok {
		set = make(map[uint64]EventListener)
		o.listeners[discussionID] = set
	}
	set[id] = listener
	o.listenersMu.Unlock()

	return func() {
		o.listenersMu.Lock()
		defer o.listenersMu.Unlock()
		set := o.listeners[discussionID]
		delete(set, id)
		if len(set) == 0 {
			delete(o.listeners, discussionID)
		}
	}
}

// emit publishes each event to the Event Bus and fans it out to in-process
// listeners registered for the discussion. Publication is best-effort: a
// publish failure is logged but never fails the caller's operation, and the
// state mutation that produced the event has already been persisted.
func (o *Orchestrator) emit(ctx context.Context, discussionID string, events ...*models.DiscussionEvent) {
	for _, event := range events {
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		busEvent := bus.NewEvent(string(event.Type), "discussion-orchestrator", map[string]interface{}{
			"id":           event.ID,
			"type":         event.Type,
			"discussionId": event.DiscussionID,
			"data":         event.Data,
			"timestamp":    event.Timestamp,
			"metadata":     event.Metadata,
		})
		if err := o.bus.Publish(ctx, EventsChannel, busEvent); err != nil {
			o.logger.Error("failed to publish discussion event",
				zap.String("discussion_id", discussionID),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}

		o.listenersMu.RLock()
		listeners := make([]EventListener, 0, len(o.listeners[discussionID]))
		for _, listener := range o.listeners[discussionID] {
			listeners = append(listeners, listener)
		}
		o.listenersMu.RUnlock()
		for _, listener := range listeners {
			listener(event)
		}
	}
}

func newEvent(discussionID string, eventType models.EventType, data map[string]interface{}) *models.DiscussionEvent {
	return &models.DiscussionEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		DiscussionID: discussionID,
		Data:         data,
		Timestamp:    time.Now().UTC(),
		Metadata:     models.EventMetadata{Source: "discussion-orchestrator"},
	}
}

// resolveStrategy returns the Strategy for the discussion's configured
// kind, logging a warning when it falls back to round-robin.
func (o *Orchestrator) resolveStrategy(d *models.Discussion) strategy.Strategy {
	s, fellBack := strategy.Resolve(d.TurnStrategy.Kind)
	if fellBack {
		o.logger.Warn("unknown turn strategy, falling back to round-robin",
			zap.String("discussion_id", d.ID),
			zap.String("strategy", string(d.TurnStrategy.Kind)))
	}
	return s
}
