package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kandev/agora/internal/discussion/models"
)

// MemoryRepository provides in-memory discussion storage. It is the default
// backend for development and tests; production deployments use
// PostgresRepository or SQLiteRepository.
type MemoryRepository struct {
	mu          sync.RWMutex
	discussions map[string]*models.Discussion
	messages    map[string][]*models.Message
	reactions   map[string][]*models.Reaction
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory discussion repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		discussions: make(map[string]*models.Discussion),
		messages:    make(map[string][]*models.Message),
		reactions:   make(map[string][]*models.Reaction),
	}
}

// Close is a no-op for the in-memory repository.
func (r *MemoryRepository) Close() error {
	return nil
}

func cloneDiscussion(d *models.Discussion) *models.Discussion {
	cp := *d
	cp.Participants = append([]models.Participant(nil), d.Participants...)
	cp.Metadata = cloneMap(d.Metadata)
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CreateDiscussion creates a new discussion in Draft status.
func (r *MemoryRepository) CreateDiscussion(ctx context.Context, spec models.CreateSpec) (*models.Discussion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	d := &models.Discussion{
		ID:           uuid.New().String(),
		Status:       models.StatusDraft,
		TurnStrategy: spec.Strategy,
		Settings:     spec.Settings,
		State: models.State{
			Phase:        models.PhaseSetup,
			LastActivity: now,
		},
		Metadata:  cloneMap(spec.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.discussions[d.ID] = d
	return cloneDiscussion(d), nil
}

// GetDiscussion retrieves a discussion by id.
func (r *MemoryRepository) GetDiscussion(ctx context.Context, id string) (*models.Discussion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.discussions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDiscussion(d), nil
}

// UpdateDiscussion applies a partial update and returns the resulting
// discussion.
func (r *MemoryRepository) UpdateDiscussion(ctx context.Context, id string, patch models.UpdatePatch) (*models.Discussion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.discussions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.Settings != nil {
		d.Settings = *patch.Settings
	}
	if patch.TurnStrategy != nil {
		d.TurnStrategy = *patch.TurnStrategy
	}
	if patch.State != nil {
		d.State = *patch.State
	}
	if patch.Metadata != nil {
		d.Metadata = cloneMap(patch.Metadata)
	}
	d.UpdatedAt = time.Now().UTC()
	return cloneDiscussion(d), nil
}

// ListDiscussions returns all discussions in no particular order.
func (r *MemoryRepository) ListDiscussions(ctx context.Context) ([]*models.Discussion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Discussion, 0, len(r.discussions))
	for _, d := range r.discussions {
		out = append(out, cloneDiscussion(d))
	}
	return out, nil
}

// DeleteDiscussion removes a discussion and its messages/reactions.
func (r *MemoryRepository) DeleteDiscussion(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.discussions[id]; !ok {
		return ErrNotFound
	}
	delete(r.discussions, id)
	delete(r.messages, id)
	delete(r.reactions, id)
	return nil
}

// AddParticipant appends a new participant to the discussion.
func (r *MemoryRepository) AddParticipant(ctx context.Context, discussionID string, spec models.ParticipantSpec) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.discussions[discussionID]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	p := models.Participant{
		ID:           uuid.New().String(),
		DiscussionID: discussionID,
		UserID:       spec.UserID,
		AgentID:      spec.AgentID,
		PersonaID:    spec.PersonaID,
		Role:         spec.Role,
		IsActive:     true,
		Permissions:  append([]models.Permission(nil), spec.Permissions...),
		JoinedAt:     now,
		LastActiveAt: now,
		Preferences:  cloneMap(spec.Preferences),
	}
	d.Participants = append(d.Participants, p)
	d.UpdatedAt = now
	out := p
	return &out, nil
}

// UpdateParticipant overwrites the stored record for an existing
// participant, matched by id.
func (r *MemoryRepository) UpdateParticipant(ctx context.Context, discussionID string, participant *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.discussions[discussionID]
	if !ok {
		return ErrNotFound
	}
	for i := range d.Participants {
		if d.Participants[i].ID == participant.ID {
			d.Participants[i] = *participant
			d.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

// GetParticipant returns a single participant of a discussion.
func (r *MemoryRepository) GetParticipant(ctx context.Context, discussionID, participantID string) (*models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.discussions[discussionID]
	if !ok {
		return nil, ErrNotFound
	}
	for i := range d.Participants {
		if d.Participants[i].ID == participantID {
			out := d.Participants[i]
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// SendMessage appends a message to the discussion's append-only log.
func (r *MemoryRepository) SendMessage(ctx context.Context, discussionID, participantID, content string, msgType models.MessageType) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.discussions[discussionID]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	msg := &models.Message{
		ID:            uuid.New().String(),
		DiscussionID:  discussionID,
		ParticipantID: participantID,
		Content:       content,
		MessageType:   msgType,
		CreatedAt:     now,
	}
	r.messages[discussionID] = append(r.messages[discussionID], msg)
	d.State.MessageCount++
	d.State.LastActivity = now
	d.UpdatedAt = now
	out := *msg
	return &out, nil
}

// ListMessages returns all messages for a discussion in send order.
func (r *MemoryRepository) ListMessages(ctx context.Context, discussionID string) ([]*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.discussions[discussionID]; !ok {
		return nil, ErrNotFound
	}
	msgs := r.messages[discussionID]
	out := make([]*models.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// AddReaction appends a reaction to a message.
func (r *MemoryRepository) AddReaction(ctx context.Context, discussionID, messageID, participantID, emoji string) (*models.Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.discussions[discussionID]; !ok {
		return nil, ErrNotFound
	}
	found := false
	for _, m := range r.messages[discussionID] {
		if m.ID == messageID {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNotFound
	}
	reaction := &models.Reaction{
		ID:            uuid.New().String(),
		MessageID:     messageID,
		DiscussionID:  discussionID,
		ParticipantID: participantID,
		Emoji:         emoji,
		CreatedAt:     time.Now().UTC(),
	}
	r.reactions[discussionID] = append(r.reactions[discussionID], reaction)
	out := *reaction
	return &out, nil
}
