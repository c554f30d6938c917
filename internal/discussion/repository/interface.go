// Package repository defines the Discussion Repository contract consumed by
// the Discussion Orchestrator, and the storage-backed implementations of it.
package repository

import (
	"context"
	"errors"

	"github.com/kandev/agora/internal/discussion/models"
)

// ErrNotFound is returned when a Discussion, Participant, or Message id is
// unknown to the backing store. Callers translate it to apperr.NotFound.
var ErrNotFound = errors.New("repository: not found")

// Repository persists discussions, participants, and messages, and exposes
// atomic read/update of discussion state. All methods are safe for
// concurrent use; the Orchestrator still serializes mutations per Discussion
// above this layer, so implementations need not provide cross-call
// transactional guarantees beyond per-call atomicity.
type Repository interface {
	CreateDiscussion(ctx context.Context, spec models.CreateSpec) (*models.Discussion, error)
	GetDiscussion(ctx context.Context, id string) (*models.Discussion, error)
	UpdateDiscussion(ctx context.Context, id string, patch models.UpdatePatch) (*models.Discussion, error)
	ListDiscussions(ctx context.Context) ([]*models.Discussion, error)
	DeleteDiscussion(ctx context.Context, id string) error

	AddParticipant(ctx context.Context, discussionID string, spec models.ParticipantSpec) (*models.Participant, error)
	UpdateParticipant(ctx context.Context, discussionID string, participant *models.Participant) error
	GetParticipant(ctx context.Context, discussionID, participantID string) (*models.Participant, error)

	SendMessage(ctx context.Context, discussionID, participantID, content string, msgType models.MessageType) (*models.Message, error)
	ListMessages(ctx context.Context, discussionID string) ([]*models.Message, error)

	AddReaction(ctx context.Context, discussionID, messageID, participantID, emoji string) (*models.Reaction, error)

	// Close releases any underlying connections. Safe to call once.
	Close() error
}
