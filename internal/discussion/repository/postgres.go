package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kandev/agora/internal/discussion/models"
)

// PostgresRepository provides PostgreSQL-based discussion storage.
type PostgresRepository struct {
	db *sql.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository opens a pgx-backed connection pool and ensures the
// schema exists. If maxConns or minConns are 0 they default to 25 and 5.
func NewPostgresRepository(dsn string, maxConns, minConns int) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 25
	}
	if minConns <= 0 {
		minConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	repo := &PostgresRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

func (r *PostgresRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS discussions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'draft',
		turn_strategy JSONB NOT NULL DEFAULT '{}',
		settings JSONB NOT NULL DEFAULT '{}',
		state JSONB NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		discussion_id TEXT NOT NULL REFERENCES discussions(id) ON DELETE CASCADE,
		user_id TEXT DEFAULT '',
		agent_id TEXT DEFAULT '',
		persona_id TEXT DEFAULT '',
		role TEXT NOT NULL DEFAULT 'participant',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		permissions JSONB NOT NULL DEFAULT '[]',
		message_count INTEGER NOT NULL DEFAULT 0,
		joined_at TIMESTAMPTZ NOT NULL,
		last_active_at TIMESTAMPTZ NOT NULL,
		preferences JSONB NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		discussion_id TEXT NOT NULL REFERENCES discussions(id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		content TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reactions (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		discussion_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_participants_discussion_id ON participants(discussion_id);
	CREATE INDEX IF NOT EXISTS idx_messages_discussion_created ON messages(discussion_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_reactions_message_id ON reactions(message_id);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Close closes the underlying connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying sql.DB for shared access.
func (r *PostgresRepository) DB() *sql.DB {
	return r.db
}

// CreateDiscussion inserts a new discussion in Draft status.
func (r *PostgresRepository) CreateDiscussion(ctx context.Context, spec models.CreateSpec) (*models.Discussion, error) {
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
		Metadata:  spec.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO discussions (id, status, turn_strategy, settings, state, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.Status, marshalOrEmpty(d.TurnStrategy), marshalOrEmpty(d.Settings), marshalOrEmpty(d.State), marshalOrEmpty(d.Metadata), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDiscussion retrieves a discussion and its participants by id.
func (r *PostgresRepository) GetDiscussion(ctx context.Context, id string) (*models.Discussion, error) {
	d := &models.Discussion{ID: id}
	var status string
	var turnStrategyJSON, settingsJSON, stateJSON, metadataJSON []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT status, turn_strategy, settings, state, metadata, created_at, updated_at
		FROM discussions WHERE id = $1
	`, id).Scan(&status, &turnStrategyJSON, &settingsJSON, &stateJSON, &metadataJSON, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Status = models.Status(status)
	_ = json.Unmarshal(turnStrategyJSON, &d.TurnStrategy)
	_ = json.Unmarshal(settingsJSON, &d.Settings)
	_ = json.Unmarshal(stateJSON, &d.State)
	_ = json.Unmarshal(metadataJSON, &d.Metadata)

	participants, err := r.listParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Participants = participants
	return d, nil
}

// UpdateDiscussion applies a partial update and returns the resulting
// discussion.
func (r *PostgresRepository) UpdateDiscussion(ctx context.Context, id string, patch models.UpdatePatch) (*models.Discussion, error) {
	d, err := r.GetDiscussion(ctx, id)
	if err != nil {
		return nil, err
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
		d.Metadata = patch.Metadata
	}
	d.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE discussions SET status = $1, turn_strategy = $2, settings = $3, state = $4, metadata = $5, updated_at = $6
		WHERE id = $7
	`, d.Status, marshalOrEmpty(d.TurnStrategy), marshalOrEmpty(d.Settings), marshalOrEmpty(d.State), marshalOrEmpty(d.Metadata), d.UpdatedAt, id)
	if err != nil {
		return nil, err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrNotFound
	}
	return d, nil
}

// ListDiscussions returns every discussion, most recently created first.
func (r *PostgresRepository) ListDiscussions(ctx context.Context) ([]*models.Discussion, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM discussions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.Discussion, 0, len(ids))
	for _, id := range ids {
		d, err := r.GetDiscussion(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// DeleteDiscussion removes a discussion and its dependent rows.
func (r *PostgresRepository) DeleteDiscussion(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM discussions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AddParticipant inserts a new participant row for the discussion.
func (r *PostgresRepository) AddParticipant(ctx context.Context, discussionID string, spec models.ParticipantSpec) (*models.Participant, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM discussions WHERE id = $1`, discussionID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	p := &models.Participant{
		ID:           uuid.New().String(),
		DiscussionID: discussionID,
		UserID:       spec.UserID,
		AgentID:      spec.AgentID,
		PersonaID:    spec.PersonaID,
		Role:         spec.Role,
		IsActive:     true,
		Permissions:  spec.Permissions,
		JoinedAt:     now,
		LastActiveAt: now,
		Preferences:  spec.Preferences,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO participants (id, discussion_id, user_id, agent_id, persona_id, role, is_active, permissions, message_count, joined_at, last_active_at, preferences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.DiscussionID, p.UserID, p.AgentID, p.PersonaID, p.Role, p.IsActive, marshalOrEmpty(p.Permissions), p.MessageCount, p.JoinedAt, p.LastActiveAt, marshalOrEmpty(p.Preferences))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateParticipant overwrites the stored participant row.
func (r *PostgresRepository) UpdateParticipant(ctx context.Context, discussionID string, p *models.Participant) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE participants
		SET role = $1, is_active = $2, permissions = $3, message_count = $4, last_active_at = $5, preferences = $6
		WHERE id = $7 AND discussion_id = $8
	`, p.Role, p.IsActive, marshalOrEmpty(p.Permissions), p.MessageCount, p.LastActiveAt, marshalOrEmpty(p.Preferences), p.ID, discussionID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetParticipant retrieves a single participant row.
func (r *PostgresRepository) GetParticipant(ctx context.Context, discussionID, participantID string) (*models.Participant, error) {
	p := &models.Participant{ID: participantID, DiscussionID: discussionID}
	var role string
	var permissionsJSON, preferencesJSON []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, agent_id, persona_id, role, is_active, permissions, message_count, joined_at, last_active_at, preferences
		FROM participants WHERE id = $1 AND discussion_id = $2
	`, participantID, discussionID).Scan(&p.UserID, &p.AgentID, &p.PersonaID, &role, &p.IsActive, &permissionsJSON, &p.MessageCount, &p.JoinedAt, &p.LastActiveAt, &preferencesJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	_ = json.Unmarshal(permissionsJSON, &p.Permissions)
	_ = json.Unmarshal(preferencesJSON, &p.Preferences)
	return p, nil
}

func (r *PostgresRepository) listParticipants(ctx context.Context, discussionID string) ([]models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, agent_id, persona_id, role, is_active, permissions, message_count, joined_at, last_active_at, preferences
		FROM participants WHERE discussion_id = $1 ORDER BY joined_at ASC
	`, discussionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		var role string
		var permissionsJSON, preferencesJSON []byte
		if err := rows.Scan(&p.ID, &p.UserID, &p.AgentID, &p.PersonaID, &role, &p.IsActive, &permissionsJSON, &p.MessageCount, &p.JoinedAt, &p.LastActiveAt, &preferencesJSON); err != nil {
			return nil, err
		}
		p.DiscussionID = discussionID
		p.Role = models.Role(role)
		_ = json.Unmarshal(permissionsJSON, &p.Permissions)
		_ = json.Unmarshal(preferencesJSON, &p.Preferences)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SendMessage inserts a message row and bumps the discussion's message
// count and last-activity timestamp.
func (r *PostgresRepository) SendMessage(ctx context.Context, discussionID, participantID, content string, msgType models.MessageType) (*models.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM discussions WHERE id = $1`, discussionID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
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
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, discussion_id, participant_id, content, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.DiscussionID, msg.ParticipantID, msg.Content, msg.MessageType, msg.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE discussions
		SET state = jsonb_set(jsonb_set(state, '{messageCount}', to_jsonb(COALESCE((state->>'messageCount')::int, 0) + 1)), '{lastActivity}', to_jsonb($1::text)),
			updated_at = $2
		WHERE id = $3
	`, now.Format(time.RFC3339Nano), now, discussionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns all messages for a discussion in send order.
func (r *PostgresRepository) ListMessages(ctx context.Context, discussionID string) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, participant_id, content, message_type, created_at
		FROM messages WHERE discussion_id = $1 ORDER BY created_at ASC
	`, discussionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		m := &models.Message{DiscussionID: discussionID}
		var msgType string
		if err := rows.Scan(&m.ID, &m.ParticipantID, &m.Content, &msgType, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.MessageType = models.MessageType(msgType)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddReaction inserts a reaction row for an existing message.
func (r *PostgresRepository) AddReaction(ctx context.Context, discussionID, messageID, participantID, emoji string) (*models.Reaction, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages WHERE id = $1 AND discussion_id = $2`, messageID, discussionID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
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
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reactions (id, message_id, discussion_id, participant_id, emoji, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, reaction.ID, reaction.MessageID, reaction.DiscussionID, reaction.ParticipantID, reaction.Emoji, reaction.CreatedAt)
	if err != nil {
		return nil, err
	}
	return reaction, nil
}
