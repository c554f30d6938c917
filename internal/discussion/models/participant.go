package models

import "time"

// Role identifies a Participant's authorization level within a Discussion.
type Role string

const (
	RoleModerator   Role = "moderator"
	RoleFacilitator Role = "facilitator"
	RoleExpert      Role = "expert"
	RoleParticipant Role = "participant"
	RoleObserver    Role = "observer"
)

// Permission is a capability tag granted to a Participant.
type Permission string

const (
	PermissionCanSendMessages Permission = "can_send_messages"
	PermissionCanRequestTurn  Permission = "can_request_turn"
	PermissionCanReact        Permission = "can_react"
)

// Participant is a human or agent member of a Discussion.
type Participant struct {
	ID           string                 `json:"id"`
	DiscussionID string                 `json:"discussionId"`
	UserID       string                 `json:"userId,omitempty"`
	AgentID      string                 `json:"agentId,omitempty"`
	PersonaID    string                 `json:"personaId,omitempty"`
	Role         Role                   `json:"role"`
	IsActive     bool                   `json:"isActive"`
	Permissions  []Permission           `json:"permissions"`
	MessageCount int                    `json:"messageCount"`
	JoinedAt     time.Time              `json:"joinedAt"`
	LastActiveAt time.Time              `json:"lastActiveAt"`
	Preferences  map[string]interface{} `json:"preferences,omitempty"`
}

// HasPermission reports whether the participant carries the given
// capability tag.
func (p *Participant) HasPermission(perm Permission) bool {
	for _, got := range p.Permissions {
		if got == perm {
			return true
		}
	}
	return false
}

// IsAgent reports whether this is an agent-backed participant.
func (p *Participant) IsAgent() bool {
	return p.AgentID != ""
}

// ResponseDelaySeconds reads the optional responseDelay preference, in
// seconds, defaulting to 0 when absent or malformed.
func (p *Participant) ResponseDelaySeconds() float64 {
	if p.Preferences == nil {
		return 0
	}
	v, ok := p.Preferences["responseDelay"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// ParticipantSpec is the input to AddParticipant.
type ParticipantSpec struct {
	UserID      string
	AgentID     string
	PersonaID   string
	Role        Role
	Permissions []Permission
	Preferences map[string]interface{}
}
