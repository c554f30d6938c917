package strategy

import (
	"sync"
	"time"

	"github.com/kandev/agora/internal/discussion/models"
)

const contextAnalysisCacheTTL = 30 * time.Second

// contextAnalysis is the cached composite-score breakdown for one
// participant within one discussion.
type contextAnalysis struct {
	topicRelevance  float64
	expertiseMatch  float64
	engagementLevel float64
	score           float64
	computedAt      time.Time
}

// ContextAware scores each active participant on topic relevance,
// expertise match, and engagement, selecting the highest scorer. It falls
// back to round-robin if scoring fails to produce any eligible candidate.
type ContextAware struct {
	mu    sync.Mutex
	cache map[string]map[string]contextAnalysis // discussionID -> participantID -> analysis
}

// NewContextAware builds an empty context-aware strategy instance.
func NewContextAware() *ContextAware {
	return &ContextAware{cache: make(map[string]map[string]contextAnalysis)}
}

func (c *ContextAware) analyze(d *models.Discussion, p *models.Participant) contextAnalysis {
	c.mu.Lock()
	defer c.mu.Unlock()

	byParticipant, ok := c.cache[d.ID]
	if !ok {
		byParticipant = make(map[string]contextAnalysis)
		c.cache[d.ID] = byParticipant
	}
	if cached, ok := byParticipant[p.ID]; ok && time.Since(cached.computedAt) < contextAnalysisCacheTTL {
		return cached
	}

	analysis := contextAnalysis{
		topicRelevance:  topicRelevance(d, p),
		expertiseMatch:  expertiseMatch(p),
		engagementLevel: engagementLevel(d, p),
		computedAt:      time.Now(),
	}
	analysis.score = 0.4*analysis.topicRelevance + 0.3*analysis.expertiseMatch + 0.3*analysis.engagementLevel
	byParticipant[p.ID] = analysis
	return analysis
}

// topicRelevance is a heuristic: a persona tagged with the discussion topic
// scores high; otherwise a neutral middle value.
func topicRelevance(d *models.Discussion, p *models.Participant) float64 {
	topic := d.TurnStrategy.Topic
	if topic == "" {
		return 0.5
	}
	if p.Preferences != nil {
		if expertise, ok := p.Preferences["topicExpertise"].(string); ok && expertise == topic {
			return 0.9
		}
	}
	return 0.5
}

// expertiseMatch adds a flat bonus for Expert and Moderator roles.
func expertiseMatch(p *models.Participant) float64 {
	switch p.Role {
	case models.RoleExpert:
		return 0.3
	case models.RoleModerator:
		return 0.2
	default:
		return 0.0
	}
}

// engagementLevel grows with recency of last activity and share of messages
// sent in the discussion.
func engagementLevel(d *models.Discussion, p *models.Participant) float64 {
	recency := 0.5
	if !p.LastActiveAt.IsZero() {
		age := time.Since(p.LastActiveAt)
		switch {
		case age < time.Minute:
			recency = 1.0
		case age < 5*time.Minute:
			recency = 0.7
		case age < 15*time.Minute:
			recency = 0.4
		default:
			recency = 0.1
		}
	}
	share := 0.0
	if d.State.MessageCount > 0 {
		share = float64(p.MessageCount) / float64(d.State.MessageCount)
		if share > 1 {
			share = 1
		}
	}
	level := 0.6*recency + 0.4*share
	if level > 1 {
		level = 1
	}
	return level
}

// NextParticipant selects the highest-scoring eligible participant, falling
// back to round-robin when no candidate scores.
func (c *ContextAware) NextParticipant(d *models.Discussion, active []*models.Participant, cfg models.StrategyConfig) *models.Participant {
	var best *models.Participant
	bestScore := -1.0
	for _, p := range active {
		if !c.CanParticipantTakeTurn(p, d, cfg) {
			continue
		}
		a := c.analyze(d, p)
		if a.score > bestScore {
			bestScore = a.score
			best = p
		}
	}
	if best == nil {
		return RoundRobin{}.NextParticipant(d, active, cfg)
	}
	return best
}

// CanParticipantTakeTurn requires topicRelevance >= 0.3 and
// engagementLevel >= 0.2.
func (c *ContextAware) CanParticipantTakeTurn(p *models.Participant, d *models.Discussion, cfg models.StrategyConfig) bool {
	if !p.IsActive || !p.HasPermission(models.PermissionCanSendMessages) {
		return false
	}
	a := c.analyze(d, p)
	return a.topicRelevance >= 0.3 && a.engagementLevel >= 0.2
}

// ShouldAdvanceTurn additionally fires when another active participant's
// relevance exceeds the current speaker's by more than 0.3.
func (c *ContextAware) ShouldAdvanceTurn(d *models.Discussion, current *models.Participant, cfg models.StrategyConfig) bool {
	if (RoundRobin{}).ShouldAdvanceTurn(d, current, cfg) {
		return true
	}
	if current == nil {
		return false
	}
	currentAnalysis := c.analyze(d, current)
	for _, p := range d.ActiveParticipants() {
		if p.ID == current.ID {
			continue
		}
		a := c.analyze(d, p)
		if a.topicRelevance-currentAnalysis.topicRelevance > 0.3 {
			return true
		}
	}
	return false
}

// EstimateTurnDuration scales the base timeout by relevance/expertise.
func (c *ContextAware) EstimateTurnDuration(p *models.Participant, d *models.Discussion, cfg models.StrategyConfig) float64 {
	base := turnTimeout(cfg).Seconds()
	a := c.analyze(d, p)
	switch {
	case a.topicRelevance > 0.8 || a.expertiseMatch > 0.8:
		return base * 1.5
	case a.topicRelevance < 0.3 && a.expertiseMatch < 0.3:
		return base * 0.7
	default:
		return base
	}
}
