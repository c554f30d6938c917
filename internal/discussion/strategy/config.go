package strategy

import (
	"fmt"

	"github.com/kandev/agora/internal/discussion/models"
)

// ValidateConfig checks a StrategyConfig against the bounds the Strategy
// Engine requires, returning the first violation found.
func ValidateConfig(cfg models.StrategyConfig) error {
	if cfg.TurnTimeoutSeconds != 0 && (cfg.TurnTimeoutSeconds < 10 || cfg.TurnTimeoutSeconds > 3600) {
		return fmt.Errorf("turnTimeoutSeconds must be in [10, 3600], got %d", cfg.TurnTimeoutSeconds)
	}
	if cfg.CooldownSeconds < 0 {
		return fmt.Errorf("cooldownSeconds must be >= 0, got %d", cfg.CooldownSeconds)
	}
	if cfg.MaxMessagesPerTurn != 0 && cfg.MaxMessagesPerTurn < 1 {
		return fmt.Errorf("maxMessagesPerTurn must be >= 1, got %d", cfg.MaxMessagesPerTurn)
	}
	if cfg.Kind == models.StrategyModerated {
		if !cfg.RequireApproval && !hasSelectionMechanism(cfg) {
			return fmt.Errorf("moderated strategy requires requireApproval=true or a selection mechanism")
		}
	}
	for name, v := range thresholds(cfg) {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}
	return nil
}

func hasSelectionMechanism(cfg models.StrategyConfig) bool {
	if cfg.Extra == nil {
		return false
	}
	_, ok := cfg.Extra["selectionMechanism"]
	return ok
}

func thresholds(cfg models.StrategyConfig) map[string]float64 {
	out := map[string]float64{}
	if cfg.Extra == nil {
		return out
	}
	for _, key := range []string{"relevanceThreshold", "engagementThreshold"} {
		if v, ok := cfg.Extra[key]; ok {
			if f, ok := toFloat(v); ok {
				out[key] = f
			}
		}
	}
	return out
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
