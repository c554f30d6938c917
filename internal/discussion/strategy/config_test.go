package strategy

import (
	"testing"

	"github.com/kandev/agora/internal/discussion/models"
)

func TestValidateConfigRejectsTimeoutOutOfBounds(t *testing.T) {
	if err := ValidateConfig(models.StrategyConfig{TurnTimeoutSeconds: 5}); err == nil {
		t.Error("expected error for timeout below 10")
	}
	if err := ValidateConfig(models.StrategyConfig{TurnTimeoutSeconds: 3601}); err == nil {
		t.Error("expected error for timeout above 3600")
	}
	if err := ValidateConfig(models.StrategyConfig{TurnTimeoutSeconds: 30}); err != nil {
		t.Errorf("expected valid timeout to pass, got %v", err)
	}
}

func TestValidateConfigRejectsNegativeCooldown(t *testing.T) {
	if err := ValidateConfig(models.StrategyConfig{CooldownSeconds: -1}); err == nil {
		t.Error("expected error for negative cooldown")
	}
}

func TestValidateConfigRejectsNegativeMaxMessagesPerTurn(t *testing.T) {
	if err := ValidateConfig(models.StrategyConfig{MaxMessagesPerTurn: -1}); err == nil {
		t.Error("expected error for maxMessagesPerTurn < 1")
	}
	if err := ValidateConfig(models.StrategyConfig{MaxMessagesPerTurn: 0}); err != nil {
		t.Error("expected zero (unset) maxMessagesPerTurn to pass")
	}
}

func TestValidateConfigModeratedRequiresApprovalOrSelectionMechanism(t *testing.T) {
	if err := ValidateConfig(models.StrategyConfig{Kind: models.StrategyModerated}); err == nil {
		t.Error("expected error when moderated has neither requireApproval nor a selection mechanism")
	}
	if err := ValidateConfig(models.StrategyConfig{Kind: models.StrategyModerated, RequireApproval: true}); err != nil {
		t.Errorf("expected requireApproval=true to satisfy moderated config, got %v", err)
	}
	withMechanism := models.StrategyConfig{
		Kind:  models.StrategyModerated,
		Extra: map[string]interface{}{"selectionMechanism": "vote"},
	}
	if err := ValidateConfig(withMechanism); err != nil {
		t.Errorf("expected selection mechanism to satisfy moderated config, got %v", err)
	}
}

func TestValidateConfigRejectsThresholdsOutOfRange(t *testing.T) {
	cfg := models.StrategyConfig{
		Extra: map[string]interface{}{"relevanceThreshold": 1.5},
	}
	if err := ValidateConfig(cfg); err == nil {
		t.Error("expected error for threshold above 1")
	}
}
