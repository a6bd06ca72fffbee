package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RiskLimits is the session risk configuration. Loaded and validated once
// at session start; the running engine only ever sees this immutable copy.
type RiskLimits struct {
	MaxLossPerGameCents  int64   `yaml:"max_loss_per_game_cents"`
	MaxLossPerDayCents   int64   `yaml:"max_loss_per_day_cents"`
	MaxPositionPerGame   int     `yaml:"max_position_per_game"` // contracts
	MaxConcurrentGames   int     `yaml:"max_concurrent_games"`
	MaxPortfolioExposure float64 `yaml:"max_portfolio_exposure"` // fraction of bankroll
	MinEdgeThreshold     float64 `yaml:"min_edge_threshold"`
	MaxEdgeThreshold     float64 `yaml:"max_edge_threshold"`
	KellyFraction        float64 `yaml:"kelly_fraction"`
}

func LoadRiskLimits(path string) (RiskLimits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RiskLimits{}, fmt.Errorf("read risk limits: %w", err)
	}

	var limits RiskLimits
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return RiskLimits{}, fmt.Errorf("parse risk limits: %w", err)
	}

	if err := limits.Validate(); err != nil {
		return RiskLimits{}, fmt.Errorf("risk limits %s: %w", path, err)
	}

	return limits, nil
}

// Validate rejects configurations that would disable a limit silently.
func (rl RiskLimits) Validate() error {
	switch {
	case rl.MaxLossPerGameCents <= 0:
		return fmt.Errorf("max_loss_per_game_cents must be positive")
	case rl.MaxLossPerDayCents <= 0:
		return fmt.Errorf("max_loss_per_day_cents must be positive")
	case rl.MaxLossPerDayCents < rl.MaxLossPerGameCents:
		return fmt.Errorf("max_loss_per_day_cents below max_loss_per_game_cents")
	case rl.MaxPositionPerGame <= 0:
		return fmt.Errorf("max_position_per_game must be positive")
	case rl.MaxConcurrentGames <= 0:
		return fmt.Errorf("max_concurrent_games must be positive")
	case rl.MaxPortfolioExposure <= 0 || rl.MaxPortfolioExposure > 1:
		return fmt.Errorf("max_portfolio_exposure must be in (0,1]")
	case rl.MinEdgeThreshold <= 0:
		return fmt.Errorf("min_edge_threshold must be positive")
	case rl.MaxEdgeThreshold <= rl.MinEdgeThreshold:
		return fmt.Errorf("max_edge_threshold must exceed min_edge_threshold")
	case rl.KellyFraction <= 0 || rl.KellyFraction > 1:
		return fmt.Errorf("kelly_fraction must be in (0,1]")
	}
	return nil
}
