package option

import (
	"testing"
	"time"

	"github.com/zerodte/optionagent/internal/config"
	"github.com/zerodte/optionagent/internal/domain"
)

func TestSelectPicksClosestToTargetDelta(t *testing.T) {
	cfg := &config.OptionConfig{DeltaTarget: 0.40, MaxSpreadPercent: 0.50, RiskFreeRate: 0.03}
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	expiry := now.Add(5 * 24 * time.Hour)

	chain := SyntheticChain(500, 0.20, 0.03, expiry, now, 1, 15)
	best, err := Select(cfg, domain.DirectionCall, 500, 0.20, chain, now, 0)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if best.Strike <= 500 {
		t.Fatalf("expected a 0.40-delta call strike above spot, got %v", best.Strike)
	}
}

func TestSelectRejectsWideSpreads(t *testing.T) {
	cfg := &config.OptionConfig{DeltaTarget: 0.40, MaxSpreadPercent: 0.001, RiskFreeRate: 0.03}
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	expiry := now.Add(5 * 24 * time.Hour)

	chain := SyntheticChain(500, 0.20, 0.03, expiry, now, 1, 15)
	_, err := Select(cfg, domain.DirectionCall, 500, 0.20, chain, now, 0)
	if err == nil {
		t.Fatalf("expected error when spread filter excludes everything")
	}
}

func TestSelectEmptyChain(t *testing.T) {
	cfg := &config.OptionConfig{DeltaTarget: 0.40, MaxSpreadPercent: 0.5, RiskFreeRate: 0.03}
	_, err := Select(cfg, domain.DirectionCall, 500, 0.2, nil, time.Now(), 0)
	if err == nil {
		t.Fatalf("expected error for empty chain")
	}
}
