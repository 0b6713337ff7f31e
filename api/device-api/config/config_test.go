package config

import (
	"testing"
	"time"
)

func TestDefaultsSatisfyValidation(t *testing.T) {
	v, err := InitConfig()
	if err != nil {
		t.Fatalf("InitConfig: %v", err)
	}
	cfg, err := GetApplicationConfig(v)
	if err != nil {
		t.Fatalf("GetApplicationConfig: %v", err)
	}

	if cfg.Name != "device-api" {
		t.Errorf("expected default service name device-api, got %s", cfg.Name)
	}
	if cfg.ReorderCapacity <= 0 || cfg.MaxSessions <= 0 {
		t.Error("engine bounds must be positive")
	}
	if cfg.StaleAfter < cfg.SweepInterval {
		t.Error("staleness threshold should not be shorter than the sweep interval")
	}
	if cfg.StaleAfter != 2*time.Minute {
		t.Errorf("expected 2m default staleness, got %s", cfg.StaleAfter)
	}
}
