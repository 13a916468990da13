package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with defaults should succeed: %v", err)
	}

	if cfg.Surveillance.Interval != 30*time.Second {
		t.Fatalf("unexpected default interval: %s", cfg.Surveillance.Interval)
	}
	if cfg.Surveillance.ChunkSize != 50 {
		t.Fatalf("unexpected default chunk size: %d", cfg.Surveillance.ChunkSize)
	}
	if cfg.Surveillance.MinBetAmount != 10000 {
		t.Fatalf("unexpected default min bet amount: %f", cfg.Surveillance.MinBetAmount)
	}
	if cfg.Chain.ExchangeAddress == "" {
		t.Fatal("exchange address should default to the CTF exchange")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg.Surveillance.ChunkSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero chunk size should fail validation")
	}

	cfg, _ = Load("")
	cfg.Alerting.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled telegram without token should fail validation")
	}

	cfg, _ = Load("")
	cfg.Alerting.Discord.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled discord without webhook should fail validation")
	}
}
