package config

import (
	"strings"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DMS_BASE_URL", "https://dms.example.com")
	t.Setenv("REQUEST_TIMEOUT_SECS", "30")
	t.Setenv("DDS_BASE_URL", "https://dds.example.com")
	t.Setenv("NODE_URL", "https://node.example.com")
	t.Setenv("REG_SECRET", "secret")
	t.Setenv("SECP256K1_PRIVHEX", "0xabc123")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HeartbeatJitter != defaultHeartbeatJitter {
		t.Fatalf("HeartbeatJitter = %v, want default", cfg.HeartbeatJitter)
	}
	if cfg.MaxConcurrency != defaultMaxConcurrency {
		t.Fatalf("MaxConcurrency = %d, want default", cfg.MaxConcurrency)
	}
	if cfg.LogFormat != defaultLogFormat {
		t.Fatalf("LogFormat = %q, want default", cfg.LogFormat)
	}
}

func TestLoadMissingKeysNamedInError(t *testing.T) {
	t.Setenv("DMS_BASE_URL", "")
	t.Setenv("REQUEST_TIMEOUT_SECS", "")
	t.Setenv("DDS_BASE_URL", "")
	t.Setenv("NODE_URL", "")
	t.Setenv("REG_SECRET", "")
	t.Setenv("SECP256K1_PRIVHEX", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required keys")
	}
	for _, key := range []string{"DMS_BASE_URL", "DDS_BASE_URL", "NODE_URL", "REG_SECRET", "SECP256K1_PRIVHEX"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error to name %s, got: %v", key, err)
		}
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("HEARTBEAT_JITTER_MS", "100")
	t.Setenv("MAX_CONCURRENCY", "4")
	t.Setenv("NODE_RATE_PER_SECOND", "2.5")
	t.Setenv("ENABLE_NOOP", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HeartbeatJitter.Milliseconds() != 100 {
		t.Fatalf("HeartbeatJitter = %v, want 100ms", cfg.HeartbeatJitter)
	}
	if cfg.MaxConcurrency != 4 {
		t.Fatalf("MaxConcurrency = %d, want 4", cfg.MaxConcurrency)
	}
	if cfg.NodeRatePerSecond != 2.5 {
		t.Fatalf("NodeRatePerSecond = %v, want 2.5", cfg.NodeRatePerSecond)
	}
	if !cfg.EnableNoop {
		t.Fatal("expected EnableNoop=true")
	}
}

func TestLoadRejectsInvalidNodeRate(t *testing.T) {
	setRequired(t)
	t.Setenv("NODE_RATE_PER_SECOND", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid NODE_RATE_PER_SECOND")
	}
}
