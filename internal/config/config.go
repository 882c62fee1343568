// Package config loads NodeConfig from the environment, following the
// defaults-struct + env-override + single-pass validation pattern of the
// teacher's control-plane Config.Load — the required-key list is checked
// once at the end so a misconfigured node reports every missing key at
// once instead of one per restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHeartbeatJitter     = 250 * time.Millisecond
	defaultPollBackoffMin      = 1 * time.Second
	defaultPollBackoffMax      = 30 * time.Second
	defaultTokenSafetyRatio    = 0.75
	defaultTokenReauthRetries  = 3
	defaultTokenReauthJitter   = 500 * time.Millisecond
	defaultMaxConcurrency      = 1
	defaultLogFormat           = "json"
	defaultNoopSleep           = 5 * time.Second
)

// NodeConfig is the full environment-sourced configuration for one node
// process.
type NodeConfig struct {
	DMSBaseURL       string
	RequestTimeout   time.Duration

	DDSBaseURL        string
	NodeURL           string
	RegSecret         string
	Secp256k1PrivHex  string

	HeartbeatJitter time.Duration
	PollBackoffMin  time.Duration
	PollBackoffMax  time.Duration

	TokenSafetyRatio     float64
	TokenReauthMaxRetries int
	TokenReauthJitterMs  time.Duration

	RegisterIntervalSecs *time.Duration
	RegisterMaxRetry     *uint64

	MaxConcurrency    int
	NodeRatePerSecond float64
	LogFormat         string

	EnableNoop    bool
	NoopSleepSecs time.Duration

	ListenAddr string
}

// Load reads NodeConfig from the environment. Every missing required key
// is collected into a single error naming them all.
func Load() (NodeConfig, error) {
	cfg := NodeConfig{
		HeartbeatJitter:       defaultHeartbeatJitter,
		PollBackoffMin:        defaultPollBackoffMin,
		PollBackoffMax:        defaultPollBackoffMax,
		TokenSafetyRatio:      defaultTokenSafetyRatio,
		TokenReauthMaxRetries: defaultTokenReauthRetries,
		TokenReauthJitterMs:   defaultTokenReauthJitter,
		MaxConcurrency:        defaultMaxConcurrency,
		LogFormat:             defaultLogFormat,
		NoopSleepSecs:         defaultNoopSleep,
		ListenAddr:            ":8080",
	}

	var missing []string
	requireString := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DMSBaseURL = requireString("DMS_BASE_URL")

	if v := requireString("REQUEST_TIMEOUT_SECS"); v != "" {
		secs, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT_SECS: %w", err)
		}
		cfg.RequestTimeout = time.Duration(secs) * time.Second
	}

	cfg.DDSBaseURL = requireString("DDS_BASE_URL")
	cfg.NodeURL = requireString("NODE_URL")
	cfg.RegSecret = requireString("REG_SECRET")
	cfg.Secp256k1PrivHex = requireString("SECP256K1_PRIVHEX")

	if v := strings.TrimSpace(os.Getenv("HEARTBEAT_JITTER_MS")); v != "" {
		ms, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid HEARTBEAT_JITTER_MS: %w", err)
		}
		cfg.HeartbeatJitter = time.Duration(ms) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("POLL_BACKOFF_MS_MIN")); v != "" {
		ms, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid POLL_BACKOFF_MS_MIN: %w", err)
		}
		cfg.PollBackoffMin = time.Duration(ms) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("POLL_BACKOFF_MS_MAX")); v != "" {
		ms, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid POLL_BACKOFF_MS_MAX: %w", err)
		}
		cfg.PollBackoffMax = time.Duration(ms) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("TOKEN_SAFETY_RATIO")); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return cfg, fmt.Errorf("invalid TOKEN_SAFETY_RATIO: %w", err)
		}
		cfg.TokenSafetyRatio = f
	}
	if v := strings.TrimSpace(os.Getenv("TOKEN_REAUTH_MAX_RETRIES")); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("invalid TOKEN_REAUTH_MAX_RETRIES: %w", err)
		}
		cfg.TokenReauthMaxRetries = int(n)
	}
	if v := strings.TrimSpace(os.Getenv("TOKEN_REAUTH_JITTER_MS")); v != "" {
		ms, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid TOKEN_REAUTH_JITTER_MS: %w", err)
		}
		cfg.TokenReauthJitterMs = time.Duration(ms) * time.Millisecond
	}
	if v := strings.TrimSpace(os.Getenv("REGISTER_INTERVAL_SECS")); v != "" {
		secs, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid REGISTER_INTERVAL_SECS: %w", err)
		}
		d := time.Duration(secs) * time.Second
		cfg.RegisterIntervalSecs = &d
	}
	if v := strings.TrimSpace(os.Getenv("REGISTER_MAX_RETRY")); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid REGISTER_MAX_RETRY: %w", err)
		}
		cfg.RegisterMaxRetry = &n
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENCY")); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("invalid MAX_CONCURRENCY: %w", err)
		}
		cfg.MaxConcurrency = int(n)
	}
	if v := strings.TrimSpace(os.Getenv("NODE_RATE_PER_SECOND")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid NODE_RATE_PER_SECOND: %w", err)
		}
		cfg.NodeRatePerSecond = f
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("ENABLE_NOOP")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid ENABLE_NOOP: %w", err)
		}
		cfg.EnableNoop = b
	}
	if v := strings.TrimSpace(os.Getenv("NOOP_SLEEP_SECS")); v != "" {
		secs, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid NOOP_SLEEP_SECS: %w", err)
		}
		cfg.NoopSleepSecs = time.Duration(secs) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	if len(missing) > 0 {
		return cfg, errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	return cfg, nil
}
