// Package tokenmanager holds the node-level access bundle used to
// authenticate against the DMS and rotates it proactively before expiry.
// The actual re-authentication handshake (DDS/SIWE) lives outside this
// package; it only owns the rotation schedule, retry policy, and the
// resulting bearer token.
package tokenmanager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	nodeerrors "github.com/aukilabs/compute-node/internal/errors"
	"github.com/aukilabs/compute-node/internal/jitter"
)

// Bundle is the node-level access token and its validity window.
type Bundle struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ReAuthFunc performs the external re-authentication handshake and
// returns a fresh bundle.
type ReAuthFunc func(ctx context.Context) (Bundle, error)

// Manager proactively rotates a Bundle when
// now >= issued_at + safety_ratio*(expires_at-issued_at), retrying
// failures with jitter up to maxRetries before giving up.
type Manager struct {
	mu     sync.RWMutex
	bundle Bundle
	healthy bool

	safetyRatio float64
	maxRetries  int
	jitterMax   time.Duration
	reauth      ReAuthFunc
	logger      *slog.Logger

	group singleflight.Group
}

// Config mirrors the TOKEN_* environment keys.
type Config struct {
	SafetyRatio      float64
	ReauthMaxRetries int
	ReauthJitterMs   time.Duration
}

func New(initial Bundle, cfg Config, reauth ReAuthFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SafetyRatio <= 0 {
		cfg.SafetyRatio = 0.75
	}
	if cfg.ReauthMaxRetries <= 0 {
		cfg.ReauthMaxRetries = 3
	}
	if cfg.ReauthJitterMs <= 0 {
		cfg.ReauthJitterMs = 500 * time.Millisecond
	}
	return &Manager{
		bundle:      initial,
		healthy:     true,
		safetyRatio: cfg.SafetyRatio,
		maxRetries:  cfg.ReauthMaxRetries,
		jitterMax:   cfg.ReauthJitterMs,
		reauth:      reauth,
		logger:      logger,
	}
}

// Token returns the current node-level bearer token.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bundle.Token
}

// Healthy reports whether rotation last succeeded; once retries are
// exhausted the node should refuse further leases until rotation
// succeeds again.
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

func (m *Manager) rotateAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	window := m.bundle.ExpiresAt.Sub(m.bundle.IssuedAt)
	return m.bundle.IssuedAt.Add(time.Duration(float64(window) * m.safetyRatio))
}

// Run drives the proactive rotation schedule until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		wait := time.Until(m.rotateAt())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}
		_ = m.rotateWithRetry(ctx)
	}
}

func (m *Manager) rotateWithRetry(ctx context.Context) error {
	_, err, _ := m.group.Do("rotate", func() (any, error) {
		var lastErr error
		for attempt := 0; attempt <= m.maxRetries; attempt++ {
			if attempt > 0 {
				delay := jitter.Delay(0, m.jitterMax)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
			}
			bundle, err := m.reauth(ctx)
			if err == nil {
				m.mu.Lock()
				m.bundle = bundle
				m.healthy = true
				m.mu.Unlock()
				return nil, nil
			}
			lastErr = err
			m.logger.Warn("token rotation attempt failed", "attempt", attempt, "error", err)
		}
		m.mu.Lock()
		m.healthy = false
		m.mu.Unlock()
		return nil, nodeerrors.NewRotationError(lastErr.Error())
	})
	return err
}
