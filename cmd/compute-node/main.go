// Command compute-node runs the task-lifecycle engine: it loads
// NodeConfig, registers runners, and drives the poller, token manager, and
// registration server until interrupted. The poller, HTTP server, and
// token manager loops are coordinated by golang.org/x/sync/errgroup so any
// one of their failures tears down the whole process.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/aukilabs/compute-node/internal/config"
	"github.com/aukilabs/compute-node/internal/dms"
	"github.com/aukilabs/compute-node/internal/httpapi"
	"github.com/aukilabs/compute-node/internal/noop"
	"github.com/aukilabs/compute-node/internal/poller"
	"github.com/aukilabs/compute-node/internal/registry"
	"github.com/aukilabs/compute-node/internal/runnerapi"
	"github.com/aukilabs/compute-node/internal/session"
	"github.com/aukilabs/compute-node/internal/telemetry"
	"github.com/aukilabs/compute-node/internal/tokenmanager"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger isn't built yet since LOG_FORMAT comes from cfg;
		// fall back to a default JSON logger just for this one line.
		telemetry.NewLogger(telemetry.LogFormatJSON).Error("config error", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(telemetry.LogFormat(cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("compute-node exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.NodeConfig, logger *slog.Logger) error {
	dmsBase, err := url.Parse(cfg.DMSBaseURL)
	if err != nil {
		return fmt.Errorf("parse DMS_BASE_URL: %w", err)
	}
	ddsBase, err := url.Parse(cfg.DDSBaseURL)
	if err != nil {
		return fmt.Errorf("parse DDS_BASE_URL: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	metricsReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(metricsReg)

	tm := tokenmanager.New(
		tokenmanager.Bundle{
			Token:     cfg.RegSecret,
			IssuedAt:  time.Now(),
			ExpiresAt: time.Now().Add(cfg.RequestTimeout + time.Hour),
		},
		tokenmanager.Config{
			SafetyRatio:      cfg.TokenSafetyRatio,
			ReauthMaxRetries: cfg.TokenReauthMaxRetries,
			ReauthJitterMs:   cfg.TokenReauthJitterMs,
		},
		ddsReauth(httpClient, ddsBase, cfg.NodeURL, cfg.RegSecret),
		logger,
	)

	dmsClient := dms.New(dmsBase, httpClient, tm.Token)

	reg := registry.New()
	if cfg.EnableNoop {
		reg.Register(noop.New(noop.CapabilityDefault, cfg.NoopSleepSecs))
		reg.Register(noop.New(noop.CapabilityLocal, cfg.NoopSleepSecs))
		reg.Register(noop.New(noop.CapabilityGlobal, cfg.NoopSleepSecs))
	}

	sess := session.New(dmsClient, reg, session.Config{
		HeartbeatJitter: cfg.HeartbeatJitter,
		HTTPClient:      httpClient,
	}, logger, metrics)

	leaser := &meteredLeaser{inner: dmsClient, metrics: metrics, tokens: tm}
	p := poller.New(leaser, reg, poller.Config{
		BackoffMin:        cfg.PollBackoffMin,
		BackoffMax:        cfg.PollBackoffMax,
		MaxConcurrency:    cfg.MaxConcurrency,
		NodeRatePerSecond: cfg.NodeRatePerSecond,
	}, func(taskCtx context.Context, lease runnerapi.LeaseEnvelope, done func()) {
		go func() {
			defer done()
			sess.Run(taskCtx, lease)
		}()
	})

	router := httpapi.NewRouter(logger, metrics)
	server := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tm.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		return serveUntilCancelled(gctx, server)
	})

	return g.Wait()
}

func serveUntilCancelled(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// meteredLeaser wraps the DMS client to record poll latency and to refuse
// leases while the node's bearer token is unhealthy, without threading
// telemetry or the token manager through the poller package itself.
type meteredLeaser struct {
	inner   *dms.Client
	metrics *telemetry.Metrics
	tokens  *tokenmanager.Manager
}

func (m *meteredLeaser) LeaseByCapability(ctx context.Context, capability string) (*runnerapi.LeaseEnvelope, error) {
	if m.tokens != nil && !m.tokens.Healthy() {
		return nil, nil
	}
	start := time.Now()
	lease, err := m.inner.LeaseByCapability(ctx, capability)
	m.metrics.ObservePollLatency(time.Since(start))
	return lease, err
}

// ddsReauth stands in for the SIWE/secp256k1 attestation handshake, which
// lives outside this process: it posts the registration secret to DDS and
// treats the response as a fresh node-level bundle. The signed-attestation
// protocol itself is out of scope for this repo.
func ddsReauth(client *http.Client, base *url.URL, nodeURL, regSecret string) tokenmanager.ReAuthFunc {
	type reauthResponse struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	return func(ctx context.Context) (tokenmanager.Bundle, error) {
		u := *base
		u.Path = joinURLPath(u.Path, "/api/v1/nodes/auth")
		body, err := json.Marshal(map[string]string{"node_url": nodeURL, "secret": regSecret})
		if err != nil {
			return tokenmanager.Bundle{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
		if err != nil {
			return tokenmanager.Bundle{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return tokenmanager.Bundle{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return tokenmanager.Bundle{}, fmt.Errorf("dds auth: unexpected status %d", resp.StatusCode)
		}

		var decoded reauthResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return tokenmanager.Bundle{}, fmt.Errorf("decode dds auth response: %w", err)
		}
		return tokenmanager.Bundle{Token: decoded.Token, IssuedAt: time.Now(), ExpiresAt: decoded.ExpiresAt}, nil
	}
}

func joinURLPath(a, b string) string {
	if len(a) > 0 && a[len(a)-1] == '/' {
		a = a[:len(a)-1]
	}
	if len(b) > 0 && b[0] != '/' {
		b = "/" + b
	}
	return a + b
}
