// Package dms is the typed HTTP client for the Dispatcher/Monitoring
// Service: lease-by-capability, heartbeat, complete, fail. Every call
// carries the node-level bearer token supplied by the token manager.
package dms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	nodeerrors "github.com/aukilabs/compute-node/internal/errors"
	"github.com/aukilabs/compute-node/internal/runnerapi"
)

// TokenSource returns the current node-level bearer token.
type TokenSource func() string

type Client struct {
	paths      Paths
	httpClient *http.Client
	token      TokenSource
}

func New(base *url.URL, httpClient *http.Client, token TokenSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{paths: NewPaths(base), httpClient: httpClient, token: token}
}

// LeaseByCapability performs GET /tasks?capability=<cap>. A 204 or empty
// body is reported as (nil, nil) — no work available.
func (c *Client) LeaseByCapability(ctx context.Context, capability string) (*runnerapi.LeaseEnvelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.paths.TasksWithCapability(capability).String(), nil)
	if err != nil {
		return nil, nodeerrors.NewDmsTransport(err.Error())
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nodeerrors.NewDmsUnauthorized()
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nodeerrors.NewDmsHTTP(fmt.Sprintf("%d: %s", resp.StatusCode, string(body)))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var lease runnerapi.LeaseEnvelope
	if err := json.Unmarshal(body, &lease); err != nil {
		return nil, nodeerrors.NewDmsHTTP(fmt.Sprintf("decode lease: %s", err))
	}
	return &lease, nil
}

// Heartbeat performs POST /tasks/{id}/heartbeat and returns the refreshed
// envelope.
func (c *Client) Heartbeat(ctx context.Context, taskID uuid.UUID, req HeartbeatRequest) (*runnerapi.LeaseEnvelope, error) {
	var lease runnerapi.LeaseEnvelope
	if err := c.postJSON(ctx, c.paths.Heartbeat(taskID), req, &lease); err != nil {
		return nil, err
	}
	return &lease, nil
}

// Complete performs POST /tasks/{id}/complete.
func (c *Client) Complete(ctx context.Context, taskID uuid.UUID, req CompleteTaskRequest) error {
	return c.postJSON(ctx, c.paths.Complete(taskID), req, nil)
}

// Fail performs POST /tasks/{id}/fail.
func (c *Client) Fail(ctx context.Context, taskID uuid.UUID, req FailTaskRequest) error {
	return c.postJSON(ctx, c.paths.Fail(taskID), req, nil)
}

func (c *Client) postJSON(ctx context.Context, u *url.URL, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return nodeerrors.NewDmsTransport(err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nodeerrors.NewDmsTransport(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nodeerrors.NewDmsUnauthorized()
	}
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nodeerrors.NewDmsHTTP(fmt.Sprintf("%d: %s", resp.StatusCode, string(respBody)))
	}
	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nodeerrors.NewDmsHTTP(fmt.Sprintf("decode response: %s", err))
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token == nil {
		return
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func classifyTransportError(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nodeerrors.NewDmsTimeout()
	}
	return nodeerrors.NewDmsTransport(err.Error())
}
