// Package client is the programmatic surface of a capture agent's HTTP
// API, used by the CLI subcommands and by anything else on the device
// that needs to drive sessions.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/system"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

type Client interface {
	Health(ctx context.Context) (*types.AgentHealth, error)
	Config(ctx context.Context) (*types.AgentConfig, error)

	ListSessions(ctx context.Context) ([]types.CaptureSession, error)
	GetSession(ctx context.Context, resourceKey string) (*types.CaptureSession, error)
	CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.CaptureSession, error)
	AbandonSession(ctx context.Context, resourceKey string) (*types.CaptureSession, error)
	SubmitSession(ctx context.Context, resourceKey string) (*types.CaptureSession, error)

	StartTimer(ctx context.Context, resourceKey string) (*types.CaptureSession, error)
	PauseTimer(ctx context.Context, resourceKey string) (*types.CaptureSession, error)
	ResumeTimer(ctx context.Context, resourceKey, reason string) (*types.CaptureSession, error)

	CheckConflict(ctx context.Context, resourceKey string) (*types.ConflictCheck, error)
	GetTimerMirror(ctx context.Context, resourceKey string) (*types.TimerMirror, error)
	ListDowntime(ctx context.Context, f *DowntimeFilter) ([]*types.DowntimeRecord, error)
}

// FloorlineClient talks to one agent over its loopback API.
type FloorlineClient struct {
	httpClient *http.Client
	url        string
}

const (
	DefaultURL = "http://127.0.0.1:8844"
)

func NewClientFromEnv() (*FloorlineClient, error) {
	cfg, err := config.LoadCliConfig()
	if err != nil {
		return nil, err
	}

	return NewClient(cfg.URL)
}

func NewClient(url string) (*FloorlineClient, error) {
	if url == "" {
		url = DefaultURL
	}

	if !strings.HasSuffix(url, "/api/v1") {
		// append /api/v1 to the url
		url = url + "/api/v1"
	}

	return &FloorlineClient{
		httpClient: system.NewRetryClient(3).StandardClient(),
		url:        url,
	}, nil
}

func (c *FloorlineClient) makeRequest(ctx context.Context, method, path string, body io.Reader, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bts, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("status code %d", resp.StatusCode)
		}
		return fmt.Errorf("status code %d (%s)", resp.StatusCode, strings.TrimSpace(string(bts)))
	}

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}

	return nil
}

func (c *FloorlineClient) Health(ctx context.Context) (*types.AgentHealth, error) {
	var health types.AgentHealth
	if err := c.makeRequest(ctx, http.MethodGet, "/healthz", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *FloorlineClient) Config(ctx context.Context) (*types.AgentConfig, error) {
	var agentConfig types.AgentConfig
	if err := c.makeRequest(ctx, http.MethodGet, "/config", nil, &agentConfig); err != nil {
		return nil, err
	}
	return &agentConfig, nil
}
