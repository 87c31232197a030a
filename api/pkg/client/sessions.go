package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/floorlinehq/floorline/api/pkg/types"
)

// DowntimeFilter narrows a downtime listing. Zero-value fields are not
// sent.
type DowntimeFilter struct {
	ResourceKey string
	MachineName string
	Shift       types.Shift
	Date        string
	Since       time.Time
}

func sessionPath(resourceKey, suffix string) string {
	return "/sessions/" + url.PathEscape(resourceKey) + suffix
}

func (c *FloorlineClient) ListSessions(ctx context.Context) ([]types.CaptureSession, error) {
	var sessions []types.CaptureSession
	if err := c.makeRequest(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *FloorlineClient) GetSession(ctx context.Context, resourceKey string) (*types.CaptureSession, error) {
	var snapshot types.CaptureSession
	if err := c.makeRequest(ctx, http.MethodGet, sessionPath(resourceKey, ""), nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *FloorlineClient) CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.CaptureSession, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var snapshot types.CaptureSession
	if err := c.makeRequest(ctx, http.MethodPost, "/sessions", bytes.NewReader(payload), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *FloorlineClient) AbandonSession(ctx context.Context, resourceKey string) (*types.CaptureSession, error) {
	var snapshot types.CaptureSession
	if err := c.makeRequest(ctx, http.MethodDelete, sessionPath(resourceKey, ""), nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *FloorlineClient) SubmitSession(ctx context.Context, resourceKey string) (*types.CaptureSession, error) {
	var snapshot types.CaptureSession
	if err := c.makeRequest(ctx, http.MethodPost, sessionPath(resourceKey, "/submit"), nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *FloorlineClient) StartTimer(ctx context.Context, resourceKey string) (*types.CaptureSession, error) {
	var snapshot types.CaptureSession
	if err := c.makeRequest(ctx, http.MethodPost, sessionPath(resourceKey, "/start"), nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *FloorlineClient) PauseTimer(ctx context.Context, resourceKey string) (*types.CaptureSession, error) {
	var snapshot types.CaptureSession
	if err := c.makeRequest(ctx, http.MethodPost, sessionPath(resourceKey, "/pause"), nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *FloorlineClient) ResumeTimer(ctx context.Context, resourceKey, reason string) (*types.CaptureSession, error) {
	payload, err := json.Marshal(types.ResumeTimerRequest{Reason: reason})
	if err != nil {
		return nil, err
	}

	var snapshot types.CaptureSession
	if err := c.makeRequest(ctx, http.MethodPost, sessionPath(resourceKey, "/resume"), bytes.NewReader(payload), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *FloorlineClient) CheckConflict(ctx context.Context, resourceKey string) (*types.ConflictCheck, error) {
	var check types.ConflictCheck
	if err := c.makeRequest(ctx, http.MethodGet, "/leases/"+url.PathEscape(resourceKey)+"/conflict", nil, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

func (c *FloorlineClient) GetTimerMirror(ctx context.Context, resourceKey string) (*types.TimerMirror, error) {
	var mirror types.TimerMirror
	if err := c.makeRequest(ctx, http.MethodGet, "/timers/"+url.PathEscape(resourceKey)+"/mirror", nil, &mirror); err != nil {
		return nil, err
	}
	return &mirror, nil
}

func (c *FloorlineClient) ListDowntime(ctx context.Context, f *DowntimeFilter) ([]*types.DowntimeRecord, error) {
	path := "/downtime"

	if f != nil {
		query := url.Values{}
		if f.ResourceKey != "" {
			query.Set("resource_key", f.ResourceKey)
		}
		if f.MachineName != "" {
			query.Set("machine", f.MachineName)
		}
		if f.Shift != "" {
			query.Set("shift", f.Shift.String())
		}
		if f.Date != "" {
			query.Set("date", f.Date)
		}
		if !f.Since.IsZero() {
			query.Set("since", f.Since.Format(time.RFC3339))
		}
		if encoded := query.Encode(); encoded != "" {
			path += "?" + encoded
		}
	}

	var records []*types.DowntimeRecord
	if err := c.makeRequest(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}
