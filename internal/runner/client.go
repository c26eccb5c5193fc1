package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ControlPlane is the client interface the executor reports through.
type ControlPlane interface {
	UpdateStatus(ctx context.Context, status string, errorDetail *string) error
	Heartbeat(ctx context.Context) error
	AppendLogs(ctx context.Context, lines []LogLine) error
	UploadArtifact(ctx context.Context, name string, data []byte, contentType string) error
}

// LogLine mirrors the reporting surface's wire format.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

var _ ControlPlane = (*client)(nil)

type client struct {
	baseURL string
	jobID   string
	token   string
	http    *http.Client
}

func NewClient(cfg *Config) ControlPlane {
	return &client{
		baseURL: cfg.APIURL,
		jobID:   cfg.JobID,
		token:   cfg.Token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) UpdateStatus(ctx context.Context, status string, errorDetail *string) error {
	body, err := json.Marshal(map[string]any{"status": status, "error": errorDetail})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/runner/api/v1/jobs/%s/status", c.jobID), body, "application/json")
}

func (c *client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/runner/api/v1/jobs/%s/heartbeat", c.jobID), nil, "application/json")
}

func (c *client) AppendLogs(ctx context.Context, lines []LogLine) error {
	body, err := json.Marshal(map[string]any{"lines": lines})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/runner/api/v1/jobs/%s/logs", c.jobID), body, "application/json")
}

func (c *client) UploadArtifact(ctx context.Context, name string, data []byte, contentType string) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/runner/api/v1/jobs/%s/artifacts/%s", c.jobID, name), data, contentType)
}

func (c *client) do(ctx context.Context, method, path string, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s failed: %s: %s", method, path, resp.Status, string(msg))
	}
	return nil
}
