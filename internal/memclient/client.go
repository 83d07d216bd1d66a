// Package memclient talks to the upstream memory store's HTTP actions.
package memclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/memory-agent/internal/models"
)

// ErrProtocol marks a reply whose shape does not match the expected contract.
var ErrProtocol = errors.New("protocol error")

// HTTPError is returned for non-2xx replies.
type HTTPError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s: %s", e.StatusCode, e.Path, e.Body)
}

// ActionLog is the payload sent to the outcome log endpoint.
type ActionLog struct {
	ActionType    string         `json:"actionType"`
	Status        string         `json:"status"`
	MemoryID      *string        `json:"memoryId"`
	MemorySummary string         `json:"memorySummary"`
	Details       map[string]any `json:"details"`
}

// NewActionLog builds the log payload for one outcome of one record.
func NewActionLog(rec models.Record, outcome models.Outcome) ActionLog {
	details := outcome.Detail
	if details == nil {
		details = map[string]any{}
	}
	return ActionLog{
		ActionType:    outcome.Category.ActionName(),
		Status:        string(outcome.Status),
		MemoryID:      rec.ID,
		MemorySummary: rec.Summary,
		Details:       details,
	}
}

// Client is the HTTP client for the upstream memory store.
// Calls are not retried; the poll loop retries whole iterations.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a client. A nil httpClient gets one with the given timeout.
func New(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// WithLogger sets the logger used to report skipped records.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

type fetchRequest struct {
	Since float64 `json:"since"`
	Limit int     `json:"limit"`
}

// FetchSince lists records created after since (milliseconds), at most limit of them.
func (c *Client) FetchSince(ctx context.Context, since float64, limit int) ([]models.Record, error) {
	var out struct {
		Memories json.RawMessage `json:"memories"`
	}
	if err := c.postJSON(ctx, "/memories/since", fetchRequest{Since: since, Limit: limit}, &out); err != nil {
		return nil, err
	}
	if len(out.Memories) == 0 || string(out.Memories) == "null" {
		return nil, nil
	}
	if trimmed := bytes.TrimSpace(out.Memories); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: /memories/since returned non-array memories", ErrProtocol)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(out.Memories, &items); err != nil {
		return nil, fmt.Errorf("%w: decode memories: %v", ErrProtocol, err)
	}

	// Items are decoded individually; null or undecodable items are skipped.
	records := make([]models.Record, 0, len(items))
	for i, item := range items {
		if trimmed := bytes.TrimSpace(item); len(trimmed) == 0 || string(trimmed) == "null" {
			c.logger.Warn("skipping null memory", "index", i)
			continue
		}
		var rec models.Record
		if err := json.Unmarshal(item, &rec); err != nil {
			c.logger.Warn("skipping undecodable memory", "index", i, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// LogAction reports one action outcome. The reply body is ignored.
func (c *Client) LogAction(ctx context.Context, entry ActionLog) error {
	return c.postJSON(ctx, "/agent-actions/log", entry, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("network error for %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response for %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrProtocol, path, err)
	}
	return nil
}
