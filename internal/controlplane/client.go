package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/timereports/internal/dispatch"
	"github.com/fentz26/timereports/internal/events"
	"github.com/fentz26/timereports/internal/models"
	"github.com/fentz26/timereports/internal/recovery"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// APIError is a non-2xx response. It unwraps to the matching sentinel, so
// errors.Is(err, ErrDuplicateAlarm) works on the client side too.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return codeError(e.Code) }

// Client wraps HTTP calls to the timereports daemon.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
	}
}

// BaseURL returns the daemon address.
func (c *Client) BaseURL() string { return c.baseURL }

// Health returns the health payload. On a 503 the payload is returned
// together with an error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("daemon unhealthy (%d): db=%s", resp.StatusCode, health.DB)
	}
	return &health, nil
}

// ListAlarms fetches alarms sorted by time.
func (c *Client) ListAlarms(ctx context.Context) ([]models.Alarm, error) {
	var alarms []models.Alarm
	err := c.do(ctx, http.MethodGet, "/alarms", nil, &alarms)
	return alarms, err
}

// AddAlarm creates a new alarm.
func (c *Client) AddAlarm(ctx context.Context, clock, kind string) (*AddResult, error) {
	var res AddResult
	if err := c.do(ctx, http.MethodPost, "/alarms", addAlarmRequest{Time: clock, Type: kind}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RemoveAlarm deletes an alarm.
func (c *Client) RemoveAlarm(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/alarms/"+url.PathEscape(id), nil, nil)
}

// RearmAlarm re-activates a fired alarm.
func (c *Client) RearmAlarm(ctx context.Context, id string) (*AddResult, error) {
	var res AddResult
	if err := c.do(ctx, http.MethodPost, "/alarms/"+url.PathEscape(id)+"/rearm", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FireAlarm asks the daemon to dispatch id.
func (c *Client) FireAlarm(ctx context.Context, id string, trigger dispatch.Trigger) (*dispatch.Result, error) {
	var res dispatch.Result
	body := fireRequest{Trigger: string(trigger)}
	if err := c.do(ctx, http.MethodPost, "/alarms/"+url.PathEscape(id)+"/fire", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Boot runs boot recovery in the daemon.
func (c *Client) Boot(ctx context.Context) (*recovery.Report, error) {
	var rep recovery.Report
	if err := c.do(ctx, http.MethodPost, "/boot", nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Events returns feed entries newer than after.
func (c *Client) Events(ctx context.Context, after uint64) ([]events.Event, error) {
	var res EventsResponse
	err := c.do(ctx, http.MethodGet, "/events?after="+strconv.FormatUint(after, 10), nil, &res)
	return res.Events, err
}

// Audit returns recent audit records.
func (c *Client) Audit(ctx context.Context, limit int) ([]models.PDREntry, error) {
	var entries []models.PDREntry
	err := c.do(ctx, http.MethodGet, "/audit?limit="+strconv.Itoa(limit), nil, &entries)
	return entries, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var parsed apiError
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Error
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
