package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options parameterise the state gateway client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client reads live values and history from the state gateway's HTTP API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a gateway client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "source_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// ReadValue fetches the current value of one object. The gateway answers
// GET /get/<id> with {"val": <scalar>}.
func (c *Client) ReadValue(ctx context.Context, objectID string) (any, error) {
	if objectID == "" {
		return nil, errors.New("objectId required")
	}
	if c.baseURL == "" {
		return nil, errors.New("source base url not configured")
	}

	endpoint := c.baseURL + "/get/" + url.PathEscape(objectID)
	payload, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var state struct {
		Val any `json:"val"`
	}
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", objectID, err)
	}
	return state.Val, nil
}

// ReadHistory fetches an averaged series over the given window. The gateway
// answers GET /history/<id> with [{"ts": <epochMillis>, "val": <number>}].
// Entries without a finite numeric value are dropped.
func (c *Client) ReadHistory(ctx context.Context, instance, objectID string, window, step time.Duration) ([]Sample, error) {
	if objectID == "" || instance == "" {
		return nil, errors.New("instance and objectId required")
	}
	if c.baseURL == "" {
		return nil, errors.New("source base url not configured")
	}
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}

	end := time.Now().UTC()
	start := end.Add(-window)

	query := url.Values{}
	query.Set("instance", instance)
	query.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	query.Set("end", strconv.FormatInt(end.UnixMilli(), 10))
	if step > 0 {
		query.Set("step", strconv.FormatInt(step.Milliseconds(), 10))
	}
	query.Set("aggregate", "average")

	endpoint := c.baseURL + "/history/" + url.PathEscape(objectID) + "?" + query.Encode()
	payload, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		TS  int64 `json:"ts"`
		Val any   `json:"val"`
	}
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", objectID, err)
	}

	samples := make([]Sample, 0, len(entries))
	for _, entry := range entries {
		num, ok := entry.Val.(float64)
		if !ok || math.IsNaN(num) || math.IsInf(num, 0) {
			continue
		}
		samples = append(samples, Sample{
			Timestamp: time.UnixMilli(entry.TS).UTC(),
			Value:     num,
		})
	}
	return samples, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	return payload, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("gateway error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("gateway error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("gateway error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("gateway error (%d)", status)
}

var _ ValueReader = (*Client)(nil)
var _ HistoryReader = (*Client)(nil)
