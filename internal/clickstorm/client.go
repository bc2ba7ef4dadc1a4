// Package clickstorm drives a running engine over HTTP: it fires bursts of
// concurrent star changes at one cell and checks that none were lost, and
// wraps the operational endpoints used by starctl.
package clickstorm

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

	"github.com/hashicorp/go-retryablehttp"
	"github.com/okian/starboard/pkg/logger"
	"github.com/tidwall/gjson"
)

// Default client settings.
const (
	defaultTimeout  = 10 * time.Second
	defaultRetryMax = 4
	maxBodyBytes    = 4 << 20
)

// Client talks to the engine API.
type Client struct {
	baseURL  string
	http     *retryablehttp.Client
	logger   logger.Logger
	timeout  time.Duration
	retryMax int
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryMax sets how many times a request is retried.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryMax = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the engine at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  defaultTimeout,
		retryMax: defaultRetryMax,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = c.retryMax
	rc.RetryWaitMin = 10 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.HTTPClient.Timeout = c.timeout
	rc.Logger = leveled{c.logger}
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.http = rc
	return c
}

// checkRetry adds exhausted compare-and-set conflicts to the default policy.
// Star changes carry an idempotency key so a retried POST applies once.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusConflict {
		return true, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

// Delta is one star change sent to POST /stars.
type Delta struct {
	TeamID     string  `json:"team_id"`
	LocationID string  `json:"location_id"`
	Delta      float64 `json:"delta"`
	ActorID    string  `json:"actor_id,omitempty"`
	RequestID  string  `json:"request_id,omitempty"`
}

// ApplyDelta posts one star change and returns the parsed result.
func (c *Client) ApplyDelta(ctx context.Context, d Delta) (gjson.Result, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode delta: %w", err)
	}
	headers := map[string]string{}
	if d.RequestID != "" {
		headers["Idempotency-Key"] = d.RequestID
	}
	return c.do(ctx, http.MethodPost, "/stars", body, headers)
}

// Stars reads the stars of one cell from GET /locations/{id}/cells.
func (c *Client) Stars(ctx context.Context, teamID, locationID string) (float64, error) {
	res, err := c.do(ctx, http.MethodGet, "/locations/"+url.PathEscape(locationID)+"/cells", nil, nil)
	if err != nil {
		return 0, err
	}
	cell := res.Get(`#(team_id==` + strconv.Quote(teamID) + `)`)
	if !cell.Exists() {
		return 0, fmt.Errorf("team %q has no cell at %q", teamID, locationID)
	}
	return cell.Get("stars").Float(), nil
}

// LogFilter narrows GET /logs.
type LogFilter struct {
	SessionID  string
	TeamID     string
	LocationID string
	Source     string
	Limit      int
}

// Logs returns the matching entries and the total number of matches.
func (c *Client) Logs(ctx context.Context, f LogFilter) ([]gjson.Result, int, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"session_id":  f.SessionID,
		"team_id":     f.TeamID,
		"location_id": f.LocationID,
		"source":      f.Source,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	res, err := c.do(ctx, http.MethodGet, "/logs?"+q.Encode(), nil, nil)
	if err != nil {
		return nil, 0, err
	}
	return res.Get("entries").Array(), int(res.Get("total").Int()), nil
}

// ActiveEffects lists the effects in force for a session.
func (c *Client) ActiveEffects(ctx context.Context, sessionID, teamID string) ([]gjson.Result, error) {
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	if teamID != "" {
		q.Set("team_id", teamID)
	}
	res, err := c.do(ctx, http.MethodGet, "/effects?"+q.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	return res.Array(), nil
}

// Sweep closes expired effects and returns how many were closed.
func (c *Client) Sweep(ctx context.Context) (int, error) {
	res, err := c.do(ctx, http.MethodPost, "/effects/sweep", nil, nil)
	if err != nil {
		return 0, err
	}
	return int(res.Get("closed").Int()), nil
}

// Recompute recomputes ranking points at a location.
func (c *Client) Recompute(ctx context.Context, locationID string) error {
	_, err := c.do(ctx, http.MethodPost, "/locations/"+url.PathEscape(locationID)+"/recompute", nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string) (gjson.Result, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug(ctx, "failed to close response body", logger.Error(err))
		}
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(raw, "message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return gjson.Result{}, fmt.Errorf("%w: %s %s: %d %s", ErrStatus, method, path, resp.StatusCode, msg)
	}
	return gjson.ParseBytes(raw), nil
}

// leveled adapts logger.Logger to retryablehttp.LeveledLogger.
type leveled struct {
	l logger.Logger
}

func (l leveled) Error(msg string, kv ...any) { l.l.Error(context.Background(), msg, fields(kv)...) }
func (l leveled) Info(msg string, kv ...any)  { l.l.Debug(context.Background(), msg, fields(kv)...) }
func (l leveled) Debug(msg string, kv ...any) { l.l.Debug(context.Background(), msg, fields(kv)...) }
func (l leveled) Warn(msg string, kv ...any)  { l.l.Warn(context.Background(), msg, fields(kv)...) }

func fields(kv []any) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, logger.Any(key, kv[i+1]))
	}
	return out
}
