package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scriptreel/internal/api"
)

// ErrUnavailable reports that no daemon answered at the configured address.
var ErrUnavailable = errors.New("daemon API unavailable")

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Kind       string
	Message    string
	Hint       string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Hint != "" {
		return fmt.Sprintf("%s (%s)", msg, e.Hint)
	}
	return msg
}

// Client calls the daemon API.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	timeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithTimeout bounds unary calls. Streaming calls are bounded by their
// context only.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for the daemon listening on bind. A bare host:port
// is treated as http.
func New(bind string, opts ...Option) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, fmt.Errorf("%w: api_bind is not configured", ErrUnavailable)
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	c := &Client{base: base, http: &http.Client{}, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the daemon address the client targets.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var out api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit starts a generation.
func (c *Client) Submit(ctx context.Context, req api.StartRequest) (*api.StartResponse, error) {
	var out api.StartResponse
	if err := c.do(ctx, http.MethodPost, "/api/generations", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generation fetches one generation.
func (c *Client) Generation(ctx context.Context, id string) (*api.Generation, error) {
	var out api.Generation
	if err := c.do(ctx, http.MethodGet, generationPath(id, ""), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns generations, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses ...string) ([]api.Generation, error) {
	query := url.Values{}
	for _, status := range statuses {
		if s := strings.TrimSpace(status); s != "" {
			query.Add("status", s)
		}
	}
	var out api.GenerationListResponse
	if err := c.do(ctx, http.MethodGet, "/api/generations", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Generations, nil
}

// Assets lists a generation's assets, optionally of one kind.
func (c *Client) Assets(ctx context.Context, id, kind string) ([]api.Asset, error) {
	query := url.Values{}
	if kind = strings.TrimSpace(kind); kind != "" {
		query.Set("kind", kind)
	}
	var out api.AssetListResponse
	if err := c.do(ctx, http.MethodGet, generationPath(id, "/assets"), query, nil, &out); err != nil {
		return nil, err
	}
	return out.Assets, nil
}

// Cancel cancels a generation and returns its new state.
func (c *Client) Cancel(ctx context.Context, id string) (*api.Generation, error) {
	var out api.Generation
	if err := c.do(ctx, http.MethodPost, generationPath(id, "/cancel"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetQualityTier changes the tier of a pending generation.
func (c *Client) SetQualityTier(ctx context.Context, id, tier string) (*api.Generation, error) {
	var out api.Generation
	if err := c.do(ctx, http.MethodPut, generationPath(id, "/tier"), nil, api.TierRequest{QualityTier: tier}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LogQuery selects daemon log events.
type LogQuery struct {
	Since      uint64
	Limit      int
	Follow     bool
	Tail       bool
	Generation string
	Component  string
}

// Logs fetches one page of daemon log events. With Follow set the daemon
// holds the request until new events arrive.
func (c *Client) Logs(ctx context.Context, q LogQuery) (*api.LogStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if s := strings.TrimSpace(q.Generation); s != "" {
		values.Set("generation", s)
	}
	if s := strings.TrimSpace(q.Component); s != "" {
		values.Set("component", s)
	}
	var out api.LogStreamResponse
	if err := c.send(ctx, http.MethodGet, "/api/logs", values, nil, &out, !q.Follow); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return c.send(ctx, method, path, query, body, out, true)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out any, bounded bool) error {
	if bounded && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.request(ctx, method, path, query, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return nil, fmt.Errorf("%w at %s: %v", ErrUnavailable, c.base.Host, err)
		}
		return nil, err
	}
	return resp, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	apiErr := &Error{StatusCode: resp.StatusCode}
	var payload api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err == nil {
		apiErr.Kind = payload.Kind
		apiErr.Message = payload.Error
		apiErr.Hint = payload.Hint
	}
	return apiErr
}

func generationPath(id, suffix string) string {
	return "/api/generations/" + url.PathEscape(strings.TrimSpace(id)) + suffix
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsStatus reports whether err is an API error with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
