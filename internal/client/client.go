// Package client is the operator-side API client. It implements the converge interfaces so the
// CLI can enqueue actions and wait for them over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mfa-orphans/internal/action/domain"
	"mfa-orphans/internal/api"
	statusdomain "mfa-orphans/internal/mfastatus/domain"
	"mfa-orphans/internal/mfastatus/reader"
	"mfa-orphans/internal/orphan"
)

// ErrUnauthorized is returned when the API rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

const (
	defaultTimeout    = 15 * time.Second
	defaultRetries    = 2
	defaultRetryDelay = 500 * time.Millisecond
	maxResponseBytes  = 8 << 20
)

// APIError is a non-success response that does not map to a core error.
type APIError struct {
	Status int
	Body   api.ErrorBody
}

func (e *APIError) Error() string {
	if e.Body.Error != "" {
		return fmt.Sprintf("api: %d: %s", e.Status, e.Body.Error)
	}
	return fmt.Sprintf("api: unexpected status %d", e.Status)
}

// Client talks to the operator API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithRetries sets how often idempotent reads are retried on transport errors and 5xx.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *Client) { c.retries, c.retryDelay = n, delay }
}

// New returns a Client for baseURL authenticating with token (may be empty when auth is disabled).
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retries:    defaultRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enqueue queues one action. It is never retried: a retry could queue a duplicate.
func (c *Client) Enqueue(ctx context.Context, req domain.Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	status, raw, err := c.do(ctx, http.MethodPost, "/api/mfa/actions", body, 0)
	if err != nil {
		return "", err
	}
	if status != http.StatusAccepted {
		return "", decodeError(status, raw)
	}
	var out api.EnqueueResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("client: decode enqueue response: %w", err)
	}
	return out.ActionID, nil
}

// BulkEnqueue queues reqs in one call. Per-item failures are reported in the response.
func (c *Client) BulkEnqueue(ctx context.Context, reqs []domain.Request) (*api.BulkResponse, error) {
	body, err := json.Marshal(api.BulkRequest{Actions: reqs})
	if err != nil {
		return nil, err
	}
	status, raw, err := c.do(ctx, http.MethodPost, "/api/mfa/actions/bulk", body, 0)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(status, raw)
	}
	var out api.BulkResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("client: decode bulk response: %w", err)
	}
	return &out, nil
}

// StatusRaw returns the snapshot document verbatim, or reader.ErrNoSnapshot.
func (c *Client) StatusRaw(ctx context.Context) ([]byte, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/api/mfa/status", nil, c.retries)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		return raw, nil
	case http.StatusNotFound:
		return nil, reader.ErrNoSnapshot
	default:
		return nil, decodeError(status, raw)
	}
}

// Snapshot returns the parsed snapshot, or (nil, nil) when none is published yet.
func (c *Client) Snapshot(ctx context.Context) (*statusdomain.Snapshot, error) {
	raw, err := c.StatusRaw(ctx)
	if errors.Is(err, reader.ErrNoSnapshot) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reader.Parse(raw)
}

// FetchResult returns the result for id, domain.ErrNotReady while pending, or domain.ErrNotFound.
// The server's success verdict is folded into Success when the worker omitted the flag.
func (c *Client) FetchResult(ctx context.Context, id string) (*domain.Result, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/api/mfa/results/"+url.PathEscape(id), nil, c.retries)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusAccepted:
		return nil, domain.ErrNotReady
	case http.StatusNotFound:
		return nil, domain.ErrNotFound
	default:
		return nil, decodeError(status, raw)
	}
	var rr api.ResultResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("client: decode result: %w", err)
	}
	res, err := domain.ParseResult(rr.Result)
	if err != nil {
		return nil, fmt.Errorf("client: decode result document: %w", err)
	}
	if res.Success == nil {
		switch rr.Outcome {
		case domain.OutcomeSucceeded.String():
			ok := true
			res.Success = &ok
		case domain.OutcomeFailed.String():
			ok := false
			res.Success = &ok
		}
	}
	return res, nil
}

// Orphans returns the server's orphan report.
func (c *Client) Orphans(ctx context.Context) (*orphan.Result, error) {
	status, raw, err := c.do(ctx, http.MethodGet, "/api/mfa/orphans", nil, c.retries)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		if status == http.StatusNotFound {
			return nil, reader.ErrNoSnapshot
		}
		return nil, decodeError(status, raw)
	}
	var out orphan.Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("client: decode orphans: %w", err)
	}
	return &out, nil
}

// Audit lists audit entries, optionally for one subject.
func (c *Client) Audit(ctx context.Context, subject string, limit int) ([]api.AuditEntry, error) {
	q := url.Values{}
	if subject != "" {
		q.Set("subject", subject)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/audit"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	status, raw, err := c.do(ctx, http.MethodGet, path, nil, c.retries)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(status, raw)
	}
	var out []api.AuditEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("client: decode audit: %w", err)
	}
	return out, nil
}

// do performs one request, retrying transport errors and 5xx up to retries times.
func (c *Client) do(ctx context.Context, method, path string, body []byte, retries int) (int, []byte, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return 0, nil, err
		}
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 && attempt < retries {
			lastErr = decodeError(resp.StatusCode, raw)
			continue
		}
		return resp.StatusCode, raw, nil
	}
	return 0, nil, lastErr
}

// decodeError maps an error response back to the core error it was derived from.
func decodeError(status int, raw []byte) error {
	var body api.ErrorBody
	_ = json.Unmarshal(raw, &body)
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case body.Code == api.CodeValidation:
		reason := strings.TrimPrefix(body.Error, "invalid "+body.Field+": ")
		return &domain.ValidationError{Field: body.Field, Reason: reason}
	case body.Code == api.CodeAdminProtected:
		return domain.ErrAdminProtected
	case body.Code == api.CodeProtectionCheck:
		return fmt.Errorf("%w: %s", domain.ErrProtectionCheck, body.Error)
	case body.Code == api.CodeQueueUnavailable:
		return fmt.Errorf("%w: %s", domain.ErrQueueUnavailable, body.Error)
	}
	return &APIError{Status: status, Body: body}
}
