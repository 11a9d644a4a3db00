// Package submit performs single submission attempts against the tracking
// API and classifies each one into a record.Outcome.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/scansync/internal/record"
)

const (
	// DefaultTimeout bounds a single submission attempt.
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum response body read (1MB).
	MaxResponseSize = 1 << 20

	// UserAgent is the user agent string for API requests.
	UserAgent = "scansync/1.0"
)

// ErrNoCredentials is the transport failure reported when no bearer token is
// stored. The record is queued until an operator logs in.
var ErrNoCredentials = errors.New("no bearer token: log in to submit")

// TokenSource supplies the bearer token at attempt time.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns itself.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Client talks to the tracking API.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout sets the per-attempt timeout. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		tokens:  tokens,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// addRecordRequest is the wire form of a record. Field names differ from
// the internal model.
type addRecordRequest struct {
	UserName string `json:"user_name"`
	BoxID    string `json:"boxid"`
	TTN      string `json:"ttn"`
}

// Attempt makes exactly one submission of rec and classifies the result.
// It never returns an error: every failure is an Outcome.
//
// The attempt is bounded by the client timeout; on expiry it is a
// TransportFailure.
func (c *Client) Attempt(ctx context.Context, rec record.PendingRecord) record.Outcome {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return record.TransportFailure(fmt.Errorf("read token: %w", err))
	}
	if token == "" {
		return record.TransportFailure(ErrNoCredentials)
	}

	payload, err := json.Marshal(addRecordRequest{
		UserName: rec.Operator,
		BoxID:    rec.ContainerID,
		TTN:      rec.ShipmentID,
	})
	if err != nil {
		return record.TransportFailure(fmt.Errorf("encode record: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/add_record", bytes.NewReader(payload))
	if err != nil {
		return record.TransportFailure(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if rec.ID != "" {
		req.Header.Set("Idempotency-Key", rec.ID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return record.TransportFailure(fmt.Errorf("failed to execute request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		// The server may or may not have persisted the record. A retry is
		// safe: it resolves as Duplicate if the first write landed.
		return record.TransportFailure(fmt.Errorf("failed to read response body: %w", err))
	}

	return Classify(resp.StatusCode, body)
}

// Classify maps an HTTP response to an Outcome:
//   - 2xx with empty or absent "note": Accepted
//   - 2xx with a non-empty "note": Duplicate(note)
//   - 401, 403, 408, 429 and 5xx: TransportFailure (environment, not content)
//   - any other status: Rejected(reason)
func Classify(status int, body []byte) record.Outcome {
	if status >= 200 && status < 300 {
		note := noteFrom(body)
		if note != "" {
			out := record.Duplicate(note)
			out.StatusCode = status
			return out
		}
		out := record.Accepted()
		out.StatusCode = status
		return out
	}

	if transientStatus(status) {
		out := record.TransportFailure(&APIError{StatusCode: status, Message: messageFrom(body, status)})
		out.StatusCode = status
		return out
	}

	return record.Rejected(status, messageFrom(body, status))
}

func transientStatus(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

// noteFrom extracts the duplicate note. An unparseable body on a 2xx means
// the server stored the record without comment.
func noteFrom(body []byte) string {
	var payload map[string]any
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	switch v := payload["note"].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

// messageFrom extracts a human-readable error from "detail" or "message".
func messageFrom(body []byte, status int) string {
	var payload map[string]any
	if json.Unmarshal(body, &payload) == nil {
		for _, key := range []string{"detail", "message"} {
			if s, ok := payload[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("server error (%d)", status)
}
