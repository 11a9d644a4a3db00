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

	"github.com/roach88/scansync/internal/record"
)

// ErrNoToken is returned when login succeeds but the server sends no token.
var ErrNoToken = errors.New("server did not return a token")

type loginRequest struct {
	Surname  string `json:"surname"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string  `json:"token"`
	Surname     string  `json:"surname"`
	Role        *string `json:"role"`
	AccessLevel *int    `json:"access_level"`
}

// Login exchanges operator credentials for a session.
// Non-2xx responses are returned as *APIError.
func (c *Client) Login(ctx context.Context, surname, password string) (record.Session, error) {
	payload, err := json.Marshal(loginRequest{Surname: surname, Password: password})
	if err != nil {
		return record.Session{}, fmt.Errorf("encode login: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return record.Session{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return record.Session{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return record.Session{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return record.Session{}, &APIError{StatusCode: resp.StatusCode, Message: messageFrom(body, resp.StatusCode)}
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return record.Session{}, fmt.Errorf("decode login response: %w", err)
	}
	if lr.Token == "" {
		return record.Session{}, ErrNoToken
	}

	operator := lr.Surname
	if operator == "" {
		operator = surname
	}
	sess := record.Session{
		Token:    lr.Token,
		Operator: operator,
		Role:     resolveRole(lr.Role, lr.AccessLevel),
	}
	if lr.AccessLevel != nil {
		sess.AccessLevel = *lr.AccessLevel
	}
	return sess, nil
}

// resolveRole prefers the explicit role name and falls back to the numeric
// access level (1 admin, 0 operator). Unknown means viewer.
func resolveRole(role *string, accessLevel *int) string {
	if role != nil {
		switch r := strings.ToLower(*role); r {
		case "admin", "operator", "viewer":
			return r
		}
	}
	if accessLevel != nil {
		switch *accessLevel {
		case 1:
			return "admin"
		case 0:
			return "operator"
		}
	}
	return "viewer"
}
