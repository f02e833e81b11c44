// Package apiclient is the typed REST client for the commerce backend:
// cart, order and payment endpoints, with the storefront error taxonomy.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// Credentials supplies the single auth header per request: a bearer token
// for authenticated users, otherwise the anonymous session id. Never both.
type Credentials interface {
	Bearer() (string, bool)
	GetOrCreateSessionID(ctx context.Context) (string, error)
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
	creds   Credentials
	logger  *log.Logger
}

// New builds a Client for the given base URL.
func New(baseURL string, creds Credentials, logger *log.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		creds:   creds,
		logger:  logger,
	}
}

// doRaw executes one request and returns the response body. Failures are
// always *APIError.
func (c *Client) doRaw(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if bearer, ok := c.creds.Bearer(); ok {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		sessionID, err := c.creds.GetOrCreateSessionID(ctx)
		if err != nil {
			return nil, fmt.Errorf("session id: %w", err)
		}
		req.Header.Set("X-Session-ID", sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, &APIError{Kind: KindTimeout, Status: 0, Message: err.Error()}
		}
		return nil, &APIError{Kind: KindNetwork, Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Status: 0, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		return nil, classify(resp.StatusCode, serverMessage(raw))
	}
	return raw, nil
}

// do executes a request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	raw, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// serverMessage pulls the message field out of an error payload, falling
// back to the raw body.
func serverMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
