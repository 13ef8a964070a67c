// Package api is the HTTP client for the dmail directory, history and send
// endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/tOgg1/dmail/internal/dmail"
	"github.com/tOgg1/dmail/internal/logging"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 * 1024
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:5001/api.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// UserID is sent as X-User-ID when set.
	UserID string
	// Timeout bounds each request. Zero means 10s.
	Timeout time.Duration
	// HTTPClient overrides the transport.
	HTTPClient *http.Client
}

// Client implements dmail.Service over REST.
type Client struct {
	base   *url.URL
	token  string
	userID string
	http   *http.Client
	logger zerolog.Logger
}

var _ dmail.Service = (*Client)(nil)

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, fmt.Errorf("api: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api: unsupported scheme %q", base.Scheme)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		base:   base,
		token:  strings.TrimSpace(cfg.Token),
		userID: strings.TrimSpace(cfg.UserID),
		http:   hc,
		logger: logging.Component("api"),
	}, nil
}

// Peers lists conversation partners.
func (c *Client) Peers(ctx context.Context) ([]dmail.Peer, error) {
	var peers []dmail.Peer
	if err := c.do(ctx, http.MethodGet, "load peers", "messages/users", nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// Messages returns the history with peerID.
func (c *Client) Messages(ctx context.Context, peerID string) ([]dmail.Message, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return nil, &dmail.TransportError{Op: "load messages", Message: "peer id is required"}
	}
	var messages []dmail.Message
	if err := c.do(ctx, http.MethodGet, "load messages", "messages/"+url.PathEscape(peerID), nil, &messages); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []dmail.Message{}
	}
	return messages, nil
}

// Send posts req to peerID and returns the stored message.
func (c *Client) Send(ctx context.Context, peerID string, req dmail.SendRequest) (dmail.Message, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return dmail.Message{}, &dmail.TransportError{Op: "send message", Message: "peer id is required"}
	}
	var echo dmail.Message
	if err := c.do(ctx, http.MethodPost, "send message", "messages/send/"+url.PathEscape(peerID), req, &echo); err != nil {
		return dmail.Message{}, err
	}
	return echo, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	u.RawPath = ""
	return u.String()
}

func (c *Client) do(ctx context.Context, method, op, path string, body, out any) error {
	endpoint := c.endpoint(path)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &dmail.TransportError{Op: op, Message: fmt.Sprintf("encode request: %v", err), Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &dmail.TransportError{Op: op, Message: fmt.Sprintf("creating request: %v", err), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("url", logging.RedactURL(endpoint)).Msg("request failed")
		return &dmail.TransportError{Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("url", logging.RedactURL(endpoint)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &dmail.TransportError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, data),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &dmail.TransportError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("parsing response: %v", err), Err: err}
	}
	return nil
}

// errorMessage prefers the body's "message" (or "error") field and falls back
// to the status text.
func errorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, field := range []string{"message", "error"} {
			if v := gjson.GetBytes(body, field); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
				return v.String()
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("server returned status %d", status)
}
