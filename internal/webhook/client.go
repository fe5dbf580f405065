// Package webhook performs the request/reply exchange with an external chat
// webhook such as an n8n chat trigger.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"webhook-chat/internal/history"
	"webhook-chat/internal/logger"
)

const (
	// maxReplyBytes caps a successful reply body.
	maxReplyBytes = 8 << 20
	// maxErrorBodyBytes caps what is read from a non-2xx reply for its excerpt.
	maxErrorBodyBytes = 16 << 10
)

// Request is the JSON body posted to the webhook.
type Request struct {
	ChatInput string `json:"chatInput"`
	SessionID string `json:"sessionId"`
}

// Client handles communication with the webhook
type Client struct {
	httpClient *http.Client
	metrics    *Metrics
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which has no timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new webhook client
func NewClient(opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts message to cfg.WebhookURL and returns the extracted reply.
// Exactly one request is made; failures are not retried.
func (c *Client) Send(ctx context.Context, message string, cfg history.ChatConfig) (reply string, err error) {
	start := time.Now()
	defer func() {
		outcome := Outcome(err)
		c.metrics.observe(outcome, time.Since(start))
		if err != nil {
			logger.WarnCF("webhook", "Exchange failed", map[string]interface{}{
				"outcome": outcome,
				"error":   err.Error(),
			})
		}
	}()

	if cfg.WebhookURL == "" {
		return "", &ConfigurationError{}
	}

	jsonData, err := json.Marshal(Request{ChatInput: message, SessionID: cfg.SessionID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	logger.DebugCF("webhook", "Sending message", map[string]interface{}{
		"session_id": cfg.SessionID,
		"bytes":      len(jsonData),
	})

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// the excerpt is best effort; a truncated body is still an HTTP error
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       bodyExcerpt(body, resp.Header.Get("Content-Type")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", &TransportError{Err: fmt.Errorf("failed to read reply: %w", err)}
	}

	reply, err = ExtractReply(body)
	if err != nil {
		return "", &ParseError{Err: err, Excerpt: bodyExcerpt(body, resp.Header.Get("Content-Type"))}
	}

	logger.DebugCF("webhook", "Reply received", map[string]interface{}{
		"status": resp.StatusCode,
		"chars":  len(reply),
	})
	return reply, nil
}
