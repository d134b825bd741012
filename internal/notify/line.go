// Package notify pushes text notifications through the LINE Messaging API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultEndpoint is the LINE push message API.
	DefaultEndpoint = "https://api.line.me/v2/bot/message/push"

	// TestMessage is sent by the notification test.
	TestMessage = "🔔 設定完了！テスト通知です。"

	requestTimeout = 10 * time.Second
)

// ErrNotConfigured is returned when the access token or recipient is
// missing.
var ErrNotConfigured = errors.New("LINE notifier not configured")

// LineClient pushes messages to a single LINE user.
type LineClient struct {
	token    string
	userID   string
	endpoint string
	client   *http.Client
}

// NewLineClient returns a client that pushes to userID with token. An
// empty endpoint selects DefaultEndpoint.
func NewLineClient(token, userID, endpoint string) *LineClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &LineClient{
		token:    token,
		userID:   userID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Configured reports whether both the token and the recipient are set.
func (c *LineClient) Configured() bool {
	return c.token != "" && c.userID != ""
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Push sends text as a single text message. Any status other than 200 is
// an error carrying the response body.
func (c *LineClient) Push(ctx context.Context, text string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(pushRequest{
		To:       c.userID,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("marshaling push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling LINE API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("LINE API error (%d): %s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return nil
}
