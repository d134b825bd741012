// Package ai summarizes inbox messages with a hosted chat-completion model.
package ai

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

	"golang.org/x/time/rate"

	"github.com/nhle/mail-autoreply/internal/model"
)

const (
	defaultModel     = "llama-3.3-70b-versatile"
	defaultMaxTokens = 300
	defaultEndpoint  = "https://api.groq.com/openai/v1/chat/completions"
	requestTimeout   = 30 * time.Second
)

// ErrUnavailable is returned by New when no API key is configured.
var ErrUnavailable = errors.New("summarizer unavailable: no API key configured")

// Client calls an OpenAI-compatible chat-completion endpoint.
type Client struct {
	apiKey      string
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	system      string
	limiter     *rate.Limiter
	client      *http.Client
}

// New creates a summarizer client from cfg. It returns ErrUnavailable when
// apiKey is empty so callers can run without summaries.
func New(apiKey string, cfg model.SummarizerConfig) (*Client, error) {
	if apiKey == "" {
		return nil, ErrUnavailable
	}

	c := &Client{
		apiKey:      apiKey,
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		system:      SystemPrompt(cfg.Language),
		client:      &http.Client{Timeout: requestTimeout},
	}
	if c.endpoint == "" {
		c.endpoint = defaultEndpoint
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)

	return c, nil
}

// SystemPrompt returns the instruction asking for a three-line summary in
// language.
func SystemPrompt(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "", "japanese", "ja":
		return "メールの要約を日本語で3行で作成してください。"
	default:
		return fmt.Sprintf("Summarize the email in %s in three lines.", language)
	}
}

// Summarize returns the model's synopsis of text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.callAPI(ctx, text)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from model")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// callAPI makes a single chat-completion request.
func (c *Client) callAPI(ctx context.Context, text string) (*apiResponse, error) {
	reqBody := apiRequest{
		Model: c.model,
		Messages: []apiMessage{
			{Role: "system", Content: c.system},
			{Role: "user", Content: text},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling chat API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &result, nil
}

// --- chat-completion API types ---

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int        `json:"index"`
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
