package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nalgeon/be"

	"github.com/nhle/mail-autoreply/internal/model"
)

func testConfig(endpoint string) model.SummarizerConfig {
	return model.SummarizerConfig{
		Endpoint:          endpoint,
		Model:             "llama-3.3-70b-versatile",
		Temperature:       0.5,
		MaxTokens:         300,
		Language:          "Japanese",
		RequestsPerSecond: 100,
	}
}

func TestNewWithoutKey(t *testing.T) {
	_, err := New("", testConfig(""))
	be.True(t, errors.Is(err, ErrUnavailable))
}

func TestSummarizeRequest(t *testing.T) {
	var (
		auth string
		got  apiRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":" 一行目\n二行目\n三行目 "}}]}`)
	}))
	defer srv.Close()

	c, err := New("gsk_test", testConfig(srv.URL))
	be.Err(t, err, nil)

	out, err := c.Summarize(context.Background(), "本文")
	be.Err(t, err, nil)
	be.Equal(t, out, "一行目\n二行目\n三行目")

	be.Equal(t, auth, "Bearer gsk_test")
	be.Equal(t, got.Model, "llama-3.3-70b-versatile")
	be.Equal(t, got.Temperature, 0.5)
	be.Equal(t, got.MaxTokens, 300)
	be.Equal(t, len(got.Messages), 2)
	be.Equal(t, got.Messages[0], apiMessage{Role: "system", Content: "メールの要約を日本語で3行で作成してください。"})
	be.Equal(t, got.Messages[1], apiMessage{Role: "user", Content: "本文"})
}

func TestSummarizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"type":"rate_limit","message":"slow down"}}`)
	}))
	defer srv.Close()

	c, err := New("k", testConfig(srv.URL))
	be.Err(t, err, nil)

	_, err = c.Summarize(context.Background(), "x")
	be.Equal(t, err.Error(), "API error (429): slow down")
}

func TestSummarizeEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c, _ := New("k", testConfig(srv.URL))
	_, err := c.Summarize(context.Background(), "x")
	be.True(t, err != nil)
}

func TestSystemPrompt(t *testing.T) {
	be.Equal(t, SystemPrompt(""), "メールの要約を日本語で3行で作成してください。")
	be.Equal(t, SystemPrompt("ja"), SystemPrompt("Japanese"))
	be.Equal(t, SystemPrompt("English"), "Summarize the email in English in three lines.")
}
