package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadchat/internal/domain"
)

func TestOpenAIProviderComplete(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Halo Rudi"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.Client(), srv.URL+"/", "sk-test")
	resp, err := p.Complete(context.Background(), domain.LLMRequest{
		Model:    "gpt-4o-mini",
		System:   "sys",
		Messages: []domain.Message{{Role: "assistant", Content: "hai"}, {Role: "user", Content: "nama saya Rudi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "Halo Rudi", resp.Content)
	require.Len(t, got.Messages, 3)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Nil(t, got.Temperature)
}

func TestOpenAIProviderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.Client(), srv.URL, "k")
	_, err := p.Complete(context.Background(), domain.LLMRequest{Model: "m"})
	require.ErrorContains(t, err, "openai status 429")
}

func TestClaudeProviderFoldsRolesAndDropsLeadingAssistant(t *testing.T) {
	var got claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`))
	}))
	defer srv.Close()

	p := NewClaudeProvider(srv.Client(), srv.URL, "k")
	resp, err := p.Complete(context.Background(), domain.LLMRequest{
		Model: "claude",
		Messages: []domain.Message{
			{Role: "assistant", Content: "greeting"},
			{Role: "user", Content: "one"},
			{Role: "user", Content: "two"},
			{Role: "assistant", Content: "reply"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "a\nb", resp.Content)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 2)
	require.Equal(t, claudeDefaultMaxTokens, got.MaxTokens)
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	_, err := NewProvider(Config{Provider: "gemini"})
	require.Error(t, err)
}
