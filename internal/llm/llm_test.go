package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neuroidss/ToolArtifact/internal/config"
)

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req["model"])
		assert.Equal(t, float64(0), req["temperature"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "write greet_soul", msgs[1].(map[string]any)["content"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  func greet_soul() {}  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-test", Timeout: time.Second})
	out, err := c.Complete(context.Background(), "write greet_soul")
	require.NoError(t, err)
	assert.Equal(t, "func greet_soul() {}", out)
	assert.Equal(t, "openai:gpt-test", c.Name())
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "overloaded", "status 500"},
		{"api error", http.StatusOK, `{"error":{"message":"quota"}}`, "API error: quota"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no completion returned"},
		{"bad json", http.StatusOK, `{`, "failed to parse response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Timeout: time.Second})
			_, err := c.Complete(context.Background(), "p")
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, 1, calls, "provider must be called exactly once")
		})
	}
}

func TestStubProvider(t *testing.T) {
	p := NewStubProvider(nil)
	out, err := p.Complete(context.Background(), "Write a tool.\n"+PromptNameLabel+" word_count\nMore text")
	require.NoError(t, err)
	assert.Contains(t, out, "func word_count(params map[string]interface{}) string {")
	assert.Contains(t, out, `import "encoding/json"`)

	_, err = p.Complete(context.Background(), "no name here")
	assert.Error(t, err)

	custom := NewStubProvider(func(name, _ string) string { return "func " + name + "() {}" })
	out, err = custom.Complete(context.Background(), PromptNameLabel+" x")
	require.NoError(t, err)
	assert.Equal(t, "func x() {}", out)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{Provider: "stub"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())

	p, err = NewProvider(config.LLMConfig{Provider: "openai", APIKey: "k", Model: "m"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "openai:m", p.Name())

	_, err = NewProvider(config.LLMConfig{Provider: "gemini"}, time.Second)
	assert.ErrorContains(t, err, "API key is required")

	_, err = NewProvider(config.LLMConfig{Provider: "bard"}, time.Second)
	assert.ErrorContains(t, err, "unsupported LLM provider")
}
