package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"aistudio/pkg/aiinterface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(&aiinterface.ClientConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Model: "gpt-4o-mini", MaxRetries: 2})
	require.NoError(t, err)
	c.backoff = time.Millisecond
	return c
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(&aiinterface.ClientConfig{})
	var clientErr *aiinterface.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, aiinterface.ErrorTypeAuth, clientErr.Type)
}

func TestChatCompletionSendsToolsAndParsesToolCalls(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "image_generation", "arguments": "{\"prompt\":\"fox\"}"}}]
			}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
		}`))
	})

	resp, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{
			{Role: aiinterface.RoleSystem, Content: "sys"},
			{Role: aiinterface.RoleUser, Content: "draw a fox"},
		},
		Tools: []aiinterface.Tool{{Type: "function", Function: aiinterface.FunctionDef{
			Name:       "image_generation",
			Parameters: map[string]any{"type": "object"},
		}}},
		ToolChoice: "auto",
		JSONMode:   true,
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "image_generation", resp.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"prompt":"fox"}`, resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, 19, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.Equal(t, "auto", captured["tool_choice"])
	assert.Len(t, captured["tools"], 1)
	format, _ := captured["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestChatCompletionReplaysToolMessages(t *testing.T) {
	var captured struct {
		Messages []struct {
			Role       string `json:"role"`
			ToolCallID string `json:"tool_call_id"`
			ToolCalls  []any  `json:"tool_calls"`
		} `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"done"}}]}`))
	})

	resp, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{
			{Role: aiinterface.RoleUser, Content: "hi"},
			{Role: aiinterface.RoleAssistant, ToolCalls: []aiinterface.ToolCall{{ID: "call_1", Type: "function", Function: aiinterface.FunctionCall{Name: "t", Arguments: "{}"}}}},
			{Role: aiinterface.RoleTool, ToolCallID: "call_1", Name: "t", Content: `{"success":true}`},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)

	require.Len(t, captured.Messages, 3)
	assert.Len(t, captured.Messages[1].ToolCalls, 1)
	assert.Equal(t, "call_1", captured.Messages[2].ToolCallID)
}

func TestChatCompletionRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	})

	resp, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{{Role: aiinterface.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatCompletionDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{
		Messages: []aiinterface.Message{{Role: aiinterface.RoleUser, Content: "hi"}},
	})
	var clientErr *aiinterface.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, aiinterface.ErrorTypeAuth, clientErr.Type)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatCompletionEmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	})
	_, err := c.ChatCompletion(context.Background(), &aiinterface.ChatCompletionRequest{})
	var clientErr *aiinterface.ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, aiinterface.ErrorTypeServerError, clientErr.Type)
}
