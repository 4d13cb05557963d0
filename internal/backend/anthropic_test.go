package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSE(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func TestAnthropicStreamsTextDeltas(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514","content":[],"stop_reason":null,"usage":{"input_tokens":12,"output_tokens":1}}}`)
		writeSSE(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		for _, delta := range []string{"Copy", " accepted"} {
			writeSSE(w, "content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, delta))
		}
		writeSSE(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		writeSSE(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":4}}`)
		writeSSE(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	c := NewAnthropic("", Options{}, option.WithBaseURL(srv.URL), option.WithAPIKey("sk-ant-test"))
	text, err := Collect(c.Stream(context.Background(), Request{
		Instructions: "You are a critic.",
		Messages: []Message{
			{Role: RoleUser, Content: "task"},
			{Role: RoleUser, Content: "draft"},
		},
		Settings: testSettings,
	}))
	require.NoError(t, err)
	assert.Equal(t, "Copy accepted", text)

	assert.Equal(t, defaultAnthropicModel, body["model"])
	assert.EqualValues(t, 800, body["max_tokens"])
	system, ok := body["system"].([]any)
	require.True(t, ok)
	assert.Equal(t, "You are a critic.", system[0].(map[string]any)["text"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1, "consecutive user messages are merged")
}

func TestAnthropicErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	c := NewAnthropic("", Options{}, option.WithBaseURL(srv.URL), option.WithAPIKey("sk-ant-test"))
	_, err := Collect(c.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "task"}},
		Settings: testSettings,
	}))

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "anthropic", genErr.Backend)
	assert.Equal(t, 1, calls)
}
