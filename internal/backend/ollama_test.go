package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaStreamsContent(t *testing.T) {
	var got OllamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Launch "},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"day!"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":12,"eval_count":3}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3:latest", Options{})
	text, err := Collect(o.Stream(context.Background(), Request{
		Instructions: "You are a writer.",
		Messages:     []Message{{Role: RoleUser, Content: "Announce a product launch"}},
		Settings:     testSettings,
	}))
	require.NoError(t, err)
	assert.Equal(t, "Launch day!", text)

	assert.True(t, got.Stream)
	assert.Equal(t, "llama3:latest", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0]["role"])
	assert.Equal(t, "You are a writer.", got.Messages[0]["content"])
	assert.Equal(t, 800, got.Options.NumPredict)
	assert.Equal(t, int64(113), got.Options.Seed)
	assert.InDelta(t, 0.5, got.Options.TopP, 1e-9)
}

func TestOllamaHTTPErrorIsGenerationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "missing", Options{})
	_, err := Collect(o.Stream(context.Background(), Request{Settings: testSettings}))

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "ollama", genErr.Backend)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaEmptyResponseIsGenerationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3", Options{})
	_, err := Collect(o.Stream(context.Background(), Request{Settings: testSettings}))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOllamaStreamErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"out of memory"}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3", Options{})
	_, err := Collect(o.Stream(context.Background(), Request{Settings: testSettings}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestOllamaRejectsInvalidSettings(t *testing.T) {
	o := NewOllama("http://127.0.0.1:1", "llama3", Options{})
	_, err := Collect(o.Stream(context.Background(), Request{Settings: Settings{MaxOutputTokens: 10, Temperature: 2}}))
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
}

func TestOllamaListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama3:latest","size":4661224676}]}`)
	}))
	defer srv.Close()

	models, err := NewOllama(srv.URL, "llama3", Options{}).ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "llama3:latest", models[0].Name)
}
