package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaRequest represents the request body for the Ollama chat API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  OllamaOptions       `json:"options"`
}

// OllamaOptions carries the sampling settings Ollama understands
type OllamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Seed        int64   `json:"seed"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

// OllamaResponse represents one streamed line from the Ollama chat API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	Error           string `json:"error,omitempty"`
	PromptEvalCount int64  `json:"prompt_eval_count,omitempty"`
	EvalCount       int64  `json:"eval_count,omitempty"`
}

// OllamaTagsResponse represents the response from Ollama /api/tags endpoint
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel represents a single model in the Ollama tags response
type OllamaModel struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// Ollama streams chat completions from a local Ollama server.
type Ollama struct {
	host       string
	model      string
	httpClient *http.Client
	in         instruments
}

// NewOllama creates an Ollama completer. An empty host selects localhost.
func NewOllama(host, model string, opts Options) *Ollama {
	opts = opts.withDefaults()
	if host == "" {
		host = defaultOllamaHost
	}
	return &Ollama{
		host:       strings.TrimRight(host, "/"),
		model:      model,
		httpClient: opts.HTTPClient,
		in:         newInstruments("ollama", model, opts),
	}
}

func (o *Ollama) Name() string { return "ollama" }

// Model returns the model requests are sent to.
func (o *Ollama) Model() string { return o.model }

// Stream calls /api/chat with streaming enabled and yields each content delta.
func (o *Ollama) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	if err := req.Settings.Validate(); err != nil {
		return failed(o.Name(), err)
	}
	return o.in.stream(ctx, func(ctx context.Context, emit func(string) bool) error {
		reqMessages := make([]map[string]string, 0, len(req.Messages)+1)
		if req.Instructions != "" {
			reqMessages = append(reqMessages, map[string]string{"role": "system", "content": req.Instructions})
		}
		for _, msg := range req.Messages {
			reqMessages = append(reqMessages, map[string]string{
				"role":    msg.Role,
				"content": msg.Content,
			})
		}

		reqBody := OllamaRequest{
			Model:    o.model,
			Messages: reqMessages,
			Stream:   true,
			Options: OllamaOptions{
				NumPredict:  req.Settings.MaxOutputTokens,
				Seed:        req.Settings.Seed,
				Temperature: req.Settings.Temperature,
				TopP:        req.Settings.TopP,
			},
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", o.host+"/api/chat", bytes.NewBuffer(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("content-type", "application/json")

		resp, err := o.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk OllamaResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				return fmt.Errorf("failed to unmarshal response: %w", err)
			}
			if chunk.Error != "" {
				return fmt.Errorf("API error: %s", chunk.Error)
			}
			if !emit(chunk.Message.Content) {
				return nil
			}
			if chunk.Done {
				o.in.recordUsage(ctx, chunk.PromptEvalCount, chunk.EvalCount)
				return nil
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		return fmt.Errorf("stream ended before done")
	})
}

// ListModels fetches the list of models installed on the Ollama server
func (o *Ollama) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", o.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request (is Ollama running?): %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var tagsResp OllamaTagsResponse
	if err := json.Unmarshal(body, &tagsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return tagsResp.Models, nil
}
