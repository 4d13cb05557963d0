package backend

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini streams completions from the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	in     instruments
}

// NewGemini creates a Gemini completer for the given API key.
func NewGemini(ctx context.Context, apiKey, model string, opts Options) (*Gemini, error) {
	opts = opts.withDefaults()
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{
		client: client,
		model:  model,
		in:     newInstruments("gemini", model, opts),
	}, nil
}

func (c *Gemini) Name() string { return "gemini" }

// Model returns the model requests are sent to.
func (c *Gemini) Model() string { return c.model }

func buildGeminiContents(messages []Message) []*genai.Content {
	merged := mergeRoles(messages)
	contents := make([]*genai.Content, 0, len(merged))
	for _, msg := range merged {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

func buildGeminiConfig(req Request) *genai.GenerateContentConfig {
	temperature := float32(req.Settings.Temperature)
	topP := float32(req.Settings.TopP)
	// Validate keeps the seed within int32.
	seed := int32(req.Settings.Seed)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		TopP:            &topP,
		Seed:            &seed,
		MaxOutputTokens: int32(req.Settings.MaxOutputTokens),
	}
	if req.Instructions != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}
	return cfg
}

// Stream yields the text parts of each streamed candidate.
func (c *Gemini) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	if err := req.Settings.Validate(); err != nil {
		return failed(c.Name(), err)
	}
	contents := buildGeminiContents(req.Messages)
	cfg := buildGeminiConfig(req)
	return c.in.stream(ctx, func(ctx context.Context, emit func(string) bool) error {
		// Usage metadata is cumulative; only the last report counts.
		var usage *genai.GenerateContentResponseUsageMetadata
		defer func() {
			if usage != nil {
				c.in.recordUsage(ctx, int64(usage.PromptTokenCount), int64(usage.CandidatesTokenCount))
			}
		}()
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, cfg) {
			if err != nil {
				return err
			}
			if resp.UsageMetadata != nil {
				usage = resp.UsageMetadata
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			var sb strings.Builder
			for _, part := range resp.Candidates[0].Content.Parts {
				if part != nil {
					sb.WriteString(part.Text)
				}
			}
			if !emit(sb.String()) {
				return nil
			}
		}
		return nil
	})
}
