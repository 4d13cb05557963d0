package backend

import (
	"context"
	"iter"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI streams chat completions from any OpenAI-compatible endpoint:
// api.openai.com, Azure OpenAI deployments and xAI Grok.
type OpenAI struct {
	backend      string
	client       openai.Client
	model        string
	includeUsage bool
	in           instruments
}

// NewOpenAI builds a completer named backend. reqOpts select the endpoint and
// credentials. The SDK's own retries are disabled: failures go straight to the
// caller.
func NewOpenAI(backend, model string, opts Options, reqOpts ...option.RequestOption) *OpenAI {
	opts = opts.withDefaults()
	all := append([]option.RequestOption{
		option.WithHTTPClient(opts.HTTPClient),
		option.WithMaxRetries(0),
	}, reqOpts...)
	return &OpenAI{
		backend:      backend,
		client:       openai.NewClient(all...),
		model:        model,
		includeUsage: backend != "azure",
		in:           newInstruments(backend, model, opts),
	}
}

func (c *OpenAI) Name() string { return c.backend }

// Model returns the model requests are sent to.
func (c *OpenAI) Model() string { return c.model }

func (c *OpenAI) buildParams(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, msg := range req.Messages {
		if msg.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		} else {
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(req.Settings.MaxOutputTokens)),
		Seed:        openai.Int(req.Settings.Seed),
		Temperature: openai.Float(req.Settings.Temperature),
		TopP:        openai.Float(req.Settings.TopP),
	}
	if c.includeUsage {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}
	return params
}

// Stream yields the content deltas of a streamed chat completion.
func (c *OpenAI) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	if err := req.Settings.Validate(); err != nil {
		return failed(c.Name(), err)
	}
	params := c.buildParams(req)
	return c.in.stream(ctx, func(ctx context.Context, emit func(string) bool) error {
		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				c.in.recordUsage(ctx, chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if !emit(chunk.Choices[0].Delta.Content) {
				return nil
			}
		}
		return stream.Err()
	})
}
