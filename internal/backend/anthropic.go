package backend

import (
	"context"
	"iter"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// Anthropic streams completions from the Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
	in     instruments
}

// NewAnthropic creates an Anthropic completer. reqOpts normally carry the API
// key; tests add a base URL.
func NewAnthropic(model string, opts Options, reqOpts ...option.RequestOption) *Anthropic {
	opts = opts.withDefaults()
	if model == "" {
		model = defaultAnthropicModel
	}
	all := append([]option.RequestOption{
		option.WithHTTPClient(opts.HTTPClient),
		option.WithMaxRetries(0),
	}, reqOpts...)
	return &Anthropic{
		client: anthropic.NewClient(all...),
		model:  model,
		in:     newInstruments("anthropic", model, opts),
	}
}

func (c *Anthropic) Name() string { return "anthropic" }

// Model returns the model requests are sent to.
func (c *Anthropic) Model() string { return c.model }

func (c *Anthropic) buildParams(req Request) anthropic.MessageNewParams {
	merged := mergeRoles(req.Messages)
	messages := make([]anthropic.MessageParam, 0, len(merged))
	for _, msg := range merged {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(req.Settings.MaxOutputTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Settings.Temperature),
		TopP:        anthropic.Float(req.Settings.TopP),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	return params
}

// Stream yields text deltas from the message stream.
func (c *Anthropic) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	if err := req.Settings.Validate(); err != nil {
		return failed(c.Name(), err)
	}
	params := c.buildParams(req)
	return c.in.stream(ctx, func(ctx context.Context, emit func(string) bool) error {
		stream := c.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			switch event := stream.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				c.in.recordUsage(ctx, event.Message.Usage.InputTokens, 0)
			case anthropic.MessageDeltaEvent:
				c.in.recordUsage(ctx, 0, event.Usage.OutputTokens)
			case anthropic.ContentBlockDeltaEvent:
				delta, ok := event.Delta.AsAny().(anthropic.TextDelta)
				if !ok {
					continue
				}
				if !emit(delta.Text) {
					return nil
				}
			}
		}
		return stream.Err()
	})
}
