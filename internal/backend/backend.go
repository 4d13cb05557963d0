package backend

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
)

// ErrEmptyResponse is wrapped in a GenerationError when a provider finishes
// without producing any text.
var ErrEmptyResponse = errors.New("empty response")

// Message is one chat message in provider-neutral form. Role is "user" or
// "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Settings is the execution configuration shared by every agent.
type Settings struct {
	MaxOutputTokens int     `json:"max_output_tokens"`
	Seed            int64   `json:"seed"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
}

// Validate reports settings a provider would reject.
func (s Settings) Validate() error {
	if s.MaxOutputTokens <= 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", s.MaxOutputTokens)
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		return fmt.Errorf("temperature must be within [0,1], got %g", s.Temperature)
	}
	if s.TopP < 0 || s.TopP > 1 {
		return fmt.Errorf("top_p must be within [0,1], got %g", s.TopP)
	}
	if s.Seed < math.MinInt32 || s.Seed > math.MaxInt32 {
		return fmt.Errorf("seed must fit in 32 bits, got %d", s.Seed)
	}
	return nil
}

// Request is a single chat completion call.
type Request struct {
	Instructions string    `json:"instructions"`
	Messages     []Message `json:"messages"`
	Settings     Settings  `json:"settings"`
}

// Completer is the chat completion capability. Stream yields text fragments
// in order; iteration ends after the last fragment or after the first error.
type Completer interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
	Name() string
}

// Modeler is implemented by completers bound to a single model.
type Modeler interface {
	Model() string
}

// GenerationError reports a failed or unusable completion.
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Collect drains a fragment stream into one string. The first error stops
// collection and is returned unchanged.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var sb strings.Builder
	for fragment, err := range seq {
		if err != nil {
			return "", err
		}
		sb.WriteString(fragment)
	}
	return sb.String(), nil
}

// mergeRoles folds consecutive messages with the same role into one, and
// adds a user message when the conversation would otherwise open or close
// with the assistant. Anthropic and Gemini both require alternating roles
// that end on a user turn.
func mergeRoles(messages []Message) []Message {
	out := make([]Message, 0, len(messages)+2)
	for _, msg := range messages {
		if len(out) == 0 && msg.Role != RoleUser {
			out = append(out, Message{Role: RoleUser, Content: "(conversation start)"})
		}
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1].Content += "\n\n" + msg.Content
			continue
		}
		out = append(out, msg)
	}
	if n := len(out); n > 0 && out[n-1].Role == RoleAssistant {
		out = append(out, Message{Role: RoleUser, Content: "(your turn)"})
	}
	return out
}
