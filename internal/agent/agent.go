// Package agent coordinates the writer, critic and reviewer personas: the
// turn-taking dialogue, its termination policy and the review pipeline that
// follows it.
package agent

import (
	"context"
	"errors"
	"iter"

	"BlogCrew/internal/backend"
	"BlogCrew/internal/session"
)

var (
	// ErrConfiguration marks roster and orchestration set-up mistakes.
	ErrConfiguration = errors.New("configuration error")
	// ErrAgentNotFound is returned for names missing from the roster.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrDialogueConsumed is yielded when a dialogue stream is iterated twice.
	ErrDialogueConsumed = errors.New("dialogue already consumed")
)

// Agent is a named persona bound to fixed instructions. It holds no
// conversation state and is never modified after construction.
type Agent struct {
	name         string
	instructions string
	settings     backend.Settings
	completer    backend.Completer
}

func (a *Agent) Name() string { return a.name }

// messages renders history from the agent's point of view: its own turns are
// assistant messages, everything authored by the user or other agents is a
// user message, and unattributed assistant turns stay assistant turns.
func (a *Agent) messages(turns []session.Turn) []backend.Message {
	out := make([]backend.Message, 0, len(turns))
	for _, t := range turns {
		role := backend.RoleUser
		switch {
		case t.Role == session.RoleAssistant:
			role = backend.RoleAssistant
		case t.Role == session.RoleAgent && t.Name == a.name:
			role = backend.RoleAssistant
		}
		out = append(out, backend.Message{Role: role, Content: t.Content})
	}
	return out
}

// Stream asks the completion capability for the agent's next turn given the
// full history.
func (a *Agent) Stream(ctx context.Context, history *session.History) iter.Seq2[string, error] {
	return a.completer.Stream(ctx, backend.Request{
		Instructions: a.instructions,
		Messages:     a.messages(history.Turns()),
		Settings:     a.settings,
	})
}

// Invoke produces the agent's next turn. The history is not modified; errors
// from the completion capability are returned unchanged.
func (a *Agent) Invoke(ctx context.Context, history *session.History) (session.Turn, error) {
	content, err := backend.Collect(a.Stream(ctx, history))
	if err != nil {
		return session.Turn{}, err
	}
	return session.AgentTurn(a.name, content), nil
}
