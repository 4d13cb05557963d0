package agent

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"BlogCrew/internal/backend"
	"BlogCrew/internal/config"
	"BlogCrew/internal/session"

	"github.com/stretchr/testify/require"
)

var testSettings = backend.Settings{MaxOutputTokens: 800, Seed: 113, Temperature: 0.1, TopP: 0.5}

// reply is one scripted answer of the fake completer.
type reply struct {
	text  string
	err   error
	delay time.Duration
}

// scriptedCompleter answers by agent: the request instructions select the
// script, and each call consumes the next reply. When a script runs out the
// last reply repeats.
type scriptedCompleter struct {
	mu      sync.Mutex
	scripts map[string][]reply
	calls   map[string]int
	reqs    []backend.Request
}

func newScripted() *scriptedCompleter {
	return &scriptedCompleter{scripts: map[string][]reply{}, calls: map[string]int{}}
}

func (s *scriptedCompleter) on(agentName string, replies ...reply) *scriptedCompleter {
	s.scripts[prompt(agentName)] = replies
	return s
}

func (s *scriptedCompleter) say(agentName string, texts ...string) *scriptedCompleter {
	replies := make([]reply, len(texts))
	for i, t := range texts {
		replies[i] = reply{text: t}
	}
	return s.on(agentName, replies...)
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) Stream(ctx context.Context, req backend.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.mu.Lock()
		script := s.scripts[req.Instructions]
		n := s.calls[req.Instructions]
		s.calls[req.Instructions] = n + 1
		s.reqs = append(s.reqs, req)
		s.mu.Unlock()

		if len(script) == 0 {
			yield("", &backend.GenerationError{Backend: "scripted", Err: backend.ErrEmptyResponse})
			return
		}
		r := script[min(n, len(script)-1)]
		if r.delay > 0 {
			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			}
		}
		if r.err != nil {
			yield("", r.err)
			return
		}
		// Two fragments exercise concatenation.
		half := len(r.text) / 2
		if !yield(r.text[:half], nil) {
			return
		}
		yield(r.text[half:], nil)
	}
}

func (s *scriptedCompleter) callCount(agentName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[prompt(agentName)]
}

func (s *scriptedCompleter) requestsFor(agentName string) []backend.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []backend.Request
	for _, r := range s.reqs {
		if r.Instructions == prompt(agentName) {
			out = append(out, r)
		}
	}
	return out
}

func prompt(name string) string { return "You are " + name + "." }

func testRoster(t *testing.T, c backend.Completer) *Roster {
	t.Helper()
	names := []string{"WRITER", "CRITIC", "SEO", "ETHICS", "LEGAL", "META"}
	prompts := make([]config.AgentPrompt, len(names))
	for i, n := range names {
		prompts[i] = config.AgentPrompt{Name: n, Instructions: prompt(n)}
	}
	r, err := InitializeAgents(c, testSettings, prompts)
	require.NoError(t, err)
	return r
}

func mustAgent(t *testing.T, r *Roster, name string) *Agent {
	t.Helper()
	a, err := r.Get(name)
	require.NoError(t, err)
	return a
}

type sessionTurnFixture struct {
	role, name, content string
}

func buildTurns(fixtures []sessionTurnFixture) []session.Turn {
	out := make([]session.Turn, len(fixtures))
	for i, f := range fixtures {
		out[i] = session.Turn{Role: session.Role(f.role), Name: f.name, Content: f.content}
	}
	return out
}
