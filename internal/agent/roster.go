package agent

import (
	"fmt"

	"BlogCrew/internal/backend"
	"BlogCrew/internal/config"
)

// Roster maps agent names to agents. It is built once and only read
// afterwards, so it can be shared by concurrent runs without locking.
type Roster struct {
	agents map[string]*Agent
	order  []string
}

// InitializeAgents builds one agent per prompt, all bound to the same
// completer and execution settings.
func InitializeAgents(completer backend.Completer, settings backend.Settings, prompts []config.AgentPrompt) (*Roster, error) {
	if completer == nil {
		return nil, fmt.Errorf("%w: completion capability is required", ErrConfiguration)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	r := &Roster{
		agents: make(map[string]*Agent, len(prompts)),
		order:  make([]string, 0, len(prompts)),
	}
	for _, p := range prompts {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: agent name is empty", ErrConfiguration)
		}
		if _, dup := r.agents[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate agent %q", ErrConfiguration, p.Name)
		}
		r.agents[p.Name] = &Agent{
			name:         p.Name,
			instructions: p.Instructions,
			settings:     settings,
			completer:    completer,
		}
		r.order = append(r.order, p.Name)
	}
	return r, nil
}

// Get returns the named agent.
func (r *Roster) Get(name string) (*Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", ErrConfiguration, ErrAgentNotFound, name)
	}
	return a, nil
}

// Require checks that every name is present.
func (r *Roster) Require(names ...string) error {
	for _, name := range names {
		if _, err := r.Get(name); err != nil {
			return err
		}
	}
	return nil
}

// Names returns agent names in declaration order.
func (r *Roster) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
