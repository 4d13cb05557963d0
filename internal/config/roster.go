package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed roster.yaml
var defaultRosterYAML []byte

// AgentPrompt pairs an agent name with its system prompt.
type AgentPrompt struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

// RosterFile models the roster YAML document.
type RosterFile struct {
	Agents []AgentPrompt `yaml:"agents"`
}

// LoadRoster reads agent prompts from path, or the embedded default when path is empty.
func LoadRoster(path string) ([]AgentPrompt, error) {
	data := defaultRosterYAML
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read roster file: %w", err)
		}
		data = raw
	}
	return ParseRoster(data)
}

// ParseRoster decodes a roster document and trims the prompt text.
func ParseRoster(data []byte) ([]AgentPrompt, error) {
	var file RosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("roster defines no agents")
	}
	prompts := make([]AgentPrompt, len(file.Agents))
	for i, a := range file.Agents {
		prompts[i] = AgentPrompt{
			Name:         strings.TrimSpace(a.Name),
			Instructions: strings.TrimSpace(a.Instructions),
		}
	}
	return prompts, nil
}
