package backend

import (
	"context"
	"fmt"
	"os"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"BlogCrew/internal/config"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	defaultGrokModel   = "grok-2-latest"
	defaultOllamaModel = "llama3:latest"
	grokBaseURL        = "https://api.x.ai/v1"
	azureOpenAIVersion = "2024-06-01"
)

// Getenv looks up an environment variable. Tests swap it for a map.
type Getenv func(key string) string

func requireEnv(getenv Getenv, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		v := getenv(key)
		if v == "" {
			return nil, fmt.Errorf("%s not set", key)
		}
		values[key] = v
	}
	return values, nil
}

// New builds the completer selected by cfg.Backend. Missing credentials are
// reported here, before any conversation starts.
func New(ctx context.Context, cfg config.Config, getenv Getenv, opts Options) (Completer, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	model := cfg.Model

	switch cfg.Backend {
	case config.BackendOllama:
		if model == "" {
			model = defaultOllamaModel
		}
		return NewOllama(getenv("OLLAMA_HOST"), model, opts), nil

	case config.BackendOpenAI:
		env, err := requireEnv(getenv, "OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAI(config.BackendOpenAI, model, opts, option.WithAPIKey(env["OPENAI_API_KEY"])), nil

	case config.BackendGrok:
		env, err := requireEnv(getenv, "GROK_API_KEY")
		if err != nil {
			return nil, err
		}
		if model == "" {
			model = defaultGrokModel
		}
		return NewOpenAI(config.BackendGrok, model, opts,
			option.WithBaseURL(grokBaseURL),
			option.WithAPIKey(env["GROK_API_KEY"]),
		), nil

	case config.BackendAzure:
		env, err := requireEnv(getenv, "AZURE_OPENAI_KEY", "AZURE_OPENAI_ENDPOINT")
		if err != nil {
			return nil, err
		}
		if model == "" {
			model = getenv("AZURE_OPENAI_DEPLOYMENT_NAME")
		}
		if model == "" {
			return nil, fmt.Errorf("AZURE_OPENAI_DEPLOYMENT_NAME not set")
		}
		return NewOpenAI(config.BackendAzure, model, opts,
			azure.WithEndpoint(env["AZURE_OPENAI_ENDPOINT"], azureOpenAIVersion),
			azure.WithAPIKey(env["AZURE_OPENAI_KEY"]),
		), nil

	case config.BackendAnthropic:
		env, err := requireEnv(getenv, "ANTHROPIC_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewAnthropic(model, opts, anthropicoption.WithAPIKey(env["ANTHROPIC_API_KEY"])), nil

	case config.BackendGemini:
		env, err := requireEnv(getenv, "GEMINI_API_KEY")
		if err != nil {
			return nil, err
		}
		return NewGemini(ctx, env["GEMINI_API_KEY"], model, opts)

	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}
