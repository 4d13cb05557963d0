package backend

import (
	"context"
	"errors"
	"iter"
	"math"
	"testing"

	"BlogCrew/internal/config"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

var testSettings = Settings{MaxOutputTokens: 800, Seed: 113, Temperature: 0.1, TopP: 0.5}

func fragments(parts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestCollectConcatenates(t *testing.T) {
	text, err := Collect(fragments("Hel", "lo", " world"))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
}

func TestCollectStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	seq := func(yield func(string, error) bool) {
		if !yield("partial", nil) {
			return
		}
		yield("", boom)
		t.Fatal("collect kept iterating after an error")
	}
	text, err := Collect(seq)
	assert.Same(t, boom, err)
	assert.Empty(t, text)
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, testSettings.Validate())

	bad := testSettings
	bad.TopP = 1.2
	assert.Error(t, bad.Validate())

	bad = testSettings
	bad.MaxOutputTokens = 0
	assert.Error(t, bad.Validate())

	bad = testSettings
	bad.Seed = math.MaxInt32 + 1
	assert.ErrorContains(t, bad.Validate(), "seed must fit in 32 bits")

	bad.Seed = math.MinInt32
	assert.NoError(t, bad.Validate())
}

func TestGenerationErrorUnwraps(t *testing.T) {
	err := error(&GenerationError{Backend: "ollama", Err: ErrEmptyResponse})
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, "ollama generation failed: empty response", err.Error())
}

func TestMergeRoles(t *testing.T) {
	merged := mergeRoles([]Message{
		{Role: RoleAssistant, Content: "draft"},
		{Role: RoleUser, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleAssistant, Content: "c"},
	})
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "(conversation start)"},
		{Role: RoleAssistant, Content: "draft"},
		{Role: RoleUser, Content: "a\n\nb"},
		{Role: RoleAssistant, Content: "c"},
		{Role: RoleUser, Content: "(your turn)"},
	}, merged)
}

// metaSeed is the history a meta reviewer receives: task, draft, then the
// aggregated report voiced by the assistant.
var metaSeed = []Message{
	{Role: RoleUser, Content: "task"},
	{Role: RoleUser, Content: "draft"},
	{Role: RoleAssistant, Content: "report"},
}

func TestMergeRolesEndsOnUser(t *testing.T) {
	merged := mergeRoles(metaSeed)
	require.Len(t, merged, 3)
	assert.Equal(t, RoleUser, merged[0].Role)
	assert.Equal(t, RoleAssistant, merged[1].Role)
	assert.Equal(t, RoleUser, merged[2].Role)

	assert.Empty(t, mergeRoles(nil))
	assert.Equal(t, []Message{{Role: RoleUser, Content: "x"}}, mergeRoles([]Message{{Role: RoleUser, Content: "x"}}))
}

func TestGeminiContentsEndOnUser(t *testing.T) {
	contents := buildGeminiContents(metaSeed)
	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleModel), string(contents[1].Role))
	assert.Equal(t, string(genai.RoleUser), string(contents[2].Role))
}

func TestAnthropicParamsEndOnUser(t *testing.T) {
	params := NewAnthropic("", Options{}).buildParams(Request{Messages: metaSeed, Settings: testSettings})
	require.Len(t, params.Messages, 3)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, params.Messages[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, params.Messages[2].Role)
}

func TestNewReportsMissingCredentials(t *testing.T) {
	empty := func(string) string { return "" }
	cases := map[string]string{
		config.BackendOpenAI:    "OPENAI_API_KEY not set",
		config.BackendGrok:      "GROK_API_KEY not set",
		config.BackendAnthropic: "ANTHROPIC_API_KEY not set",
		config.BackendGemini:    "GEMINI_API_KEY not set",
		config.BackendAzure:     "AZURE_OPENAI_KEY not set",
	}
	for backendName, want := range cases {
		t.Run(backendName, func(t *testing.T) {
			cfg := config.Default()
			cfg.Backend = backendName
			_, err := New(context.Background(), cfg, empty, Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), want)
		})
	}
}

func TestNewSelectsBackend(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":               "sk-test",
		"GROK_API_KEY":                 "xai-test",
		"ANTHROPIC_API_KEY":            "ant-test",
		"AZURE_OPENAI_KEY":             "az-test",
		"AZURE_OPENAI_ENDPOINT":        "https://example.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT_NAME": "gpt-4o",
	}
	getenv := func(k string) string { return env[k] }

	for _, name := range []string{config.BackendOllama, config.BackendOpenAI, config.BackendGrok, config.BackendAnthropic, config.BackendAzure} {
		cfg := config.Default()
		cfg.Backend = name
		c, err := New(context.Background(), cfg, getenv, Options{})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}

	cfg := config.Default()
	cfg.Backend = "palm"
	_, err := New(context.Background(), cfg, getenv, Options{})
	assert.EqualError(t, err, "unknown backend: palm")
}

func TestGeminiRejectsWideSeed(t *testing.T) {
	c, err := NewGemini(context.Background(), "test-key", "", Options{})
	require.NoError(t, err)
	assert.Equal(t, defaultGeminiModel, c.Model())

	settings := testSettings
	settings.Seed = math.MaxInt32 + 1
	_, err = Collect(c.Stream(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "task"}},
		Settings: settings,
	}))

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "gemini", genErr.Backend)
	assert.ErrorContains(t, err, "seed must fit in 32 bits")
}

func TestProvidersReportModel(t *testing.T) {
	var _ Modeler = (*OpenAI)(nil)
	var _ Modeler = (*Anthropic)(nil)
	var _ Modeler = (*Gemini)(nil)
	var _ Modeler = (*Ollama)(nil)

	assert.Equal(t, "llama3:latest", NewOllama("", "llama3:latest", Options{}).Model())
	assert.Equal(t, "gpt-4o", NewOpenAI("openai", "gpt-4o", Options{}).Model())
	assert.Equal(t, defaultAnthropicModel, NewAnthropic("", Options{}).Model())
}
