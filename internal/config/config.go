package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
	BackendAzure     = "azure"
	BackendGemini    = "gemini"
)

// Execution defaults shared by every agent in the roster.
const (
	DefaultMaxOutputTokens = 800
	DefaultSeed            = 113
	DefaultTemperature     = 0.1
	DefaultTopP            = 0.5
	DefaultMaxTurns        = 7
	DefaultWrapWidth       = 80

	// DefaultTenantClaim is the claim type App Service puts the Entra tenant id under.
	DefaultTenantClaim = "http://schemas.microsoft.com/identity/claims/tenantid"
)

// Config holds application configuration
type Config struct {
	Backend string
	Model   string // Model or deployment name; empty selects the backend default
	Debug   bool

	// Execution settings
	MaxOutputTokens int
	Seed            int64
	Temperature     float64
	TopP            float64

	// Orchestration
	MaxTurns        int
	RosterPath      string // YAML roster file; empty uses the embedded default
	Writer          string
	Critic          string
	Reviewers       []string
	Meta            string
	ParallelReviews bool
	CacheResponses  bool

	// Runtime
	LogDir    string
	DBPath    string // sqlite DSN for run transcripts, in-memory by default
	WrapWidth int

	// HTTP surface
	Serve          bool
	Addr           string
	TenantClaim    string
	AllowedTenants []string
}

// Default returns a Config populated with the stock demo values.
func Default() Config {
	return Config{
		Backend:         BackendOllama,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Seed:            DefaultSeed,
		Temperature:     DefaultTemperature,
		TopP:            DefaultTopP,
		MaxTurns:        DefaultMaxTurns,
		Writer:          "WRITER",
		Critic:          "CRITIC",
		Reviewers:       []string{"SEO", "ETHICS", "LEGAL"},
		Meta:            "META",
		LogDir:          "logs",
		DBPath:          "file:blogcrew?mode=memory&cache=shared",
		WrapWidth:       DefaultWrapWidth,
		Addr:            ":8080",
		TenantClaim:     DefaultTenantClaim,
	}
}

// KnownBackend reports whether name is a supported backend.
func KnownBackend(name string) bool {
	switch name {
	case BackendOllama, BackendAnthropic, BackendGrok, BackendOpenAI, BackendAzure, BackendGemini:
		return true
	}
	return false
}

// Validate checks the values that cannot be corrected later at run time.
func (c Config) Validate() error {
	var errs []error
	if !KnownBackend(c.Backend) {
		errs = append(errs, fmt.Errorf("unknown backend: %s", c.Backend))
	}
	if c.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("max turns must be positive, got %d", c.MaxTurns))
	}
	if c.MaxOutputTokens <= 0 {
		errs = append(errs, fmt.Errorf("max output tokens must be positive, got %d", c.MaxOutputTokens))
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, fmt.Errorf("temperature must be within [0,1], got %g", c.Temperature))
	}
	if c.TopP < 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("top_p must be within [0,1], got %g", c.TopP))
	}
	if c.Seed < math.MinInt32 || c.Seed > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("seed must fit in 32 bits, got %d", c.Seed))
	}
	for _, agent := range []struct{ role, name string }{
		{"writer", c.Writer},
		{"critic", c.Critic},
		{"meta", c.Meta},
	} {
		if strings.TrimSpace(agent.name) == "" {
			errs = append(errs, fmt.Errorf("%s agent name is required", agent.role))
		}
	}
	if len(c.Reviewers) == 0 {
		errs = append(errs, errors.New("at least one reviewer is required"))
	}
	return errors.Join(errs...)
}

// RequiredAgents lists every roster entry the orchestration refers to.
func (c Config) RequiredAgents() []string {
	names := []string{c.Writer, c.Critic}
	names = append(names, c.Reviewers...)
	return append(names, c.Meta)
}

// SplitList parses a comma-separated flag value, dropping blanks.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
