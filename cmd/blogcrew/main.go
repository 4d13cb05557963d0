package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"BlogCrew/internal/config"
	"BlogCrew/internal/server"
	"BlogCrew/internal/studio"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Default()
	var reviewers string
	var allowedTenants string
	var topic string

	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "LLM backend (ollama|anthropic|grok|openai|azure|gemini)")
	flag.StringVar(&cfg.Model, "model", "", "Model or deployment name (default depends on the backend)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	flag.IntVar(&cfg.MaxTurns, "max-turns", cfg.MaxTurns, "Maximum agent turns in the writer/critic dialogue")
	flag.StringVar(&cfg.RosterPath, "roster", "", "YAML file with agent prompts (default: built-in roster)")
	flag.StringVar(&reviewers, "reviewers", "SEO,ETHICS,LEGAL", "Comma-separated reviewer agents, in report order")
	flag.BoolVar(&cfg.ParallelReviews, "parallel-reviews", false, "Query reviewers concurrently")
	flag.BoolVar(&cfg.CacheResponses, "cache", false, "Cache identical completion requests in memory")

	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for logs, traces and metrics")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite DSN for run transcripts")
	flag.IntVar(&cfg.WrapWidth, "width", cfg.WrapWidth, "Wrap width for terminal output")

	flag.BoolVar(&cfg.Serve, "serve", false, "Serve the web UI and API instead of the interactive prompt")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.TenantClaim, "tenant-claim", cfg.TenantClaim, "Claim type holding the tenant id")
	flag.StringVar(&allowedTenants, "allowed-tenants", "", "Comma-separated tenant ids admitted by /api/tenant")

	flag.StringVar(&topic, "topic", "", "Write one post on this topic and exit")

	flag.Parse()

	cfg.Reviewers = config.SplitList(reviewers)
	cfg.AllowedTenants = config.SplitList(allowedTenants)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := studio.NewStudio(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize studio: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, st, topic); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		st.Close()
		os.Exit(1)
	}
	st.Close()
}

func run(ctx context.Context, cfg config.Config, st *studio.Studio, topic string) error {
	switch {
	case cfg.Serve:
		if !cfg.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		fmt.Printf("Serving on %s\n", cfg.Addr)
		return server.New(st).ListenAndServe(ctx, cfg.Addr)
	case topic != "":
		return st.RunOnce(ctx, topic, os.Stdout)
	default:
		return st.Run(ctx, os.Stdin, os.Stdout)
	}
}
