package studio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"BlogCrew/internal/agent"
	"BlogCrew/internal/backend"
	"BlogCrew/internal/cache"
	"BlogCrew/internal/config"
	"BlogCrew/internal/session"
	"BlogCrew/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Studio runs blog writing sessions: a writer/critic dialogue followed by
// the review panel. One Studio serves any number of sequential or
// concurrent runs; each run owns its own history.
type Studio struct {
	config    config.Config
	db        *sql.DB
	store     *session.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	meter     metric.Meter
	provider  backend.Completer // the raw backend, before caching
	completer backend.Completer
	roster    *agent.Roster
	panel     *agent.Panel

	runCounter   metric.Int64Counter
	turnCounter  metric.Int64Counter
	runDuration  metric.Float64Histogram
	closeLogFile io.Closer
	shutdown     func()
}

// Deps are the collaborators of a Studio. Logger, Tracer and Meter default
// to slog.Default and no-op providers.
type Deps struct {
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Meter     metric.Meter
	DB        *sql.DB
	Completer backend.Completer
}

// NewStudio initializes logging, telemetry, the transcript database and the
// configured backend, then builds the Studio.
func NewStudio(ctx context.Context, cfg config.Config) (*Studio, error) {
	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := telemetry.InitDB(cfg.DBPath)
	if err != nil {
		shutdown()
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	completer, err := backend.New(ctx, cfg, os.Getenv, backend.Options{
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
	})
	if err != nil {
		db.Close()
		shutdown()
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}

	s, err := New(cfg, Deps{
		Logger:    logger,
		Tracer:    tracer,
		Meter:     meter,
		DB:        db,
		Completer: completer,
	})
	if err != nil {
		db.Close()
		shutdown()
		logFile.Close()
		return nil, err
	}
	s.closeLogFile = logFile
	s.shutdown = shutdown
	return s, nil
}

// New builds a Studio over already initialized dependencies.
func New(cfg config.Config, deps Deps) (*Studio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if deps.Completer == nil {
		return nil, errors.New("a completer is required")
	}
	if deps.DB == nil {
		return nil, errors.New("a database is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = tracenoop.NewTracerProvider().Tracer("studio")
	}
	if deps.Meter == nil {
		deps.Meter = metricnoop.NewMeterProvider().Meter("studio")
	}

	completer := deps.Completer
	if cfg.CacheResponses {
		completer = cache.NewCompleter(completer, deps.Logger)
	}

	prompts, err := config.LoadRoster(cfg.RosterPath)
	if err != nil {
		return nil, err
	}
	settings := backend.Settings{
		MaxOutputTokens: cfg.MaxOutputTokens,
		Seed:            cfg.Seed,
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
	}
	roster, err := agent.InitializeAgents(completer, settings, prompts)
	if err != nil {
		return nil, err
	}
	if err := roster.Require(cfg.RequiredAgents()...); err != nil {
		return nil, err
	}
	panel, err := agent.NewPanel(roster, agent.PanelConfig{
		Reviewers: cfg.Reviewers,
		Meta:      cfg.Meta,
		Writer:    cfg.Writer,
		Parallel:  cfg.ParallelReviews,
		Logger:    deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Studio{
		config:    cfg,
		db:        deps.DB,
		store:     session.NewStore(deps.DB),
		logger:    deps.Logger,
		tracer:    deps.Tracer,
		meter:     deps.Meter,
		provider:  deps.Completer,
		completer: completer,
		roster:    roster,
		panel:     panel,
	}

	s.runCounter, err = s.meter.Int64Counter("blogcrew.runs",
		metric.WithDescription("Writing runs by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create run counter: %w", err)
	}
	s.turnCounter, err = s.meter.Int64Counter("blogcrew.dialogue.turns",
		metric.WithDescription("Agent turns produced in writer/critic dialogues"))
	if err != nil {
		return nil, fmt.Errorf("failed to create turn counter: %w", err)
	}
	s.runDuration, err = s.meter.Float64Histogram("blogcrew.run.duration",
		metric.WithDescription("Duration of a writing run"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create run histogram: %w", err)
	}

	deps.Logger.Info("studio ready",
		"backend", cfg.Backend,
		"agents", roster.Names(),
		"max_turns", cfg.MaxTurns,
		"parallel_reviews", cfg.ParallelReviews,
		"cache", cfg.CacheResponses,
	)
	return s, nil
}

// Config returns the configuration the Studio was built with.
func (s *Studio) Config() config.Config { return s.config }

// Store returns the transcript store.
func (s *Studio) Store() *session.Store { return s.store }

// Logger returns the Studio logger.
func (s *Studio) Logger() *slog.Logger { return s.logger }

// Close flushes telemetry and releases the database and log file.
func (s *Studio) Close() error {
	err := s.db.Close()
	if s.shutdown != nil {
		s.shutdown()
	}
	if s.closeLogFile != nil {
		if cerr := s.closeLogFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Result is the outcome of one writing run.
type Result struct {
	RunID     string
	Topic     string
	Completed bool
	Turns     []session.Turn
	Original  session.Turn
	Reviewed  session.Turn
	Panel     agent.PanelResult
}

// Transcript converts the result into its stored form.
func (r *Result) Transcript(backendName string, start time.Time) session.Transcript {
	return session.Transcript{
		ID:           r.RunID,
		Topic:        r.Topic,
		StartTime:    start,
		Backend:      backendName,
		Completed:    r.Completed,
		ReviewedCopy: r.Reviewed.Content,
		Report:       r.Panel.Report.String(),
		FinalCopy:    r.Panel.Final.Content,
		Turns:        r.Turns,
	}
}

// Write runs the dialogue on topic, then the review panel over the writer's
// first draft, reporting progress to emit. The transcript is saved only
// when every stage succeeded; a cancelled run leaves nothing behind.
func (s *Studio) Write(ctx context.Context, topic string, emit func(Event)) (*Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)

	ctx, span := s.tracer.Start(ctx, "blog_run",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.String("backend", s.config.Backend),
			attribute.Int("max_turns", s.config.MaxTurns),
		))
	defer span.End()

	res, err := s.write(ctx, runID, topic, logger, emit)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		if errors.Is(err, context.Canceled) {
			outcome = "cancelled"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("run failed", "outcome", outcome, "error", err)
		emit(Event{Type: EventError, RunID: runID, Content: err.Error()})
	}
	s.runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", s.config.Backend),
		attribute.String("outcome", outcome),
	))
	s.runDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("backend", s.config.Backend),
		attribute.String("outcome", outcome),
	))
	if err != nil {
		return res, err
	}

	if err := s.store.Save(ctx, res.Transcript(s.completer.Name(), start)); err != nil {
		logger.Error("failed to save transcript", "error", err)
		return res, err
	}
	logger.Info("run finished",
		"completed", res.Completed,
		"turns", len(res.Turns),
		"duration", time.Since(start),
	)
	emit(Event{Type: EventDone, RunID: runID, Completed: res.Completed})
	return res, nil
}

func (s *Studio) write(ctx context.Context, runID, topic string, logger *slog.Logger, emit func(Event)) (*Result, error) {
	writer, err := s.roster.Get(s.config.Writer)
	if err != nil {
		return nil, err
	}
	critic, err := s.roster.Get(s.config.Critic)
	if err != nil {
		return nil, err
	}

	d, err := agent.NewDialogue(topic, writer, critic, s.config.MaxTurns, agent.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	res := &Result{RunID: runID, Topic: topic}

	dctx, dspan := s.tracer.Start(ctx, "dialogue")
	first := true
	for turn, err := range d.Turns(dctx) {
		if err != nil {
			dspan.RecordError(err)
			dspan.End()
			res.Turns = d.History()
			return res, err
		}
		s.turnCounter.Add(dctx, 1, metric.WithAttributes(attribute.String("agent", turn.Name)))
		emit(Event{Type: EventTurn, RunID: runID, Name: turn.Name, Content: turn.Content})
		if first {
			first = false
			emit(Event{Type: EventOriginal, RunID: runID, Name: turn.Name, Content: turn.Content})
		}
	}
	dspan.SetAttributes(
		attribute.Int("turns", d.Len()),
		attribute.Bool("completed", d.Completed()),
	)
	dspan.End()

	res.Turns = d.History()
	res.Completed = d.Completed()
	res.Original, _ = d.OriginalCopy()
	res.Reviewed, _ = d.ReviewedCopy()
	emit(Event{Type: EventReviewed, RunID: runID, Name: res.Reviewed.Name, Content: res.Reviewed.Content, Completed: res.Completed})

	panel, err := s.panel.Review(ctx, d, agent.WithStageObserver(s.observeStage(runID, emit)))
	res.Panel = panel
	if err != nil {
		return res, err
	}
	return res, nil
}

// observeStage wraps every pipeline stage in a span and emits the stage's
// artifact once it succeeded.
func (s *Studio) observeStage(runID string, emit func(Event)) agent.StageObserver {
	return func(ctx context.Context, stage agent.Stage) (context.Context, func(agent.PanelResult, error)) {
		ctx, span := s.tracer.Start(ctx, string(stage))
		return ctx, func(res agent.PanelResult, err error) {
			defer span.End()
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return
			}
			switch stage {
			case agent.StageReport:
				emit(Event{Type: EventReport, RunID: runID, Content: res.Report.String()})
			case agent.StageMetaReview:
				emit(Event{Type: EventMeta, RunID: runID, Name: res.Review.Name, Content: res.Review.Content})
			case agent.StageFinalRewrite:
				emit(Event{Type: EventFinal, RunID: runID, Name: res.Final.Name, Content: res.Final.Content})
			}
		}
	}
}
