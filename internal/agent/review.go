package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"BlogCrew/internal/session"
)

// ErrDialogueActive is returned when a review is requested for a dialogue
// whose turn stream has not ended.
var ErrDialogueActive = errors.New("dialogue has not finished")

// InvokeSingle runs a one-shot exchange: a fresh history holding only
// message, one invocation of a, and the produced text.
func InvokeSingle(ctx context.Context, a *Agent, message session.Turn) (string, error) {
	history := session.NewHistory(message)
	turn, err := a.Invoke(ctx, history)
	if err != nil {
		return "", err
	}
	history.Append(turn)
	last, _ := history.Last()
	return last.Content, nil
}

// ReportSection is one reviewer's feedback.
type ReportSection struct {
	Reviewer string `json:"reviewer"`
	Feedback string `json:"feedback"`
}

// Report is the concatenated reviewer feedback in panel order.
type Report struct {
	Sections []ReportSection `json:"sections"`
}

// String renders each section under a "# {name} Review" heading.
func (r Report) String() string {
	var sb strings.Builder
	for _, s := range r.Sections {
		fmt.Fprintf(&sb, "# %s Review\n%s\n", s.Reviewer, s.Feedback)
	}
	return sb.String()
}

// PanelResult holds the outputs of the three review stages.
type PanelResult struct {
	Report Report
	Review session.Turn
	Final  session.Turn
}

// Panel is the review pipeline: independent reviewers, a meta reviewer that
// consolidates them, and a final rewrite by the writer.
type Panel struct {
	roster    *Roster
	reviewers []string
	meta      string
	writer    string
	parallel  bool
	logger    *slog.Logger
}

// PanelConfig names the agents taking part in the review.
type PanelConfig struct {
	Reviewers []string
	Meta      string
	Writer    string
	// Parallel runs the reviewer calls concurrently. Report order is unchanged.
	Parallel bool
	Logger   *slog.Logger
}

// NewPanel checks that every configured agent is in the roster.
func NewPanel(roster *Roster, cfg PanelConfig) (*Panel, error) {
	if roster == nil {
		return nil, fmt.Errorf("%w: roster is required", ErrConfiguration)
	}
	if len(cfg.Reviewers) == 0 {
		return nil, fmt.Errorf("%w: at least one reviewer is required", ErrConfiguration)
	}
	if err := roster.Require(append([]string{cfg.Meta, cfg.Writer}, cfg.Reviewers...)...); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reviewers := make([]string, len(cfg.Reviewers))
	copy(reviewers, cfg.Reviewers)
	return &Panel{
		roster:    roster,
		reviewers: reviewers,
		meta:      cfg.Meta,
		writer:    cfg.Writer,
		parallel:  cfg.Parallel,
		logger:    logger,
	}, nil
}

// Reviewers returns the reviewer order.
func (p *Panel) Reviewers() []string {
	out := make([]string, len(p.reviewers))
	copy(out, p.reviewers)
	return out
}

func (p *Panel) agent(name string) *Agent {
	// Presence was checked by NewPanel and the roster is immutable.
	a, _ := p.roster.Get(name)
	return a
}

// GenerateFullReport sends originalCopy to every reviewer in isolation and
// assembles their feedback in panel order. The first failure aborts the
// report.
func (p *Panel) GenerateFullReport(ctx context.Context, originalCopy session.Turn) (Report, error) {
	sections := make([]ReportSection, len(p.reviewers))

	if !p.parallel {
		for i, name := range p.reviewers {
			feedback, err := InvokeSingle(ctx, p.agent(name), originalCopy)
			if err != nil {
				p.logger.Error("reviewer failed", "agent", name, "error", err)
				return Report{}, err
			}
			sections[i] = ReportSection{Reviewer: name, Feedback: feedback}
		}
		return Report{Sections: sections}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range p.reviewers {
		g.Go(func() error {
			feedback, err := InvokeSingle(gctx, p.agent(name), originalCopy)
			if err != nil {
				p.logger.Error("reviewer failed", "agent", name, "error", err)
				return err
			}
			sections[i] = ReportSection{Reviewer: name, Feedback: feedback}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return Report{Sections: sections}, nil
}

// invokeSeeded runs the named agent once over a fresh history built from seed
// and returns its turn.
func (p *Panel) invokeSeeded(ctx context.Context, name string, seed ...session.Turn) (session.Turn, error) {
	history := session.NewHistory(seed...)
	turn, err := p.agent(name).Invoke(ctx, history)
	if err != nil {
		return session.Turn{}, err
	}
	history.Append(turn)
	last, _ := history.Last()
	return last, nil
}

// ReviewPanel asks the meta reviewer for a consolidated verdict over the
// task, the original draft and the assembled report.
func (p *Panel) ReviewPanel(ctx context.Context, task, originalCopy session.Turn, report Report) (session.Turn, error) {
	return p.invokeSeeded(ctx, p.meta, task, originalCopy, session.AssistantTurn(report.String()))
}

// FinalRewrite hands the meta review back to the writer for one last pass.
func (p *Panel) FinalRewrite(ctx context.Context, task, originalCopy, finalReview session.Turn) (session.Turn, error) {
	return p.invokeSeeded(ctx, p.writer, task, originalCopy, finalReview)
}

// Stage names one step of the review pipeline.
type Stage string

const (
	StageReport       Stage = "review_report"
	StageMetaReview   Stage = "meta_review"
	StageFinalRewrite Stage = "final_rewrite"
)

// StageObserver is called when a stage starts. It may return a derived
// context for the stage and a function that is called once the stage ended,
// with the result accumulated so far and the stage error.
type StageObserver func(ctx context.Context, stage Stage) (context.Context, func(res PanelResult, err error))

// RunOption customizes a single pipeline run.
type RunOption func(*runOptions)

type runOptions struct {
	observe StageObserver
}

// WithStageObserver reports stage boundaries to observe.
func WithStageObserver(observe StageObserver) RunOption {
	return func(o *runOptions) { o.observe = observe }
}

// stage runs fn under the observer, if any.
func (o runOptions) stage(ctx context.Context, stage Stage, res *PanelResult, fn func(ctx context.Context) error) error {
	if o.observe == nil {
		return fn(ctx)
	}
	sctx, done := o.observe(ctx, stage)
	err := fn(sctx)
	if done != nil {
		done(*res, err)
	}
	return err
}

// Run performs report, meta review and rewrite in order; each stage starts
// only after the previous one returned.
func (p *Panel) Run(ctx context.Context, task, originalCopy session.Turn, opts ...RunOption) (PanelResult, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	var res PanelResult

	err := o.stage(ctx, StageReport, &res, func(ctx context.Context) error {
		report, err := p.GenerateFullReport(ctx, originalCopy)
		res.Report = report
		return err
	})
	if err != nil {
		return res, err
	}

	err = o.stage(ctx, StageMetaReview, &res, func(ctx context.Context) error {
		review, err := p.ReviewPanel(ctx, task, originalCopy, res.Report)
		res.Review = review
		return err
	})
	if err != nil {
		return res, err
	}

	err = o.stage(ctx, StageFinalRewrite, &res, func(ctx context.Context) error {
		final, err := p.FinalRewrite(ctx, task, originalCopy, res.Review)
		res.Final = final
		return err
	})
	return res, err
}

// Review runs the pipeline over a dialogue that has finished, complete or
// not.
func (p *Panel) Review(ctx context.Context, d *Dialogue, opts ...RunOption) (PanelResult, error) {
	if !d.Finished() {
		return PanelResult{}, ErrDialogueActive
	}
	original, ok := d.OriginalCopy()
	if !ok {
		return PanelResult{}, fmt.Errorf("dialogue produced no draft")
	}
	return p.Run(ctx, d.Task(), original, opts...)
}
