package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"BlogCrew/internal/backend"
	"BlogCrew/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPanel(t *testing.T, c *scriptedCompleter, parallel bool) *Panel {
	t.Helper()
	p, err := NewPanel(testRoster(t, c), PanelConfig{
		Reviewers: []string{"SEO", "ETHICS", "LEGAL"},
		Meta:      "META",
		Writer:    "WRITER",
		Parallel:  parallel,
	})
	require.NoError(t, err)
	return p
}

func TestInvokeSingleIsIsolated(t *testing.T) {
	c := newScripted().say("SEO", "use keywords")
	r := testRoster(t, c)

	text, err := InvokeSingle(context.Background(), mustAgent(t, r, "SEO"), session.AgentTurn("WRITER", "draft"))
	require.NoError(t, err)
	assert.Equal(t, "use keywords", text)

	reqs := c.requestsFor("SEO")
	require.Len(t, reqs, 1)
	assert.Equal(t, []backend.Message{{Role: backend.RoleUser, Content: "draft"}}, reqs[0].Messages)
}

func TestReportRendersInPanelOrder(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		c := newScripted().
			on("SEO", reply{text: "a", delay: 30 * time.Millisecond}).
			on("ETHICS", reply{text: "b", delay: 15 * time.Millisecond}).
			on("LEGAL", reply{text: "c"})
		p := newTestPanel(t, c, parallel)

		report, err := p.GenerateFullReport(context.Background(), session.AgentTurn("WRITER", "draft"))
		require.NoError(t, err)
		assert.Equal(t, "# SEO Review\na\n# ETHICS Review\nb\n# LEGAL Review\nc\n", report.String(), "parallel=%v", parallel)
		assert.Equal(t, []ReportSection{
			{Reviewer: "SEO", Feedback: "a"},
			{Reviewer: "ETHICS", Feedback: "b"},
			{Reviewer: "LEGAL", Feedback: "c"},
		}, report.Sections)
	}
}

func TestReportAbortsOnReviewerFailure(t *testing.T) {
	boom := &backend.GenerationError{Backend: "scripted", Err: errors.New("content filtered")}
	for _, parallel := range []bool{false, true} {
		c := newScripted().
			say("SEO", "a").
			on("ETHICS", reply{err: boom}).
			say("LEGAL", "c")
		p := newTestPanel(t, c, parallel)

		report, err := p.GenerateFullReport(context.Background(), session.AgentTurn("WRITER", "draft"))
		assert.Same(t, boom, err, "parallel=%v", parallel)
		assert.Empty(t, report.Sections)
		assert.Empty(t, report.String())
	}
}

func TestSequentialReportStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	c := newScripted().on("SEO", reply{err: boom}).say("ETHICS", "b").say("LEGAL", "c")
	p := newTestPanel(t, c, false)

	_, err := p.GenerateFullReport(context.Background(), session.AgentTurn("WRITER", "draft"))
	assert.Same(t, boom, err)
	assert.Equal(t, 0, c.callCount("ETHICS"))
	assert.Equal(t, 0, c.callCount("LEGAL"))
}

func TestReviewPanelSeedsMetaReviewer(t *testing.T) {
	c := newScripted().say("META", "tighten the intro")
	p := newTestPanel(t, c, false)
	report := Report{Sections: []ReportSection{{Reviewer: "SEO", Feedback: "a"}}}

	review, err := p.ReviewPanel(context.Background(), session.UserTurn("task"), session.AgentTurn("WRITER", "draft"), report)
	require.NoError(t, err)
	assert.Equal(t, session.RoleAgent, review.Role)
	assert.Equal(t, "META", review.Name)
	assert.Equal(t, "tighten the intro", review.Content)

	reqs := c.requestsFor("META")
	require.Len(t, reqs, 1)
	assert.Equal(t, []backend.Message{
		{Role: backend.RoleUser, Content: "task"},
		{Role: backend.RoleUser, Content: "draft"},
		{Role: backend.RoleAssistant, Content: "# SEO Review\na\n"},
	}, reqs[0].Messages)
}

func TestFinalRewriteSeedsWriter(t *testing.T) {
	c := newScripted().say("WRITER", "final copy")
	p := newTestPanel(t, c, false)

	final, err := p.FinalRewrite(context.Background(),
		session.UserTurn("task"),
		session.AgentTurn("WRITER", "draft"),
		session.AgentTurn("META", "tighten the intro"))
	require.NoError(t, err)
	assert.Equal(t, "WRITER", final.Name)
	assert.Equal(t, "final copy", final.Content)

	reqs := c.requestsFor("WRITER")
	require.Len(t, reqs, 1)
	assert.Equal(t, []backend.Message{
		{Role: backend.RoleUser, Content: "task"},
		{Role: backend.RoleAssistant, Content: "draft"},
		{Role: backend.RoleUser, Content: "tighten the intro"},
	}, reqs[0].Messages)
}

func TestPanelRunSequencesStages(t *testing.T) {
	c := newScripted().
		say("SEO", "a").say("ETHICS", "b").say("LEGAL", "c").
		say("META", "verdict").
		say("WRITER", "final")
	p := newTestPanel(t, c, false)

	res, err := p.Run(context.Background(), session.UserTurn("task"), session.AgentTurn("WRITER", "draft"))
	require.NoError(t, err)
	assert.Len(t, res.Report.Sections, 3)
	assert.Equal(t, "verdict", res.Review.Content)
	assert.Equal(t, "final", res.Final.Content)

	metaReqs := c.requestsFor("META")
	require.Len(t, metaReqs, 1)
	assert.Equal(t, res.Report.String(), metaReqs[0].Messages[2].Content)

	writerReqs := c.requestsFor("WRITER")
	require.Len(t, writerReqs, 1)
	assert.Equal(t, "verdict", writerReqs[0].Messages[2].Content)
}

func TestPanelRunStopsWhenMetaFails(t *testing.T) {
	boom := errors.New("boom")
	c := newScripted().
		say("SEO", "a").say("ETHICS", "b").say("LEGAL", "c").
		on("META", reply{err: boom}).
		say("WRITER", "final")
	p := newTestPanel(t, c, false)

	res, err := p.Run(context.Background(), session.UserTurn("task"), session.AgentTurn("WRITER", "draft"))
	assert.Same(t, boom, err)
	assert.Len(t, res.Report.Sections, 3)
	assert.Equal(t, 0, c.callCount("WRITER"))
}

func TestPanelReviewRequiresFinishedDialogue(t *testing.T) {
	c := newScripted().
		say("WRITER", "draft", "final").
		say("CRITIC", "copy accepted").
		say("SEO", "a").say("ETHICS", "b").say("LEGAL", "c").
		say("META", "verdict")
	r := testRoster(t, c)
	p, err := NewPanel(r, PanelConfig{Reviewers: []string{"SEO", "ETHICS", "LEGAL"}, Meta: "META", Writer: "WRITER"})
	require.NoError(t, err)

	d, err := NewDialogue("task", mustAgent(t, r, "WRITER"), mustAgent(t, r, "CRITIC"), 5)
	require.NoError(t, err)

	_, err = p.Review(context.Background(), d)
	assert.ErrorIs(t, err, ErrDialogueActive)

	require.NoError(t, d.Run(context.Background()))
	res, err := p.Review(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "final", res.Final.Content)
}

func TestNewPanelConfigurationErrors(t *testing.T) {
	r := testRoster(t, newScripted())

	_, err := NewPanel(r, PanelConfig{Meta: "META", Writer: "WRITER"})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewPanel(r, PanelConfig{Reviewers: []string{"SEO", "CONTENT"}, Meta: "META", Writer: "WRITER"})
	assert.ErrorIs(t, err, ErrAgentNotFound)

	_, err = NewPanel(nil, PanelConfig{Reviewers: []string{"SEO"}, Meta: "META", Writer: "WRITER"})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestPanelRunReportsStages(t *testing.T) {
	c := newScripted().
		say("SEO", "a").say("ETHICS", "b").say("LEGAL", "c").
		say("META", "verdict").
		say("WRITER", "final")
	p := newTestPanel(t, c, false)

	var started []Stage
	var ended []PanelResult
	observe := func(ctx context.Context, stage Stage) (context.Context, func(PanelResult, error)) {
		started = append(started, stage)
		return ctx, func(res PanelResult, err error) {
			assert.NoError(t, err)
			ended = append(ended, res)
		}
	}

	res, err := p.Run(context.Background(), session.UserTurn("task"), session.AgentTurn("WRITER", "draft"), WithStageObserver(observe))
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageReport, StageMetaReview, StageFinalRewrite}, started)
	require.Len(t, ended, 3)
	assert.Len(t, ended[0].Report.Sections, 3)
	assert.Empty(t, ended[0].Review.Content)
	assert.Equal(t, "verdict", ended[1].Review.Content)
	assert.Empty(t, ended[1].Final.Content)
	assert.Equal(t, res, ended[2])
}

func TestPanelRunObserverSeesStageFailure(t *testing.T) {
	boom := errors.New("boom")
	c := newScripted().
		say("SEO", "a").say("ETHICS", "b").say("LEGAL", "c").
		on("META", reply{err: boom})
	p := newTestPanel(t, c, false)

	var stages []Stage
	var failures []error
	observe := func(ctx context.Context, stage Stage) (context.Context, func(PanelResult, error)) {
		stages = append(stages, stage)
		return ctx, func(_ PanelResult, err error) { failures = append(failures, err) }
	}

	_, err := p.Run(context.Background(), session.UserTurn("task"), session.AgentTurn("WRITER", "draft"), WithStageObserver(observe))
	assert.Same(t, boom, err)
	assert.Equal(t, []Stage{StageReport, StageMetaReview}, stages)
	assert.Equal(t, []error{nil, boom}, failures)
}
