package agent

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"BlogCrew/internal/session"
)

// Dialogue is one writer/critic conversation. The writer speaks first and
// the two alternate until the critic's turn satisfies the termination
// strategy or maxTurns agent turns have been produced.
//
// A Dialogue owns its history and is driven by a single goroutine.
type Dialogue struct {
	writer   *Agent
	critic   *Agent
	maxTurns int
	strategy TerminationStrategy
	logger   *slog.Logger

	history   *session.History
	started   bool
	finished  bool
	completed bool
	err       error
}

// DialogueOption customizes a Dialogue.
type DialogueOption func(*Dialogue)

// WithTermination replaces the default "copy accepted" policy.
func WithTermination(s TerminationStrategy) DialogueOption {
	return func(d *Dialogue) { d.strategy = s }
}

// WithLogger sets the logger used for per-turn debug records.
func WithLogger(l *slog.Logger) DialogueOption {
	return func(d *Dialogue) { d.logger = l }
}

// NewDialogue starts a conversation whose first turn is the user task.
func NewDialogue(task string, writer, critic *Agent, maxTurns int, opts ...DialogueOption) (*Dialogue, error) {
	if writer == nil || critic == nil {
		return nil, fmt.Errorf("%w: writer and critic are required", ErrConfiguration)
	}
	if writer.Name() == critic.Name() {
		return nil, fmt.Errorf("%w: writer and critic must be different agents", ErrConfiguration)
	}
	if maxTurns <= 0 {
		return nil, fmt.Errorf("%w: max turns must be positive, got %d", ErrConfiguration, maxTurns)
	}

	d := &Dialogue{
		writer:   writer,
		critic:   critic,
		maxTurns: maxTurns,
		strategy: NewApprovalTermination(),
		logger:   slog.Default(),
		history:  session.NewHistory(session.UserTurn(task)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Turns streams agent turns as they are produced. The sequence is single
// pass: iterating it a second time yields ErrDialogueConsumed. A failed
// invocation ends the sequence with the error unchanged and appends nothing.
func (d *Dialogue) Turns(ctx context.Context) iter.Seq2[session.Turn, error] {
	return func(yield func(session.Turn, error) bool) {
		if d.started {
			yield(session.Turn{}, ErrDialogueConsumed)
			return
		}
		d.started = true
		defer func() { d.finished = true }()

		participants := [2]*Agent{d.writer, d.critic}
		for produced := 0; produced < d.maxTurns; produced++ {
			if err := ctx.Err(); err != nil {
				d.err = err
				yield(session.Turn{}, err)
				return
			}

			current := participants[produced%2]
			turn, err := current.Invoke(ctx, d.history)
			if err != nil {
				d.err = err
				d.logger.Error("agent invocation failed", "agent", current.Name(), "turn", produced+1, "error", err)
				yield(session.Turn{}, err)
				return
			}
			d.history.Append(turn)

			// Only the critic can end the dialogue.
			accepted := current == d.critic && d.strategy.ShouldTerminate(turn)
			if accepted {
				d.completed = true
			}
			d.logger.Debug("agent turn", "agent", current.Name(), "turn", produced+1, "accepted", accepted)

			if !yield(turn, nil) || accepted {
				return
			}
		}
	}
}

// Run drains the turn stream and returns the first error.
func (d *Dialogue) Run(ctx context.Context) error {
	for _, err := range d.Turns(ctx) {
		if err != nil {
			return err
		}
	}
	return nil
}

// Task returns the originating user turn.
func (d *Dialogue) Task() session.Turn {
	t, _ := d.history.At(0)
	return t
}

// History returns a copy of the conversation so far.
func (d *Dialogue) History() []session.Turn {
	return d.history.Turns()
}

// Len returns the number of turns including the task.
func (d *Dialogue) Len() int {
	return d.history.Len()
}

// Completed reports whether the termination strategy ended the dialogue.
func (d *Dialogue) Completed() bool {
	return d.completed
}

// Finished reports whether the turn stream has ended for any reason.
func (d *Dialogue) Finished() bool {
	return d.finished
}

// Err returns the failure that ended the dialogue, if any.
func (d *Dialogue) Err() error {
	return d.err
}

// OriginalCopy returns the writer's first draft.
func (d *Dialogue) OriginalCopy() (session.Turn, bool) {
	t, ok := d.history.At(1)
	if !ok || t.Name != d.writer.Name() {
		return session.Turn{}, false
	}
	return t, true
}

// ReviewedCopy returns the outcome of the dialogue: the accepted writer copy
// preceding the critic's approval when complete, otherwise the critic's last
// feedback.
func (d *Dialogue) ReviewedCopy() (session.Turn, bool) {
	if d.completed {
		return d.history.At(-2)
	}
	return d.history.LastBy(d.critic.Name())
}
