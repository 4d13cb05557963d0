package studio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"BlogCrew/internal/backend"
	"BlogCrew/internal/session"
	"BlogCrew/internal/textfmt"
)

// modelLister is implemented by backends that can enumerate local models.
type modelLister interface {
	ListModels(ctx context.Context) ([]backend.OllamaModel, error)
}

// console serializes writes from the run goroutine and the input loop.
type console struct {
	mu    sync.Mutex
	out   io.Writer
	width int
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) event(ev Event) {
	switch ev.Type {
	case EventTurn:
		c.printf("\n%s", textfmt.Turn(ev.Name, ev.Content, c.width))
	case EventOriginal:
		// Already shown as the first debate turn.
	case EventReviewed:
		status := "accepted by the critic"
		if !ev.Completed {
			status = "turn limit reached, last critic feedback"
		}
		c.printf("\n%s %s\n%s\n", textfmt.Heading("Reviewed copy"), textfmt.Dim("("+status+")"),
			textfmt.FormatText(ev.Content, c.width))
	case EventReport:
		c.printf("\n%s", textfmt.Panel("Review report", ev.Content, c.width))
	case EventMeta:
		c.printf("\n%s", textfmt.Panel("Meta review", ev.Content, c.width))
	case EventFinal:
		c.printf("\n%s", textfmt.Panel("Final copy", ev.Content, c.width))
	case EventDone:
		c.printf("\n%s\n\n", textfmt.Dim("run "+ev.RunID+" saved"))
	}
}

// handleCommand handles special commands
func (s *Studio) handleCommand(ctx context.Context, cmd string, con *console) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/reset":
		con.printf("No run in progress.\n")
		return false, nil

	case "/runs":
		runs, err := s.store.List(ctx, 20)
		if err != nil {
			return false, fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			con.printf("No runs yet.\n")
			return false, nil
		}
		con.printf("\nRuns:\n")
		for i, r := range runs {
			status := "incomplete"
			if r.Completed {
				status = "accepted"
			}
			con.printf("%d. %s  %s  %q (%s)\n", i+1, r.ID, r.StartTime.Format("15:04:05"), r.Topic, status)
		}
		con.printf("\n")
		return false, nil

	case "/show":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /show <run-id>")
		}
		t, err := s.store.Get(ctx, parts[1])
		if err != nil {
			return false, err
		}
		s.printTranscript(con, t)
		return false, nil

	case "/models":
		lister, ok := s.provider.(modelLister)
		if !ok {
			return false, fmt.Errorf("the %s backend cannot list models", s.provider.Name())
		}
		models, err := lister.ListModels(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list Ollama models: %w", err)
		}
		con.printf("\nAvailable Ollama models:\n")
		for i, model := range models {
			sizeGB := float64(model.Size) / (1024 * 1024 * 1024)
			current := ""
			if model.Name == s.config.Model {
				current = " (current)"
			}
			con.printf("%d. %s - %.2f GB%s\n", i+1, model.Name, sizeGB, current)
		}
		con.printf("\n")
		return false, nil

	case "/help":
		con.printf("Available commands:\n")
		con.printf("  /quit, /exit    - Exit\n")
		con.printf("  /reset          - Cancel the run in progress\n")
		con.printf("  /runs           - List runs of this process\n")
		con.printf("  /show <run-id>  - Show a stored run\n")
		con.printf("  /models         - List available Ollama models\n")
		con.printf("  /help           - Show this help message\n")
		con.printf("Anything else is taken as the topic of a new blog post.\n")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}
}

func (s *Studio) printTranscript(con *console, t *session.Transcript) {
	con.printf("\n%s %s\n", textfmt.Heading("Topic:"), t.Topic)
	for _, turn := range t.Turns {
		if turn.Role == session.RoleAgent {
			con.printf("\n%s", textfmt.Turn(turn.Name, turn.Content, con.width))
		}
	}
	con.printf("\n%s", textfmt.Panel("Reviewed copy", t.ReviewedCopy, con.width))
	con.printf("\n%s", textfmt.Panel("Review report", t.Report, con.width))
	con.printf("\n%s\n", textfmt.Panel("Final copy", t.FinalCopy, con.width))
}

// runInteractive executes one run while still reading input so that /reset
// can cancel it. It reports whether the input was exhausted; the run is
// still awaited in that case.
func (s *Studio) runInteractive(ctx context.Context, topic string, lines <-chan string, con *console) bool {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := s.Write(runCtx, topic, con.event)
		done <- err
	}()

	con.printf("%s\n", textfmt.Dim("Agents at work... (/reset to cancel)"))
	eof := false
	for {
		select {
		case err := <-done:
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				con.printf("Run reset.\n\n")
			default:
				con.printf("%s\n\n", textfmt.Error(err))
			}
			return eof
		case line, ok := <-lines:
			if !ok {
				eof = true
				lines = nil
				continue
			}
			if strings.TrimSpace(line) == "/reset" {
				cancel()
				continue
			}
			con.printf("%s\n", textfmt.Dim("A run is in progress; type /reset to cancel it."))
		}
	}
}

// Run starts the interactive loop. Each non-command line is a blog topic.
func (s *Studio) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	con := &console{out: out, width: s.config.WrapWidth}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	con.printf("=== BlogCrew ===\n")
	con.printf("Backend: %s\n", s.completer.Name())
	con.printf("Agents: %s\n", strings.Join(s.roster.Names(), ", "))
	con.printf("Reviewers: %s\n", strings.Join(s.panel.Reviewers(), ", "))
	con.printf("Type a topic to write about, /help for commands, /quit to exit\n\n")

	for {
		con.printf("Topic: ")
		var input string
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				con.printf("\nGoodbye!\n")
				return nil
			}
			input = strings.TrimSpace(line)
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := s.handleCommand(ctx, input, con)
			if err != nil {
				con.printf("%s\n", textfmt.Error(err))
				s.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if s.runInteractive(ctx, input, lines, con) {
			con.printf("\nGoodbye!\n")
			return nil
		}
	}

	con.printf("Goodbye!\n")
	return nil
}

// RunOnce writes one post on topic, rendering progress to out.
func (s *Studio) RunOnce(ctx context.Context, topic string, out io.Writer) error {
	con := &console{out: out, width: s.config.WrapWidth}
	_, err := s.Write(ctx, topic, con.event)
	return err
}
