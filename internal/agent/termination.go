package agent

import (
	"strings"

	"BlogCrew/internal/session"
)

// ApprovalPhrase is what a critic writes when it accepts the copy.
const ApprovalPhrase = "copy accepted"

// TerminationStrategy decides whether a dialogue ends after the given turn.
type TerminationStrategy interface {
	ShouldTerminate(latest session.Turn) bool
}

// PhraseTermination accepts when the turn contains Phrase, ignoring case.
type PhraseTermination struct {
	Phrase string
}

// NewApprovalTermination returns the "copy accepted" policy.
func NewApprovalTermination() PhraseTermination {
	return PhraseTermination{Phrase: ApprovalPhrase}
}

func (p PhraseTermination) ShouldTerminate(latest session.Turn) bool {
	if p.Phrase == "" {
		return false
	}
	return strings.Contains(strings.ToLower(latest.Content), strings.ToLower(p.Phrase))
}

// MaxTurnsTermination never accepts; the dialogue runs to its turn cap.
type MaxTurnsTermination struct{}

func (MaxTurnsTermination) ShouldTerminate(session.Turn) bool { return false }
