package session

// History is an ordered, append-only log of turns. Index 0 holds the
// originating task once a conversation has started.
//
// A History is owned by exactly one conversation and is not safe for
// concurrent use.
type History struct {
	turns []Turn
}

// NewHistory returns a history seeded with the given turns.
func NewHistory(seed ...Turn) *History {
	h := &History{turns: make([]Turn, 0, len(seed)+8)}
	h.turns = append(h.turns, seed...)
	return h
}

// Append adds a turn at the end.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
}

// Len returns the number of turns.
func (h *History) Len() int {
	return len(h.turns)
}

// At returns the turn at index i. Negative indexes count from the end.
func (h *History) At(i int) (Turn, bool) {
	if i < 0 {
		i += len(h.turns)
	}
	if i < 0 || i >= len(h.turns) {
		return Turn{}, false
	}
	return h.turns[i], true
}

// Last returns the most recent turn.
func (h *History) Last() (Turn, bool) {
	return h.At(-1)
}

// LastBy returns the most recent turn authored by the named agent.
func (h *History) LastBy(name string) (Turn, bool) {
	for i := len(h.turns) - 1; i >= 0; i-- {
		if t := h.turns[i]; t.Role == RoleAgent && t.Name == name {
			return t, true
		}
	}
	return Turn{}, false
}

// Turns returns a copy of the log.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}
