package studio

// EventType names a progress notification of a writing run.
type EventType string

const (
	EventTurn     EventType = "turn"     // one debate turn
	EventOriginal EventType = "original" // the writer's first draft
	EventReviewed EventType = "reviewed" // the copy the dialogue settled on
	EventReport   EventType = "report"   // concatenated reviewer feedback
	EventMeta     EventType = "meta"     // consolidated meta review
	EventFinal    EventType = "final"    // the rewritten copy
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is sent to observers while a run progresses. It is also the JSON
// message written to websocket clients.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Name      string    `json:"name,omitempty"`
	Content   string    `json:"content,omitempty"`
	Completed bool      `json:"completed,omitempty"`
}
