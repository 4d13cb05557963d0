package session

import "time"

// Role attributes a turn to its author kind.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAgent     Role = "agent"
)

// Turn represents a single attributed unit of conversation content
type Turn struct {
	Role      Role      `json:"role"`
	Name      string    `json:"name,omitempty"` // Set when Role is RoleAgent
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UserTurn builds a turn carrying user-provided text.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantTurn builds an unattributed assistant turn.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// AgentTurn builds a turn produced by the named agent.
func AgentTurn(name, content string) Turn {
	return Turn{Role: RoleAgent, Name: name, Content: content, Timestamp: time.Now()}
}

// Transcript is the record of one writing run kept for the run listing.
type Transcript struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic"`
	StartTime    time.Time `json:"start_time"`
	Backend      string    `json:"backend"`
	Completed    bool      `json:"completed"`
	ReviewedCopy string    `json:"reviewed_copy,omitempty"`
	Report       string    `json:"report,omitempty"`
	FinalCopy    string    `json:"final_copy,omitempty"`
	Turns        []Turn    `json:"turns"`
}
