// Package model defines the core domain types shared across the pipeline.
package model

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single role-tagged message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationRecord is one externally produced teacher conversation.
// Records are immutable once read; turn order is preserved.
type ConversationRecord struct {
	ID          int    `json:"id"`
	Turns       []Turn `json:"chat"`
	Model       string `json:"model,omitempty"`
	FailedTurns []int  `json:"failed_turns,omitempty"`
}

// AssistantTurns counts the assistant turns in the record.
func (r ConversationRecord) AssistantTurns() int {
	n := 0
	for _, t := range r.Turns {
		if t.Role == RoleAssistant {
			n++
		}
	}
	return n
}
