package types

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn entry in a conversation session.
// Citations are populated for assistant messages only.
type Message struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Text       string         `json:"text"`
	TokenCount int            `json:"token_count"`
	Timestamp  time.Time      `json:"timestamp"`
	Citations  []EvidenceItem `json:"citations,omitempty"`
}
