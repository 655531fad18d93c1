package models

// Conversation roles as sent to the model backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is a single message in a conversation history.
// Histories are bounded to the most recent N turns, oldest dropped first.
type ConversationTurn struct {
	Role    string `db:"role" json:"role"`
	Content string `db:"content" json:"content"`
}

// BoundTurns returns the most recent limit turns, preserving order.
func BoundTurns(turns []ConversationTurn, limit int) []ConversationTurn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}
