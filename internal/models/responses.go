package models

import "time"

// HealthResponse represents a basic health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// DBHealthResponse represents a database health check response
type DBHealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// ChatRequest represents the request body for the chat endpoint
type ChatRequest struct {
	UserID         string             `json:"user_id"`
	Message        string             `json:"message"`
	Conversation   []ConversationTurn `json:"conversation,omitempty"`
	MailboxSummary string             `json:"mailbox_summary,omitempty"`
	ModelID        string             `json:"model_id,omitempty"`
}

// ChatResponse represents the response from the chat endpoint
type ChatResponse struct {
	Response     string `json:"response"`
	ModelUsed    string `json:"model_used,omitempty"`
	UsedFallback bool   `json:"used_fallback,omitempty"`
	TokenCount   int    `json:"token_count,omitempty"`
	Data         any    `json:"data,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ImportantEmailsResponse represents the response from the important
// emails endpoint
type ImportantEmailsResponse struct {
	Messages      []ScoredMessage `json:"messages"`
	NextPageToken string          `json:"next_page_token,omitempty"`
	Error         string          `json:"error,omitempty"`
}
