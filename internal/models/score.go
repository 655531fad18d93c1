package models

// ImportanceScore is the cached relevance verdict for one message within
// one time range. Immutable once written.
type ImportanceScore struct {
	Score       int  `json:"score"`
	IsImportant bool `json:"is_important"`
}

// ScoredMessage pairs a message with its importance score.
type ScoredMessage struct {
	Message
	Score       int  `json:"score"`
	IsImportant bool `json:"is_important"`
}
