package models

import "time"

// PendingDraft is an unsent email awaiting explicit confirmation. At
// most one live draft exists per user (last write wins); it is mirrored
// to the durable draft store so "send draft N" survives restarts.
type PendingDraft struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Recipient string    `db:"recipient" json:"recipient"`
	Subject   string    `db:"subject" json:"subject"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
