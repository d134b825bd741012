package model

import "time"

// ActivityKind groups archived log entries by disposition.
type ActivityKind string

const (
	ActivityReplied ActivityKind = "replied"
	ActivitySkipped ActivityKind = "skipped"
	ActivityError   ActivityKind = "error"
)

// Activity is an archived record of how one inbox message was handled.
// It outlives the session log, which is cleared on reset.
type Activity struct {
	// ID is the unique identifier for this record.
	ID string `db:"id" json:"id"`

	// MessageID is the provider's identifier for the handled message.
	MessageID string `db:"message_id" json:"message_id"`

	// ThreadID links the record to the provider conversation, if any.
	ThreadID string `db:"thread_id" json:"thread_id"`

	Subject string `db:"subject" json:"subject"`
	Sender  string `db:"sender" json:"sender"`

	Kind ActivityKind `db:"kind" json:"kind"`

	// Status is the full status line shown in the log, e.g.
	// "Error: smtp: 550 mailbox unavailable".
	Status string `db:"status" json:"status"`

	// CreatedAt is when the message was handled.
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
