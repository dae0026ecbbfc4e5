package models

import "time"

// ThreadStatus is the lifecycle state of a conversation thread
type ThreadStatus string

const (
	ThreadActive    ThreadStatus = "active"
	ThreadCompleted ThreadStatus = "completed"
	ThreadArchived  ThreadStatus = "archived"
)

// Thread represents an ordered conversation grouping
type Thread struct {
	ID        int64        `db:"id" json:"id"`
	Title     string       `db:"title" json:"title"`
	Status    ThreadStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`

	Emails []Email `db:"-" json:"emails,omitempty"`
}

// Email represents one inbound or synthetic message
type Email struct {
	ID          int64     `db:"id" json:"id"`
	Subject     string    `db:"subject" json:"subject"`
	Content     string    `db:"content" json:"content"`
	ThreadID    int64     `db:"thread_id" json:"thread_id"`
	FromAddress string    `db:"from_address" json:"from_address"`
	FromName    *string   `db:"from_name" json:"from_name,omitempty"`
	ReceivedAt  time.Time `db:"received_at" json:"received_at"`
	MessageID   *string   `db:"message_id" json:"message_id,omitempty"` // External identifier, unique when present
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// InboundMessage is a raw message record produced by a mail source (IMAP, API, file import)
type InboundMessage struct {
	MessageID   string    `json:"message_id"`
	Subject     string    `json:"subject"`
	FromAddress string    `json:"from_address"`
	FromName    string    `json:"from_name,omitempty"`
	Body        string    `json:"body"`
	ReceivedAt  time.Time `json:"received_at"`
	InReplyTo   string    `json:"in_reply_to,omitempty"`
}
