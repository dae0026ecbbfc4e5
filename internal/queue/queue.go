// Package queue carries job messages over Redis Streams.
package queue

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Queue names
const (
	Analysis = "analysis"
	Reply    = "reply"
	Fanout   = "fanout"
)

// Queues lists every queue a worker consumes
var Queues = []string{Analysis, Reply, Fanout}

const (
	// DefaultGroup is the consumer group shared by all workers
	DefaultGroup = "triage"
	// DefaultPrefix namespaces the stream keys
	DefaultPrefix = "triage:"

	deadSuffix = ":dead"
	dataField  = "data"
)

// StreamKey returns the Redis key of a queue
func StreamKey(prefix, queue string) string {
	return prefix + queue
}

// DeadLetterKey returns the Redis key holding permanently failed messages of a queue
func DeadLetterKey(prefix, queue string) string {
	return prefix + queue + deadSuffix
}

// Message is one job on a queue
type Message struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`

	// set by the consumer
	Stream   string `json:"-"`
	StreamID string `json:"-"`
}

// Decode unmarshals the payload into v
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", m.ID)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Queue, err)
	}
	return nil
}

// AnalysisPayload asks for one email to be analysed
type AnalysisPayload struct {
	EmailID int64  `json:"email_id"`
	IndexID string `json:"index_id,omitempty"`
}

// ReplyPayload asks for a reply draft for one thread
type ReplyPayload struct {
	ThreadID int64  `json:"thread_id"`
	IndexID  string `json:"index_id,omitempty"`
}

// FanoutPayload asks for tasks to be created from one analysis generation
type FanoutPayload struct {
	GenerationID int64 `json:"generation_id"`
	Force        bool  `json:"force,omitempty"`
}
