package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// GenerationType distinguishes analysis and reply LLM invocations
type GenerationType string

const (
	GenerationAnalysis GenerationType = "analysis"
	GenerationReply    GenerationType = "reply"
)

// GenerationStatus is the outcome of one LLM invocation
type GenerationStatus string

const (
	GenerationSuccess   GenerationStatus = "success"
	GenerationError     GenerationStatus = "error"
	GenerationTimeout   GenerationStatus = "timeout"
	GenerationRateLimit GenerationStatus = "rate_limit"
)

// Generation is the persisted record of one LLM invocation and its parsed result
type Generation struct {
	ID             int64            `db:"id" json:"id"`
	EmailID        *int64           `db:"email_id" json:"email_id,omitempty"`
	ThreadID       *int64           `db:"thread_id" json:"thread_id,omitempty"`
	Type           GenerationType   `db:"type" json:"type"`
	Prompt         string           `db:"prompt" json:"prompt"`
	Response       RawJSON          `db:"response" json:"response" swaggertype:"object"`
	ProcessingTime float64          `db:"processing_time" json:"processing_time"` // seconds
	Status         GenerationStatus `db:"status" json:"status"`
	ErrorMessage   *string          `db:"error_message" json:"error_message,omitempty"`
	Metadata       JSONMap          `db:"metadata" json:"metadata" swaggertype:"object"`
	IsSpam         bool             `db:"is_spam" json:"is_spam"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// TasksCreated reports whether fan-out has already stamped this generation
func (g *Generation) TasksCreated() bool {
	if g.Metadata == nil {
		return false
	}
	v, ok := g.Metadata["tasks_created"].(bool)
	return ok && v
}

// JSONMap is a free-form JSONB object column
type JSONMap map[string]any

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json map: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", src)
	}
	out := JSONMap{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("failed to unmarshal json map: %w", err)
		}
	}
	*m = out
	return nil
}

// RawJSON is an opaque JSONB document column
type RawJSON []byte

// Value implements driver.Valuer
func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "null", nil
	}
	return string(r), nil
}

// Scan implements sql.Scanner
func (r *RawJSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = nil
	case []byte:
		*r = append((*r)[:0], v...)
	case string:
		*r = RawJSON(v)
	default:
		return fmt.Errorf("unsupported type for RawJSON: %T", src)
	}
	return nil
}

// MarshalJSON embeds the document as is
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON keeps a copy of the document
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}
