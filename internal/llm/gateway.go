// Package llm is the completion and embedding boundary of the pipeline.
package llm

import "context"

// ModelConfig selects and tunes the completion model for one call
type ModelConfig struct {
	Model       string  `json:"model"`
	Version     string  `json:"version"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Endpoint    string  `json:"endpoint"`
}

// Map renders the request parameters for generation metadata
func (m ModelConfig) Map() map[string]any {
	return map[string]any{
		"model":       m.Model,
		"version":     m.Version,
		"temperature": m.Temperature,
		"max_tokens":  m.MaxTokens,
		"endpoint":    m.Endpoint,
	}
}

// Alternative is one candidate completion
type Alternative struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

// Usage is the token accounting of a call. Absent fields are zero.
type Usage struct {
	InputTextTokens  int `json:"input_text_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the gateway response
type Completion struct {
	Alternatives []Alternative `json:"alternatives"`
	Usage        Usage         `json:"usage"`
	RequestID    string        `json:"request_id"`
	ModelVersion string        `json:"model_version"`
}

// Text returns the first alternative, or "" when the service returned none
func (c *Completion) Text() string {
	if c == nil || len(c.Alternatives) == 0 {
		return ""
	}
	return c.Alternatives[0].Text
}

// Gateway performs synchronous completions. Transient failures are returned
// as *apperr.Error with code UPSTREAM.
type Gateway interface {
	Complete(ctx context.Context, prompt string, model ModelConfig) (*Completion, error)
}

// Embedder turns texts into vectors for semantic search
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
