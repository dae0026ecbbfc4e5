package models

import "time"

// HealthResponse represents a basic health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`                 // Health status
	Timestamp time.Time `json:"timestamp" example:"2023-01-01T00:00:00Z"` // Timestamp of the check
	Version   string    `json:"version" example:"1.0.0"`                  // Application version
}

// DBHealthResponse represents a database health check response
// @Description Database health check response
type DBHealthResponse struct {
	Status    string        `json:"status" example:"healthy"`                   // Health status
	Timestamp time.Time     `json:"timestamp" example:"2023-01-01T00:00:00Z"`   // Timestamp of the check
	Connected bool          `json:"connected" example:"true"`                   // Database connection status
	Latency   time.Duration `json:"latency" swaggertype:"string" example:"1ms"` // Database ping latency
	Error     string        `json:"error,omitempty" example:""`                 // Error message if any
}

// SubmitEmailRequest is a raw inbound message submitted over the API
// @Description Inbound email submission payload
type SubmitEmailRequest struct {
	MessageID   string    `json:"message_id" example:"<abc@example.com>"`     // External message identifier (dedup key)
	Subject     string    `json:"subject" example:"Запрос документов"`        // Subject line
	FromAddress string    `json:"from_address" example:"client@example.com"` // Sender address
	FromName    string    `json:"from_name,omitempty" example:"Иван Петров"`  // Sender display name
	Body        string    `json:"body"`                                       // Raw body
	ReceivedAt  time.Time `json:"received_at,omitempty"`                      // Defaults to now
	IndexID     string    `json:"index_id,omitempty" example:"kb-main"`       // Optional knowledge index for analysis
}

// SubmitEmailResponse reports the outcome of an email submission
// @Description Inbound email submission result
type SubmitEmailResponse struct {
	Success   bool   `json:"success" example:"true"`
	EmailID   int64  `json:"email_id,omitempty" example:"42"`
	ThreadID  int64  `json:"thread_id,omitempty" example:"7"`
	JobID     string `json:"job_id,omitempty" example:"4f6c..."`
	Duplicate bool   `json:"duplicate,omitempty" example:"false"`
	Error     string `json:"error,omitempty" example:""`
}

// JobRequest carries the optional knowledge index for analysis and reply jobs
// @Description Job trigger payload
type JobRequest struct {
	IndexID string `json:"index_id,omitempty" example:"kb-main"`
	Sync    bool   `json:"sync,omitempty" example:"false"` // Run inline instead of enqueueing
}

// FanoutRequest triggers batch task creation
// @Description Batch fan-out payload
type FanoutRequest struct {
	Limit int  `json:"limit" example:"50"`
	Force bool `json:"force" example:"false"`
}

// JobResponse reports an enqueued or completed job
// @Description Job trigger result
type JobResponse struct {
	Success       bool        `json:"success" example:"true"`
	JobID         string      `json:"job_id,omitempty"`
	Generation    *Generation `json:"generation,omitempty"`
	Dispatched    int         `json:"dispatched,omitempty"`
	KubernetesJob string      `json:"kubernetes_job,omitempty"`
	Error         string      `json:"error,omitempty" example:""`
}
