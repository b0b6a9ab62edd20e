package v1

import (
	"encoding/json"
	"time"
)

// Task statuses. Terminal statuses are immutable.
const (
	TaskStatusQueued   = "queued"
	TaskStatusInFlight = "in_flight"
	TaskStatusDone     = "done"
	TaskStatusFailed   = "failed"
	TaskStatusCanceled = "canceled"
)

func IsTerminalTaskStatus(status string) bool {
	switch status {
	case TaskStatusDone, TaskStatusFailed, TaskStatusCanceled:
		return true
	default:
		return false
	}
}

type TaskCreateRequest struct {
	Type               string          `json:"type"`
	Payload            json.RawMessage `json:"payload"`
	Priority           int             `json:"priority,omitempty"`
	IdempotencyKey     *string         `json:"idempotency_key,omitempty"`
	ExecutionContextID *int64          `json:"execution_context_id,omitempty"`
}

func (r *TaskCreateRequest) UnmarshalJSON(data []byte) error {
	type plain TaskCreateRequest
	return unmarshalLoose(data, (*plain)(r))
}

type TaskView struct {
	ID                 int64           `json:"id"`
	ClientID           int64           `json:"client_id"`
	ExecutionContextID *int64          `json:"execution_context_id"`
	Type               string          `json:"type"`
	Payload            json.RawMessage `json:"payload"`
	Status             string          `json:"status"`
	Priority           int             `json:"priority"`
	IdempotencyKey     *string         `json:"idempotency_key,omitempty"`
	ClaimedAt          *time.Time      `json:"claimed_at,omitempty"`
	LeaseExpiresAt     *time.Time      `json:"lease_expires_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	Result             json.RawMessage `json:"result,omitempty"`
	Error              *string         `json:"error,omitempty"`
}

type TaskPollRequest struct {
	Limit        int    `json:"limit,omitempty"`
	ContextKey   string `json:"context_key,omitempty"`
	LeaseSeconds int    `json:"lease_seconds,omitempty"`
}

func (r *TaskPollRequest) UnmarshalJSON(data []byte) error {
	type plain TaskPollRequest
	return unmarshalLoose(data, (*plain)(r))
}

type TaskPollItem struct {
	ID                 int64           `json:"id"`
	Type               string          `json:"type"`
	Payload            json.RawMessage `json:"payload"`
	CreatedAt          time.Time       `json:"created_at"`
	LeaseExpiresAt     time.Time       `json:"lease_expires_at"`
	ExecutionContextID *int64          `json:"execution_context_id"`
	LeaseToken         string          `json:"lease_token"`
}

type TaskCompleteRequest struct {
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *string         `json:"error,omitempty"`
	LeaseToken string          `json:"lease_token"`
}

type TaskCompleteResponse struct {
	ID          int64     `json:"id"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}

type TaskRenewRequest struct {
	LeaseSeconds int     `json:"lease_seconds,omitempty"`
	LeaseToken   *string `json:"lease_token,omitempty"`
}

type TaskRenewResponse struct {
	ID             int64     `json:"id"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
}

type TaskCancelRequest struct {
	Force bool `json:"force,omitempty"`
}

type ContextHeartbeatRequest struct {
	ContextKey   string          `json:"context_key"`
	Capabilities json.RawMessage `json:"capabilities"`
	Meta         json.RawMessage `json:"meta,omitempty"`
}

func (r *ContextHeartbeatRequest) UnmarshalJSON(data []byte) error {
	type plain ContextHeartbeatRequest
	return unmarshalLoose(data, (*plain)(r))
}

type ContextHeartbeatResponse struct {
	ID         int64     `json:"id"`
	ContextKey string    `json:"context_key"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
