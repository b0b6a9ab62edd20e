package model

import "time"

const (
	TaskStatusQueued   = "queued"
	TaskStatusInFlight = "in_flight"
	TaskStatusDone     = "done"
	TaskStatusFailed   = "failed"
	TaskStatusCanceled = "canceled"
)

// ExecutionContext is a named runtime slot a device heartbeats into;
// tasks may be pinned to one. Unique per (client_id, context_key).
type ExecutionContext struct {
	ID           int64  `gorm:"primaryKey"`
	ClientID     int64  `gorm:"not null;uniqueIndex:uq_execution_context_client_key,priority:1;index:ix_execution_contexts_client_last_seen,priority:1"`
	ContextKey   string `gorm:"size:128;not null;uniqueIndex:uq_execution_context_client_key,priority:2"`
	Capabilities JSON   `gorm:"type:jsonb;not null"`
	Meta         JSON   `gorm:"type:jsonb;not null"`
	LastSeenAt   *time.Time `gorm:"index:ix_execution_contexts_client_last_seen,priority:2"`
	CreatedAt    time.Time
}

// Task rows progress queued -> in_flight -> terminal; terminal is immutable.
// A partial unique index on (client_id, idempotency_key) makes enqueue
// idempotent.
type Task struct {
	ID                 int64  `gorm:"primaryKey"`
	ClientID           int64  `gorm:"not null;index:ix_tasks_client_status_priority_created,priority:1"`
	ExecutionContextID *int64 `gorm:"index"`
	Type               string `gorm:"size:64;not null"`
	Payload            JSON   `gorm:"type:jsonb;not null"`
	Status             string `gorm:"size:16;not null;index:ix_tasks_client_status_priority_created,priority:2"`
	Priority           int    `gorm:"not null;default:0;index:ix_tasks_client_status_priority_created,priority:3"`
	IdempotencyKey     *string `gorm:"size:128"`
	ClaimedAt          *time.Time
	LeaseExpiresAt     *time.Time `gorm:"index"`
	LeaseToken         *string    `gorm:"size:64"`
	CreatedAt          time.Time  `gorm:"index:ix_tasks_client_status_priority_created,priority:4"`
	CompletedAt        *time.Time
	Result             JSON    `gorm:"type:jsonb"`
	Error              *string `gorm:"type:text"`
}
