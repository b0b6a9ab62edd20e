package model

import (
	"time"
)

const (
	ScopeGlobal = "global"
	ScopeUser   = "user"
	ScopeDevice = "device"
)

const (
	AckStatusApplied = "applied"
	AckStatusFailed  = "failed"
)

const (
	EffectStatusPending  = "pending"
	EffectStatusInFlight = "in_flight"
	EffectStatusDone     = "done"
	EffectStatusFailed   = "failed"
	EffectStatusDead     = "dead"
)

// VariableDefinition is the schema of one variable key.
type VariableDefinition struct {
	Key          string  `gorm:"size:128;primaryKey"`
	Scope        string  `gorm:"size:16;not null;index"`
	ValueType    string  `gorm:"size:16;not null"`
	DefaultValue JSON    `gorm:"type:jsonb"`
	Description  *string `gorm:"size:512"`

	Unit       *string `gorm:"size:32"`
	MinValue   *float64
	MaxValue   *float64
	EnumValues JSON    `gorm:"type:jsonb"`
	Regex      *string `gorm:"size:256"`

	IsSecret            bool `gorm:"not null;default:false"`
	IsReadonly          bool `gorm:"not null;default:false"`
	UserWritable        bool `gorm:"not null;default:true"`
	DeviceWritable      bool `gorm:"not null;default:false"`
	AllowDeviceOverride bool `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VariableValue is one stored layer value. The unique key over
// (variable_key, device_id, scope, user_id) treats NULLs as equal and is
// created as an expression index in the migration.
type VariableValue struct {
	ID          int64  `gorm:"primaryKey"`
	VariableKey string `gorm:"size:128;not null;index"`
	Scope       string `gorm:"size:16;not null"`
	DeviceID    *int64 `gorm:"index"`
	UserID      *int64 `gorm:"index"`
	ValueJSON   JSON   `gorm:"type:jsonb"`
	Version     int    `gorm:"not null;default:1"`
	UpdatedAt   time.Time

	UpdatedByUserID   *int64
	UpdatedByDeviceID *int64
}

// VariableAudit is append-only; secret values are stored masked.
type VariableAudit struct {
	ID           int64  `gorm:"primaryKey"`
	VariableKey  string `gorm:"size:128;not null;index:ix_variable_audits_key_created,priority:1"`
	Scope        string `gorm:"size:16;not null"`
	DeviceID     *int64 `gorm:"index"`
	UserID       *int64 `gorm:"index"`
	OldValueJSON JSON   `gorm:"type:jsonb"`
	NewValueJSON JSON   `gorm:"type:jsonb"`
	OldVersion   *int
	NewVersion   *int
	ActorType    string  `gorm:"size:16;not null"`
	ActorUserID  *int64
	ActorDeviceID *int64
	RequestID    *string `gorm:"size:64"`
	Note         *string `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"index:ix_variable_audits_key_created,priority:2"`
}

// VariableSnapshot is an immutable materialization of the effective view for
// one (user, device) pair at one instant. ID is a 40-char opaque hex string.
type VariableSnapshot struct {
	ID               string `gorm:"size:40;primaryKey"`
	DeviceID         *int64 `gorm:"index"`
	UserID           *int64 `gorm:"index"`
	ResolvedAt       time.Time `gorm:"index;not null"`
	EffectiveVersion string    `gorm:"size:64;not null"`
	EffectiveRev     *int64
}

type VariableSnapshotItem struct {
	ID           int64  `gorm:"primaryKey"`
	SnapshotID   string `gorm:"size:40;not null;index"`
	VariableKey  string `gorm:"size:128;not null;index"`
	Scope        string `gorm:"size:16;not null"`
	DeviceID     *int64
	Source       string `gorm:"size:24;not null"`
	ValueJSON    JSON   `gorm:"type:jsonb"`
	Masked       bool   `gorm:"not null;default:false"`
	IsSecret     bool   `gorm:"not null;default:false"`
	Version      *int
	UpdatedAt    *time.Time
	Precedence   int     `gorm:"not null;default:0"`
	ResolvedType *string `gorm:"size:16"`
	Constraints  JSON    `gorm:"type:jsonb"`
}

// VariableAppliedAck records one device-side apply result against a
// snapshot item. Uniqueness over (snapshot, device, key, version) makes
// recording idempotent; the index treats a NULL version as -1.
type VariableAppliedAck struct {
	ID          int64  `gorm:"primaryKey"`
	SnapshotID  string `gorm:"size:40;not null;index"`
	DeviceID    int64  `gorm:"not null;index"`
	VariableKey string `gorm:"size:128;not null"`
	Version     *int
	Status      string  `gorm:"size:16;not null"`
	Reason      *string `gorm:"type:text"`
	CreatedAt   time.Time
}

// VariableEffect is a persisted side-effect job derived from a variable
// audit, executed by a lease-based worker.
type VariableEffect struct {
	ID             string `gorm:"size:36;primaryKey"`
	Status         string `gorm:"size:16;not null;index"`
	Kind           string `gorm:"size:64;not null"`
	Scope          string `gorm:"size:16;not null"`
	DeviceID       *int64  `gorm:"index"`
	DeviceUID      *string `gorm:"size:64"`
	TriggerAuditID *int64
	Payload        JSON `gorm:"type:jsonb"`
	Error          JSON `gorm:"type:jsonb"`
	Attempts       int  `gorm:"not null;default:0"`
	NextAttemptAt  *time.Time `gorm:"index"`
	LockedUntil    *time.Time
	LockedBy       *string `gorm:"size:128"`
	CorrelationID  *string `gorm:"size:64"`
	CreatedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time
}
