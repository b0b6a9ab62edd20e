package v1

import (
	"encoding/json"
	"time"
)

// Variable scopes in precedence order: default < global < user < device.
const (
	ScopeGlobal = "global"
	ScopeUser   = "user"
	ScopeDevice = "device"
)

// Value types a definition may declare.
const (
	ValueTypeString = "string"
	ValueTypeInt    = "int"
	ValueTypeFloat  = "float"
	ValueTypeBool   = "bool"
	ValueTypeJSON   = "json"
)

// Sources an effective value can resolve from.
const (
	SourceDefault       = "default"
	SourceGlobal        = "global"
	SourceUser          = "user"
	SourceDevice        = "device"
	SourceDeviceRuntime = "device_runtime"
)

// Precedence returns the layer rank of a source; higher wins.
func Precedence(source string) int {
	switch source {
	case SourceGlobal:
		return 1
	case SourceUser:
		return 2
	case SourceDevice, SourceDeviceRuntime:
		return 3
	default:
		return 0
	}
}

type VariableConstraints struct {
	Unit       *string  `json:"unit,omitempty"`
	MinValue   *float64 `json:"min_value,omitempty"`
	MaxValue   *float64 `json:"max_value,omitempty"`
	EnumValues []string `json:"enum_values,omitempty"`
	Regex      *string  `json:"regex,omitempty"`
}

type VariableDefinitionRequest struct {
	Key                 string          `json:"key"`
	Scope               string          `json:"scope"`
	ValueType           string          `json:"value_type"`
	DefaultValue        json.RawMessage `json:"default_value,omitempty"`
	Description         *string         `json:"description,omitempty"`
	Unit                *string         `json:"unit,omitempty"`
	MinValue            *float64        `json:"min_value,omitempty"`
	MaxValue            *float64        `json:"max_value,omitempty"`
	EnumValues          []string        `json:"enum_values,omitempty"`
	Regex               *string         `json:"regex,omitempty"`
	IsSecret            bool            `json:"is_secret,omitempty"`
	IsReadonly          bool            `json:"is_readonly,omitempty"`
	UserWritable        *bool           `json:"user_writable,omitempty"`
	DeviceWritable      bool            `json:"device_writable,omitempty"`
	AllowDeviceOverride *bool           `json:"allow_device_override,omitempty"`
}

func (r *VariableDefinitionRequest) UnmarshalJSON(data []byte) error {
	type plain VariableDefinitionRequest
	return unmarshalLoose(data, (*plain)(r))
}

type VariableDefinitionView struct {
	Key                 string          `json:"key"`
	Scope               string          `json:"scope"`
	ValueType           string          `json:"value_type"`
	DefaultValue        json.RawMessage `json:"default_value"`
	Description         *string         `json:"description"`
	Unit                *string         `json:"unit"`
	MinValue            *float64        `json:"min_value"`
	MaxValue            *float64        `json:"max_value"`
	EnumValues          []string        `json:"enum_values"`
	Regex               *string         `json:"regex"`
	IsSecret            bool            `json:"is_secret"`
	IsReadonly          bool            `json:"is_readonly"`
	UserWritable        bool            `json:"user_writable"`
	DeviceWritable      bool            `json:"device_writable"`
	AllowDeviceOverride bool            `json:"allow_device_override"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type VariableWriteRequest struct {
	Key             string          `json:"key"`
	Scope           string          `json:"scope"`
	DeviceUID       *string         `json:"device_uid,omitempty"`
	Value           json.RawMessage `json:"value"`
	ExpectedVersion *int            `json:"expected_version,omitempty"`
	// Force skips the device-busy guard on device-scope writes.
	Force bool `json:"force,omitempty"`
}

func (r *VariableWriteRequest) UnmarshalJSON(data []byte) error {
	type plain VariableWriteRequest
	return unmarshalLoose(data, (*plain)(r))
}

type VariableValueView struct {
	Key       string          `json:"key"`
	Scope     string          `json:"scope"`
	DeviceUID *string         `json:"device_uid"`
	Value     json.RawMessage `json:"value"`
	Version   *int            `json:"version"`
	UpdatedAt *time.Time      `json:"updated_at"`
	IsSecret  bool            `json:"is_secret"`
}

type EffectiveVariableItem struct {
	Key          string               `json:"key"`
	Value        json.RawMessage      `json:"value"`
	Scope        string               `json:"scope"`
	Source       string               `json:"source"`
	Masked       bool                 `json:"masked"`
	IsSecret     bool                 `json:"is_secret"`
	Version      *int                 `json:"version"`
	UpdatedAt    *time.Time           `json:"updated_at"`
	Precedence   int                  `json:"precedence"`
	ResolvedType string               `json:"resolved_type"`
	Constraints  *VariableConstraints `json:"constraints,omitempty"`
}

type EffectiveVariablesResponse struct {
	DeviceUID        string                  `json:"device_uid"`
	SnapshotID       string                  `json:"snapshot_id"`
	ResolvedAt       time.Time               `json:"resolved_at"`
	EffectiveVersion string                  `json:"effective_version"`
	EffectiveRev     *int64                  `json:"effective_rev,omitempty"`
	Items            []EffectiveVariableItem `json:"items"`
}

type SnapshotResponse struct {
	SnapshotID       string                  `json:"snapshot_id"`
	DeviceUID        string                  `json:"device_uid"`
	ResolvedAt       time.Time               `json:"resolved_at"`
	EffectiveVersion string                  `json:"effective_version"`
	EffectiveRev     *int64                  `json:"effective_rev,omitempty"`
	Items            []EffectiveVariableItem `json:"items"`
}

type AppliedItem struct {
	Key     string  `json:"key"`
	Version *int    `json:"version,omitempty"`
	Reason  *string `json:"reason,omitempty"`
}

type VariableAppliedRequest struct {
	SnapshotID string        `json:"snapshot_id"`
	DeviceUID  *string       `json:"device_uid,omitempty"`
	Applied    []AppliedItem `json:"applied,omitempty"`
	Failed     []AppliedItem `json:"failed,omitempty"`
}

func (r *VariableAppliedRequest) UnmarshalJSON(data []byte) error {
	type plain VariableAppliedRequest
	return unmarshalLoose(data, (*plain)(r))
}

type VariableAppliedResponse struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

type VariableAuditView struct {
	ID            int64           `json:"id"`
	VariableKey   string          `json:"variable_key"`
	Scope         string          `json:"scope"`
	DeviceUID     *string         `json:"device_uid"`
	OldValue      json.RawMessage `json:"old_value"`
	NewValue      json.RawMessage `json:"new_value"`
	OldVersion    *int            `json:"old_version"`
	NewVersion    *int            `json:"new_version"`
	ActorType     string          `json:"actor_type"`
	ActorUserID   *int64          `json:"actor_user_id"`
	ActorDeviceID *int64          `json:"actor_device_id"`
	RequestID     *string         `json:"request_id"`
	Note          *string         `json:"note"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Effect statuses.
const (
	EffectStatusPending  = "pending"
	EffectStatusInFlight = "in_flight"
	EffectStatusDone     = "done"
	EffectStatusFailed   = "failed"
	EffectStatusDead     = "dead"
)

// Built-in effect kinds.
const (
	EffectKindTelemetryReschedule = "telemetry.reschedule"
	EffectKindDeviceLabelSync     = "device.label.sync"
)

type VariableEffectView struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Kind           string          `json:"kind"`
	Scope          string          `json:"scope"`
	DeviceID       *int64          `json:"device_id"`
	DeviceUID      *string         `json:"device_uid"`
	TriggerAuditID *int64          `json:"trigger_audit_id"`
	Payload        json.RawMessage `json:"payload"`
	Error          json.RawMessage `json:"error"`
	Attempts       int             `json:"attempts"`
	NextAttemptAt  *time.Time      `json:"next_attempt_at"`
	LockedUntil    *time.Time      `json:"locked_until"`
	LockedBy       *string         `json:"locked_by"`
	CorrelationID  *string         `json:"correlation_id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type EffectsRunOnceRequest struct {
	Limit    int     `json:"limit,omitempty"`
	LockedBy *string `json:"locked_by,omitempty"`
}

type EffectsRunOnceResponse struct {
	Processed int `json:"processed"`
	Done      int `json:"done"`
	Failed    int `json:"failed"`
}
