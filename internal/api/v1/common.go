// Package v1 carries the request and response types of the /api/v1 surface.
// The wire format is snake_case JSON; a few device-facing requests also
// accept camelCase keys for compatibility with older firmware.
package v1

import (
	"encoding/json"
)

// ErrorDetail is the stable machine-readable part of every error response.
// Code is an UPPER_SNAKE identifier; Message is advisory.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Error is the envelope every non-2xx response body uses.
type Error struct {
	Detail ErrorDetail `json:"detail"`
}

func NewError(code, message string) *Error {
	return &Error{Detail: ErrorDetail{Code: code, Message: message}}
}

func NewErrorWithMeta(code, message string, meta map[string]any) *Error {
	return &Error{Detail: ErrorDetail{Code: code, Message: message, Meta: meta}}
}

// aliasKeys maps camelCase wire aliases to their canonical snake_case keys.
// Only the aliases the original device firmware is known to send are listed.
var aliasKeys = map[string]string{
	"deviceUid":           "device_uid",
	"pairingCode":         "pairing_code",
	"valueType":           "value_type",
	"defaultValue":        "default_value",
	"minValue":            "min_value",
	"maxValue":            "max_value",
	"enumValues":          "enum_values",
	"isSecret":            "is_secret",
	"isReadonly":          "is_readonly",
	"readOnly":            "is_readonly",
	"read_only":           "is_readonly",
	"userWritable":        "user_writable",
	"deviceWritable":      "device_writable",
	"allowDeviceOverride": "allow_device_override",
	"expectedVersion":     "expected_version",
	"snapshotId":          "snapshot_id",
	"contextKey":          "context_key",
	"idempotencyKey":      "idempotency_key",
}

// unmarshalLoose decodes data into v after rewriting known camelCase keys to
// their snake_case equivalents. Canonical keys win when both are present.
func unmarshalLoose(data []byte, v any) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for alias, canonical := range aliasKeys {
		val, ok := raw[alias]
		if !ok {
			continue
		}
		if _, exists := raw[canonical]; !exists {
			raw[canonical] = val
		}
		delete(raw, alias)
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalized, v)
}
