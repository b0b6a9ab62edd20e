package v1

import (
	"encoding/json"
	"time"
)

type TelemetryRequest struct {
	EventType       *string         `json:"event_type,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	DeviceTimestamp *time.Time      `json:"device_timestamp,omitempty"`
}

type TelemetryResponse struct {
	TelemetryID int64     `json:"telemetry_id"`
	ReceivedAt  time.Time `json:"received_at"`
}
