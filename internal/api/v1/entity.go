package v1

import (
	"encoding/json"
	"time"
)

type EntityView struct {
	EntityID         string          `json:"entity_id"`
	Type             string          `json:"type"`
	Name             *string         `json:"name"`
	Tags             json.RawMessage `json:"tags"`
	HealthLastSeenAt *time.Time      `json:"health_last_seen_at"`
	HealthStatus     *string         `json:"health_status"`
}

type EntityDeviceBindingView struct {
	DeviceID int64 `json:"device_id"`
	Enabled  bool  `json:"enabled"`
	Priority int   `json:"priority"`
}
