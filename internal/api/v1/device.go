package v1

import (
	"encoding/json"
	"time"
)

// Derived device lifecycle states, see DeviceView.State.
const (
	DeviceStateUnprovisioned        = "unprovisioned"
	DeviceStateBusy                 = "busy"
	DeviceStateClaimed              = "claimed"
	DeviceStatePairingActive        = "pairing_active"
	DeviceStateProvisionedUnclaimed = "provisioned_unclaimed"
)

// Freshness tags computed from now - last_seen_at.
const (
	DeviceHealthOK    = "ok"
	DeviceHealthStale = "stale"
	DeviceHealthDead  = "dead"
)

type DeviceHelloRequest struct {
	DeviceUID       string         `json:"device_uid"`
	FirmwareVersion *string        `json:"firmware_version,omitempty"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
}

func (r *DeviceHelloRequest) UnmarshalJSON(data []byte) error {
	type plain DeviceHelloRequest
	return unmarshalLoose(data, (*plain)(r))
}

type DeviceHelloResponse struct {
	DeviceID int64 `json:"device_id"`
	Claimed  bool  `json:"claimed"`
}

type DeviceView struct {
	ID              int64          `json:"id"`
	DeviceUID       string         `json:"device_uid"`
	Name            *string        `json:"name"`
	FirmwareVersion *string        `json:"firmware_version"`
	Capabilities    map[string]any `json:"capabilities"`
	LastSeenAt      *time.Time     `json:"last_seen_at"`
	OwnerUserID     *int64         `json:"owner_user_id"`
	Claimed         bool           `json:"claimed"`
	State           string         `json:"state"`
	Active          bool           `json:"active"`
	Health          string         `json:"health"`
	CreatedAt       time.Time      `json:"created_at"`
}

type DeviceListResponse struct {
	Items []DeviceView `json:"items"`
}

type DeviceWhoamiResponse struct {
	ID          int64  `json:"id"`
	DeviceUID   string `json:"device_uid"`
	OwnerUserID *int64 `json:"owner_user_id"`
}

type TelemetryEventView struct {
	ID         int64           `json:"id"`
	ReceivedAt time.Time       `json:"received_at"`
	EventType  *string         `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
}
