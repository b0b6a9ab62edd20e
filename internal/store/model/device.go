package model

import (
	"encoding/json"
	"time"
)

// Device is created on the first hello and never destroyed. IsClaimed is a
// denormalized mirror of owner_user_id for legacy readers.
type Device struct {
	ID              int64   `gorm:"primaryKey"`
	DeviceUID       string  `gorm:"size:64;uniqueIndex;not null"`
	Name            *string `gorm:"size:128"`
	FirmwareVersion *string `gorm:"size:64"`
	Capabilities    JSONMap[string, any] `gorm:"type:jsonb"`
	LastSeenAt      *time.Time
	OwnerUserID     *int64 `gorm:"index"`
	IsClaimed       bool   `gorm:"not null;default:false"`
	CreatedAt       time.Time
}

func (d Device) String() string {
	val, _ := json.Marshal(d)
	return string(val)
}

// PairingSession links a user's start request to a device's confirm. At most
// one unused, unexpired session may exist per device; the pair
// (device_uid, pairing_code) is unique.
type PairingSession struct {
	ID          int64     `gorm:"primaryKey"`
	DeviceUID   string    `gorm:"size:64;index;not null;uniqueIndex:uq_pairing_uid_code,priority:1"`
	PairingCode string    `gorm:"size:16;not null;uniqueIndex:uq_pairing_uid_code,priority:2"`
	UserID      int64     `gorm:"index;not null"`
	ExpiresAt   time.Time `gorm:"not null"`
	IsUsed      bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time
}

// DeviceToken holds only the SHA-256 hex of the plaintext credential. A
// partial unique index enforces at most one active token per device.
type DeviceToken struct {
	ID        int64  `gorm:"primaryKey"`
	DeviceID  int64  `gorm:"index;not null"`
	TokenHash string `gorm:"size:64;uniqueIndex;not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
}

// DeviceRuntimeSetting carries per-device effect targets and the snapshot
// rev watermarks.
type DeviceRuntimeSetting struct {
	DeviceID            int64 `gorm:"primaryKey"`
	TelemetryIntervalMS *int
	LastEffectiveRev    *int64
	LastAppliedRev      *int64
	LastAckedRev        *int64
	UpdatedAt           time.Time
}

type DeviceTelemetry struct {
	ID         int64 `gorm:"primaryKey"`
	DeviceID   int64 `gorm:"index;not null"`
	ReceivedAt time.Time `gorm:"index;not null"`
	EventType  *string   `gorm:"size:64"`
	Payload    JSON      `gorm:"type:jsonb;not null"`
}
