package model

import "time"

// Entity is an automation endpoint (sensor, switch, integration) registered
// out of band; the API only reads them.
type Entity struct {
	EntityID         string  `gorm:"primaryKey;size:128"`
	Type             string  `gorm:"size:64;index;not null"`
	Name             *string `gorm:"size:128"`
	Tags             JSON    `gorm:"type:jsonb"`
	HealthLastSeenAt *time.Time
	HealthStatus     *string `gorm:"size:32"`
	CreatedAt        time.Time
}

// EntityDeviceBinding maps an entity onto the devices that serve it.
type EntityDeviceBinding struct {
	ID       int64  `gorm:"primaryKey"`
	EntityID string `gorm:"size:128;not null;uniqueIndex:uq_entity_device,priority:1"`
	DeviceID int64  `gorm:"not null;uniqueIndex:uq_entity_device,priority:2"`
	Enabled  bool   `gorm:"not null;default:true"`
	Priority int    `gorm:"not null;default:0"`
}
