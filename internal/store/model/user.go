package model

import "time"

type User struct {
	ID           int64  `gorm:"primaryKey"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	CreatedAt    time.Time
}

type RevokedToken struct {
	ID        int64   `gorm:"primaryKey"`
	JTI       string  `gorm:"column:jti;size:64;uniqueIndex;not null"`
	Reason    *string `gorm:"size:255"`
	RevokedAt time.Time
}
