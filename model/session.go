package model

import "time"

type UserSession struct {
	ID                string    `json:"id" gorm:"primaryKey;type:text"`
	UserID            string    `json:"user_id" gorm:"not null;index"`
	DeviceFingerprint string    `json:"device_fingerprint" gorm:"size:64"`
	IPAddress         string    `json:"ip_address" gorm:"size:45"`
	UserAgent         string    `json:"user_agent" gorm:"type:text"`
	ExpiresAt         time.Time `json:"expires_at" gorm:"not null;index"`
	LastActivity      time.Time `json:"last_activity" gorm:"not null"`
	IsActive          bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt         time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"not null"`
}
