package model

import "time"

// RateLimitCounter is one sliding-window row per (identifier, axis,
// endpoint scope). The unique index is the anchor for the atomic upsert in
// the counter store; an expired row is reused in place rather than
// accumulating siblings.
type RateLimitCounter struct {
	ID             string    `json:"id" gorm:"primaryKey;type:text"`
	Identifier     string    `json:"identifier" gorm:"not null;size:255;uniqueIndex:idx_rate_limit_key"`
	IdentifierType string    `json:"identifier_type" gorm:"not null;size:16;uniqueIndex:idx_rate_limit_key"`
	Endpoint       string    `json:"endpoint" gorm:"not null;size:50;uniqueIndex:idx_rate_limit_key"`
	RequestCount   int       `json:"request_count" gorm:"not null;default:0"`
	WindowStart    time.Time `json:"window_start" gorm:"not null"`
	WindowEnd      time.Time `json:"window_end" gorm:"not null;index"`
	IsBlocked      bool      `json:"is_blocked" gorm:"not null;default:false"`
	BlockReason    string    `json:"block_reason" gorm:"size:255"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"not null"`
}
