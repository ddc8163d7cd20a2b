package model

import (
	"encoding/json"
	"time"
)

type AuthAuditLog struct {
	ID        string          `json:"id" gorm:"primaryKey;type:text"`
	Category  string          `json:"category" gorm:"not null;index;size:64"`
	ActorID   string          `json:"actor_id" gorm:"index;size:64"`
	ClientIP  string          `json:"client_ip" gorm:"size:45"`
	Metadata  json.RawMessage `json:"metadata" gorm:"type:jsonb"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null;index"`
}
