package model

import "time"

type User struct {
	ID           string `json:"id" gorm:"primaryKey;type:text"`
	Email        string `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Name         string `json:"name" gorm:"not null;size:255"`
	PasswordHash string `json:"-" gorm:"not null"`
	Role         string `json:"role" gorm:"not null;default:user;size:16"`
	IsActive     bool   `json:"is_active" gorm:"not null;default:true"`

	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"not null"`
}

// Identity is the cached, ephemeral projection of a user attached to the
// request context after token verification. Never persisted by GORM.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (u *User) Identity() *Identity {
	return &Identity{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}
