package model

import "time"

type Medicine struct {
	ID                   string    `json:"id" gorm:"primaryKey;type:text"`
	Name                 string    `json:"name" gorm:"not null;index;size:255"`
	Description          string    `json:"description" gorm:"type:text"`
	Category             string    `json:"category" gorm:"index;size:100"`
	Manufacturer         string    `json:"manufacturer" gorm:"size:255"`
	PriceCents           int64     `json:"price_cents" gorm:"not null"`
	Stock                int       `json:"stock" gorm:"not null;default:0"`
	RequiresPrescription bool      `json:"requires_prescription" gorm:"not null;default:false"`
	IsActive             bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt            time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"not null"`
}

type Doctor struct {
	ID              string    `json:"id" gorm:"primaryKey;type:text"`
	Name            string    `json:"name" gorm:"not null;size:255"`
	Specialty       string    `json:"specialty" gorm:"index;size:100"`
	LicenseNumber   string    `json:"license_number" gorm:"uniqueIndex;size:64"`
	ConsultFeeCents int64     `json:"consult_fee_cents" gorm:"not null"`
	IsAvailable     bool      `json:"is_available" gorm:"not null;default:true"`
	CreatedAt       time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"not null"`
}

type Order struct {
	ID         string      `json:"id" gorm:"primaryKey;type:text"`
	UserID     string      `json:"user_id" gorm:"not null;index"`
	AddressID  string      `json:"address_id" gorm:"not null"`
	Status     string      `json:"status" gorm:"not null;default:pending;size:32"`
	TotalCents int64       `json:"total_cents" gorm:"not null"`
	Items      []OrderItem `json:"items" gorm:"foreignKey:OrderID"`
	CreatedAt  time.Time   `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time   `json:"updated_at" gorm:"not null"`
}

type OrderItem struct {
	ID         string `json:"id" gorm:"primaryKey;type:text"`
	OrderID    string `json:"order_id" gorm:"not null;index"`
	MedicineID string `json:"medicine_id" gorm:"not null"`
	Quantity   int    `json:"quantity" gorm:"not null"`
	PriceCents int64  `json:"price_cents" gorm:"not null"`
}

type Address struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	UserID    string    `json:"user_id" gorm:"not null;index"`
	Label     string    `json:"label" gorm:"size:64"`
	Line1     string    `json:"line1" gorm:"not null;size:255"`
	Line2     string    `json:"line2" gorm:"size:255"`
	City      string    `json:"city" gorm:"not null;size:100"`
	Province  string    `json:"province" gorm:"size:100"`
	Phone     string    `json:"phone" gorm:"size:32"`
	IsDefault bool      `json:"is_default" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}
