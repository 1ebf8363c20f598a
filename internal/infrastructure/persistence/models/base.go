package models

import (
	"time"
)

// TimestampModel provides the audit columns shared by every reference table
type TimestampModel struct {
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
