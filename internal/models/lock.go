package models

import "time"

// Lock is a named advisory lock held until ExpiresAt.
type Lock struct {
	Name      string    `gorm:"primaryKey;size:128"`
	Holder    string    `gorm:"size:64;not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}
