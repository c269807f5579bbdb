package models

import "time"

// Authorization is the append-only record of a customer decision.
type Authorization struct {
	ID               uint    `gorm:"primaryKey;autoIncrement"`
	RepairItemID     string  `gorm:"size:36;not null;index"`
	HealthCheckID    string  `gorm:"size:36;not null;index"`
	Decision         string  `gorm:"size:16;not null"`
	SelectedOptionID *string `gorm:"size:36"`
	HasSignature     bool    `gorm:"default:false"`
	DecidedAt        time.Time
	CreatedAt        time.Time
}

// CustomerSignature is a captured signature image. Data holds the PNG when
// the database backend is used; otherwise StorageKey names the object.
type CustomerSignature struct {
	ID            string `gorm:"primaryKey;size:36"`
	HealthCheckID string `gorm:"size:36;not null;index"`
	Backend       string `gorm:"size:16;not null"`
	StorageKey    string `gorm:"size:255"`
	Data          []byte
	ContentType   string `gorm:"size:64"`
	SizeBytes     int
	ClientIP      string `gorm:"size:64"`
	UserAgent     string `gorm:"size:255"`
	SignedAt      time.Time
	CreatedAt     time.Time
}
