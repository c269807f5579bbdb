package models

import "time"

// HealthCheck is the inspection record a set of repair items belongs to.
// Only the columns the repair engine reads or writes are modelled here.
type HealthCheck struct {
	ID                   string  `gorm:"primaryKey;size:36"`
	OrganizationID       string  `gorm:"size:36;not null;index"`
	SiteID               string  `gorm:"size:36"`
	VehicleRegistration  string  `gorm:"size:16"`
	Status               string  `gorm:"size:32;default:draft;index"`
	PublicToken          *string `gorm:"size:64;uniqueIndex"`
	PublicTokenExpiresAt *time.Time
	RedCount             int `gorm:"default:0"`
	AmberCount           int `gorm:"default:0"`
	GreenCount           int `gorm:"default:0"`
	ClosedAt             *time.Time
	ClosedBy             *string `gorm:"size:36"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Findings    []Finding    `gorm:"foreignKey:HealthCheckID"`
	RepairItems []RepairItem `gorm:"foreignKey:HealthCheckID"`
}

// Finding is a single inspected item's recorded result.
type Finding struct {
	ID            string `gorm:"primaryKey;size:36"`
	HealthCheckID string `gorm:"size:36;not null;index"`
	ItemName      string `gorm:"size:255;not null"`
	Severity      string `gorm:"size:8;not null"`
	Notes         string `gorm:"type:text"`
	SortOrder     int    `gorm:"default:0"`
	CreatedAt     time.Time
}
