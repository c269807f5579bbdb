package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RepairItem is a recommended unit of work on a health check. Groups carry
// no finding links of their own; their children do.
type RepairItem struct {
	ID                 string  `gorm:"primaryKey;size:36"`
	HealthCheckID      string  `gorm:"size:36;not null;index"`
	Name               string  `gorm:"size:255;not null"`
	Description        string  `gorm:"type:text"`
	IsGroup            bool    `gorm:"default:false"`
	ParentRepairItemID *string `gorm:"size:36;index"`
	Source             string  `gorm:"size:16;default:manual"`
	Severity           *string `gorm:"size:8"`
	SortOrder          int     `gorm:"default:0"`

	LabourAmount     decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	PartsAmount      decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	VATAmount        decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	Total            decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	SelectedOptionID *string         `gorm:"size:36"`

	LabourStatus     string `gorm:"size:16;default:pending"`
	PartsStatus      string `gorm:"size:16;default:pending"`
	NoLabourRequired bool   `gorm:"default:false"`
	NoPartsRequired  bool   `gorm:"default:false"`

	OutcomeStatus      *string `gorm:"size:16;index"`
	OutcomeSetAt       *time.Time
	OutcomeSetBy       *string `gorm:"size:36"`
	OutcomeSource      *string `gorm:"size:16"`
	DeferredUntil      *time.Time
	DeferredNotes      string `gorm:"type:text"`
	DeferralNotifiedAt *time.Time
	DeclinedReasonID   *string    `gorm:"size:36"`
	DeclinedNotes      string     `gorm:"type:text"`
	DeletedReasonID    *string    `gorm:"size:36"`
	DeletedNotes       string     `gorm:"type:text"`
	DeletedAt          *time.Time `gorm:"index"`
	DeletedBy          *string    `gorm:"size:36"`

	// CustomerApproved mirrors OutcomeStatus for older clients: true when
	// authorised, false when declined, nil otherwise.
	CustomerApproved *bool

	WorkCompletedAt *time.Time
	WorkCompletedBy *string `gorm:"size:36"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Options  []RepairOption `gorm:"foreignKey:RepairItemID"`
	Findings []Finding      `gorm:"many2many:repair_item_findings"`
	Children []RepairItem   `gorm:"foreignKey:ParentRepairItemID"`
}

// RepairOption is one alternative priced package for a repair item.
type RepairOption struct {
	ID            string          `gorm:"primaryKey;size:36"`
	RepairItemID  string          `gorm:"size:36;not null;index"`
	Name          string          `gorm:"size:255;not null"`
	Description   string          `gorm:"type:text"`
	LabourAmount  decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	PartsAmount   decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	VATAmount     decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	IsRecommended bool            `gorm:"default:false"`
	SortOrder     int             `gorm:"default:0"`
	CreatedAt     time.Time
}
