package db

import (
	"fmt"

	"github.com/garagehq/vhc/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.HealthCheck{},
		&models.Finding{},
		&models.RepairItem{},
		&models.RepairOption{},
		&models.Authorization{},
		&models.CustomerSignature{},
		&models.DeclinedReason{},
		&models.DeletedReason{},
		&models.Lock{},
	}
}

// AutoMigrate creates or updates all tables, including the
// repair_item_findings join table.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// ReasonSeed is a global catalog entry installed by SeedReasons.
type ReasonSeed struct {
	Code          string
	Label         string
	RequiresNotes bool
}

// DefaultDeclinedReasons is the global declined-reason catalog.
var DefaultDeclinedReasons = []ReasonSeed{
	{Code: "cost", Label: "Too expensive right now"},
	{Code: "elsewhere", Label: "Having the work done elsewhere"},
	{Code: "not_needed", Label: "Customer does not think it is needed"},
	{Code: "selling_vehicle", Label: "Selling the vehicle"},
	{Code: "other", Label: "Other", RequiresNotes: true},
}

// DefaultDeletedReasons is the global deleted-reason catalog.
var DefaultDeletedReasons = []ReasonSeed{
	{Code: "duplicate", Label: "Duplicate item"},
	{Code: "added_in_error", Label: "Added in error"},
	{Code: "already_done", Label: "Work already carried out"},
	{Code: "other", Label: "Other", RequiresNotes: true},
}

// SeedReasons upserts the global declined and deleted reason catalogs.
// Existing rows keep their ids; labels and flags are refreshed.
func SeedReasons(db *gorm.DB) error {
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "requires_notes", "sort_order", "active"}),
	}
	for i, r := range DefaultDeclinedReasons {
		row := models.DeclinedReason{
			ID:            uuid.NewString(),
			Code:          r.Code,
			Label:         r.Label,
			RequiresNotes: r.RequiresNotes,
			SortOrder:     i,
			Active:        true,
		}
		if err := db.Clauses(upsert).Create(&row).Error; err != nil {
			return fmt.Errorf("db: seed declined reason %q: %w", r.Code, err)
		}
	}
	for i, r := range DefaultDeletedReasons {
		row := models.DeletedReason{
			ID:            uuid.NewString(),
			Code:          r.Code,
			Label:         r.Label,
			RequiresNotes: r.RequiresNotes,
			SortOrder:     i,
			Active:        true,
		}
		if err := db.Clauses(upsert).Create(&row).Error; err != nil {
			return fmt.Errorf("db: seed deleted reason %q: %w", r.Code, err)
		}
	}
	return nil
}
