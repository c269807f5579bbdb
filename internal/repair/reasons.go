package repair

import (
	"context"
	"errors"
	"fmt"

	"github.com/garagehq/vhc/internal/models"
	"gorm.io/gorm"
)

// visibleTo scopes a reason query to global and organization entries.
func visibleTo(orgID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("active = ? AND (organization_id = ? OR organization_id = ?)", true, "", orgID)
	}
}

// ListDeclinedReasons returns the declined-reason catalog visible to the actor.
func (s *Service) ListDeclinedReasons(ctx context.Context, actor Actor) ([]models.DeclinedReason, error) {
	var reasons []models.DeclinedReason
	if err := s.db.WithContext(ctx).Scopes(visibleTo(actor.OrganizationID)).
		Order("sort_order, label").Find(&reasons).Error; err != nil {
		return nil, fmt.Errorf("repair: list declined reasons: %w", err)
	}
	return reasons, nil
}

// ListDeletedReasons returns the deleted-reason catalog visible to the actor.
func (s *Service) ListDeletedReasons(ctx context.Context, actor Actor) ([]models.DeletedReason, error) {
	var reasons []models.DeletedReason
	if err := s.db.WithContext(ctx).Scopes(visibleTo(actor.OrganizationID)).
		Order("sort_order, label").Find(&reasons).Error; err != nil {
		return nil, fmt.Errorf("repair: list deleted reasons: %w", err)
	}
	return reasons, nil
}

func lookupDeclinedReason(tx *gorm.DB, orgID, id string) (*models.DeclinedReason, error) {
	if id == "" {
		return nil, invalid("reason_id", "REASON_REQUIRED", "reason_id is required")
	}
	var r models.DeclinedReason
	err := tx.Scopes(visibleTo(orgID)).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalid("reason_id", "INVALID_REASON", "unknown declined reason %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repair: load declined reason %s: %w", id, err)
	}
	return &r, nil
}

func lookupDeletedReason(tx *gorm.DB, orgID, id string) (*models.DeletedReason, error) {
	if id == "" {
		return nil, invalid("reason_id", "REASON_REQUIRED", "reason_id is required")
	}
	var r models.DeletedReason
	err := tx.Scopes(visibleTo(orgID)).Where("id = ?", id).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalid("reason_id", "INVALID_REASON", "unknown deleted reason %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repair: load deleted reason %s: %w", id, err)
	}
	return &r, nil
}
