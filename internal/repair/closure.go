package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/garagehq/vhc/internal/events"
	"github.com/garagehq/vhc/internal/models"
	"gorm.io/gorm"
)

// ClosureResult is returned when a health check closes.
type ClosureResult struct {
	HealthCheckID string    `json:"health_check_id"`
	ClosedAt      time.Time `json:"closed_at"`
	ClosedBy      string    `json:"closed_by"`
	Totals        Totals    `json:"totals"`
}

// Close closes the health check if every live top-level item has reached a
// terminal outcome and all authorised work is complete. Otherwise it
// returns a *ClosureError naming every blocking item and changes nothing.
func (s *Service) Close(ctx context.Context, actor Actor, healthCheckID string) (*ClosureResult, error) {
	// Findings that were never turned into repair items must block closure
	// like any other undecided work. Load errors surface in the transaction.
	if hc, err := loadHealthCheck(s.db.WithContext(ctx), actor, healthCheckID); err == nil {
		s.ensureRepairItems(ctx, hc)
	}

	var res *ClosureResult
	var orgID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hc, err := lockHealthCheck(tx, actor, healthCheckID)
		if err != nil {
			return err
		}
		if hc.Status == HealthCheckClosed {
			return conflict("ALREADY_CLOSED", "health check %s is already closed", hc.ID)
		}
		orgID = hc.OrganizationID

		n, err := countRepairItems(tx, hc.ID)
		if err != nil {
			return fmt.Errorf("repair: count items for closure: %w", err)
		}
		if n == 0 {
			var pending int64
			if err := attentionFindings(tx, hc.ID).Count(&pending).Error; err != nil {
				return fmt.Errorf("repair: count findings for closure: %w", err)
			}
			if pending > 0 {
				return conflict("ITEMS_NOT_GENERATED", "health check %s has %d red or amber findings without repair items; reload and retry", hc.ID, pending)
			}
		}

		var items []models.RepairItem
		err = orderBySort(tx.Preload("Options", orderBySort).Preload("Children")).
			Where("health_check_id = ? AND parent_repair_item_id IS NULL AND deleted_at IS NULL", hc.ID).
			Find(&items).Error
		if err != nil {
			return fmt.Errorf("repair: load items for closure: %w", err)
		}

		if blocked := blocking(items, func(item *models.RepairItem, o Outcome) bool {
			return !o.Terminal()
		}); len(blocked) > 0 {
			return &ClosureError{Code: CodePendingOutcomes, Items: blocked, Count: len(blocked)}
		}
		if blocked := blocking(items, func(item *models.RepairItem, o Outcome) bool {
			return o == Authorised && item.WorkCompletedAt == nil
		}); len(blocked) > 0 {
			return &ClosureError{Code: CodeIncompleteWork, Items: blocked, Count: len(blocked)}
		}

		now := s.clock()
		result := tx.Model(&models.HealthCheck{}).
			Where("id = ? AND status <> ?", hc.ID, HealthCheckClosed).
			Updates(map[string]interface{}{
				"status":    HealthCheckClosed,
				"closed_at": now,
				"closed_by": actor.UserID,
			})
		if result.Error != nil {
			return fmt.Errorf("repair: close health check %s: %w", hc.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return conflict("ALREADY_CLOSED", "health check %s is already closed", hc.ID)
		}

		res = &ClosureResult{
			HealthCheckID: hc.ID,
			ClosedAt:      now,
			ClosedBy:      actor.UserID,
			Totals:        Summarize(items).Totals,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("health_check_id", healthCheckID).Info("health check closed")
	s.publish(ctx, events.Event{
		Type:           events.Closed,
		OrganizationID: orgID,
		HealthCheckID:  healthCheckID,
		ActorID:        actor.UserID,
		Total:          res.Totals.Authorised,
	})
	return res, nil
}

func blocking(items []models.RepairItem, blocks func(*models.RepairItem, Outcome) bool) []BlockingItem {
	var out []BlockingItem
	for i := range items {
		item := &items[i]
		o := ComputeOutcome(item)
		if blocks(item, o) {
			out = append(out, BlockingItem{ID: item.ID, Title: item.Name, Outcome: o})
		}
	}
	return out
}
