package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garagehq/vhc/internal/events"
	"github.com/garagehq/vhc/internal/models"
	"gorm.io/gorm"
)

// DeferInput carries the fields of a defer transition.
type DeferInput struct {
	Until time.Time
	Notes string
}

// ReasonInput carries a catalog reason and free-text notes.
type ReasonInput struct {
	ReasonID string
	Notes    string
}

// BulkFailure explains why one item of a bulk request was not changed.
type BulkFailure struct {
	ItemID  string    `json:"item_id"`
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// BulkResult lists the items a bulk request changed and those it did not.
type BulkResult struct {
	Updated []string      `json:"updated"`
	Failed  []BulkFailure `json:"failed"`
}

func (r *BulkResult) fail(itemID string, err *Error) {
	r.Failed = append(r.Failed, BulkFailure{ItemID: itemID, Kind: err.Kind, Code: err.Code, Message: err.Message})
}

// undecided is the write-time predicate for moving an item out of
// incomplete or ready.
const undecided = "deleted_at IS NULL AND outcome_status IS NULL AND customer_approved IS NULL"

// Authorise marks a ready item as authorised by staff.
func (s *Service) Authorise(ctx context.Context, actor Actor, healthCheckID, itemID string) (*ItemView, error) {
	return s.transition(ctx, actor, healthCheckID, itemID, ActionAuthorise, func(_ *gorm.DB, _ *models.RepairItem, now time.Time) (map[string]interface{}, error) {
		return decision(actor, Authorised, now, map[string]interface{}{
			"customer_approved": true,
		}), nil
	})
}

// Defer postpones a ready item until a future date.
func (s *Service) Defer(ctx context.Context, actor Actor, healthCheckID, itemID string, in DeferInput) (*ItemView, error) {
	return s.transition(ctx, actor, healthCheckID, itemID, ActionDefer, s.deferUpdates(actor, in))
}

// Decline records a staff decline of a ready item with a catalog reason.
func (s *Service) Decline(ctx context.Context, actor Actor, healthCheckID, itemID string, in ReasonInput) (*ItemView, error) {
	return s.transition(ctx, actor, healthCheckID, itemID, ActionDecline, declineUpdates(actor, in))
}

// Delete soft-deletes an incomplete or ready item with a catalog reason.
// Deleting a group deletes its live children with the same reason.
func (s *Service) Delete(ctx context.Context, actor Actor, healthCheckID, itemID string, in ReasonInput) (*ItemView, error) {
	return s.transition(ctx, actor, healthCheckID, itemID, ActionDelete, func(tx *gorm.DB, item *models.RepairItem, now time.Time) (map[string]interface{}, error) {
		reason, err := lookupDeletedReason(tx, actor.OrganizationID, in.ReasonID)
		if err != nil {
			return nil, err
		}
		if err := requireNotes(reason.Code, reason.RequiresNotes, in.Notes); err != nil {
			return nil, err
		}
		updates := decision(actor, Deleted, now, map[string]interface{}{
			"deleted_at":        now,
			"deleted_by":        actor.UserID,
			"deleted_reason_id": reason.ID,
			"deleted_notes":     strings.TrimSpace(in.Notes),
		})
		if item.IsGroup {
			err := tx.Model(&models.RepairItem{}).
				Where("parent_repair_item_id = ? AND deleted_at IS NULL", item.ID).
				Updates(map[string]interface{}{
					"deleted_at":        now,
					"deleted_by":        actor.UserID,
					"deleted_reason_id": reason.ID,
					"deleted_notes":     strings.TrimSpace(in.Notes),
				}).Error
			if err != nil {
				return nil, fmt.Errorf("repair: delete children of %s: %w", item.ID, err)
			}
		}
		return updates, nil
	})
}

// Reset clears an authorised, deferred or declined outcome so the item
// returns to whatever its labour and parts progress makes it.
func (s *Service) Reset(ctx context.Context, actor Actor, healthCheckID, itemID string) (*ItemView, error) {
	return s.transition(ctx, actor, healthCheckID, itemID, ActionReset, func(*gorm.DB, *models.RepairItem, time.Time) (map[string]interface{}, error) {
		return map[string]interface{}{
			"outcome_status":       nil,
			"outcome_set_at":       nil,
			"outcome_set_by":       nil,
			"outcome_source":       nil,
			"customer_approved":    nil,
			"deferred_until":       nil,
			"deferred_notes":       "",
			"deferral_notified_at": nil,
			"declined_reason_id":   nil,
			"declined_notes":       "",
		}, nil
	})
}

// DeferAll defers each listed item independently. Items that cannot be
// deferred are reported in Failed; the rest are still written.
func (s *Service) DeferAll(ctx context.Context, actor Actor, healthCheckID string, itemIDs []string, in DeferInput) (*BulkResult, error) {
	return s.bulk(ctx, actor, healthCheckID, itemIDs, ActionDefer, s.deferUpdates(actor, in))
}

// DeclineAll declines each listed item independently with the same reason.
func (s *Service) DeclineAll(ctx context.Context, actor Actor, healthCheckID string, itemIDs []string, in ReasonInput) (*BulkResult, error) {
	return s.bulk(ctx, actor, healthCheckID, itemIDs, ActionDecline, declineUpdates(actor, in))
}

type updateFunc func(tx *gorm.DB, item *models.RepairItem, now time.Time) (map[string]interface{}, error)

func (s *Service) deferUpdates(actor Actor, in DeferInput) updateFunc {
	return func(_ *gorm.DB, _ *models.RepairItem, now time.Time) (map[string]interface{}, error) {
		if in.Until.IsZero() {
			return nil, invalid("deferred_until", "DEFER_DATE_REQUIRED", "deferred_until is required")
		}
		if !in.Until.After(now) {
			return nil, invalid("deferred_until", "DEFER_DATE_PAST", "deferred_until must be in the future")
		}
		return decision(actor, Deferred, now, map[string]interface{}{
			"deferred_until":       in.Until.UTC(),
			"deferred_notes":       strings.TrimSpace(in.Notes),
			"deferral_notified_at": nil,
		}), nil
	}
}

func declineUpdates(actor Actor, in ReasonInput) updateFunc {
	return func(tx *gorm.DB, _ *models.RepairItem, now time.Time) (map[string]interface{}, error) {
		reason, err := lookupDeclinedReason(tx, actor.OrganizationID, in.ReasonID)
		if err != nil {
			return nil, err
		}
		if err := requireNotes(reason.Code, reason.RequiresNotes, in.Notes); err != nil {
			return nil, err
		}
		return decision(actor, Declined, now, map[string]interface{}{
			"customer_approved":  false,
			"declined_reason_id": reason.ID,
			"declined_notes":     strings.TrimSpace(in.Notes),
		}), nil
	}
}

// decision adds the common outcome columns of a staff transition.
func decision(actor Actor, o Outcome, now time.Time, extra map[string]interface{}) map[string]interface{} {
	updates := map[string]interface{}{
		"outcome_status": string(o),
		"outcome_set_at": now,
		"outcome_set_by": actor.UserID,
		"outcome_source": SourceManual,
	}
	for k, v := range extra {
		updates[k] = v
	}
	return updates
}

// transition applies one staff action to one item in its own transaction,
// then publishes the change and returns the re-read item.
func (s *Service) transition(ctx context.Context, actor Actor, healthCheckID, itemID string, action Action, build updateFunc) (*ItemView, error) {
	var hc *models.HealthCheck
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		hc, err = loadHealthCheck(tx, actor, healthCheckID)
		if err != nil {
			return err
		}
		if err := ensureOpen(hc); err != nil {
			return err
		}
		return s.applyTransition(tx, actor, hc, itemID, action, build)
	})
	if err != nil {
		return nil, err
	}

	view, err := s.itemView(ctx, healthCheckID, itemID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:           events.OutcomeChanged,
		OrganizationID: hc.OrganizationID,
		HealthCheckID:  healthCheckID,
		RepairItemIDs:  []string{itemID},
		Outcome:        string(view.Outcome),
		Source:         SourceManual,
		ActorID:        actor.UserID,
		Total:          view.Price.Total,
	})
	return view, nil
}

func (s *Service) applyTransition(tx *gorm.DB, actor Actor, hc *models.HealthCheck, itemID string, action Action, build updateFunc) error {
	item, err := loadItem(tx, hc.ID, itemID)
	if err != nil {
		return err
	}
	if item.ParentRepairItemID != nil && action != ActionDelete {
		return conflict("CHILD_ITEM", "repair item %s belongs to a group; act on the group instead", itemID)
	}

	from := ComputeOutcome(item)
	if !isValidTransition(action, from) {
		return conflict("INVALID_TRANSITION", "cannot %s a repair item that is %s; allowed from %v", action, from, ValidTransitions[action])
	}

	now := s.clock()
	updates, err := build(tx, item, now)
	if err != nil {
		return err
	}

	s.hookBeforeWrite(tx, itemID)

	predicate := undecided
	if action == ActionReset {
		predicate = "deleted_at IS NULL AND (outcome_status IS NOT NULL OR customer_approved IS NOT NULL)"
	}
	result := tx.Model(&models.RepairItem{}).
		Where("id = ? AND health_check_id = ?", itemID, hc.ID).
		Where(predicate).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("repair: %s %s: %w", action, itemID, result.Error)
	}
	if result.RowsAffected == 0 {
		return conflict("STATE_CHANGED", "repair item %s changed while it was being updated; reload and retry", itemID)
	}
	return nil
}

// bulk runs one staff transition per item, each in its own transaction.
func (s *Service) bulk(ctx context.Context, actor Actor, healthCheckID string, itemIDs []string, action Action, build updateFunc) (*BulkResult, error) {
	if len(itemIDs) == 0 {
		return nil, invalid("item_ids", "ITEMS_REQUIRED", "item_ids must name at least one repair item")
	}
	hc, err := loadHealthCheck(s.db.WithContext(ctx), actor, healthCheckID)
	if err != nil {
		return nil, err
	}
	if err := ensureOpen(hc); err != nil {
		return nil, err
	}

	result := &BulkResult{Updated: []string{}, Failed: []BulkFailure{}}
	for _, id := range itemIDs {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.applyTransition(tx, actor, hc, id, action, build)
		})
		var rerr *Error
		switch {
		case err == nil:
			result.Updated = append(result.Updated, id)
		case errors.As(err, &rerr):
			result.fail(id, rerr)
		default:
			return result, err
		}
	}

	if len(result.Updated) > 0 {
		s.publish(ctx, events.Event{
			Type:           events.OutcomeChanged,
			OrganizationID: hc.OrganizationID,
			HealthCheckID:  healthCheckID,
			RepairItemIDs:  result.Updated,
			Outcome:        string(outcomeOf(action)),
			Source:         SourceManual,
			ActorID:        actor.UserID,
		})
	}
	return result, nil
}

func outcomeOf(action Action) Outcome {
	switch action {
	case ActionAuthorise:
		return Authorised
	case ActionDefer:
		return Deferred
	case ActionDecline:
		return Declined
	case ActionDelete:
		return Deleted
	}
	return ""
}

func requireNotes(code string, requiresNotes bool, notes string) error {
	if (requiresNotes || code == "other") && strings.TrimSpace(notes) == "" {
		return invalid("notes", "NOTES_REQUIRED", "notes are required for reason %q", code)
	}
	return nil
}
