package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garagehq/vhc/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OptionInput describes a priced option on a new repair item.
type OptionInput struct {
	Name          string
	Description   string
	Labour        decimal.Decimal
	Parts         decimal.Decimal
	VAT           decimal.Decimal
	IsRecommended bool
}

// CreateItemInput describes a manually entered repair item.
type CreateItemInput struct {
	Name        string
	Description string
	IsGroup     bool
	ParentID    string
	Source      string // manual (default) or manufacturer
	Severity    string
	Labour      decimal.Decimal
	Parts       decimal.Decimal
	VAT         decimal.Decimal
	FindingIDs  []string
	Options     []OptionInput
}

// CreateRepairItem adds a staff-entered repair item to an open health check.
func (s *Service) CreateRepairItem(ctx context.Context, actor Actor, healthCheckID string, in CreateItemInput) (*ItemView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, invalid("name", "NAME_REQUIRED", "name is required")
	}
	if in.Source == "" {
		in.Source = ItemSourceManual
	}
	if in.Source != ItemSourceManual && in.Source != ItemSourceManufacturer {
		return nil, invalid("source", "INVALID_SOURCE", "source %q must be manual or manufacturer", in.Source)
	}
	if in.Severity != "" && !validSeverity(in.Severity) {
		return nil, invalid("severity", "INVALID_SEVERITY", "severity %q must be red, amber or green", in.Severity)
	}
	if in.IsGroup && len(in.FindingIDs) > 0 {
		return nil, invalid("finding_ids", "GROUP_FINDINGS", "a group cannot link findings directly")
	}
	if in.IsGroup && in.ParentID != "" {
		return nil, invalid("parent_id", "NESTED_GROUP", "a group cannot belong to another group")
	}
	for i, o := range in.Options {
		if strings.TrimSpace(o.Name) == "" {
			return nil, invalid(fmt.Sprintf("options[%d].name", i), "NAME_REQUIRED", "option name is required")
		}
	}

	itemID := uuid.NewString()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hc, err := loadHealthCheck(tx, actor, healthCheckID)
		if err != nil {
			return err
		}
		if err := ensureOpen(hc); err != nil {
			return err
		}

		item := models.RepairItem{
			ID:            itemID,
			HealthCheckID: hc.ID,
			Name:          in.Name,
			Description:   in.Description,
			IsGroup:       in.IsGroup,
			Source:        in.Source,
			LabourStatus:  StatusPending,
			PartsStatus:   StatusPending,
			LabourAmount:  in.Labour,
			PartsAmount:   in.Parts,
			Subtotal:      in.Labour.Add(in.Parts),
			VATAmount:     in.VAT,
			Total:         in.Labour.Add(in.Parts).Add(in.VAT),
		}
		if in.Severity != "" {
			item.Severity = &in.Severity
		}

		if in.ParentID != "" {
			parent, err := loadItem(tx, hc.ID, in.ParentID)
			if err != nil {
				return err
			}
			if !parent.IsGroup || parent.DeletedAt != nil {
				return invalid("parent_id", "INVALID_PARENT", "parent %s is not a live group", in.ParentID)
			}
			item.ParentRepairItemID = &parent.ID
			item.SortOrder = len(parent.Children)
		} else {
			n, err := countRepairItems(tx.Where("parent_repair_item_id IS NULL"), hc.ID)
			if err != nil {
				return fmt.Errorf("repair: count items: %w", err)
			}
			item.SortOrder = int(n)
		}

		if len(in.FindingIDs) > 0 {
			var findings []models.Finding
			if err := tx.Where("id IN ? AND health_check_id = ?", in.FindingIDs, hc.ID).Find(&findings).Error; err != nil {
				return fmt.Errorf("repair: load findings: %w", err)
			}
			if len(findings) != len(in.FindingIDs) {
				return invalid("finding_ids", "INVALID_FINDING", "every finding must belong to health check %s", hc.ID)
			}
			item.Findings = findings
		}

		for i, o := range in.Options {
			item.Options = append(item.Options, models.RepairOption{
				ID:            uuid.NewString(),
				Name:          strings.TrimSpace(o.Name),
				Description:   o.Description,
				LabourAmount:  o.Labour,
				PartsAmount:   o.Parts,
				Subtotal:      o.Labour.Add(o.Parts),
				VATAmount:     o.VAT,
				Total:         o.Labour.Add(o.Parts).Add(o.VAT),
				IsRecommended: o.IsRecommended,
				SortOrder:     i,
			})
		}

		if err := tx.Omit("Findings.*").Create(&item).Error; err != nil {
			return fmt.Errorf("repair: create repair item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.itemView(ctx, healthCheckID, itemID)
}

// ProgressInput updates labour and parts progress. Nil fields are left as is.
type ProgressInput struct {
	LabourStatus     *string
	PartsStatus      *string
	NoLabourRequired *bool
	NoPartsRequired  *bool
}

// UpdateProgress records labour and parts progress on a live item.
func (s *Service) UpdateProgress(ctx context.Context, actor Actor, healthCheckID, itemID string, in ProgressInput) (*ItemView, error) {
	updates := map[string]interface{}{}
	if in.LabourStatus != nil {
		if !validProgress(*in.LabourStatus) {
			return nil, invalid("labour_status", "INVALID_STATUS", "labour_status %q must be pending, in_progress or complete", *in.LabourStatus)
		}
		updates["labour_status"] = *in.LabourStatus
	}
	if in.PartsStatus != nil {
		if !validProgress(*in.PartsStatus) {
			return nil, invalid("parts_status", "INVALID_STATUS", "parts_status %q must be pending, in_progress or complete", *in.PartsStatus)
		}
		updates["parts_status"] = *in.PartsStatus
	}
	if in.NoLabourRequired != nil {
		updates["no_labour_required"] = *in.NoLabourRequired
	}
	if in.NoPartsRequired != nil {
		updates["no_parts_required"] = *in.NoPartsRequired
	}
	if len(updates) == 0 {
		return nil, invalid("", "NOTHING_TO_UPDATE", "no progress fields given")
	}

	err := s.updateLiveItem(ctx, actor, healthCheckID, itemID, func(*models.RepairItem) error { return nil }, updates)
	if err != nil {
		return nil, err
	}
	return s.itemView(ctx, healthCheckID, itemID)
}

// MarkWorkComplete records that authorised work has been carried out.
// Marking an already completed item keeps the original timestamp.
func (s *Service) MarkWorkComplete(ctx context.Context, actor Actor, healthCheckID, itemID string) (*ItemView, error) {
	err := s.updateLiveItem(ctx, actor, healthCheckID, itemID, func(item *models.RepairItem) error {
		if o := ComputeOutcome(item); o != Authorised {
			return conflict("NOT_AUTHORISED", "work can only be completed on authorised items; item is %s", o)
		}
		if item.WorkCompletedAt != nil {
			return errNoChange
		}
		return nil
	}, map[string]interface{}{
		"work_completed_at": s.clock(),
		"work_completed_by": actor.UserID,
	})
	if err != nil {
		return nil, err
	}
	return s.itemView(ctx, healthCheckID, itemID)
}

// ClearWorkComplete removes a work-completed mark.
func (s *Service) ClearWorkComplete(ctx context.Context, actor Actor, healthCheckID, itemID string) (*ItemView, error) {
	err := s.updateLiveItem(ctx, actor, healthCheckID, itemID, func(*models.RepairItem) error { return nil }, map[string]interface{}{
		"work_completed_at": nil,
		"work_completed_by": nil,
	})
	if err != nil {
		return nil, err
	}
	return s.itemView(ctx, healthCheckID, itemID)
}

// SelectOption stores the option staff chose on the customer's behalf.
func (s *Service) SelectOption(ctx context.Context, actor Actor, healthCheckID, itemID, optionID string) (*ItemView, error) {
	err := s.updateLiveItem(ctx, actor, healthCheckID, itemID, func(item *models.RepairItem) error {
		if findOption(item, optionID) == nil {
			return invalid("option_id", "INVALID_OPTION", "option %s does not belong to repair item %s", optionID, item.ID)
		}
		return nil
	}, map[string]interface{}{"selected_option_id": optionID})
	if err != nil {
		return nil, err
	}
	return s.itemView(ctx, healthCheckID, itemID)
}

// errNoChange tells updateLiveItem the item already has the wanted state.
var errNoChange = errors.New("no change")

// updateLiveItem writes updates to a non-deleted item of an open health
// check after check accepts it.
func (s *Service) updateLiveItem(ctx context.Context, actor Actor, healthCheckID, itemID string, check func(*models.RepairItem) error, updates map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hc, err := loadHealthCheck(tx, actor, healthCheckID)
		if err != nil {
			return err
		}
		if err := ensureOpen(hc); err != nil {
			return err
		}
		item, err := loadItem(tx, hc.ID, itemID)
		if err != nil {
			return err
		}
		if item.DeletedAt != nil {
			return conflict("ITEM_DELETED", "repair item %s is deleted", itemID)
		}
		if err := check(item); err != nil {
			if errors.Is(err, errNoChange) {
				return nil
			}
			return err
		}

		result := tx.Model(&models.RepairItem{}).
			Where("id = ? AND deleted_at IS NULL", itemID).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("repair: update repair item %s: %w", itemID, result.Error)
		}
		if result.RowsAffected == 0 {
			return conflict("STATE_CHANGED", "repair item %s changed while it was being updated; reload and retry", itemID)
		}
		return nil
	})
}

// TokenGrant is a freshly issued customer link token.
type TokenGrant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssuePublicToken creates or rotates the customer token and moves a draft
// or in-progress health check to awaiting authorisation.
func (s *Service) IssuePublicToken(ctx context.Context, actor Actor, healthCheckID string) (*TokenGrant, error) {
	token, err := newPublicToken()
	if err != nil {
		return nil, err
	}
	grant := &TokenGrant{Token: token, ExpiresAt: s.clock().Add(s.tokenTTL)}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hc, err := loadHealthCheck(tx, actor, healthCheckID)
		if err != nil {
			return err
		}
		if err := ensureOpen(hc); err != nil {
			return err
		}
		updates := map[string]interface{}{
			"public_token":            token,
			"public_token_expires_at": grant.ExpiresAt,
		}
		if hc.Status == HealthCheckDraft || hc.Status == HealthCheckInProgress {
			updates["status"] = HealthCheckAwaitingAuthorisation
		}
		if err := tx.Model(&models.HealthCheck{}).Where("id = ?", hc.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("repair: issue public token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("health_check_id", healthCheckID).Info("public token issued")
	return grant, nil
}
