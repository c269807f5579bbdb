package repair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garagehq/vhc/internal/events"
	"github.com/garagehq/vhc/internal/models"
	"github.com/garagehq/vhc/internal/signature"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// customerUndecided is the write-time predicate for online decisions.
const customerUndecided = "customer_approved IS NULL AND deleted_at IS NULL"

// PortalItem is a repair item as the vehicle owner sees it.
type PortalItem struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	IsGroup          bool         `json:"is_group"`
	Severity         Severity     `json:"severity"`
	Outcome          Outcome      `json:"outcome"`
	CustomerApproved *bool        `json:"customer_approved"`
	Decidable        bool         `json:"decidable"`
	Price            Price        `json:"price"`
	Options          []OptionView `json:"options"`
	Children         []string     `json:"children,omitempty"`
}

// PortalView is everything the customer portal renders for a token.
type PortalView struct {
	HealthCheckID       string       `json:"health_check_id"`
	VehicleRegistration string       `json:"vehicle_registration"`
	Status              string       `json:"status"`
	ExpiresAt           *time.Time   `json:"expires_at"`
	Items               []PortalItem `json:"items"`
	Totals              Totals       `json:"totals"`
	// Undecided counts items without a customer decision, staff-deferred
	// ones included. Sign needs it to be zero.
	Undecided           int          `json:"undecided"`
	SignedAt            *time.Time   `json:"signed_at,omitempty"`
}

// decidable reports whether the customer may still approve or decline item.
func decidable(item *models.RepairItem) bool {
	if item.DeletedAt != nil || item.CustomerApproved != nil || item.ParentRepairItemID != nil {
		return false
	}
	if !item.IsGroup {
		return true
	}
	for i := range item.Children {
		if item.Children[i].DeletedAt == nil {
			return true
		}
	}
	return false
}

func newPortalItem(item *models.RepairItem) PortalItem {
	price := EffectivePrice(item, nil)
	p := PortalItem{
		ID:               item.ID,
		Name:             item.Name,
		Description:      item.Description,
		IsGroup:          item.IsGroup,
		Severity:         DeriveSeverity(NodeOf(item)),
		Outcome:          ComputeOutcome(item),
		CustomerApproved: item.CustomerApproved,
		Decidable:        decidable(item),
		Price:            price,
		Options:          optionViews(item, price.OptionID),
	}
	for _, c := range item.Children {
		if c.DeletedAt == nil {
			p.Children = append(p.Children, c.Name)
		}
	}
	return p
}

// healthCheckByToken resolves a public token. Unknown tokens are not found;
// expired tokens return ErrTokenExpired.
func (s *Service) healthCheckByToken(tx *gorm.DB, token string) (*models.HealthCheck, error) {
	if token == "" {
		return nil, notFound("public link", "")
	}
	var hc models.HealthCheck
	err := tx.Where("public_token = ?", token).First(&hc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("public link", "")
	}
	if err != nil {
		return nil, fmt.Errorf("repair: resolve public token: %w", err)
	}
	if hc.PublicTokenExpiresAt != nil && !s.clock().Before(*hc.PublicTokenExpiresAt) {
		return nil, ErrTokenExpired
	}
	return &hc, nil
}

// Portal returns the customer view of the health check behind token.
// Deleted items are never shown.
func (s *Service) Portal(ctx context.Context, token string) (*PortalView, error) {
	db := s.db.WithContext(ctx)
	hc, err := s.healthCheckByToken(db, token)
	if err != nil {
		return nil, err
	}
	items, err := loadTopLevel(db, hc.ID)
	if err != nil {
		return nil, err
	}

	v := &PortalView{
		HealthCheckID:       hc.ID,
		VehicleRegistration: hc.VehicleRegistration,
		Status:              hc.Status,
		ExpiresAt:           hc.PublicTokenExpiresAt,
		Items:               []PortalItem{},
	}
	live := make([]models.RepairItem, 0, len(items))
	for i := range items {
		if items[i].DeletedAt != nil {
			continue
		}
		live = append(live, items[i])
		p := newPortalItem(&items[i])
		if p.Decidable {
			v.Undecided++
		}
		v.Items = append(v.Items, p)
	}
	v.Totals = Summarize(live).Totals

	var sig models.CustomerSignature
	err = db.Select("signed_at").Where("health_check_id = ?", hc.ID).Order("signed_at DESC").Limit(1).Find(&sig).Error
	if err != nil {
		return nil, fmt.Errorf("repair: load signature: %w", err)
	}
	if !sig.SignedAt.IsZero() {
		v.SignedAt = &sig.SignedAt
	}
	return v, nil
}

// Approve records the customer's approval of one item, optionally with the
// option they chose.
func (s *Service) Approve(ctx context.Context, token, itemID string, optionID *string) (*PortalItem, error) {
	return s.decideOnline(ctx, token, itemID, true, optionID)
}

// DeclineOnline records the customer's decline of one item.
func (s *Service) DeclineOnline(ctx context.Context, token, itemID string) (*PortalItem, error) {
	return s.decideOnline(ctx, token, itemID, false, nil)
}

func (s *Service) decideOnline(ctx context.Context, token, itemID string, approve bool, optionID *string) (*PortalItem, error) {
	var hc *models.HealthCheck
	var total decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		hc, err = s.healthCheckByToken(tx, token)
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
		if item.DeletedAt != nil || item.ParentRepairItemID != nil {
			return notFound("repair item", itemID)
		}
		if optionID != nil && findOption(item, *optionID) == nil {
			return invalid("option_id", "INVALID_OPTION", "option %s does not belong to repair item %s", *optionID, itemID)
		}
		if !decidable(item) {
			return conflict("ALREADY_DECIDED", "repair item %s has already been decided", itemID)
		}
		total = EffectivePrice(item, optionID).Total
		return s.writeOnlineDecision(tx, hc, item, approve, optionID)
	})
	if err != nil {
		return nil, err
	}

	item, err := loadItem(s.db.WithContext(ctx), hc.ID, itemID)
	if err != nil {
		return nil, err
	}
	p := newPortalItem(item)
	s.publish(ctx, events.Event{
		Type:           events.OutcomeChanged,
		OrganizationID: hc.OrganizationID,
		HealthCheckID:  hc.ID,
		RepairItemIDs:  []string{itemID},
		Outcome:        string(p.Outcome),
		Source:         SourceOnline,
		Total:          total,
	})
	return &p, nil
}

// writeOnlineDecision updates one item if it is still undecided at write
// time and appends the authorization record.
func (s *Service) writeOnlineDecision(tx *gorm.DB, hc *models.HealthCheck, item *models.RepairItem, approve bool, optionID *string) error {
	now := s.clock()
	outcome, decision := Declined, "declined"
	if approve {
		outcome, decision = Authorised, "approved"
	}
	updates := map[string]interface{}{
		"customer_approved": approve,
		"outcome_status":    string(outcome),
		"outcome_set_at":    now,
		"outcome_set_by":    nil,
		"outcome_source":    SourceOnline,
		"deferred_until":    nil,
		"deferred_notes":    "",
	}
	if optionID != nil {
		updates["selected_option_id"] = *optionID
	}

	s.hookBeforeWrite(tx, item.ID)

	result := tx.Model(&models.RepairItem{}).
		Where("id = ? AND health_check_id = ?", item.ID, hc.ID).
		Where(customerUndecided).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("repair: record %s for %s: %w", decision, item.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return conflict("ALREADY_DECIDED", "repair item %s has already been decided", item.ID)
	}

	auth := models.Authorization{
		RepairItemID:     item.ID,
		HealthCheckID:    hc.ID,
		Decision:         decision,
		SelectedOptionID: optionID,
		DecidedAt:        now,
	}
	if err := tx.Create(&auth).Error; err != nil {
		return fmt.Errorf("repair: append authorization for %s: %w", item.ID, err)
	}
	return nil
}

// ApproveAll approves every item still undecided at write time. selections
// maps item ids to the option the customer chose; items without a selection
// use the option the price resolver would show.
func (s *Service) ApproveAll(ctx context.Context, token string, selections map[string]string) (*BulkResult, error) {
	return s.decideAllOnline(ctx, token, true, selections)
}

// DeclineAllOnline declines every item still undecided at write time.
func (s *Service) DeclineAllOnline(ctx context.Context, token string) (*BulkResult, error) {
	return s.decideAllOnline(ctx, token, false, nil)
}

func (s *Service) decideAllOnline(ctx context.Context, token string, approve bool, selections map[string]string) (*BulkResult, error) {
	db := s.db.WithContext(ctx)
	hc, err := s.healthCheckByToken(db, token)
	if err != nil {
		return nil, err
	}
	if err := ensureOpen(hc); err != nil {
		return nil, err
	}

	var candidates []models.RepairItem
	err = orderBySort(withItemGraph(db)).
		Where("health_check_id = ? AND parent_repair_item_id IS NULL", hc.ID).
		Where(customerUndecided).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("repair: load undecided items: %w", err)
	}

	result := &BulkResult{Updated: []string{}, Failed: []BulkFailure{}}
	seen := make(map[string]bool, len(candidates))
	total := decimal.Zero
	for i := range candidates {
		item := &candidates[i]
		seen[item.ID] = true
		if !decidable(item) {
			result.fail(item.ID, conflict("NOT_ELIGIBLE", "group %s has no items", item.ID))
			continue
		}

		var optionID *string
		if approve {
			if sel, ok := selections[item.ID]; ok && sel != "" {
				if findOption(item, sel) == nil {
					result.fail(item.ID, invalid("option_id", "INVALID_OPTION", "option %s does not belong to repair item %s", sel, item.ID))
					continue
				}
				optionID = &sel
			} else if opt := resolveOption(item, nil); opt != nil {
				id := opt.ID
				optionID = &id
			}
		}

		err := db.Transaction(func(tx *gorm.DB) error {
			return s.writeOnlineDecision(tx, hc, item, approve, optionID)
		})
		var rerr *Error
		switch {
		case err == nil:
			result.Updated = append(result.Updated, item.ID)
			total = total.Add(EffectivePrice(item, optionID).Total)
		case errors.As(err, &rerr):
			result.fail(item.ID, rerr)
		default:
			return result, err
		}
	}
	for id := range selections {
		if !seen[id] {
			result.fail(id, conflict("NOT_ELIGIBLE", "repair item %s is not awaiting a decision", id))
		}
	}

	if len(result.Updated) > 0 {
		outcome := Declined
		if approve {
			outcome = Authorised
		}
		s.publish(ctx, events.Event{
			Type:           events.OutcomeChanged,
			OrganizationID: hc.OrganizationID,
			HealthCheckID:  hc.ID,
			RepairItemIDs:  result.Updated,
			Outcome:        string(outcome),
			Source:         SourceOnline,
			Total:          total,
		})
	}
	return result, nil
}

// SignInput is a captured signature and where it came from.
type SignInput struct {
	Data      string
	ClientIP  string
	UserAgent string
}

// SignatureReceipt confirms a stored signature.
type SignatureReceipt struct {
	ID       string    `json:"id"`
	SignedAt time.Time `json:"signed_at"`
	Backend  string    `json:"backend"`
}

// Sign stores the customer's signature for the health check. It is refused
// while any item still awaits the customer's decision. Items staff deferred
// count as awaiting it: a deferral is the workshop's call, so the customer
// still approves or declines the work before signing. Signing does not
// change any item's outcome.
func (s *Service) Sign(ctx context.Context, token string, in SignInput) (*SignatureReceipt, error) {
	db := s.db.WithContext(ctx)
	hc, err := s.healthCheckByToken(db, token)
	if err != nil {
		return nil, err
	}
	if err := ensureOpen(hc); err != nil {
		return nil, err
	}
	if n, err := s.countUndecided(db, hc.ID); err != nil {
		return nil, err
	} else if n > 0 {
		return nil, conflict("UNDECIDED_ITEMS", "%d repair items still need a decision before signing", n)
	}

	png, err := signature.Normalize(in.Data)
	if err != nil {
		return nil, invalid("signature", "INVALID_SIGNATURE", "%v", err)
	}

	sigID := uuid.NewString()
	blob, err := s.signatures.Put(ctx, hc.ID, sigID, png)
	if err != nil {
		return nil, fmt.Errorf("repair: store signature: %w", err)
	}

	now := s.clock()
	row := models.CustomerSignature{
		ID:            sigID,
		HealthCheckID: hc.ID,
		Backend:       blob.Backend,
		StorageKey:    blob.Key,
		Data:          blob.Data,
		ContentType:   signature.ContentType,
		SizeBytes:     len(png),
		ClientIP:      in.ClientIP,
		UserAgent:     in.UserAgent,
		SignedAt:      now,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("repair: save signature: %w", err)
		}
		if err := tx.Model(&models.Authorization{}).
			Where("health_check_id = ? AND has_signature = ?", hc.ID, false).
			Update("has_signature", true).Error; err != nil {
			return fmt.Errorf("repair: flag authorizations: %w", err)
		}
		if hc.Status == HealthCheckAwaitingAuthorisation {
			if err := tx.Model(&models.HealthCheck{}).
				Where("id = ? AND status = ?", hc.ID, HealthCheckAwaitingAuthorisation).
				Update("status", HealthCheckAuthorised).Error; err != nil {
				return fmt.Errorf("repair: mark authorised: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:           events.Signed,
		OrganizationID: hc.OrganizationID,
		HealthCheckID:  hc.ID,
		Source:         SourceOnline,
	})
	return &SignatureReceipt{ID: sigID, SignedAt: now, Backend: blob.Backend}, nil
}

func (s *Service) countUndecided(db *gorm.DB, healthCheckID string) (int, error) {
	var items []models.RepairItem
	err := db.Preload("Children").
		Where("health_check_id = ? AND parent_repair_item_id IS NULL", healthCheckID).
		Where(customerUndecided).
		Find(&items).Error
	if err != nil {
		return 0, fmt.Errorf("repair: count undecided items: %w", err)
	}
	n := 0
	for i := range items {
		if decidable(&items[i]) {
			n++
		}
	}
	return n, nil
}
