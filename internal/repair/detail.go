package repair

import (
	"context"
	"time"

	"github.com/garagehq/vhc/internal/models"
	"github.com/shopspring/decimal"
)

// OptionView is a priced option as shown to staff and customers.
type OptionView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Labour        decimal.Decimal `json:"labour"`
	Parts         decimal.Decimal `json:"parts"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	VAT           decimal.Decimal `json:"vat"`
	Total         decimal.Decimal `json:"total"`
	IsRecommended bool            `json:"is_recommended"`
	Selected      bool            `json:"selected"`
}

// ItemView is a repair item with its derived severity, outcome and price.
type ItemView struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	IsGroup          bool         `json:"is_group"`
	ParentID         *string      `json:"parent_id,omitempty"`
	Source           string       `json:"source"`
	Severity         Severity     `json:"severity"`
	Outcome          Outcome      `json:"outcome"`
	OutcomeSource    *string      `json:"outcome_source"`
	OutcomeSetAt     *time.Time   `json:"outcome_set_at"`
	OutcomeSetBy     *string      `json:"outcome_set_by"`
	CustomerApproved *bool        `json:"customer_approved"`
	Price            Price        `json:"price"`
	SelectedOptionID *string      `json:"selected_option_id"`
	Options          []OptionView `json:"options"`
	LabourStatus     string       `json:"labour_status"`
	PartsStatus      string       `json:"parts_status"`
	NoLabourRequired bool         `json:"no_labour_required"`
	NoPartsRequired  bool         `json:"no_parts_required"`
	DeferredUntil    *time.Time   `json:"deferred_until,omitempty"`
	DeferredNotes    string       `json:"deferred_notes,omitempty"`
	DeclinedReasonID *string      `json:"declined_reason_id,omitempty"`
	DeclinedNotes    string       `json:"declined_notes,omitempty"`
	DeletedReasonID  *string      `json:"deleted_reason_id,omitempty"`
	DeletedNotes     string       `json:"deleted_notes,omitempty"`
	DeletedAt        *time.Time   `json:"deleted_at,omitempty"`
	WorkCompletedAt  *time.Time   `json:"work_completed_at"`
	WorkCompletedBy  *string      `json:"work_completed_by"`
	FindingIDs       []string     `json:"finding_ids"`
	Children         []ItemView   `json:"children,omitempty"`
}

func newItemView(item *models.RepairItem) ItemView {
	price := EffectivePrice(item, nil)
	v := ItemView{
		ID:               item.ID,
		Name:             item.Name,
		Description:      item.Description,
		IsGroup:          item.IsGroup,
		ParentID:         item.ParentRepairItemID,
		Source:           item.Source,
		Severity:         DeriveSeverity(NodeOf(item)),
		Outcome:          ComputeOutcome(item),
		OutcomeSource:    item.OutcomeSource,
		OutcomeSetAt:     item.OutcomeSetAt,
		OutcomeSetBy:     item.OutcomeSetBy,
		CustomerApproved: item.CustomerApproved,
		Price:            price,
		SelectedOptionID: item.SelectedOptionID,
		Options:          optionViews(item, price.OptionID),
		LabourStatus:     item.LabourStatus,
		PartsStatus:      item.PartsStatus,
		NoLabourRequired: item.NoLabourRequired,
		NoPartsRequired:  item.NoPartsRequired,
		DeferredUntil:    item.DeferredUntil,
		DeferredNotes:    item.DeferredNotes,
		DeclinedReasonID: item.DeclinedReasonID,
		DeclinedNotes:    item.DeclinedNotes,
		DeletedReasonID:  item.DeletedReasonID,
		DeletedNotes:     item.DeletedNotes,
		DeletedAt:        item.DeletedAt,
		WorkCompletedAt:  item.WorkCompletedAt,
		WorkCompletedBy:  item.WorkCompletedBy,
		FindingIDs:       []string{},
	}
	for _, f := range item.Findings {
		v.FindingIDs = append(v.FindingIDs, f.ID)
	}
	for i := range item.Children {
		v.Children = append(v.Children, newItemView(&item.Children[i]))
	}
	return v
}

func optionViews(item *models.RepairItem, selected *string) []OptionView {
	out := make([]OptionView, 0, len(item.Options))
	for _, o := range item.Options {
		out = append(out, OptionView{
			ID:            o.ID,
			Name:          o.Name,
			Description:   o.Description,
			Labour:        o.LabourAmount,
			Parts:         o.PartsAmount,
			Subtotal:      o.Subtotal,
			VAT:           o.VATAmount,
			Total:         o.Total,
			IsRecommended: o.IsRecommended,
			Selected:      selected != nil && *selected == o.ID,
		})
	}
	return out
}

// HealthCheckView is the part of a health check returned with its items.
type HealthCheckView struct {
	ID                   string     `json:"id"`
	OrganizationID       string     `json:"organization_id"`
	SiteID               string     `json:"site_id,omitempty"`
	VehicleRegistration  string     `json:"vehicle_registration"`
	Status               string     `json:"status"`
	RedCount             int        `json:"red_count"`
	AmberCount           int        `json:"amber_count"`
	GreenCount           int        `json:"green_count"`
	PublicTokenExpiresAt *time.Time `json:"public_token_expires_at,omitempty"`
	ClosedAt             *time.Time `json:"closed_at,omitempty"`
	ClosedBy             *string    `json:"closed_by,omitempty"`
}

func newHealthCheckView(hc *models.HealthCheck) HealthCheckView {
	return HealthCheckView{
		ID:                   hc.ID,
		OrganizationID:       hc.OrganizationID,
		SiteID:               hc.SiteID,
		VehicleRegistration:  hc.VehicleRegistration,
		Status:               hc.Status,
		RedCount:             hc.RedCount,
		AmberCount:           hc.AmberCount,
		GreenCount:           hc.GreenCount,
		PublicTokenExpiresAt: hc.PublicTokenExpiresAt,
		ClosedAt:             hc.ClosedAt,
		ClosedBy:             hc.ClosedBy,
	}
}

// Totals are resolved-price sums by outcome. Pending covers incomplete and
// ready items.
type Totals struct {
	Authorised decimal.Decimal `json:"authorised"`
	Deferred   decimal.Decimal `json:"deferred"`
	Declined   decimal.Decimal `json:"declined"`
	Pending    decimal.Decimal `json:"pending"`
}

func (t *Totals) add(o Outcome, amount decimal.Decimal) {
	switch o {
	case Authorised:
		t.Authorised = t.Authorised.Add(amount)
	case Deferred:
		t.Deferred = t.Deferred.Add(amount)
	case Declined:
		t.Declined = t.Declined.Add(amount)
	case Incomplete, Ready:
		t.Pending = t.Pending.Add(amount)
	}
}

// SeverityCounts counts live top-level items by derived severity.
type SeverityCounts struct {
	Red   int `json:"red"`
	Amber int `json:"amber"`
	None  int `json:"none"`
}

// Summary aggregates the top-level items of a health check.
type Summary struct {
	Counts   map[Outcome]int `json:"counts"`
	Severity SeverityCounts  `json:"severity"`
	Totals   Totals          `json:"totals"`
}

// Summarize counts items by outcome and sums live items by severity and
// value. Deleted items are counted but never summed.
func Summarize(items []models.RepairItem) Summary {
	sum := Summary{Counts: map[Outcome]int{
		Incomplete: 0, Ready: 0, Authorised: 0, Deferred: 0, Declined: 0, Deleted: 0,
	}}
	for i := range items {
		item := &items[i]
		o := ComputeOutcome(item)
		sum.Counts[o]++
		if o == Deleted {
			continue
		}
		switch DeriveSeverity(NodeOf(item)) {
		case SeverityRed:
			sum.Severity.Red++
		case SeverityAmber:
			sum.Severity.Amber++
		default:
			sum.Severity.None++
		}
		sum.Totals.add(o, EffectivePrice(item, nil).Total)
	}
	return sum
}

// Detail is the full staff view of a health check.
type Detail struct {
	HealthCheck HealthCheckView `json:"health_check"`
	Items       []ItemView      `json:"items"`
	Summary     Summary         `json:"summary"`
}

// Detail returns the health check with every top-level item and a summary.
// Repair items are generated from red and amber findings first if the
// health check has none.
func (s *Service) Detail(ctx context.Context, actor Actor, healthCheckID string) (*Detail, error) {
	hc, err := loadHealthCheck(s.db.WithContext(ctx), actor, healthCheckID)
	if err != nil {
		return nil, err
	}

	s.ensureRepairItems(ctx, hc)

	items, err := loadTopLevel(s.db.WithContext(ctx), hc.ID)
	if err != nil {
		return nil, err
	}
	d := &Detail{
		HealthCheck: newHealthCheckView(hc),
		Items:       make([]ItemView, 0, len(items)),
		Summary:     Summarize(items),
	}
	for i := range items {
		d.Items = append(d.Items, newItemView(&items[i]))
	}
	return d, nil
}

func (s *Service) itemView(ctx context.Context, healthCheckID, itemID string) (*ItemView, error) {
	item, err := loadItem(s.db.WithContext(ctx), healthCheckID, itemID)
	if err != nil {
		return nil, err
	}
	v := newItemView(item)
	return &v, nil
}
