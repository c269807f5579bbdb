package repair

import (
	"sort"

	"github.com/garagehq/vhc/internal/models"
	"github.com/shopspring/decimal"
)

// Price is the resolved cost of a repair item. OptionID is the option the
// amounts came from, nil when the item has no options.
type Price struct {
	Labour   decimal.Decimal `json:"labour"`
	Parts    decimal.Decimal `json:"parts"`
	Subtotal decimal.Decimal `json:"subtotal"`
	VAT      decimal.Decimal `json:"vat"`
	Total    decimal.Decimal `json:"total"`
	OptionID *string         `json:"option_id,omitempty"`
}

// EffectivePrice resolves the price of item. With options it uses override,
// then the stored selection, then the recommended option, then the first
// option by sort order. Without options it uses the item's own amounts.
// An override that names none of the item's options is ignored.
func EffectivePrice(item *models.RepairItem, override *string) Price {
	opt := resolveOption(item, override)
	if opt == nil {
		return Price{
			Labour:   item.LabourAmount,
			Parts:    item.PartsAmount,
			Subtotal: item.Subtotal,
			VAT:      item.VATAmount,
			Total:    item.Total,
		}
	}
	id := opt.ID
	return Price{
		Labour:   opt.LabourAmount,
		Parts:    opt.PartsAmount,
		Subtotal: opt.Subtotal,
		VAT:      opt.VATAmount,
		Total:    opt.Total,
		OptionID: &id,
	}
}

func resolveOption(item *models.RepairItem, override *string) *models.RepairOption {
	if len(item.Options) == 0 {
		return nil
	}
	if override != nil {
		if o := findOption(item, *override); o != nil {
			return o
		}
	}
	if item.SelectedOptionID != nil {
		if o := findOption(item, *item.SelectedOptionID); o != nil {
			return o
		}
	}

	sorted := make([]*models.RepairOption, len(item.Options))
	for i := range item.Options {
		sorted[i] = &item.Options[i]
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SortOrder < sorted[j].SortOrder })
	for _, o := range sorted {
		if o.IsRecommended {
			return o
		}
	}
	return sorted[0]
}

func findOption(item *models.RepairItem, id string) *models.RepairOption {
	for i := range item.Options {
		if item.Options[i].ID == id {
			return &item.Options[i]
		}
	}
	return nil
}
