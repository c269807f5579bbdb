package repair

import (
	"testing"

	"github.com/garagehq/vhc/internal/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func option(id, total string, sort int, recommended bool) models.RepairOption {
	return models.RepairOption{ID: id, Total: dec(total), Subtotal: dec(total), SortOrder: sort, IsRecommended: recommended}
}

func TestEffectivePrice(t *testing.T) {
	tests := []struct {
		name     string
		item     models.RepairItem
		override *string
		want     string
		wantOpt  string
	}{
		{
			name: "recommended beats first",
			item: models.RepairItem{Options: []models.RepairOption{
				option("a", "100", 0, false),
				option("b", "150", 1, true),
			}},
			want:    "150",
			wantOpt: "b",
		},
		{
			name: "selected beats recommended",
			item: models.RepairItem{SelectedOptionID: sp("a"), Options: []models.RepairOption{
				option("a", "100", 0, false),
				option("b", "150", 1, true),
			}},
			want:    "100",
			wantOpt: "a",
		},
		{
			name:     "override beats selected",
			item:     models.RepairItem{SelectedOptionID: sp("a"), Options: []models.RepairOption{option("a", "100", 0, false), option("c", "80", 2, false)}},
			override: sp("c"),
			want:     "80",
			wantOpt:  "c",
		},
		{
			name:     "unknown override ignored",
			item:     models.RepairItem{SelectedOptionID: sp("a"), Options: []models.RepairOption{option("a", "100", 0, false)}},
			override: sp("zzz"),
			want:     "100",
			wantOpt:  "a",
		},
		{
			name: "first by sort order",
			item: models.RepairItem{Options: []models.RepairOption{
				option("late", "300", 5, false),
				option("early", "200", 1, false),
			}},
			want:    "200",
			wantOpt: "early",
		},
		{
			name: "no options uses own totals",
			item: models.RepairItem{Total: dec("99.99"), Subtotal: dec("83.33"), VATAmount: dec("16.66")},
			want: "99.99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectivePrice(&tt.item, tt.override)
			if !got.Total.Equal(dec(tt.want)) {
				t.Errorf("Total = %s, want %s", got.Total, tt.want)
			}
			switch {
			case tt.wantOpt == "" && got.OptionID != nil:
				t.Errorf("OptionID = %s, want nil", *got.OptionID)
			case tt.wantOpt != "" && (got.OptionID == nil || *got.OptionID != tt.wantOpt):
				t.Errorf("OptionID = %v, want %s", got.OptionID, tt.wantOpt)
			}
		})
	}
}

func TestEffectivePrice_DoesNotReorderOptions(t *testing.T) {
	item := models.RepairItem{Options: []models.RepairOption{
		option("late", "300", 5, false),
		option("early", "200", 1, false),
	}}
	EffectivePrice(&item, nil)
	if item.Options[0].ID != "late" {
		t.Errorf("options reordered: first = %s", item.Options[0].ID)
	}
}

func TestSummarize(t *testing.T) {
	items := []models.RepairItem{
		{Severity: sp("red"), OutcomeStatus: sp("authorised"), Total: dec("100")},
		{Severity: sp("amber"), OutcomeStatus: sp("declined"), Total: dec("40")},
		{OutcomeStatus: sp("deferred"), Total: dec("25.50")},
		{LabourStatus: StatusPending, Total: dec("10")},
		{DeletedAt: tp(testNow), Severity: sp("red"), Total: dec("1000")},
	}
	sum := Summarize(items)

	if sum.Counts[Authorised] != 1 || sum.Counts[Declined] != 1 || sum.Counts[Deferred] != 1 || sum.Counts[Incomplete] != 1 || sum.Counts[Deleted] != 1 {
		t.Errorf("Counts = %v", sum.Counts)
	}
	if sum.Severity.Red != 1 || sum.Severity.Amber != 1 || sum.Severity.None != 2 {
		t.Errorf("Severity = %+v, deleted red item must not count", sum.Severity)
	}
	if !sum.Totals.Authorised.Equal(dec("100")) || !sum.Totals.Declined.Equal(dec("40")) ||
		!sum.Totals.Deferred.Equal(dec("25.5")) || !sum.Totals.Pending.Equal(dec("10")) {
		t.Errorf("Totals = %+v", sum.Totals)
	}
}
