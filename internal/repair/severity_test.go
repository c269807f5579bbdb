package repair

import (
	"testing"
	"time"

	"github.com/garagehq/vhc/internal/models"
)

func TestDeriveSeverity(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want Severity
	}{
		{"leaf red beats amber", Leaf{Findings: []Severity{SeverityAmber, SeverityRed}}, SeverityRed},
		{"leaf amber", Leaf{Findings: []Severity{SeverityGreen, SeverityAmber}}, SeverityAmber},
		{"leaf green only", Leaf{Findings: []Severity{SeverityGreen}}, SeverityNone},
		{"leaf falls back to stored", Leaf{Stored: SeverityAmber}, SeverityAmber},
		{"findings beat stored", Leaf{Findings: []Severity{SeverityAmber}, Stored: SeverityRed}, SeverityAmber},
		{"stored green is not reported", Leaf{Stored: SeverityGreen}, SeverityNone},
		{"group red and amber", Group{Children: []Leaf{
			{Findings: []Severity{SeverityRed}},
			{Findings: []Severity{SeverityAmber}},
		}}, SeverityRed},
		{"group amber and green", Group{Children: []Leaf{
			{Findings: []Severity{SeverityAmber}},
			{Findings: []Severity{SeverityGreen}},
		}}, SeverityAmber},
		{"group amber then red", Group{Children: []Leaf{
			{Findings: []Severity{SeverityAmber}},
			{},
			{Findings: []Severity{SeverityRed}},
		}}, SeverityRed},
		{"group without qualifying children uses stored", Group{
			Children: []Leaf{{Findings: []Severity{SeverityGreen}}},
			Stored:   SeverityAmber,
		}, SeverityAmber},
		{"empty group", Group{}, SeverityNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveSeverity(tt.node); got != tt.want {
				t.Errorf("DeriveSeverity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNodeOf(t *testing.T) {
	deleted := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	group := &models.RepairItem{
		IsGroup:  true,
		Severity: sp("amber"),
		Children: []models.RepairItem{
			{Findings: []models.Finding{{Severity: "red"}}, DeletedAt: &deleted},
			{Findings: []models.Finding{{Severity: "green"}}},
		},
	}

	node := NodeOf(group)
	g, ok := node.(Group)
	if !ok {
		t.Fatalf("NodeOf(group) = %T, want Group", node)
	}
	if len(g.Children) != 1 {
		t.Fatalf("children = %d, want 1 (deleted child skipped)", len(g.Children))
	}
	if got := DeriveSeverity(node); got != SeverityAmber {
		t.Errorf("severity = %q, want stored amber since the red child is deleted", got)
	}

	leaf := &models.RepairItem{Findings: []models.Finding{{Severity: "amber"}, {Severity: "red"}}}
	if _, ok := NodeOf(leaf).(Leaf); !ok {
		t.Fatalf("NodeOf(leaf) is not a Leaf")
	}
	if got := DeriveSeverity(NodeOf(leaf)); got != SeverityRed {
		t.Errorf("leaf severity = %q, want red", got)
	}
}
