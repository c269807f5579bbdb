package repair

import "github.com/garagehq/vhc/internal/models"

// Severity is the red/amber classification carried by findings and items.
type Severity string

const (
	SeverityRed   Severity = "red"
	SeverityAmber Severity = "amber"
	SeverityGreen Severity = "green"
	SeverityNone  Severity = ""
)

// Node is a repair item seen as either a Leaf or a Group.
type Node interface {
	stored() Severity
}

// Leaf is a repair item linked directly to findings.
type Leaf struct {
	Findings []Severity
	Stored   Severity
}

// Group is a repair item whose severity comes from its children.
type Group struct {
	Children []Leaf
	Stored   Severity
}

func (l Leaf) stored() Severity  { return l.Stored }
func (g Group) stored() Severity { return g.Stored }

// NodeOf builds the variant for item. Group children must be preloaded;
// deleted children are left out.
func NodeOf(item *models.RepairItem) Node {
	if item.IsGroup {
		g := Group{Stored: storedSeverity(item)}
		for i := range item.Children {
			c := &item.Children[i]
			if c.DeletedAt != nil {
				continue
			}
			g.Children = append(g.Children, leafOf(c))
		}
		return g
	}
	return leafOf(item)
}

func leafOf(item *models.RepairItem) Leaf {
	l := Leaf{Stored: storedSeverity(item)}
	for _, f := range item.Findings {
		l.Findings = append(l.Findings, Severity(f.Severity))
	}
	return l
}

func storedSeverity(item *models.RepairItem) Severity {
	if item.Severity == nil {
		return SeverityNone
	}
	return Severity(*item.Severity)
}

// DeriveSeverity returns red, amber or none for n. Red beats amber beats
// nothing; a group stops scanning at its first red child. When no finding
// qualifies the node's stored red or amber severity is used.
func DeriveSeverity(n Node) Severity {
	found := SeverityNone
	switch n := n.(type) {
	case Leaf:
		found = worst(n.Findings)
	case Group:
		for _, c := range n.Children {
			s := worst(c.Findings)
			if s == SeverityRed {
				found = SeverityRed
				break
			}
			if s == SeverityAmber {
				found = SeverityAmber
			}
		}
	}
	if found != SeverityNone {
		return found
	}
	if s := n.stored(); s == SeverityRed || s == SeverityAmber {
		return s
	}
	return SeverityNone
}

func worst(severities []Severity) Severity {
	found := SeverityNone
	for _, s := range severities {
		switch s {
		case SeverityRed:
			return SeverityRed
		case SeverityAmber:
			found = SeverityAmber
		}
	}
	return found
}

func validSeverity(s string) bool {
	switch Severity(s) {
	case SeverityRed, SeverityAmber, SeverityGreen:
		return true
	}
	return false
}
