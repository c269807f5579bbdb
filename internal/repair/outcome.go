package repair

import "github.com/garagehq/vhc/internal/models"

// Outcome is the visible lifecycle state of a repair item.
type Outcome string

const (
	Incomplete Outcome = "incomplete"
	Ready      Outcome = "ready"
	Authorised Outcome = "authorised"
	Deferred   Outcome = "deferred"
	Declined   Outcome = "declined"
	Deleted    Outcome = "deleted"
)

// Terminal reports whether o no longer blocks closure.
func (o Outcome) Terminal() bool {
	switch o {
	case Authorised, Deferred, Declined, Deleted:
		return true
	}
	return false
}

// Outcome sources.
const (
	SourceManual = "manual"
	SourceOnline = "online"
)

// Labour and parts progress values.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"
)

// Action is a staff-invoked outcome transition.
type Action string

const (
	ActionAuthorise Action = "authorise"
	ActionDefer     Action = "defer"
	ActionDecline   Action = "decline"
	ActionDelete    Action = "delete"
	ActionReset     Action = "reset"
)

// ValidTransitions maps each staff action to the outcomes it may start from.
var ValidTransitions = map[Action][]Outcome{
	ActionAuthorise: {Ready},
	ActionDefer:     {Ready},
	ActionDecline:   {Ready},
	ActionDelete:    {Incomplete, Ready},
	ActionReset:     {Authorised, Deferred, Declined},
}

// isValidTransition checks whether action may be applied to an item in from.
func isValidTransition(action Action, from Outcome) bool {
	for _, o := range ValidTransitions[action] {
		if o == from {
			return true
		}
	}
	return false
}

// ComputeOutcome maps an item's stored fields to its outcome. Priority:
// deleted, explicit outcome, legacy customer approval, then readiness from
// labour and parts. A group's readiness comes from its live children.
func ComputeOutcome(item *models.RepairItem) Outcome {
	if item.DeletedAt != nil {
		return Deleted
	}
	if item.OutcomeStatus != nil && *item.OutcomeStatus != "" {
		return Outcome(*item.OutcomeStatus)
	}
	if item.CustomerApproved != nil {
		if *item.CustomerApproved {
			return Authorised
		}
		return Declined
	}

	if item.IsGroup {
		live := 0
		for i := range item.Children {
			c := &item.Children[i]
			if c.DeletedAt != nil {
				continue
			}
			live++
			if !workSatisfied(c) {
				return Incomplete
			}
		}
		if live > 0 {
			return Ready
		}
	}
	if workSatisfied(item) {
		return Ready
	}
	return Incomplete
}

func workSatisfied(item *models.RepairItem) bool {
	labour := item.LabourStatus == StatusComplete || item.NoLabourRequired
	parts := item.PartsStatus == StatusComplete || item.NoPartsRequired
	return labour && parts
}

func validProgress(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusComplete:
		return true
	}
	return false
}
