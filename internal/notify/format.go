package notify

import (
	"fmt"

	"github.com/garagehq/vhc/internal/events"
)

// Color constants for message severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
)

// Message is a chat-platform-neutral notification.
type Message struct {
	Title  string
	Body   string
	Color  string
	Fields []Field
}

// Field is a key-value pair shown under a message.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Format builds the message for e. It reports false for events staff are
// not notified about: manual outcome changes and closures, which staff
// made themselves.
func Format(e events.Event) (Message, bool) {
	switch e.Type {
	case events.OutcomeChanged:
		if e.Source != "online" {
			return Message{}, false
		}
		return formatCustomerDecision(e), true
	case events.Signed:
		return Message{
			Title:  "Customer signed the authorisation",
			Body:   fmt.Sprintf("Health check %s is ready for work.", e.HealthCheckID),
			Color:  ColorSuccess,
			Fields: []Field{healthCheckField(e)},
		}, true
	case events.DeferralDue:
		return Message{
			Title: "Deferred work is due",
			Body:  fmt.Sprintf("%s deferred on health check %s %s due for follow-up.", items(len(e.RepairItemIDs)), e.HealthCheckID, isAre(len(e.RepairItemIDs))),
			Color: ColorInfo,
			Fields: []Field{
				healthCheckField(e),
				{Name: "Value", Value: e.Total.StringFixed(2), Short: true},
			},
		}, true
	}
	return Message{}, false
}

func formatCustomerDecision(e events.Event) Message {
	verb, color := "approved", ColorSuccess
	if e.Outcome == "declined" {
		verb, color = "declined", ColorWarning
	}
	return Message{
		Title: fmt.Sprintf("Customer %s %s", verb, items(len(e.RepairItemIDs))),
		Body:  fmt.Sprintf("Decision recorded online for health check %s.", e.HealthCheckID),
		Color: color,
		Fields: []Field{
			healthCheckField(e),
			{Name: "Value", Value: e.Total.StringFixed(2), Short: true},
		},
	}
}

func healthCheckField(e events.Event) Field {
	return Field{Name: "Health check", Value: e.HealthCheckID, Short: true}
}

func items(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d items", n)
}

func isAre(n int) string {
	if n == 1 {
		return "is"
	}
	return "are"
}
