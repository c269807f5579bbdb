package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// webhookPoster matches slackapi.PostWebhookContext.
type webhookPoster func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error

// Slack posts messages to a Slack incoming webhook.
type Slack struct {
	url  string
	post webhookPoster
}

// NewSlack returns a Slack destination for the incoming webhook url.
func NewSlack(url string) (*Slack, error) {
	if url == "" {
		return nil, fmt.Errorf("slack: webhook url is required")
	}
	return &Slack{url: url, post: slackapi.PostWebhookContext}, nil
}

func (s *Slack) Name() string { return "slack" }

// Post sends msg as a single attachment.
func (s *Slack) Post(ctx context.Context, msg Message) error {
	return s.post(ctx, s.url, buildWebhookMessage(msg))
}

func buildWebhookMessage(msg Message) *slackapi.WebhookMessage {
	att := slackapi.Attachment{
		Color:    msg.Color,
		Title:    msg.Title,
		Text:     msg.Body,
		Fallback: msg.Title,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return &slackapi.WebhookMessage{
		Text:        msg.Title,
		Attachments: []slackapi.Attachment{att},
	}
}
