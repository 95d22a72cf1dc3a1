package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type SlackService struct {
	logger     *logrus.Logger
	webhookURL string
	client     *http.Client
}

type SlackMessage struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Text   string  `json:"text,omitempty"`
	Fields []Field `json:"fields,omitempty"`
	Footer string  `json:"footer,omitempty"`
	Ts     int64   `json:"ts,omitempty"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackService falls back to SLACK_WEBHOOK_URL when webhookURL is empty.
func NewSlackService(logger *logrus.Logger, webhookURL string) (*SlackService, error) {
	if webhookURL == "" {
		webhookURL = os.Getenv("SLACK_WEBHOOK_URL")
	}
	if webhookURL == "" {
		return nil, fmt.Errorf("SLACK_WEBHOOK_URL environment variable is not set")
	}

	return &SlackService{
		logger:     logger,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// OnEvent lets the Slack service subscribe to the registration Publisher.
func (s *SlackService) OnEvent(ctx context.Context, event types.RegistrationEvent) error {
	if s == nil {
		return nil
	}
	return s.SendSlackMessage(ctx, formatRegistrationEvent(event))
}

func formatRegistrationEvent(event types.RegistrationEvent) *SlackMessage {
	app := event.Application
	title := cases.Title(language.English).String(app.Name)
	if title == "" {
		title = app.ID
	}

	var (
		text  string
		color string
	)
	switch event.Type {
	case types.EventRegistered:
		text = fmt.Sprintf("🚀 New application registered: %s", title)
		color = "good"
	case types.EventDeleteRegistration:
		text = fmt.Sprintf("🗑️ Application registration removed: %s", title)
		color = "warning"
	default:
		text = fmt.Sprintf("ℹ️ Application event for %s", title)
		color = "#808080"
	}

	status := app.Status
	if !status.IsSet() {
		status = types.StatusUnknown
	}
	if status == types.StatusDown {
		color = "danger"
	}

	fields := []Field{
		{
			Title: "Application ID",
			Value: app.ID,
			Short: true,
		},
		{
			Title: "Status",
			Value: string(status),
			Short: true,
		},
		{
			Title: "Endpoint",
			Value: app.BaseURL(),
			Short: false,
		},
	}

	if app.HealthURL != "" {
		fields = append(fields, Field{
			Title: "Health",
			Value: fmt.Sprintf("<%s|Health Check>", app.HealthURL),
			Short: false,
		})
	}

	return &SlackMessage{
		Text: text,
		Attachments: []Attachment{
			{
				Color:  color,
				Fields: fields,
				Footer: fmt.Sprintf("Event: %s | %s",
					event.ID.String(),
					event.OccurredAt.Format("Mon, 02 Jan 2006 15:04:05 MST")),
				Ts: event.OccurredAt.Unix(),
			},
		},
	}
}

func (s *SlackService) SendSlackMessage(ctx context.Context, message *SlackMessage) error {
	if s.webhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	jsonMessage, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("error marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonMessage))
	if err != nil {
		return fmt.Errorf("error building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned non-200 status code: %d", resp.StatusCode)
	}

	s.logger.Debug("Successfully sent message to Slack")
	return nil
}
