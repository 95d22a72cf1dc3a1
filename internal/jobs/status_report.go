package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/0xPuncker/batch-registry/internal/notifications"
	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

const StatusReportJobName = "registration-report"

// SlackSender is satisfied by *notifications.SlackService.
type SlackSender interface {
	SendSlackMessage(ctx context.Context, message *notifications.SlackMessage) error
}

// StatusReportJob summarizes the registered applications by status, in the
// log and, when a sender is configured, on Slack.
type StatusReportJob struct {
	registrations Registrations
	slack         SlackSender
	logger        *logrus.Logger
}

func NewStatusReportJob(registrations Registrations, slack SlackSender, logger *logrus.Logger) *StatusReportJob {
	return &StatusReportJob{
		registrations: registrations,
		slack:         slack,
		logger:        logger,
	}
}

func (j *StatusReportJob) Name() string {
	return StatusReportJobName
}

func (j *StatusReportJob) Run(ctx context.Context, params map[string]string) error {
	apps, err := j.registrations.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list applications: %w", err)
	}

	report := summarize(apps)
	j.logger.WithFields(logrus.Fields{
		"total":   report.total,
		"up":      report.counts[types.StatusUp],
		"down":    report.counts[types.StatusDown],
		"unknown": report.counts[types.StatusUnknown],
	}).Info("Registration status report")

	if j.slack == nil || (params["only_when_down"] == "true" && len(report.down) == 0) {
		return nil
	}

	if err := j.slack.SendSlackMessage(ctx, report.message()); err != nil {
		return fmt.Errorf("failed to send status report: %w", err)
	}
	return nil
}

type statusReport struct {
	total  int
	counts map[types.ApplicationStatus]int
	down   []string
}

func summarize(apps []*types.ClientApplication) statusReport {
	report := statusReport{
		total:  len(apps),
		counts: make(map[types.ApplicationStatus]int),
	}
	for _, app := range apps {
		status := app.Status
		if !status.IsSet() {
			status = types.StatusUnknown
		}
		report.counts[status]++
		if status == types.StatusDown {
			report.down = append(report.down, app.String())
		}
	}
	sort.Strings(report.down)
	return report
}

func (r statusReport) message() *notifications.SlackMessage {
	color := "good"
	if len(r.down) > 0 {
		color = "danger"
	}

	fields := []notifications.Field{
		{Title: "Registered", Value: fmt.Sprintf("%d", r.total), Short: true},
		{Title: "UP", Value: fmt.Sprintf("%d", r.counts[types.StatusUp]), Short: true},
		{Title: "DOWN", Value: fmt.Sprintf("%d", r.counts[types.StatusDown]), Short: true},
		{Title: "UNKNOWN", Value: fmt.Sprintf("%d", r.counts[types.StatusUnknown]), Short: true},
	}
	if len(r.down) > 0 {
		fields = append(fields, notifications.Field{
			Title: "Down applications",
			Value: strings.Join(r.down, "\n"),
		})
	}

	return &notifications.SlackMessage{
		Text: "📊 Batch client registration report",
		Attachments: []notifications.Attachment{
			{
				Color:  color,
				Fields: fields,
			},
		},
	}
}
