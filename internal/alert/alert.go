// Package alert e-mails a summary of runs that did not complete cleanly.
package alert

import (
	"fmt"
	"log"
	"strings"

	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/task"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender is the part of the SendGrid client the alerter needs.
type Sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type Config struct {
	APIKey      string
	FromName    string
	FromAddress string
	To          string
}

// Enabled reports whether enough is configured to send anything.
func (c Config) Enabled() bool {
	return c.APIKey != "" && c.To != ""
}

// FailureAlerter sends one e-mail per run that ended with failed, skipped or
// unresolved tasks.
type FailureAlerter struct {
	sender Sender
	from   *mail.Email
	to     *mail.Email
}

func NewFailureAlerter(cfg Config) *FailureAlerter {
	return NewFailureAlerterWithSender(cfg, sendgrid.NewSendClient(cfg.APIKey))
}

func NewFailureAlerterWithSender(cfg Config, sender Sender) *FailureAlerter {
	return &FailureAlerter{
		sender: sender,
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
		to:     mail.NewEmail("", cfg.To),
	}
}

func (a *FailureAlerter) OnStateChange(notify.Event) {}

func (a *FailureAlerter) OnRunStarted(notify.RunInfo) {}

func (a *FailureAlerter) OnRunFinished(report notify.RunReport) {
	if !NeedsAlert(report) {
		return
	}

	if err := a.Send(report); err != nil {
		log.Printf("Failed to send alert for run %s: %v", report.RunID, err)
	}
}

func (a *FailureAlerter) Send(report notify.RunReport) error {
	subject, body := Compose(report)
	email := mail.NewSingleEmail(a.from, subject, a.to, body, "")

	response, err := a.sender.Send(email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	log.Printf("Alert for run %s sent to %s (status: %d)", report.RunID, a.to.Address, response.StatusCode)
	return nil
}

func NeedsAlert(report notify.RunReport) bool {
	return len(report.Failed) > 0 || len(report.Skipped) > 0 || len(report.Unresolved) > 0
}

// Compose renders the subject and plain text body of an alert.
func Compose(report notify.RunReport) (string, string) {
	subject := fmt.Sprintf("nexdag run %s %s: %d failed, %d skipped",
		shortID(report.RunID), report.Outcome, len(report.Failed), len(report.Skipped))

	details := make(map[string]task.Detail, len(report.Details))
	for _, d := range report.Details {
		details[d.ID] = d
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished as %s after %s.\n", report.RunID, report.Outcome, report.Duration())
	fmt.Fprintf(&b, "Tasks: %d total, %d completed, %d failed, %d skipped.\n",
		report.Stats.Total, report.Stats.Completed, report.Stats.Failed, report.Stats.Skipped)

	if len(report.Failed) > 0 {
		b.WriteString("\nFailed:\n")
		for _, id := range report.Failed {
			d := details[id]
			fmt.Fprintf(&b, "  - %s (%s), %d attempts\n", id, d.Name, d.RetryCount)
		}
	}

	if len(report.Skipped) > 0 {
		b.WriteString("\nSkipped:\n")
		for _, id := range report.Skipped {
			d := details[id]
			line := fmt.Sprintf("  - %s, prerequisite %s did not complete", id, d.SkippedDueTo)
			if d.SkipRootCause != "" && d.SkipRootCause != d.SkippedDueTo {
				line += fmt.Sprintf(" (root cause %s)", d.SkipRootCause)
			}
			b.WriteString(line + "\n")
		}
	}

	if len(report.Unresolved) > 0 {
		fmt.Fprintf(&b, "\nUnresolved: %s\n", strings.Join(report.Unresolved, ", "))
	}

	return subject, b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
