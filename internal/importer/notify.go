package importer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Notifier reports a run that had failed days. Implementations must not
// block the run longer than necessary; errors are logged by the caller,
// never escalated.
type Notifier interface {
	NotifyFailure(ctx context.Context, summary *Summary) error
}

// MailNotifier sends a plain-text run summary over SMTP.
type MailNotifier struct {
	Addr string // host:port
	From string
	To   []string
}

func (m *MailNotifier) NotifyFailure(_ context.Context, summary *Summary) error {
	if m.Addr == "" || len(m.To) == 0 {
		return fmt.Errorf("mail notifier not configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&b, "Subject: fire weather import: %d of %d days failed\r\n",
		summary.DaysErrored, summary.DaysAttempted)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "Run %s finished at %s (%s elapsed).\r\n\r\n",
		summary.RunID,
		summary.FinishedAt.Format(time.RFC3339),
		summary.Elapsed().Round(time.Second))
	fmt.Fprintf(&b, "Days: %d attempted, %d succeeded, %d errored\r\n",
		summary.DaysAttempted, summary.DaysSucceeded, summary.DaysErrored)
	fmt.Fprintf(&b, "Observations: %d inserted, %d duplicates skipped, %d row errors\r\n\r\n",
		summary.ObservationsInserted, summary.DuplicatesSkipped, summary.RowErrors)

	b.WriteString("Failed days:\r\n")
	for _, day := range summary.Days {
		if day.Err == nil {
			continue
		}
		fmt.Fprintf(&b, "  %s: %v\r\n", day.Date.Format("2006-01-02"), day.Err)
	}

	if err := smtp.SendMail(m.Addr, nil, m.From, m.To, []byte(b.String())); err != nil {
		return fmt.Errorf("send failure mail: %w", err)
	}
	return nil
}
