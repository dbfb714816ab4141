package automation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	emailScanNamespace = "email-scan"
	emailScanLookback  = 6 * time.Hour
	emailScanLimit     = 25
)

// EmailScanJob sweeps the shared inbox for messages that smell like
// deal movement, runs each through the signal extractor, and posts what
// it finds. Message ids are remembered so a thread is reported once.
type EmailScanJob struct {
	deps Deps
}

func (j *EmailScanJob) Name() string     { return "email-scan" }
func (j *EmailScanJob) Schedule() string { return "@every 4h" }

func (j *EmailScanJob) Run(ctx context.Context) error {
	signals, err := j.deps.Mailbox.ScanForSignals(ctx, time.Now().Add(-emailScanLookback), emailScanLimit)
	if err != nil {
		return fmt.Errorf("email-scan: %w", err)
	}
	for _, sig := range signals {
		id := sig.Message.MessageID
		if id == "" {
			id = fmt.Sprintf("uid-%d", sig.Message.UID)
		}
		done, err := j.deps.State.IsProcessed(emailScanNamespace, id)
		if err != nil {
			return fmt.Errorf("email-scan: %w", err)
		}
		if done {
			continue
		}
		recap := fmt.Sprintf("Email from %s, subject %q:\n%s", sig.Message.From, sig.Message.Subject, sig.Snippet)
		report, err := j.deps.Extractor.Extract(ctx, recap)
		if err != nil {
			return fmt.Errorf("email-scan: extract: %w", err)
		}
		if report.RecordID == "" && len(report.Candidates) == 0 {
			j.deps.logger().Info("email-scan: no deal matched", "subject", sig.Message.Subject)
			if _, err := j.deps.State.MarkProcessed(emailScanNamespace, id); err != nil {
				return fmt.Errorf("email-scan: %w", err)
			}
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, ":email: Signal in mail from %s (%q)\n", sig.Message.From, sig.Message.Subject)
		if report.DealName != "" {
			fmt.Fprintf(&b, "Deal: *%s* (%s confidence)\n", report.DealName, report.Confidence)
		} else {
			fmt.Fprintf(&b, "Possible deals: %s\n", strings.Join(report.Candidates, ", "))
		}
		for _, s := range report.KeySignals {
			fmt.Fprintf(&b, "• %s\n", s)
		}
		if report.Logged {
			b.WriteString("_Logged to the CRM._\n")
		}
		if err := j.deps.post(ctx, b.String()); err != nil {
			return fmt.Errorf("email-scan: %w", err)
		}
		// Marked only after the post lands, so a failed run retries the
		// message next sweep instead of dropping it.
		if _, err := j.deps.State.MarkProcessed(emailScanNamespace, id); err != nil {
			return fmt.Errorf("email-scan: %w", err)
		}
	}
	return nil
}
