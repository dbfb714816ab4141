package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/dealradar-io/dealradar/internal/mailbox"
)

const (
	defaultHoursBack  = 24
	defaultScanLimit  = 20
)

// SignalSource scans a mailbox for messages that look like deal
// signals. The mailbox client satisfies it; tests stub it because an
// IMAP session cannot be faked with httptest.
type SignalSource interface {
	ScanForSignals(ctx context.Context, since time.Time, limit int) ([]mailbox.Signal, error)
}

// RecentEmailSignalsTool reports recent inbound email that carries
// buying-signal language.
type RecentEmailSignalsTool struct {
	Mailbox SignalSource
}

func (t *RecentEmailSignalsTool) Name() string { return "recent_email_signals" }
func (t *RecentEmailSignalsTool) Description() string {
	return "Scan recent inbound email for buying-signal language (budget, contract, timeline, ...)"
}
func (t *RecentEmailSignalsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hours_back": map[string]any{"type": "integer", "description": "How far back to scan, in hours (default 24)"},
			"limit":      map[string]any{"type": "integer", "description": "Maximum messages to inspect (default 20)"},
		},
	}
}

func (t *RecentEmailSignalsTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	hours := getIntOr(params, "hours_back", defaultHoursBack)
	if hours < 1 {
		hours = defaultHoursBack
	}
	limit := getIntOr(params, "limit", defaultScanLimit)
	if limit < 1 {
		limit = defaultScanLimit
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	signals, err := t.Mailbox.ScanForSignals(ctx, since, limit)
	if err != nil {
		return "", fmt.Errorf("recent_email_signals: %w", err)
	}

	type hit struct {
		From     string   `json:"from"`
		Subject  string   `json:"subject"`
		Date     string   `json:"date,omitempty"`
		Keywords []string `json:"keywords"`
		Snippet  string   `json:"snippet,omitempty"`
	}
	out := make([]hit, 0, len(signals))
	for _, s := range signals {
		h := hit{
			From:     s.Message.From,
			Subject:  s.Message.Subject,
			Keywords: s.Keywords,
			Snippet:  s.Snippet,
		}
		if !s.Message.Date.IsZero() {
			h.Date = s.Message.Date.Format(time.RFC3339)
		}
		out = append(out, h)
	}
	return marshalJSON(map[string]any{"hours_back": hours, "count": len(out), "signals": out})
}
