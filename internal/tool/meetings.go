package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/dealradar-io/dealradar/internal/calendar"
)

const defaultHoursAhead = 48

// UpcomingMeetingsTool lists calendar events starting soon, optionally
// narrowed to ones that look like prospect meetings.
type UpcomingMeetingsTool struct {
	Calendar *calendar.Client
}

func (t *UpcomingMeetingsTool) Name() string { return "upcoming_meetings" }
func (t *UpcomingMeetingsTool) Description() string {
	return "List upcoming calendar meetings, optionally only ones with prospects"
}
func (t *UpcomingMeetingsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hours_ahead":    map[string]any{"type": "integer", "description": "How far ahead to look, in hours (default 48)"},
			"prospects_only": map[string]any{"type": "boolean", "description": "Only return likely prospect meetings"},
		},
	}
}

func (t *UpcomingMeetingsTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	hours := getIntOr(params, "hours_ahead", defaultHoursAhead)
	if hours < 1 {
		hours = defaultHoursAhead
	}
	window := time.Duration(hours) * time.Hour

	var (
		events []calendar.Event
		err    error
	)
	if getBool(params, "prospects_only") {
		events, err = t.Calendar.ProspectMeetings(ctx, window)
	} else {
		events, err = t.Calendar.UpcomingEvents(ctx, window)
	}
	if err != nil {
		return "", fmt.Errorf("upcoming_meetings: %w", err)
	}

	type meeting struct {
		Summary   string   `json:"summary"`
		Start     string   `json:"start"`
		End       string   `json:"end,omitempty"`
		Organizer string   `json:"organizer,omitempty"`
		Attendees []string `json:"attendees,omitempty"`
	}
	out := make([]meeting, 0, len(events))
	for _, ev := range events {
		m := meeting{
			Summary:   ev.Summary,
			Start:     ev.Start.Format(time.RFC3339),
			Organizer: ev.Organizer,
			Attendees: ev.Attendees,
		}
		if !ev.End.IsZero() {
			m.End = ev.End.Format(time.RFC3339)
		}
		out = append(out, m)
	}
	return marshalJSON(map[string]any{"hours_ahead": hours, "count": len(out), "meetings": out})
}
