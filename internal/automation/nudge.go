package automation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	nudgeNamespace = "meeting-nudge"
	nudgeWindow    = 2 * time.Hour
)

// MeetingNudgeJob looks a couple of hours ahead on the calendar and, for
// each upcoming prospect meeting, posts a short research brief so
// nobody walks in cold. Event ids are remembered so a meeting is
// briefed once.
type MeetingNudgeJob struct {
	deps Deps
}

func (j *MeetingNudgeJob) Name() string     { return "meeting-nudge" }
func (j *MeetingNudgeJob) Schedule() string { return "*/30 7-19 * * *" }

func (j *MeetingNudgeJob) Run(ctx context.Context) error {
	meetings, err := j.deps.Calendar.ProspectMeetings(ctx, nudgeWindow)
	if err != nil {
		return fmt.Errorf("meeting-nudge: %w", err)
	}
	for _, ev := range meetings {
		done, err := j.deps.State.IsProcessed(nudgeNamespace, ev.ID)
		if err != nil {
			return fmt.Errorf("meeting-nudge: %w", err)
		}
		if done {
			continue
		}
		prompt := fmt.Sprintf(
			"Prepare a short pre-meeting brief. Meeting: %q at %s with %s. Cover who they are, recent news, and our deal history with them.",
			ev.Summary, ev.Start.Format("15:04"), strings.Join(ev.Attendees, ", "))
		res, err := j.deps.Researcher.Run(ctx, prompt)
		if err != nil {
			return fmt.Errorf("meeting-nudge: research: %w", err)
		}
		content := fmt.Sprintf(":calendar: *%s* at %s\n%s",
			ev.Summary, ev.Start.Format("15:04"), j.deps.Researcher.Reply(res))
		if err := j.deps.post(ctx, content); err != nil {
			return fmt.Errorf("meeting-nudge: %w", err)
		}
		// Marked only after the post lands, so a failed run still nudges
		// on the next tick.
		if _, err := j.deps.State.MarkProcessed(nudgeNamespace, ev.ID); err != nil {
			return fmt.Errorf("meeting-nudge: %w", err)
		}
		j.deps.logger().Info("meeting-nudge: brief posted", "meeting", ev.Summary)
	}
	return nil
}
