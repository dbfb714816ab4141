// Package automation holds the scheduled jobs that watch the pipeline
// and post to the team channel without being asked.
package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/dealradar-io/dealradar/internal/agent"
	"github.com/dealradar-io/dealradar/internal/calendar"
	"github.com/dealradar-io/dealradar/internal/connector"
	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/internal/mailbox"
	"github.com/dealradar-io/dealradar/internal/plan"
	"github.com/dealradar-io/dealradar/internal/scheduler"
	"github.com/dealradar-io/dealradar/internal/state"
)

// SignalSource is the slice of the mailbox client the email scan needs.
type SignalSource interface {
	ScanForSignals(ctx context.Context, since time.Time, limit int) ([]mailbox.Signal, error)
}

// Deps bundles everything the jobs draw on. Nil collaborators drop the
// jobs that need them.
type Deps struct {
	CRM      *crm.Client
	Plan     *plan.Client
	Calendar *calendar.Client
	Mailbox  SignalSource
	State    *state.Store
	Poster   connector.Poster

	Extractor  *agent.SignalExtractor
	Researcher *agent.Agent
	Planner    *agent.Agent

	// Channel receives all automation posts.
	Channel string
	Logger  *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) post(ctx context.Context, content string) error {
	return d.Poster.Post(ctx, d.Channel, content)
}

// Jobs builds every job the available collaborators support.
func Jobs(d Deps) []scheduler.Job {
	var jobs []scheduler.Job
	if d.CRM != nil && d.Poster != nil {
		jobs = append(jobs,
			&ForecastJob{d},
			&HygieneJob{d},
			&CapacityJob{d},
		)
		if d.State != nil {
			jobs = append(jobs, &MovementJob{d})
		}
		if d.Plan != nil {
			jobs = append(jobs, &PlanSyncJob{d})
			if d.State != nil && d.Planner != nil {
				jobs = append(jobs, &HandoffJob{d})
			}
		}
	}
	if d.Mailbox != nil && d.Extractor != nil && d.State != nil && d.Poster != nil {
		jobs = append(jobs, &EmailScanJob{d})
	}
	if d.Calendar != nil && d.Researcher != nil && d.State != nil && d.Poster != nil {
		jobs = append(jobs, &MeetingNudgeJob{d})
	}
	return jobs
}
