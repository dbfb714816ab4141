package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work. Schedule returns the job's default
// cron expression; config may override it at registration.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// runTimeout bounds a single job run so a stuck collaborator cannot
// wedge the cron goroutine.
const runTimeout = 10 * time.Minute

// Status is the bookkeeping view of one registered job.
type Status struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitzero"`
}

// Scheduler runs registered jobs on their cron schedules.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]Job
	entries map[string]cron.EntryID
	status  map[string]*Status
	logger  *slog.Logger
}

// New creates an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		status:  make(map[string]*Status),
		logger:  logger,
	}
}

// Register adds a job. A non-empty scheduleOverride replaces the job's
// default cron expression.
func (s *Scheduler) Register(job Job, scheduleOverride string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	schedule := job.Schedule()
	if scheduleOverride != "" {
		schedule = scheduleOverride
	}

	id, err := s.cron.AddFunc(schedule, func() { s.runJob(name) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", schedule, name, err)
	}

	s.jobs[name] = job
	s.entries[name] = id
	s.status[name] = &Status{Name: name, Schedule: schedule}
	s.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

// Start begins the cron loop and blocks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.Len())

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	// Let in-flight jobs drain before returning.
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runJob(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if err := s.RunNow(ctx, name); err != nil {
		s.logger.Error("job failed", "job", name, "error", err)
	}
}

// RunNow executes a job immediately, outside its schedule, and records
// the outcome. A panicking job is caught and reported as an error.
func (s *Scheduler) RunNow(ctx context.Context, name string) (err error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", name, rec)
		}
		s.record(name, err)
	}()

	s.logger.Info("job starting", "job", name)
	start := time.Now()
	err = job.Run(ctx)
	s.logger.Info("job finished", "job", name, "duration", time.Since(start), "error", err)
	return err
}

func (s *Scheduler) record(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[name]
	if st == nil {
		return
	}
	st.Runs++
	st.LastRun = time.Now()
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
}

// Jobs returns the status of every registered job, sorted by name.
func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.status))
	for name, st := range s.status {
		view := *st
		if id, ok := s.entries[name]; ok {
			view.NextRun = s.cron.Entry(id).Next
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether a job name is registered.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
