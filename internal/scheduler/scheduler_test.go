package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeJob struct {
	name     string
	schedule string
	err      error
	panics   bool
	runs     int
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }
func (j *fakeJob) Run(context.Context) error {
	j.runs++
	if j.panics {
		panic("boom")
	}
	return j.err
}

func TestRegister(t *testing.T) {
	s := New(nil)
	if err := s.Register(&fakeJob{name: "forecast", schedule: "0 9 * * MON"}, ""); err != nil {
		t.Fatal(err)
	}
	if !s.Has("forecast") || s.Len() != 1 {
		t.Error("job not registered")
	}

	if err := s.Register(&fakeJob{name: "forecast", schedule: "@hourly"}, ""); err == nil {
		t.Error("expected error for duplicate name")
	}
	if err := s.Register(&fakeJob{name: "bad", schedule: "not cron"}, ""); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestRegister_ScheduleOverride(t *testing.T) {
	s := New(nil)
	if err := s.Register(&fakeJob{name: "movement", schedule: "@every 15m"}, "@every 5m"); err != nil {
		t.Fatal(err)
	}
	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].Schedule != "@every 5m" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestRunNow_RecordsOutcome(t *testing.T) {
	s := New(nil)
	good := &fakeJob{name: "good", schedule: "@hourly"}
	bad := &fakeJob{name: "bad", schedule: "@hourly", err: errors.New("upstream 503")}
	for _, j := range []*fakeJob{good, bad} {
		if err := s.Register(j, ""); err != nil {
			t.Fatal(err)
		}
	}
	ctx := context.Background()

	if err := s.RunNow(ctx, "good"); err != nil {
		t.Errorf("good run: %v", err)
	}
	if err := s.RunNow(ctx, "bad"); err == nil {
		t.Error("expected error from failing job")
	}
	if good.runs != 1 || bad.runs != 1 {
		t.Errorf("runs = %d/%d", good.runs, bad.runs)
	}

	jobs := s.Jobs()
	// Sorted by name: bad first.
	if jobs[0].Name != "bad" || jobs[0].LastError == "" || jobs[0].LastRun.IsZero() {
		t.Errorf("bad status = %+v", jobs[0])
	}
	if jobs[1].Name != "good" || jobs[1].LastError != "" || jobs[1].Runs != 1 {
		t.Errorf("good status = %+v", jobs[1])
	}
}

func TestRunNow_ErrorClearsOnSuccess(t *testing.T) {
	s := New(nil)
	j := &fakeJob{name: "flaky", schedule: "@hourly", err: errors.New("transient")}
	if err := s.Register(j, ""); err != nil {
		t.Fatal(err)
	}
	s.RunNow(context.Background(), "flaky")
	j.err = nil
	s.RunNow(context.Background(), "flaky")

	jobs := s.Jobs()
	if jobs[0].LastError != "" || jobs[0].Runs != 2 {
		t.Errorf("status = %+v", jobs[0])
	}
}

func TestRunNow_PanicBecomesError(t *testing.T) {
	s := New(nil)
	if err := s.Register(&fakeJob{name: "wild", schedule: "@hourly", panics: true}, ""); err != nil {
		t.Fatal(err)
	}
	err := s.RunNow(context.Background(), "wild")
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Errorf("err = %v", err)
	}
}

func TestRunNow_UnknownJob(t *testing.T) {
	s := New(nil)
	if err := s.RunNow(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown job")
	}
}
