package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dealradar-io/dealradar/internal/agent"
	"github.com/dealradar-io/dealradar/internal/calendar"
	"github.com/dealradar-io/dealradar/internal/crm"
	"github.com/dealradar-io/dealradar/internal/mailbox"
	"github.com/dealradar-io/dealradar/internal/plan"
	"github.com/dealradar-io/dealradar/internal/state"
	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// capturePoster records posts; failures makes the next N posts error,
// for exercising retry behavior.
type capturePoster struct {
	mu       sync.Mutex
	failures int
	channels []string
	posts    []string
}

func (p *capturePoster) Post(_ context.Context, channel, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("slack: send message: rate limited")
	}
	p.channels = append(p.channels, channel)
	p.posts = append(p.posts, content)
	return nil
}

func (p *capturePoster) last(t *testing.T) string {
	t.Helper()
	if len(p.posts) == 0 {
		t.Fatal("expected a post")
	}
	return p.posts[len(p.posts)-1]
}

type stubProvider struct {
	responses []*protocol.ChatResponse
	err       error
	calls     int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Chat(_ context.Context, _ protocol.ChatRequest) (*protocol.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func doneWith(text string) *stubProvider {
	return &stubProvider{responses: []*protocol.ChatResponse{
		{Content: text, Stop: protocol.StopDone},
	}}
}

type stubSource struct {
	signals []mailbox.Signal
}

func (s *stubSource) ScanForSignals(context.Context, time.Time, int) ([]mailbox.Signal, error) {
	return s.signals, nil
}

func crmRecord(id, name, stage string, prob any, closeDate, updatedAt string) map[string]any {
	values := map[string]any{
		"name": []map[string]any{{"value": name}},
	}
	if stage != "" {
		values["stage"] = []map[string]any{{"status": map[string]any{"title": stage}}}
	}
	if prob != nil {
		values["probability"] = []map[string]any{{"value": prob}}
	}
	if closeDate != "" {
		values["close_date"] = []map[string]any{{"value": closeDate}}
	}
	if updatedAt != "" {
		values["updated_at"] = []map[string]any{{"value": updatedAt}}
	}
	return map[string]any{
		"id":     map[string]any{"record_id": id},
		"values": values,
	}
}

// crmState lets a test mutate the record list between job runs.
type crmState struct {
	mu      sync.Mutex
	records []map[string]any
}

func (s *crmState) set(records ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

func newCRMServer(t *testing.T, st *crmState) *crm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st.mu.Lock()
		defer st.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/records/query"):
			json.NewEncoder(w).Encode(map[string]any{"data": st.records})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/records/"):
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			for _, rec := range st.records {
				if rec["id"].(map[string]any)["record_id"] == id {
					json.NewEncoder(w).Encode(map[string]any{"data": rec})
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)
	return crm.New("test-key", crm.WithBaseURL(srv.URL))
}

// planServer is an in-memory document store speaking just enough of the
// wire format for upserts and handoff marking.
type planServer struct {
	mu      sync.Mutex
	pages   map[string]map[string]any // page id -> wire page
	created int
	patched int
}

type propIn struct {
	Title []struct {
		Text struct {
			Content string `json:"content"`
		} `json:"text"`
	} `json:"title"`
	RichText []struct {
		Text struct {
			Content string `json:"content"`
		} `json:"text"`
	} `json:"rich_text"`
	Select *struct {
		Name string `json:"name"`
	} `json:"select"`
}

func firstText(parts []struct {
	Text struct {
		Content string `json:"content"`
	} `json:"text"`
}) string {
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text.Content
}

func wirePlanPage(id, title, dealID, status string) map[string]any {
	return map[string]any{
		"id": id,
		"properties": map[string]any{
			"Name":   map[string]any{"title": []map[string]any{{"plain_text": title}}},
			"CRM ID": map[string]any{"rich_text": []map[string]any{{"plain_text": dealID}}},
			"Status": map[string]any{"select": map[string]any{"name": status}},
		},
	}
}

func newPlanServer(t *testing.T) (*plan.Client, *planServer) {
	t.Helper()
	ps := &planServer{pages: make(map[string]map[string]any)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/databases/"):
			var body struct {
				Filter *struct {
					RichText struct {
						Equals string `json:"equals"`
					} `json:"rich_text"`
				} `json:"filter"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			var results []map[string]any
			for _, p := range ps.pages {
				if body.Filter != nil {
					props := p["properties"].(map[string]any)
					fk := props["CRM ID"].(map[string]any)["rich_text"].([]map[string]any)[0]["plain_text"].(string)
					if fk != body.Filter.RichText.Equals {
						continue
					}
				}
				results = append(results, p)
			}
			json.NewEncoder(w).Encode(map[string]any{"results": results, "has_more": false})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/pages":
			var body struct {
				Properties map[string]propIn `json:"properties"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			ps.created++
			id := fmt.Sprintf("page_%d", ps.created)
			status := ""
			if s := body.Properties["Status"].Select; s != nil {
				status = s.Name
			}
			page := wirePlanPage(id,
				firstText(body.Properties["Name"].Title),
				firstText(body.Properties["CRM ID"].RichText),
				status)
			ps.pages[id] = page
			json.NewEncoder(w).Encode(page)
		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/v1/pages/"):
			ps.patched++
			id := strings.TrimPrefix(r.URL.Path, "/v1/pages/")
			json.NewEncoder(w).Encode(ps.pages[id])
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)
	return plan.New("test-key", "db-1", plan.WithBaseURL(srv.URL)), ps
}

func newStateStore(t *testing.T) *state.Store {
	t.Helper()
	st, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestJobs_Composition(t *testing.T) {
	records := &crmState{}
	full := Deps{
		CRM:        newCRMServer(t, records),
		Plan:       plan.New("k", "db"),
		Calendar:   calendar.New("k"),
		Mailbox:    &stubSource{},
		State:      newStateStore(t),
		Poster:     &capturePoster{},
		Extractor:  agent.NewSignalExtractor(doneWith("{}"), agent.Deps{}, false),
		Researcher: agent.NewResearcher(doneWith("ok"), agent.Deps{}),
		Planner:    agent.NewPlanner(doneWith("ok"), agent.Deps{}),
	}
	jobs := Jobs(full)
	names := make(map[string]bool)
	for _, j := range jobs {
		names[j.Name()] = true
	}
	want := []string{"forecast", "hygiene", "capacity", "movement", "plan-sync", "handoff", "email-scan", "meeting-nudge"}
	if len(jobs) != len(want) {
		t.Fatalf("expected %d jobs, got %d", len(want), len(jobs))
	}
	for _, n := range want {
		if !names[n] {
			t.Errorf("missing job %q", n)
		}
	}

	minimal := Deps{CRM: full.CRM, Poster: full.Poster}
	if got := len(Jobs(minimal)); got != 3 {
		t.Errorf("CRM-only deps should yield 3 jobs, got %d", got)
	}
	if got := len(Jobs(Deps{})); got != 0 {
		t.Errorf("empty deps should yield no jobs, got %d", got)
	}
}

func TestForecastJob_Posts(t *testing.T) {
	nextMonth := time.Now().UTC().AddDate(0, 0, 20).Format("2006-01-02")
	now := time.Now().UTC().Format(time.RFC3339)
	records := &crmState{}
	records.set(
		crmRecord("rec_1", "Nike", "Proposal", 60.0, nextMonth, now),
		crmRecord("rec_2", "Acme", "Qualified", 30.0, nextMonth, now),
		crmRecord("rec_3", "Globex", "Won", 100.0, "", now),
	)
	poster := &capturePoster{}
	job := &ForecastJob{Deps{CRM: newCRMServer(t, records), Poster: poster, Channel: "#pipeline"}}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	post := poster.last(t)
	if !strings.Contains(post, "*Weekly forecast*") {
		t.Errorf("missing header: %q", post)
	}
	if !strings.Contains(post, "2 active deals") {
		t.Errorf("won deal should not count as active: %q", post)
	}
	if !strings.Contains(post, "Won this week") || !strings.Contains(post, "Globex") {
		t.Errorf("missing won section: %q", post)
	}
	if poster.channels[0] != "#pipeline" {
		t.Errorf("posted to %q", poster.channels[0])
	}
}

func TestHygieneJob_GroupsByOwner(t *testing.T) {
	old := time.Now().UTC().AddDate(0, 0, -30).Format(time.RFC3339)
	fresh := time.Now().UTC().Format(time.RFC3339)
	records := &crmState{}
	records.set(
		crmRecord("rec_1", "Dusty", "Proposal", 40.0, "", old),
		crmRecord("rec_2", "Active", "Proposal", 40.0, "", fresh),
	)
	poster := &capturePoster{}
	job := &HygieneJob{Deps{CRM: newCRMServer(t, records), Poster: poster}}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	post := poster.last(t)
	if !strings.Contains(post, "Dusty") || strings.Contains(post, "Active") {
		t.Errorf("wrong deals flagged: %q", post)
	}
	if !strings.Contains(post, "unassigned") {
		t.Errorf("ownerless deals should group under unassigned: %q", post)
	}
}

func TestHygieneJob_SilentWhenClean(t *testing.T) {
	records := &crmState{}
	records.set(crmRecord("rec_1", "Fresh", "Proposal", 40.0, "", time.Now().UTC().Format(time.RFC3339)))
	poster := &capturePoster{}
	job := &HygieneJob{Deps{CRM: newCRMServer(t, records), Poster: poster}}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(poster.posts) != 0 {
		t.Errorf("expected silence, got %q", poster.posts)
	}
}

func TestCapacityJob_WarnsOnConflict(t *testing.T) {
	month := time.Now().UTC().AddDate(0, 2, 0)
	day1 := month.Format("2006-01") + "-05"
	day2 := month.Format("2006-01") + "-20"
	records := &crmState{}
	records.set(
		crmRecord("rec_1", "Nike", "Proposal", 80.0, day1, ""),
		crmRecord("rec_2", "Acme", "Proposal", 70.0, day2, ""),
		crmRecord("rec_3", "Longshot", "Qualified", 20.0, day1, ""),
	)
	poster := &capturePoster{}
	job := &CapacityJob{Deps{CRM: newCRMServer(t, records), Poster: poster}}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	post := poster.last(t)
	if !strings.Contains(post, "*Capacity warning*") {
		t.Errorf("missing header: %q", post)
	}
	if !strings.Contains(post, month.Format("2006-01")) {
		t.Errorf("missing month: %q", post)
	}
	if strings.Contains(post, "Longshot") {
		t.Errorf("low-probability deal should not count: %q", post)
	}
}

func TestCapacityJob_SilentWithoutConflict(t *testing.T) {
	records := &crmState{}
	records.set(crmRecord("rec_1", "Nike", "Proposal", 80.0, "2026-10-05", ""))
	poster := &capturePoster{}
	job := &CapacityJob{Deps{CRM: newCRMServer(t, records), Poster: poster}}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(poster.posts) != 0 {
		t.Errorf("expected silence, got %q", poster.posts)
	}
}

func TestMovementJob_SeedsThenDiffs(t *testing.T) {
	records := &crmState{}
	records.set(
		crmRecord("rec_1", "Nike", "Qualified", 40.0, "", ""),
		crmRecord("rec_2", "Acme", "Proposal", 60.0, "", ""),
	)
	poster := &capturePoster{}
	job := &MovementJob{Deps{CRM: newCRMServer(t, records), State: newStateStore(t), Poster: poster}}
	ctx := context.Background()

	// First run only seeds the baseline.
	if err := job.Run(ctx); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	if len(poster.posts) != 0 {
		t.Fatalf("seed run should not post, got %q", poster.posts)
	}

	// Nothing changed, nothing posted.
	if err := job.Run(ctx); err != nil {
		t.Fatalf("quiet run: %v", err)
	}
	if len(poster.posts) != 0 {
		t.Fatalf("unchanged pipeline should not post, got %q", poster.posts)
	}

	records.set(
		crmRecord("rec_1", "Nike", "Proposal", 75.0, "", ""),
		crmRecord("rec_2", "Acme", "Proposal", 65.0, "2026-11-15", ""),
		crmRecord("rec_3", "Initech", "Qualified", 20.0, "", ""),
	)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("diff run: %v", err)
	}
	post := poster.last(t)
	if !strings.Contains(post, "*Pipeline movement*") {
		t.Errorf("missing header: %q", post)
	}
	if !strings.Contains(post, "Qualified → Proposal") {
		t.Errorf("missing stage change: %q", post)
	}
	if !strings.Contains(post, "40% → 75%") {
		t.Errorf("missing probability swing: %q", post)
	}
	if !strings.Contains(post, "New deal: *Initech*") {
		t.Errorf("missing new deal: %q", post)
	}
	if !strings.Contains(post, "*Acme* close date set to Nov 15") {
		t.Errorf("missing close date change: %q", post)
	}
	if strings.Contains(post, "*Acme* probability") {
		t.Errorf("5-point move should not be reported: %q", post)
	}
}

// planningProvider scripts a planner run: one write_production_plan
// call, then a final brief.
func planningProvider(recordID, brief string) *stubProvider {
	return &stubProvider{responses: []*protocol.ChatResponse{
		{Stop: protocol.StopWantsAction, ToolCalls: []protocol.ToolCall{{
			ID:        "call_1",
			Name:      "write_production_plan",
			Arguments: map[string]any{"record_id": recordID},
		}}},
		{Content: brief, Stop: protocol.StopDone},
	}}
}

func TestHandoffJob_HandsOffOnce(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)
	records := &crmState{}
	records.set(
		crmRecord("rec_1", "Nike", "Won", 100.0, "", now),
		crmRecord("rec_2", "Acme", "Proposal", 60.0, "", now),
	)
	crmClient := newCRMServer(t, records)
	planClient, ps := newPlanServer(t)
	prov := planningProvider("rec_1", "Kickoff next week, delivery mid-month.")
	poster := &capturePoster{}
	job := &HandoffJob{Deps{
		CRM:     crmClient,
		Plan:    planClient,
		State:   newStateStore(t),
		Poster:  poster,
		Planner: agent.NewPlanner(prov, agent.Deps{CRM: crmClient, Plan: planClient}),
	}}
	ctx := context.Background()

	if err := job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ps.created != 1 {
		t.Errorf("expected 1 page created, got %d", ps.created)
	}
	if ps.patched != 1 {
		t.Errorf("expected the page marked in progress, got %d patches", ps.patched)
	}
	if len(poster.posts) != 1 {
		t.Fatalf("expected one win post, got %q", poster.posts)
	}
	if !strings.Contains(poster.posts[0], "Nike") || !strings.Contains(poster.posts[0], "Kickoff next week") {
		t.Errorf("post missing win or brief: %q", poster.posts[0])
	}

	// Second run sees the same win and skips it.
	if err := job.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if ps.created != 1 || len(poster.posts) != 1 {
		t.Errorf("win handled twice: created=%d posts=%d", ps.created, len(poster.posts))
	}
}

func TestHandoffJob_RetriesAfterFailedPost(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)
	records := &crmState{}
	records.set(crmRecord("rec_1", "Nike", "Won", 100.0, "", now))
	crmClient := newCRMServer(t, records)
	planClient, ps := newPlanServer(t)
	prov := planningProvider("rec_1", "Kickoff next week.")
	poster := &capturePoster{failures: 1}
	job := &HandoffJob{Deps{
		CRM:     crmClient,
		Plan:    planClient,
		State:   newStateStore(t),
		Poster:  poster,
		Planner: agent.NewPlanner(prov, agent.Deps{CRM: crmClient, Plan: planClient}),
	}}
	ctx := context.Background()

	if err := job.Run(ctx); err == nil {
		t.Fatal("expected the failed post to surface as an error")
	}
	if len(poster.posts) != 0 {
		t.Fatalf("nothing should have landed, got %q", poster.posts)
	}

	// The win was not marked processed, so the next tick picks it up.
	if err := job.Run(ctx); err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if len(poster.posts) != 1 || !strings.Contains(poster.posts[0], "Nike") {
		t.Fatalf("win should be announced after recovery, got %q", poster.posts)
	}
	if ps.created != 1 {
		t.Errorf("retry should reuse the page, got %d created", ps.created)
	}
}

func TestHandoffJob_FallsBackWhenPlannerFails(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)
	records := &crmState{}
	records.set(crmRecord("rec_1", "Nike", "Won", 100.0, "", now))
	crmClient := newCRMServer(t, records)
	planClient, ps := newPlanServer(t)
	prov := &stubProvider{err: fmt.Errorf("model unavailable")}
	poster := &capturePoster{}
	job := &HandoffJob{Deps{
		CRM:     crmClient,
		Plan:    planClient,
		State:   newStateStore(t),
		Poster:  poster,
		Planner: agent.NewPlanner(prov, agent.Deps{CRM: crmClient, Plan: planClient}),
	}}
	ctx := context.Background()

	if err := job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	post := poster.last(t)
	if !strings.Contains(post, "Nike") || !strings.Contains(post, "manually") {
		t.Errorf("expected a manual-plan fallback, got %q", post)
	}
	if ps.created != 0 {
		t.Errorf("no page should exist, got %d created", ps.created)
	}

	// The win is still marked handled; no duplicate announcement.
	if err := job.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(poster.posts) != 1 {
		t.Errorf("fallback announced twice: %q", poster.posts)
	}
}

func TestPlanSyncJob_CreatesAndRefreshes(t *testing.T) {
	soon := time.Now().UTC().AddDate(0, 0, 30).Format("2006-01-02")
	records := &crmState{}
	records.set(
		crmRecord("rec_1", "Nike", "Proposal", 80.0, soon, ""),
		crmRecord("rec_2", "Acme", "Proposal", 70.0, soon, ""),
		crmRecord("rec_3", "Longshot", "Qualified", 20.0, soon, ""),
		crmRecord("rec_4", "Dropped", "Lost", 0.0, "", ""),
		crmRecord("rec_5", "Sunk", "Lost", 0.0, "", ""),
	)
	planClient, ps := newPlanServer(t)
	ps.pages["page_acme"] = wirePlanPage("page_acme", "Acme", "rec_2", "Planned")
	ps.pages["page_sunk"] = wirePlanPage("page_sunk", "Sunk", "rec_5", "Planned")
	poster := &capturePoster{}
	job := &PlanSyncJob{Deps{CRM: newCRMServer(t, records), Plan: planClient, Poster: poster}}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Nike gets a page; Longshot is too unlikely; Dropped is lost with
	// no page and stays that way.
	if ps.created != 1 {
		t.Errorf("expected 1 created page, got %d", ps.created)
	}
	// Acme refreshed, Sunk flipped to hold.
	if ps.patched != 2 {
		t.Errorf("expected 2 refreshed pages, got %d", ps.patched)
	}
	post := poster.last(t)
	if !strings.Contains(post, "1 new plan pages created, 2 refreshed") {
		t.Errorf("wrong summary: %q", post)
	}
}

func TestPlanSyncJob_SilentWhenNothingNew(t *testing.T) {
	soon := time.Now().UTC().AddDate(0, 0, 30).Format("2006-01-02")
	records := &crmState{}
	records.set(crmRecord("rec_2", "Acme", "Proposal", 70.0, soon, ""))
	planClient, ps := newPlanServer(t)
	ps.pages["page_acme"] = wirePlanPage("page_acme", "Acme", "rec_2", "Planned")
	poster := &capturePoster{}
	job := &PlanSyncJob{Deps{CRM: newCRMServer(t, records), Plan: planClient, Poster: poster}}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(poster.posts) != 0 {
		t.Errorf("refresh-only sync should not post, got %q", poster.posts)
	}
}

func TestEmailScanJob_DedupsMessages(t *testing.T) {
	source := &stubSource{signals: []mailbox.Signal{{
		Message:  mailbox.Message{MessageID: "<m1@example.com>", From: "buyer@nike.com", Subject: "Budget approved"},
		Keywords: []string{"budget", "approved"},
		Snippet:  "We got the green light on the budget.",
	}}}
	report := `{"deal_name":"Nike","record_id":"rec_1","confidence":"high","key_signals":["budget approved"]}`
	poster := &capturePoster{}
	job := &EmailScanJob{Deps{
		Mailbox:   source,
		Extractor: agent.NewSignalExtractor(doneWith(report), agent.Deps{}, false),
		State:     newStateStore(t),
		Poster:    poster,
	}}
	ctx := context.Background()

	if err := job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(poster.posts) != 1 {
		t.Fatalf("expected one post, got %d", len(poster.posts))
	}
	if !strings.Contains(poster.posts[0], "Nike") || !strings.Contains(poster.posts[0], "budget approved") {
		t.Errorf("post missing report detail: %q", poster.posts[0])
	}

	if err := job.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(poster.posts) != 1 {
		t.Errorf("same message reported twice: %q", poster.posts)
	}
}

func TestEmailScanJob_SkipsUnmatchedReports(t *testing.T) {
	source := &stubSource{signals: []mailbox.Signal{{
		Message: mailbox.Message{MessageID: "<m2@example.com>", Subject: "Newsletter"},
	}}}
	prov := doneWith(`{"deal_name":"","record_id":""}`)
	poster := &capturePoster{}
	job := &EmailScanJob{Deps{
		Mailbox:   source,
		Extractor: agent.NewSignalExtractor(prov, agent.Deps{}, false),
		State:     newStateStore(t),
		Poster:    poster,
	}}
	ctx := context.Background()

	if err := job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(poster.posts) != 0 {
		t.Errorf("unmatched report should not post, got %q", poster.posts)
	}

	// An unmatched message still counts as handled; no re-extraction.
	if err := job.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if prov.calls != 1 {
		t.Errorf("message extracted %d times, want 1", prov.calls)
	}
}

func TestEmailScanJob_RetriesAfterFailedPost(t *testing.T) {
	source := &stubSource{signals: []mailbox.Signal{{
		Message: mailbox.Message{MessageID: "<m3@example.com>", From: "buyer@nike.com", Subject: "Timeline"},
		Snippet: "Can we move the kickoff up two weeks?",
	}}}
	report := `{"deal_name":"Nike","record_id":"rec_1","confidence":"high","key_signals":["timeline moved up"]}`
	poster := &capturePoster{failures: 1}
	job := &EmailScanJob{Deps{
		Mailbox:   source,
		Extractor: agent.NewSignalExtractor(doneWith(report), agent.Deps{}, false),
		State:     newStateStore(t),
		Poster:    poster,
	}}
	ctx := context.Background()

	if err := job.Run(ctx); err == nil {
		t.Fatal("expected the failed post to surface as an error")
	}

	// The message was not marked processed, so the next sweep retries.
	if err := job.Run(ctx); err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if len(poster.posts) != 1 || !strings.Contains(poster.posts[0], "Nike") {
		t.Fatalf("signal should be reported after recovery, got %q", poster.posts)
	}
}

// newNudgeCalendar serves one upcoming prospect meeting.
func newNudgeCalendar(t *testing.T) *calendar.Client {
	t.Helper()
	start := time.Now().UTC().Add(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{{
			"id":      "ev_1",
			"summary": "Nike intro call",
			"start":   map[string]any{"dateTime": start.Format(time.RFC3339)},
			"end":     map[string]any{"dateTime": start.Add(time.Hour).Format(time.RFC3339)},
			"attendees": []map[string]any{
				{"email": "buyer@nike.com"},
				{"email": "sam@studio.example"},
			},
		}}})
	}))
	t.Cleanup(srv.Close)
	return calendar.New("test-key", calendar.WithBaseURL(srv.URL), calendar.WithHomeDomain("studio.example"))
}

func TestMeetingNudgeJob_PostsBriefOnce(t *testing.T) {
	poster := &capturePoster{}
	job := &MeetingNudgeJob{Deps{
		Calendar:   newNudgeCalendar(t),
		Researcher: agent.NewResearcher(doneWith("Nike is refreshing its retail line this fall."), agent.Deps{}),
		State:      newStateStore(t),
		Poster:     poster,
	}}
	ctx := context.Background()

	if err := job.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(poster.posts) != 1 {
		t.Fatalf("expected one brief, got %d", len(poster.posts))
	}
	if !strings.Contains(poster.posts[0], "Nike intro call") || !strings.Contains(poster.posts[0], "retail line") {
		t.Errorf("brief missing content: %q", poster.posts[0])
	}

	if err := job.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(poster.posts) != 1 {
		t.Errorf("meeting briefed twice: %q", poster.posts)
	}
}

func TestMeetingNudgeJob_RetriesAfterFailedPost(t *testing.T) {
	poster := &capturePoster{failures: 1}
	job := &MeetingNudgeJob{Deps{
		Calendar:   newNudgeCalendar(t),
		Researcher: agent.NewResearcher(doneWith("Nike is refreshing its retail line this fall."), agent.Deps{}),
		State:      newStateStore(t),
		Poster:     poster,
	}}
	ctx := context.Background()

	if err := job.Run(ctx); err == nil {
		t.Fatal("expected the failed post to surface as an error")
	}

	// The meeting was not marked briefed, so the next tick retries.
	if err := job.Run(ctx); err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if len(poster.posts) != 1 || !strings.Contains(poster.posts[0], "Nike intro call") {
		t.Fatalf("brief should land after recovery, got %q", poster.posts)
	}
}
