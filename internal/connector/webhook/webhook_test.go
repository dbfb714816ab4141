package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

type fakeExtractor struct {
	report protocol.SignalReport
	err    error
	recaps []string
}

func (f *fakeExtractor) extract(_ context.Context, recap string) (protocol.SignalReport, error) {
	f.recaps = append(f.recaps, recap)
	return f.report, f.err
}

type memDeduper struct {
	seen map[string]bool
	err  error
}

func (d *memDeduper) MarkProcessed(namespace, id string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	key := namespace + "/" + id
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func postRecap(h *Handler, body []byte, sign string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/recap", bytes.NewReader(body))
	if sign != "" {
		req.Header.Set("X-Hub-Signature-256", sign)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func recapBody(t *testing.T, eventID, recap string) []byte {
	t.Helper()
	b, err := json.Marshal(RecapPayload{EventID: eventID, Source: "recorder", Recap: recap})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestWebhook_SignedRecap(t *testing.T) {
	ex := &fakeExtractor{report: protocol.SignalReport{
		DealName: "Nike rebrand", RecordID: "rec_1", Logged: true,
	}}
	h := New(Config{Secret: "whsec_test"}, ex.extract, &memDeduper{}, nil)

	body := recapBody(t, "evt_1", "They approved the budget on the call.")
	rec := postRecap(h, body, ComputeSignature(body, "whsec_test"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(ex.recaps) != 1 || !strings.Contains(ex.recaps[0], "approved the budget") {
		t.Errorf("recaps = %v", ex.recaps)
	}
	var resp struct {
		Status string                `json:"status"`
		Report protocol.SignalReport `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Report.RecordID != "rec_1" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	ex := &fakeExtractor{}
	h := New(Config{Secret: "whsec_test"}, ex.extract, nil, nil)
	body := recapBody(t, "evt_1", "some recap")

	for _, sig := range []string{
		"",
		"sha256=deadbeef",
		ComputeSignature([]byte("other body"), "whsec_test"),
		ComputeSignature(body, "wrong-secret"),
	} {
		rec := postRecap(h, body, sig)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("sig %q: status = %d", sig, rec.Code)
		}
	}
	if len(ex.recaps) != 0 {
		t.Errorf("extractor ran %d times on rejected requests", len(ex.recaps))
	}
}

func TestWebhook_DuplicateEventSkipsExtraction(t *testing.T) {
	ex := &fakeExtractor{report: protocol.SignalReport{RecordID: "rec_1"}}
	h := New(Config{Secret: "whsec_test"}, ex.extract, &memDeduper{}, nil)
	body := recapBody(t, "evt_42", "long recap text")
	sig := ComputeSignature(body, "whsec_test")

	first := postRecap(h, body, sig)
	second := postRecap(h, body, sig)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}
	if !strings.Contains(second.Body.String(), "duplicate") {
		t.Errorf("second response = %s", second.Body.String())
	}
	if len(ex.recaps) != 1 {
		t.Errorf("extractor ran %d times, want 1", len(ex.recaps))
	}
}

func TestWebhook_NoEventIDAlwaysProcesses(t *testing.T) {
	ex := &fakeExtractor{}
	h := New(Config{}, ex.extract, &memDeduper{}, nil)
	body := recapBody(t, "", "recap without an id")

	postRecap(h, body, "")
	postRecap(h, body, "")
	if len(ex.recaps) != 2 {
		t.Errorf("extractor ran %d times, want 2", len(ex.recaps))
	}
}

func TestWebhook_ValidationErrors(t *testing.T) {
	ex := &fakeExtractor{}
	h := New(Config{}, ex.extract, nil, nil)

	rec := postRecap(h, []byte("{not json"), "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", rec.Code)
	}

	rec = postRecap(h, recapBody(t, "evt_1", ""), "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty recap status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/webhook/recap", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", w.Code)
	}
}

func TestWebhook_ExtractorErrorIs500(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("provider down")}
	h := New(Config{}, ex.extract, nil, nil)
	rec := postRecap(h, recapBody(t, "evt_1", "recap"), "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestWebhook_DedupErrorIs500(t *testing.T) {
	ex := &fakeExtractor{}
	h := New(Config{}, ex.extract, &memDeduper{err: errors.New("db locked")}, nil)
	rec := postRecap(h, recapBody(t, "evt_1", "recap"), "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if len(ex.recaps) != 0 {
		t.Error("extractor must not run when dedup fails")
	}
}
