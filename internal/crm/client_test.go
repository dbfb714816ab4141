package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func listPayload(records ...map[string]any) string {
	b, _ := json.Marshal(map[string]any{"data": records})
	return string(b)
}

func wireDeal(id, name string, prob any) map[string]any {
	values := map[string]any{
		"name": []map[string]any{{"value": name}},
	}
	if prob != nil {
		values["probability"] = []map[string]any{{"value": prob}}
	}
	return map[string]any{
		"id":     map[string]any{"record_id": id},
		"values": values,
	}
}

func TestClient_ListDealsCached(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/records/query") {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing auth header")
		}
		w.Write([]byte(listPayload(wireDeal("rec_1", "Nike", 60.0))))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL), WithCache(NewRecordCache(5*time.Minute)))

	for i := 0; i < 3; i++ {
		deals, err := c.ListDeals(context.Background())
		if err != nil {
			t.Fatalf("list %d: %v", i, err)
		}
		if len(deals) != 1 || deals[0].Name != "Nike" {
			t.Fatalf("list %d: %+v", i, deals)
		}
	}
	if hits != 1 {
		t.Errorf("expected 1 API hit for 3 cached reads, got %d", hits)
	}
}

func TestClient_UpdateInvalidatesCache(t *testing.T) {
	var listHits int
	prob := 60.0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/records/query"):
			listHits++
			w.Write([]byte(listPayload(wireDeal("rec_1", "Nike", prob))))
		case r.Method == http.MethodPatch:
			var body struct {
				Data struct {
					Values map[string]any `json:"values"`
				} `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if v, ok := body.Data.Values["probability"].(float64); ok {
				prob = v
			}
			b, _ := json.Marshal(map[string]any{"data": wireDeal("rec_1", "Nike", prob)})
			w.Write(b)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL), WithCache(NewRecordCache(5*time.Minute)))
	ctx := context.Background()

	if _, err := c.ListDeals(ctx); err != nil {
		t.Fatal(err)
	}

	updated, err := c.UpdateDeal(ctx, "rec_1", "probability", 85.0)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Probability == nil || *updated.Probability != 85 {
		t.Errorf("updated probability = %v", updated.Probability)
	}

	// A read starting after the write returns must see the new value.
	deals, err := c.ListDeals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if deals[0].Probability == nil || *deals[0].Probability != 85 {
		t.Errorf("post-write read = %v", deals[0].Probability)
	}
	if listHits != 2 {
		t.Errorf("expected cache miss after write, got %d list hits", listHits)
	}
}

func TestClient_UpdateRejectsUnknownField(t *testing.T) {
	c := New("test-key")
	_, err := c.UpdateDeal(context.Background(), "rec_1", "hairstyle", "bald")
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

// A probability of zero is a real value and must survive the round
// trip, distinct from a deal with no probability at all.
func TestClient_ZeroProbabilityRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listPayload(
			wireDeal("rec_1", "Zeroed", 0.0),
			wireDeal("rec_2", "Blank", nil),
		)))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))
	deals, err := c.ListDeals(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if deals[0].Probability == nil {
		t.Fatal("zero probability collapsed into absent")
	}
	if *deals[0].Probability != 0 {
		t.Errorf("probability = %v, want 0", *deals[0].Probability)
	}
	if deals[1].Probability != nil {
		t.Errorf("absent probability = %v, want nil", *deals[1].Probability)
	}
}

func TestClient_AddNote(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/notes" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))
	err := c.AddNote(context.Background(), "rec_1", "Call recap", "They want a Q3 start.")
	if err != nil {
		t.Fatal(err)
	}

	data := captured["data"].(map[string]any)
	if data["parent_record_id"] != "rec_1" {
		t.Errorf("parent_record_id = %v", data["parent_record_id"])
	}
	if data["title"] != "Call recap" {
		t.Errorf("title = %v", data["title"])
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid token"}`))
	}))
	defer srv.Close()

	c := New("bad-key", WithBaseURL(srv.URL))
	if _, err := c.ListDeals(context.Background()); err == nil {
		t.Fatal("expected error for 401")
	}
}
