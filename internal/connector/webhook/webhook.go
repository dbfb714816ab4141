package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// Config holds inbound webhook settings.
type Config struct {
	// Secret for HMAC-SHA256 signature verification
	// (X-Hub-Signature-256 header). Empty allows unsigned requests,
	// for development only.
	Secret string
}

// RecapPayload is the JSON body posted by meeting recorders and other
// transcription services.
type RecapPayload struct {
	EventID string `json:"event_id"`
	Source  string `json:"source"`
	Recap   string `json:"recap"`
}

// Deduper remembers which event ids were already handled. The sqlite
// state store satisfies it.
type Deduper interface {
	MarkProcessed(namespace, id string) (bool, error)
}

const dedupNamespace = "webhook-recap"

// Handler accepts recap events and runs them through signal extraction.
type Handler struct {
	config  Config
	extract func(ctx context.Context, recap string) (protocol.SignalReport, error)
	dedup   Deduper
	logger  *slog.Logger
}

// New creates a webhook handler. dedup may be nil, in which case every
// delivery is processed, retries included.
func New(cfg Config, extract func(ctx context.Context, recap string) (protocol.SignalReport, error), dedup Deduper, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:  cfg,
		extract: extract,
		dedup:   dedup,
		logger:  logger,
	}
}

// ServeHTTP handles POST /webhook/recap.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.config.Secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if !verifyHMAC(body, h.config.Secret, sig) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var payload RecapPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if payload.Recap == "" {
		http.Error(w, "recap is required", http.StatusBadRequest)
		return
	}

	// Recorders retry on slow responses; the event id keeps a retried
	// delivery from logging the same signal twice.
	if payload.EventID != "" && h.dedup != nil {
		first, err := h.dedup.MarkProcessed(dedupNamespace, payload.EventID)
		if err != nil {
			h.logger.Error("webhook dedup check failed", "event", payload.EventID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !first {
			h.logger.Info("webhook event replayed", "event", payload.EventID, "source", payload.Source)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
	}

	report, err := h.extract(r.Context(), payload.Recap)
	if err != nil {
		h.logger.Error("webhook extraction failed",
			"event", payload.EventID,
			"source", payload.Source,
			"error", err,
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("webhook recap processed",
		"event", payload.EventID,
		"source", payload.Source,
		"deal", report.DealName,
		"logged", report.Logged,
	)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "report": report})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// verifyHMAC checks an HMAC-SHA256 signature.
// Signature format: "sha256=<hex>"
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}

	sig := strings.TrimPrefix(signature, "sha256=")
	expectedMAC, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computedMAC := mac.Sum(nil)

	return hmac.Equal(computedMAC, expectedMAC)
}

// ComputeSignature generates an HMAC-SHA256 signature for testing and
// for callers wiring up senders.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
