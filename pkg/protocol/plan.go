package protocol

import "time"

// PlanPage is a production-calendar page in the document store, keyed
// back to its CRM record through DealID.
type PlanPage struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	DealID    string     `json:"deal_id"`
	Status    string     `json:"status"`
	StartDate *time.Time `json:"start_date"`
	DueDate   *time.Time `json:"due_date"`
	Notes     string     `json:"notes,omitempty"`
}

// Plan page statuses. PageStatusHold is applied when the underlying deal
// is lost after the page was created.
const (
	PageStatusPlanned    = "Planned"
	PageStatusInProgress = "In Progress"
	PageStatusDelivered  = "Delivered"
	PageStatusHold       = "On Hold"
)

// SignalReport is the structured output of the signal extraction agent.
// It is parsed from the agent's final text, which must be a single JSON
// object; a parse failure yields the zero report with Logged false.
type SignalReport struct {
	DealName    string   `json:"deal_name"`
	RecordID    string   `json:"record_id"`
	Confidence  string   `json:"confidence"`
	NoteTitle   string   `json:"note_title"`
	NoteBody    string   `json:"note_body"`
	KeySignals  []string `json:"key_signals"`
	ActionItems []string `json:"action_items"`
	Urgency     string   `json:"urgency"`
	Logged      bool     `json:"logged"`
	Candidates  []string `json:"candidates"`
}

// NoteContent renders the report as CRM note body text.
func (r SignalReport) NoteContent() string {
	body := r.NoteBody
	if len(r.KeySignals) > 0 {
		body += "\n\nKey signals:"
		for _, s := range r.KeySignals {
			body += "\n- " + s
		}
	}
	if len(r.ActionItems) > 0 {
		body += "\n\nAction items:"
		for _, s := range r.ActionItems {
			body += "\n- " + s
		}
	}
	return body
}
