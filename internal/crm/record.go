package crm

import (
	"time"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// Wire shapes for the CRM records API. Every attribute arrives as a
// list of value entries; the first entry is the current value.

type wireRecord struct {
	ID struct {
		RecordID string `json:"record_id"`
	} `json:"id"`
	Values map[string][]wireValue `json:"values"`
}

type wireValue struct {
	Value  any `json:"value"`
	Status *struct {
		Title string `json:"title"`
	} `json:"status"`
	CurrencyValue *float64 `json:"currency_value"`
}

// first returns the current entry for an attribute, or nil.
func (r *wireRecord) first(attr string) *wireValue {
	entries := r.Values[attr]
	if len(entries) == 0 {
		return nil
	}
	return &entries[0]
}

func (r *wireRecord) stringAttr(attr string) string {
	v := r.first(attr)
	if v == nil {
		return ""
	}
	if s, ok := v.Value.(string); ok {
		return s
	}
	return ""
}

// floatAttr reads a numeric attribute. The guard is a nil check, not a
// zero check: a stored 0 comes back as a non-nil pointer to 0.
func (r *wireRecord) floatAttr(attr string) *float64 {
	v := r.first(attr)
	if v == nil {
		return nil
	}
	if v.CurrencyValue != nil {
		f := *v.CurrencyValue
		return &f
	}
	if f, ok := v.Value.(float64); ok {
		out := f
		return &out
	}
	return nil
}

func (r *wireRecord) statusAttr(attr string) string {
	v := r.first(attr)
	if v == nil {
		return ""
	}
	if v.Status != nil {
		return v.Status.Title
	}
	if s, ok := v.Value.(string); ok {
		return s
	}
	return ""
}

func (r *wireRecord) dateAttr(attr string) *time.Time {
	v := r.first(attr)
	if v == nil {
		return nil
	}
	s, ok := v.Value.(string)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// toDeal converts a wire record into a Deal.
func (r *wireRecord) toDeal() protocol.Deal {
	d := protocol.Deal{
		ID:          r.ID.RecordID,
		Name:        r.stringAttr("name"),
		Stage:       r.statusAttr("stage"),
		Probability: r.floatAttr("probability"),
		Value:       r.floatAttr("value"),
		CloseDate:   r.dateAttr("close_date"),
		Owner:       r.stringAttr("owner"),
	}
	if t := r.dateAttr("updated_at"); t != nil {
		d.UpdatedAt = *t
	}
	return d
}
