package protocol

import "time"

// Deal is a CRM pipeline record. Probability and Value are pointers so a
// stored zero survives round-trips as zero rather than collapsing into
// "absent".
type Deal struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Stage       string     `json:"stage"`
	Probability *float64   `json:"probability"`
	Value       *float64   `json:"value"`
	CloseDate   *time.Time `json:"close_date"`
	Owner       string     `json:"owner,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ProbabilityOr returns the deal's probability, or def when unset.
func (d *Deal) ProbabilityOr(def float64) float64 {
	if d.Probability == nil {
		return def
	}
	return *d.Probability
}

// ValueOr returns the deal's monetary value, or def when unset.
func (d *Deal) ValueOr(def float64) float64 {
	if d.Value == nil {
		return def
	}
	return *d.Value
}

// WeightedValue is value scaled by probability, zero when either is unset.
func (d *Deal) WeightedValue() float64 {
	if d.Value == nil || d.Probability == nil {
		return 0
	}
	return *d.Value * *d.Probability / 100
}

// ClosingBetween reports whether the deal's close date falls inside the
// window. Both endpoints are inclusive. Deals without a close date never
// match.
func (d *Deal) ClosingBetween(start, end time.Time) bool {
	if d.CloseDate == nil {
		return false
	}
	t := *d.CloseDate
	return !t.Before(start) && !t.After(end)
}
