// Package calendar is a read-only client for the team calendar. It
// never creates or mutates events.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Event is a calendar event with the fields the agents care about.
type Event struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Organizer string    `json:"organizer"`
	Attendees []string  `json:"attendees"`
}

// Client fetches events from the calendar API.
type Client struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	calendarID string
	homeDomain string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithCalendarID selects the calendar to read.
func WithCalendarID(id string) Option {
	return func(c *Client) { c.calendarID = id }
}

// WithHomeDomain sets the email domain treated as internal when
// classifying meetings.
func WithHomeDomain(domain string) Option {
	return func(c *Client) { c.homeDomain = domain }
}

// New creates a calendar client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://www.googleapis.com/calendar/v3",
		apiKey:     apiKey,
		calendarID: "primary",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpcomingEvents returns timed events starting within the window,
// ordered by start time. All-day events are skipped.
func (c *Client) UpcomingEvents(ctx context.Context, window time.Duration) ([]Event, error) {
	now := time.Now().UTC()
	q := url.Values{}
	q.Set("timeMin", now.Format(time.RFC3339))
	q.Set("timeMax", now.Add(window).Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(c.calendarID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("calendar: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar: api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Items []wireEvent `json:"items"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("calendar: unmarshal response: %w", err)
	}

	var events []Event
	for _, item := range out.Items {
		ev, ok := item.toEvent()
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ProspectMeetings returns upcoming events that look like sales
// meetings: an attendee outside the home domain, or a summary carrying
// a meeting keyword.
func (c *Client) ProspectMeetings(ctx context.Context, window time.Duration) ([]Event, error) {
	events, err := c.UpcomingEvents(ctx, window)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, ev := range events {
		if c.looksLikeProspectMeeting(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

var meetingKeywords = []string{"intro", "call", "pitch", "kickoff", "demo", "meeting", "sync"}

func (c *Client) looksLikeProspectMeeting(ev Event) bool {
	for _, a := range ev.Attendees {
		if c.homeDomain != "" && !strings.HasSuffix(strings.ToLower(a), "@"+c.homeDomain) {
			return true
		}
	}
	summary := strings.ToLower(ev.Summary)
	for _, kw := range meetingKeywords {
		if strings.Contains(summary, kw) {
			return true
		}
	}
	return false
}

// --- wire format ---

type wireEvent struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Start   struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
	} `json:"end"`
	Organizer struct {
		Email string `json:"email"`
	} `json:"organizer"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
}

// toEvent converts a wire event. All-day events (date without a
// dateTime) report ok false.
func (e *wireEvent) toEvent() (Event, bool) {
	if e.Start.DateTime == "" {
		return Event{}, false
	}
	start, err := time.Parse(time.RFC3339, e.Start.DateTime)
	if err != nil {
		return Event{}, false
	}
	ev := Event{
		ID:        e.ID,
		Summary:   e.Summary,
		Start:     start,
		Organizer: e.Organizer.Email,
	}
	if end, err := time.Parse(time.RFC3339, e.End.DateTime); err == nil {
		ev.End = end
	}
	for _, a := range e.Attendees {
		ev.Attendees = append(ev.Attendees, a.Email)
	}
	return ev, true
}
