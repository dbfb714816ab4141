package mailbox

import (
	"context"
	"strings"
	"time"
)

// signalKeywords are the phrases that make a message worth a closer
// look by the signal agent.
var signalKeywords = []string{
	"budget",
	"timeline",
	"approved",
	"contract",
	"proposal",
	"scope",
	"kickoff",
	"decision",
	"signed",
	"green light",
	"next steps",
	"purchase order",
}

// Signal is a message that matched the keyword scan.
type Signal struct {
	Message  Message
	Keywords []string
	Snippet  string
}

const snippetLen = 280

// ScanForSignals fetches recent messages and returns those whose
// subject or body carries a signal keyword.
func (c *Client) ScanForSignals(ctx context.Context, since time.Time, limit int) ([]Signal, error) {
	messages, err := c.RecentMessages(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	var out []Signal
	for _, msg := range messages {
		keywords := matchKeywords(msg.Subject + "\n" + msg.Body)
		if len(keywords) == 0 {
			continue
		}
		out = append(out, Signal{
			Message:  msg,
			Keywords: keywords,
			Snippet:  snippet(msg.Body),
		})
	}
	return out, nil
}

func matchKeywords(text string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range signalKeywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func snippet(body string) string {
	s := strings.Join(strings.Fields(body), " ")
	if len(s) > snippetLen {
		s = s[:snippetLen] + "…"
	}
	return s
}
