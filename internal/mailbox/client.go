// Package mailbox is a read-only IMAP client used to scan recent mail
// for deal signals. It never moves, flags, or deletes messages.
package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

const maxRawMessageSize = 2 * 1024 * 1024

// Config holds the IMAP account settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	TLS      bool   `yaml:"tls"`
	Folder   string `yaml:"folder"`
}

// Message is one fetched mail message.
type Message struct {
	UID       uint32
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	Body      string
}

// Client wraps go-imap/v2 with lazy connection and mutex-serialized
// access. All public methods are goroutine-safe.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

// NewClient creates a mailbox client. The connection is established
// lazily on first use.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &Client{cfg: cfg, logger: logger}
}

// connectLocked dials and authenticates. Caller must hold c.mu.
func (c *Client) connectLocked(ctx context.Context) error {
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	var opts imapclient.Options
	var client *imapclient.Client
	var err error
	if c.cfg.TLS {
		opts.TLSConfig = &tls.Config{ServerName: c.cfg.Host}
		client, err = imapclient.DialTLS(addr, &opts)
	} else {
		client, err = imapclient.DialInsecure(addr, &opts)
	}
	if err != nil {
		return fmt.Errorf("mailbox: dial %s: %w", addr, err)
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("mailbox: login as %s: %w", c.cfg.Username, err)
	}

	c.client = client
	c.logger.Info("mailbox connected", "host", c.cfg.Host, "user", c.cfg.Username)
	return nil
}

// ensureConnected reconnects when the connection has gone stale.
// Caller must hold c.mu.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.client != nil {
		if err := c.client.Noop().Wait(); err == nil {
			return nil
		}
		c.logger.Debug("mailbox connection stale, reconnecting", "host", c.cfg.Host)
	}
	return c.connectLocked(ctx)
}

// Ping checks that the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConnected(ctx)
}

// Close logs out and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// RecentMessages returns messages received since the cutoff, newest
// first, capped at limit. Bodies are fetched with peek so the scan
// never marks anything read.
func (c *Client) RecentMessages(ctx context.Context, since time.Time, limit int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	if _, err := c.client.Select(c.cfg.Folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("mailbox: select %s: %w", c.cfg.Folder, err)
	}

	criteria := &imap.SearchCriteria{Since: since}
	searchData, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("mailbox: search: %w", err)
	}

	allUIDs := searchData.AllUIDs()
	if len(allUIDs) == 0 {
		return nil, nil
	}
	if len(allUIDs) > limit {
		allUIDs = allUIDs[len(allUIDs)-limit:]
	}

	uidSet := imap.UIDSet{}
	for _, uid := range allUIDs {
		uidSet.AddNum(uid)
	}

	fetchOpts := &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		BodySection: []*imap.FetchItemBodySection{
			{Peek: true},
		},
	}
	fetchCmd := c.client.Fetch(uidSet, fetchOpts)

	var messages []Message
	for {
		data := fetchCmd.Next()
		if data == nil {
			break
		}
		msg, err := c.parseMessageData(data)
		if err != nil {
			c.logger.Debug("skipping message", "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("mailbox: fetch: %w", err)
	}

	// Newest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (c *Client) parseMessageData(data *imapclient.FetchMessageData) (Message, error) {
	var msg Message
	var rawBody []byte

	for {
		item := data.Next()
		if item == nil {
			break
		}
		switch it := item.(type) {
		case imapclient.FetchItemDataUID:
			msg.UID = uint32(it.UID)
		case imapclient.FetchItemDataEnvelope:
			if it.Envelope != nil {
				msg.Date = it.Envelope.Date
				msg.Subject = it.Envelope.Subject
				msg.MessageID = it.Envelope.MessageID
				if len(it.Envelope.From) > 0 {
					msg.From = formatAddress(it.Envelope.From[0])
				}
			}
		case imapclient.FetchItemDataBodySection:
			// Literals stream from the connection and must be
			// consumed before advancing.
			if it.Literal == nil {
				continue
			}
			b, err := io.ReadAll(io.LimitReader(it.Literal, maxRawMessageSize))
			_, _ = io.Copy(io.Discard, it.Literal)
			if err == nil {
				rawBody = b
			}
		}
	}

	if msg.UID == 0 {
		return msg, fmt.Errorf("message missing UID")
	}
	if rawBody != nil {
		msg.Body = extractPlainText(rawBody)
	}
	return msg, nil
}

// extractPlainText walks the MIME structure and returns the first
// text/plain part, or empty when none parses.
func extractPlainText(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := header.ContentType()
		if err != nil || !strings.HasPrefix(ct, "text/plain") {
			continue
		}
		body, err := io.ReadAll(io.LimitReader(part.Body, maxRawMessageSize))
		if err != nil {
			return ""
		}
		return string(body)
	}
}

func formatAddress(addr imap.Address) string {
	email := addr.Addr()
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}
