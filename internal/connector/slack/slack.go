package slackconn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// Config holds Slack connector configuration.
type Config struct {
	BotToken string   // xoxb-... Bot User OAuth Token
	AppToken string   // xapp-... App-Level Token (for Socket Mode)
	Channels []string // Optional: only react in these channels (empty = all)
}

// Handlers routes Slack traffic into the agents. Nil fields disable
// the matching feature.
type Handlers struct {
	// Ask answers a direct question, returning user-facing text.
	Ask func(ctx context.Context, text string) (string, error)
	// Extract runs signal extraction over a pasted recap.
	Extract func(ctx context.Context, recap string) (protocol.SignalReport, error)
	// Log writes a confirmed signal to the CRM.
	Log func(ctx context.Context, report protocol.SignalReport) error
}

// recapMinLen is the length at which a plain channel message is treated
// as a pasted recap worth scanning for signals.
const recapMinLen = 240

const helpText = `Mention me with a question about the pipeline. For example:
• _what's closing this month?_
• _move the Nike deal to 85%_
• _any capacity conflicts in October?_
• _what meetings do I have tomorrow?_
Paste a call recap in the channel and I'll look for buying signals.`

// Connector bridges Slack (via Socket Mode) and the agents.
type Connector struct {
	api      *slack.Client
	socket   *socketmode.Client
	config   Config
	handlers Handlers
	logger   *slog.Logger
	cancel   context.CancelFunc
	botID    string
}

// New creates a new Slack connector.
func New(cfg Config, handlers Handlers, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}

	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}
	logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)

	return &Connector{
		api:      api,
		socket:   socketmode.New(api),
		config:   cfg,
		handlers: handlers,
		logger:   logger,
		botID:    authResp.UserID,
	}, nil
}

func (c *Connector) Name() string { return "slack" }

// Start begins listening for events via Socket Mode. Blocks until the
// context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.handleEvents(ctx)

	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Post delivers markdown text to a Slack channel.
func (c *Connector) Post(_ context.Context, channel, content string) error {
	_, _, err := c.api.PostMessage(channel, slack.MsgOptionText(MarkdownToMrkdwn(content), false))
	if err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	return nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeInteractive:
				c.handleInteractive(ctx, event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}

	c.socket.Ack(*event.Request)

	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		c.handleMention(ctx, ev)
	case *slackevents.MessageEvent:
		c.handleMessage(ctx, ev)
	}
}

// handleMention drives the question flow. The reaction on the original
// message tracks progress: eyes on receipt, hourglass while the agent
// runs, then a check or an x.
func (c *Connector) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.User == c.botID || c.handlers.Ask == nil {
		return
	}
	if !c.isAllowedChannel(ev.Channel) {
		return
	}

	ref := slack.NewRefToMessage(ev.Channel, ev.TimeStamp)
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}

	text := StripMention(ev.Text, c.botID)
	if text == "" {
		c.react(ref, "eyes", "")
		c.postThread(ev.Channel, threadTS, helpText)
		return
	}

	c.react(ref, "eyes", "")
	c.react(ref, "hourglass_flowing_sand", "eyes")

	reply, err := c.handlers.Ask(ctx, text)
	if err != nil {
		c.logger.Error("assistant failed", "channel", ev.Channel, "error", err)
		c.react(ref, "x", "hourglass_flowing_sand")
		c.postThread(ev.Channel, threadTS, "Something went wrong talking to the model. Try again in a minute.")
		return
	}

	c.react(ref, "white_check_mark", "hourglass_flowing_sand")
	c.postThread(ev.Channel, threadTS, reply)
}

// handleMessage watches for pasted recaps: long plain messages get run
// through signal extraction, and a hit posts a confirmation card.
func (c *Connector) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.BotID != "" || ev.User == "" || ev.User == c.botID || ev.SubType != "" {
		return
	}
	if c.handlers.Extract == nil || !c.isAllowedChannel(ev.Channel) {
		return
	}
	// Mentions arrive twice, once as AppMentionEvent; skip them here.
	if strings.Contains(ev.Text, "<@"+c.botID+">") {
		return
	}
	if len(ev.Text) < recapMinLen {
		return
	}

	report, err := c.handlers.Extract(ctx, ev.Text)
	if err != nil {
		c.logger.Error("signal extraction failed", "channel", ev.Channel, "error", err)
		return
	}
	if report.RecordID == "" && len(report.Candidates) == 0 {
		return
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	if err := c.postSignalCard(ev.Channel, threadTS, report); err != nil {
		c.logger.Error("signal card post failed", "channel", ev.Channel, "error", err)
	}
}

// postSignalCard renders the extraction result with log/dismiss buttons.
// The report rides along in the button value so the action handler is
// stateless.
func (c *Connector) postSignalCard(channel, threadTS string, report protocol.SignalReport) error {
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, SignalCardText(report), false, false), nil, nil),
	}
	if report.Logged {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, "Logged to the CRM automatically.", false, false)))
	} else if report.RecordID != "" {
		value, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("slack: encode signal report: %w", err)
		}
		logBtn := slack.NewButtonBlockElement("log_signal", string(value),
			slack.NewTextBlockObject(slack.PlainTextType, "Log to CRM", false, false))
		logBtn.Style = slack.StylePrimary
		dismissBtn := slack.NewButtonBlockElement("dismiss_signal", "",
			slack.NewTextBlockObject(slack.PlainTextType, "Dismiss", false, false))
		blocks = append(blocks, slack.NewActionBlock("signal_actions", logBtn, dismissBtn))
	}

	_, _, err := c.api.PostMessage(channel,
		slack.MsgOptionTS(threadTS),
		slack.MsgOptionBlocks(blocks...),
	)
	return err
}

// SignalCardText renders the mrkdwn body of a signal card: the matched
// deal (or the candidates when ambiguous), the headline, and the
// phrases that triggered the match.
func SignalCardText(report protocol.SignalReport) string {
	var b strings.Builder
	if report.RecordID != "" {
		fmt.Fprintf(&b, ":mag: Possible signal on *%s* (%s confidence)\n", report.DealName, report.Confidence)
	} else {
		fmt.Fprintf(&b, ":mag: Possible signal, unsure which deal: %s\n", strings.Join(report.Candidates, ", "))
	}
	if report.NoteTitle != "" {
		fmt.Fprintf(&b, ">%s\n", report.NoteTitle)
	}
	for _, s := range report.KeySignals {
		fmt.Fprintf(&b, "• %s\n", s)
	}
	return b.String()
}

func (c *Connector) handleInteractive(ctx context.Context, event socketmode.Event) {
	cb, ok := event.Data.(slack.InteractionCallback)
	if !ok {
		return
	}
	c.socket.Ack(*event.Request)

	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}

	action := cb.ActionCallback.BlockActions[0]
	switch action.ActionID {
	case "log_signal":
		c.confirmSignal(ctx, cb, action.Value)
	case "dismiss_signal":
		c.replaceCard(cb, "Dismissed.")
	}
}

func (c *Connector) confirmSignal(ctx context.Context, cb slack.InteractionCallback, value string) {
	if c.handlers.Log == nil {
		return
	}
	var report protocol.SignalReport
	if err := json.Unmarshal([]byte(value), &report); err != nil {
		c.logger.Error("signal button carried bad payload", "error", err)
		c.replaceCard(cb, "Couldn't read the signal payload; log it manually.")
		return
	}
	if err := c.handlers.Log(ctx, report); err != nil {
		c.logger.Error("signal logging failed", "record", report.RecordID, "error", err)
		c.replaceCard(cb, fmt.Sprintf("Logging to the CRM failed: %v", err))
		return
	}
	c.replaceCard(cb, fmt.Sprintf(":white_check_mark: Logged *%s* on %s.", report.NoteTitle, report.DealName))
}

// replaceCard swaps the interactive card for a final status line.
func (c *Connector) replaceCard(cb slack.InteractionCallback, text string) {
	_, _, _, err := c.api.UpdateMessage(cb.Channel.ID, cb.Message.Timestamp,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(),
	)
	if err != nil {
		c.logger.Error("card update failed", "channel", cb.Channel.ID, "error", err)
	}
}

func (c *Connector) postThread(channel, threadTS, content string) {
	_, _, err := c.api.PostMessage(channel,
		slack.MsgOptionTS(threadTS),
		slack.MsgOptionText(MarkdownToMrkdwn(content), false),
	)
	if err != nil {
		c.logger.Error("thread reply failed", "channel", channel, "error", err)
	}
}

// react moves the progress reaction along: remove the previous one, add
// the next. Reaction failures are cosmetic and only logged.
func (c *Connector) react(ref slack.ItemRef, add, remove string) {
	if remove != "" {
		if err := c.api.RemoveReaction(remove, ref); err != nil {
			c.logger.Debug("reaction remove failed", "name", remove, "error", err)
		}
	}
	if err := c.api.AddReaction(add, ref); err != nil {
		c.logger.Debug("reaction add failed", "name", add, "error", err)
	}
}

func (c *Connector) isAllowedChannel(channel string) bool {
	if len(c.config.Channels) == 0 {
		return true
	}
	for _, ch := range c.config.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// StripMention removes the <@BOTID> mention from message text.
func StripMention(text, botID string) string {
	mention := fmt.Sprintf("<@%s>", botID)
	text = strings.Replace(text, mention, "", 1)
	return strings.TrimSpace(text)
}

// MarkdownToMrkdwn converts standard Markdown to Slack's mrkdwn format.
func MarkdownToMrkdwn(md string) string {
	result := md

	// Convert emphasis markers in a single pass
	result = convertEmphasis(result)
	// Convert strikethrough: ~~text~~ → ~text~
	result = strings.ReplaceAll(result, "~~", "~")
	// Convert links: [text](url) → <url|text>
	result = convertLinks(result)

	return result
}

// convertEmphasis handles both bold (**text** → *text*) and italic (*text* → _text_)
// in a single pass, correctly distinguishing between the two.
func convertEmphasis(s string) string {
	var b strings.Builder
	inCode := false
	i := 0
	for i < len(s) {
		ch := s[i]
		if ch == '`' {
			inCode = !inCode
			b.WriteByte(ch)
			i++
		} else if ch == '*' && !inCode {
			if i+1 < len(s) && s[i+1] == '*' {
				// Bold: ** → * (Slack bold)
				b.WriteByte('*')
				i += 2
			} else {
				// Italic: * → _ (Slack italic)
				b.WriteByte('_')
				i++
			}
		} else {
			b.WriteByte(ch)
			i++
		}
	}
	return b.String()
}

// convertLinks converts [text](url) to <url|text>.
func convertLinks(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '[' {
			closeB := strings.Index(s[i:], "](")
			if closeB == -1 {
				b.WriteByte(s[i])
				i++
				continue
			}
			closeB += i
			closeP := strings.Index(s[closeB:], ")")
			if closeP == -1 {
				b.WriteByte(s[i])
				i++
				continue
			}
			closeP += closeB

			text := s[i+1 : closeB]
			url := s[closeB+2 : closeP]
			fmt.Fprintf(&b, "<%s|%s>", url, text)
			i = closeP + 1
		} else {
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}
