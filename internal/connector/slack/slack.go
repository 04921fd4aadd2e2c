// Package slackconn runs a Slack standup bot over Socket Mode: updates
// posted in the standup channel (or sent via slash command) are relayed to
// the sync pipeline and the outcome is posted back in-thread.
package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/scrumpilot-io/scrumpilot/internal/connector"
	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

// Config holds Slack connector configuration.
type Config struct {
	BotToken string   // xoxb-... Bot User OAuth Token
	AppToken string   // xapp-... App-Level Token (for Socket Mode)
	Channels []string // Optional: only respond in these channels (empty = all)
}

// Connector implements connector.Connector for Slack via Socket Mode.
type Connector struct {
	api     *slack.Client
	socket  *socketmode.Client
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
	botID   string
}

// New creates a Slack connector.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
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
		api:     api,
		socket:  socketmode.New(api),
		config:  cfg,
		handler: handler,
		logger:  logger,
		botID:   authResp.UserID,
	}, nil
}

func (c *Connector) Name() string { return "slack" }

// Start begins listening for events via Socket Mode. Blocks until context is
// cancelled.
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

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeSlashCommand:
				c.handleSlashCommand(ctx, event)
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

	if ev, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
		c.handleMention(ctx, ev)
	}
}

// handleMention processes "@scrumpilot finished #202" style updates.
func (c *Connector) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.User == c.botID {
		return
	}
	if !c.isAllowedChannel(ev.Channel) {
		return
	}

	text := StripMention(ev.Text, c.botID)
	if text == "" {
		return
	}

	inbound := connector.InboundMessage{
		Channel:    "slack",
		SenderID:   ev.User,
		SenderName: c.displayName(ev.User),
		ChatID:     ev.Channel,
		Content:    text,
	}

	reply, err := c.handler(ctx, inbound)
	if err != nil {
		c.logger.Error("slack inbound handler error", "channel", ev.Channel, "user", ev.User, "error", err)
		reply = "Something went wrong processing that update."
	}
	if reply == "" {
		return
	}

	opts := []slack.MsgOption{slack.MsgOptionText(reply, false)}
	if ev.ThreadTimeStamp != "" {
		opts = append(opts, slack.MsgOptionTS(ev.ThreadTimeStamp))
	} else if ev.TimeStamp != "" {
		opts = append(opts, slack.MsgOptionTS(ev.TimeStamp))
	}
	if _, _, err := c.api.PostMessage(ev.Channel, opts...); err != nil {
		c.logger.Error("slack reply failed", "channel", ev.Channel, "error", err)
	}
}

// handleSlashCommand processes "/standup finished #202" commands.
func (c *Connector) handleSlashCommand(ctx context.Context, event socketmode.Event) {
	cmd, ok := event.Data.(slack.SlashCommand)
	if !ok {
		return
	}

	if cmd.Text == "" {
		c.socket.Ack(*event.Request, map[string]string{
			"response_type": "ephemeral",
			"text":          "Usage: /standup <your update>, e.g. /standup finished #202, close it",
		})
		return
	}

	inbound := connector.InboundMessage{
		Channel:    "slack",
		SenderID:   cmd.UserID,
		SenderName: cmd.UserName,
		ChatID:     cmd.ChannelID,
		Content:    cmd.Text,
	}

	reply, err := c.handler(ctx, inbound)
	if err != nil {
		c.logger.Error("slack slash command error", "command", cmd.Command, "user", cmd.UserID, "error", err)
		reply = "Something went wrong processing that update."
	}

	c.socket.Ack(*event.Request, map[string]string{
		"response_type": "in_channel",
		"text":          reply,
	})
}

func (c *Connector) displayName(userID string) string {
	user, err := c.api.GetUserInfo(userID)
	if err != nil || user == nil {
		return userID
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	return user.RealName
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

// FormatResults renders extraction and sync outcomes as Slack mrkdwn.
func FormatResults(intents []protocol.UpdateIntent, results []protocol.SyncResult) string {
	if len(intents) == 0 {
		return "No issue updates found in that message."
	}

	byIssue := make(map[string]protocol.SyncResult, len(results))
	for _, r := range results {
		byIssue[r.IssueID] = r
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d update(s):\n", len(intents))
	for _, in := range intents {
		b.WriteString("\n• *" + in.IssueID + "*")
		if in.TargetStatus != "" && in.ShouldChangeStatus {
			b.WriteString(" → " + in.TargetStatus)
		}
		if in.Action != "" {
			b.WriteString("\n  _" + in.Action + "_")
		}
		if r, ok := byIssue[in.IssueID]; ok {
			if r.Success {
				b.WriteString("\n  :white_check_mark: synced")
			} else {
				b.WriteString("\n  :warning: sync failed: " + r.ErrorDetail)
			}
		}
	}
	return b.String()
}
