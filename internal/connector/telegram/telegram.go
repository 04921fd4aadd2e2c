// Package telegram runs a standup bot: team members send their updates (text
// or voice) in chat and the bot relays extraction results back.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/scrumpilot-io/scrumpilot/internal/connector"
	"github.com/scrumpilot-io/scrumpilot/internal/transcribe"
)

// Config holds Telegram connector configuration.
type Config struct {
	Token     string  // Bot token from @BotFather
	AllowFrom []int64 // Allowed Telegram user IDs (empty = allow all)
}

// Connector implements connector.Connector for Telegram.
type Connector struct {
	bot         *tgbotapi.BotAPI
	config      Config
	handler     connector.InboundHandler
	transcriber *transcribe.Client
	logger      *slog.Logger
	cancel      context.CancelFunc
}

// New creates a Telegram connector. transcriber may be nil; voice messages
// are then rejected with a hint.
func New(cfg Config, handler connector.InboundHandler, transcriber *transcribe.Client, logger *slog.Logger) (*Connector, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: init bot: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("telegram bot authorized", "username", bot.Self.UserName)

	return &Connector{
		bot:         bot,
		config:      cfg,
		handler:     handler,
		transcriber: transcriber,
		logger:      logger,
	}, nil
}

func (c *Connector) Name() string { return "telegram" }

// Start begins long-polling for updates. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := c.bot.GetUpdatesChan(u)

	c.logger.Info("telegram connector started", "bot", c.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			c.handleUpdate(ctx, update.Message)

		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram connector stopped")
			return ctx.Err()
		}
	}
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Connector) handleUpdate(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	// Access control
	if len(c.config.AllowFrom) > 0 && !contains(c.config.AllowFrom, userID) {
		c.logger.Warn("unauthorized user", "user_id", userID, "username", msg.From.UserName)
		return
	}

	if msg.IsCommand() {
		c.handleCommand(msg)
		return
	}

	text := msg.Text
	if text == "" && msg.Caption != "" {
		text = msg.Caption
	}

	if text == "" && (msg.Voice != nil || msg.Audio != nil) {
		transcribed, err := c.transcribeVoice(ctx, msg)
		if err != nil {
			c.logger.Error("voice transcription failed", "chat_id", chatID, "error", err)
			c.reply(chatID, "Sorry, I couldn't transcribe that voice message.")
			return
		}
		text = transcribed
	}

	if text == "" {
		return
	}

	c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	inbound := connector.InboundMessage{
		Channel:    "telegram",
		SenderID:   strconv.FormatInt(userID, 10),
		SenderName: speakerName(msg),
		ChatID:     strconv.FormatInt(chatID, 10),
		Content:    text,
	}

	replyText, err := c.handler(ctx, inbound)
	if err != nil {
		c.logger.Error("inbound handler error", "chat_id", chatID, "error", err)
		c.reply(chatID, "Something went wrong processing that update.")
		return
	}
	if replyText != "" {
		c.reply(chatID, replyText)
	}
}

func (c *Connector) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		help := strings.Join([]string{
			"Send me your standup update and I'll push it to the issue tracker.",
			"",
			"Mention issues by number, e.g.:",
			"  \"finished #202, close it\"",
			"  \"still blocked on issue 120\"",
			"",
			"Voice messages work too.",
		}, "\n")
		c.reply(msg.Chat.ID, help)
	default:
		c.reply(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

// reply sends HTML-formatted text, falling back to plain text when Telegram
// rejects the markup.
func (c *Connector) reply(chatID int64, text string) {
	tgMsg := tgbotapi.NewMessage(chatID, text)
	tgMsg.ParseMode = "HTML"
	tgMsg.DisableWebPagePreview = true

	if _, err := c.bot.Send(tgMsg); err != nil {
		c.logger.Warn("HTML send failed, falling back to plain text", "chat_id", chatID, "error", err)
		tgMsg.ParseMode = ""
		c.bot.Send(tgMsg)
	}
}

// transcribeVoice downloads a Telegram voice message and runs it through the
// transcription service.
func (c *Connector) transcribeVoice(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	if c.transcriber == nil || !c.transcriber.Configured() {
		return "", fmt.Errorf("voice transcription not configured")
	}

	var fileID string
	if msg.Voice != nil {
		fileID = msg.Voice.FileID
	} else {
		fileID = msg.Audio.FileID
	}

	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("get file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status %d", resp.StatusCode)
	}

	// Telegram caps voice messages at 20MB.
	body := io.LimitReader(resp.Body, 25<<20)
	return c.transcriber.Transcribe(ctx, body, "voice.ogg")
}

func speakerName(msg *tgbotapi.Message) string {
	if msg.From.FirstName != "" {
		return msg.From.FirstName
	}
	return msg.From.UserName
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
