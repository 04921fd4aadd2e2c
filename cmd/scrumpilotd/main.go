package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	apiPkg "github.com/scrumpilot-io/scrumpilot/internal/api"
	"github.com/scrumpilot-io/scrumpilot/internal/config"
	"github.com/scrumpilot-io/scrumpilot/internal/connector"
	slackconn "github.com/scrumpilot-io/scrumpilot/internal/connector/slack"
	"github.com/scrumpilot-io/scrumpilot/internal/connector/telegram"
	"github.com/scrumpilot-io/scrumpilot/internal/extract"
	"github.com/scrumpilot-io/scrumpilot/internal/gitlab"
	"github.com/scrumpilot-io/scrumpilot/internal/ingest"
	"github.com/scrumpilot-io/scrumpilot/internal/logring"
	"github.com/scrumpilot-io/scrumpilot/internal/oracle"
	"github.com/scrumpilot-io/scrumpilot/internal/pipeline"
	"github.com/scrumpilot-io/scrumpilot/internal/status"
	"github.com/scrumpilot-io/scrumpilot/internal/store"
	"github.com/scrumpilot-io/scrumpilot/internal/syncer"
	"github.com/scrumpilot-io/scrumpilot/internal/transcribe"
	"github.com/scrumpilot-io/scrumpilot/pkg/protocol"
)

func main() {
	godotenv.Load()

	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	ring := logring.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logring.NewHandler(jsonHandler, ring))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("scrumpilotd starting", "project", cfg.Tracker.ProjectID)

	// 1. Oracle
	var orc oracle.Oracle
	switch cfg.Oracle.Type {
	case "anthropic":
		var opts []oracle.AnthropicOption
		if cfg.Oracle.BaseURL != "" {
			opts = append(opts, oracle.WithAnthropicBaseURL(cfg.Oracle.BaseURL))
		}
		if cfg.Oracle.Model != "" {
			opts = append(opts, oracle.WithAnthropicModel(cfg.Oracle.Model))
		}
		orc = oracle.NewAnthropic(cfg.Oracle.APIKey, opts...)
	default: // "openai" or empty
		var opts []oracle.OpenAIOption
		if cfg.Oracle.BaseURL != "" {
			opts = append(opts, oracle.WithBaseURL(cfg.Oracle.BaseURL))
		}
		if cfg.Oracle.Model != "" {
			opts = append(opts, oracle.WithModel(cfg.Oracle.Model))
		}
		orc = oracle.NewOpenAI(cfg.Oracle.APIKey, opts...)
	}
	logger.Info("oracle initialized", "type", orc.Name(), "model", cfg.Oracle.Model)

	// 2. Tracker client + status mapper + sync engine
	tracker := gitlab.NewClient(gitlab.Config{
		BaseURL:   cfg.Tracker.BaseURL,
		Token:     cfg.Tracker.Token,
		ProjectID: cfg.Tracker.ProjectID,
	})
	if !tracker.Configured() {
		logger.Warn("tracker not configured; running in extract-only mode")
	}
	mapper := status.NewMapper(tracker, logger.With("component", "status"))
	engine := syncer.NewEngine(tracker, mapper, logger.With("component", "syncer"))

	// 3. Store
	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// 4. Extraction pipeline
	extractor := extract.New(orc, logger.With("component", "extract"))
	pipe := pipeline.New(extractor, engine, mapper, db, logger.With("component", "pipeline"))

	var transcriber *transcribe.Client
	if cfg.Whisper.APIKey != "" {
		var opts []transcribe.Option
		if cfg.Whisper.URL != "" {
			opts = append(opts, transcribe.WithURL(cfg.Whisper.URL))
		}
		if cfg.Whisper.Model != "" {
			opts = append(opts, transcribe.WithModel(cfg.Whisper.Model))
		}
		transcriber = transcribe.New(cfg.Whisper.APIKey, opts...)
		logger.Info("transcription enabled", "model", cfg.Whisper.Model)
	}

	svc := &coreService{
		extractor:   extractor,
		engine:      engine,
		mapper:      mapper,
		pipe:        pipe,
		db:          db,
		tracker:     tracker,
		transcriber: transcriber,
		projectID:   cfg.Tracker.ProjectID,
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Webhook ingestion
	var receiver *ingest.Receiver
	if len(cfg.Ingest.Endpoints) > 0 {
		receiver = ingest.NewReceiver(cfg.Ingest.Endpoints, func(sessionID, transcript string) {
			if _, err := pipe.ProcessTranscript(ctx, cfg.Tracker.ProjectID, transcript, true); err != nil {
				logger.Error("webhook transcript processing failed", "session", sessionID, "error", err)
			}
		}, logger.With("component", "ingest"))
		logger.Info("webhook ingestion enabled", "endpoints", len(cfg.Ingest.Endpoints))
	}

	// 6. Retry sweeper
	if cfg.Sweeper.Schedule != "" {
		sweeper := pipeline.NewSweeper(db, engine, logger.With("component", "sweeper"))
		go safeGo(logger, "sweeper", func() { sweeper.Start(ctx, cfg.Sweeper.Schedule) })
	}

	// 7. Connectors
	if cfg.Connectors.Telegram != nil {
		handler := standupHandler(svc, telegram.FormatResults)
		tgConn, err := telegram.New(
			telegram.Config{
				Token:     cfg.Connectors.Telegram.Token,
				AllowFrom: cfg.Connectors.Telegram.AllowFrom,
			},
			handler,
			transcriber,
			logger.With("connector", "telegram"),
		)
		if err != nil {
			logger.Error("failed to init telegram connector", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })
	}

	if cfg.Connectors.Slack != nil {
		handler := standupHandler(svc, slackconn.FormatResults)
		slConn, err := slackconn.New(
			slackconn.Config{
				BotToken: cfg.Connectors.Slack.BotToken,
				AppToken: cfg.Connectors.Slack.AppToken,
				Channels: cfg.Connectors.Slack.Channels,
			},
			handler,
			logger.With("connector", "slack"),
		)
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "slack", func() { slConn.Start(ctx) })
	}

	// 8. API server
	apiSrv := apiPkg.NewServer(svc, apiPkg.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
		Key:  cfg.Server.Key,
	}, logger.With("component", "api"), ring, receiverOrNil(receiver))

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.Server.Port)

	// 9. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("scrumpilotd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

// receiverOrNil keeps the api.WebhookReceiver interface nil when ingestion
// is disabled, instead of a non-nil interface holding a nil pointer.
func receiverOrNil(r *ingest.Receiver) apiPkg.WebhookReceiver {
	if r == nil {
		return nil
	}
	return r
}

// standupHandler turns a chat message into a processed, auto-synced standup
// update and formats the outcome with the platform's formatter.
func standupHandler(svc *coreService, format func([]protocol.UpdateIntent, []protocol.SyncResult) string) connector.InboundHandler {
	return func(ctx context.Context, msg connector.InboundMessage) (string, error) {
		line := msg.Content
		if name := firstWord(msg.SenderName); name != "" {
			line = fmt.Sprintf("Speaker %s: %s", name, msg.Content)
		}
		result, err := svc.ProcessMeeting(ctx, svc.projectID, line, true)
		if err != nil {
			return "", err
		}
		return format(result.Intents, result.Synced), nil
	}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// coreService implements api.Service over the assembled components.
type coreService struct {
	extractor   *extract.Extractor
	engine      *syncer.Engine
	mapper      *status.Mapper
	pipe        *pipeline.Pipeline
	db          store.Store
	tracker     *gitlab.Client
	transcriber *transcribe.Client
	projectID   string
}

func (s *coreService) ParseTranscript(ctx context.Context, transcript, speaker string) ([]protocol.UpdateIntent, error) {
	return s.extractor.Extract(ctx, transcript, speaker, s.mapper.Statuses(ctx))
}

func (s *coreService) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if s.transcriber == nil || !s.transcriber.Configured() {
		return "", fmt.Errorf("transcription not configured")
	}
	return s.transcriber.Transcribe(ctx, audio, filename)
}

func (s *coreService) ProcessMeeting(ctx context.Context, projectID, transcript string, autoSync bool) (*pipeline.ProcessResult, error) {
	if projectID == "" {
		projectID = s.projectID
	}
	return s.pipe.ProcessTranscript(ctx, projectID, transcript, autoSync)
}

func (s *coreService) SyncIntent(ctx context.Context, intent protocol.UpdateIntent) (protocol.SyncResult, error) {
	return s.engine.Apply(ctx, intent)
}

func (s *coreService) SyncIntents(ctx context.Context, intents []protocol.UpdateIntent) []protocol.SyncResult {
	return s.pipe.SyncIntents(ctx, intents)
}

func (s *coreService) ListMeetings(projectID string) ([]*protocol.Meeting, error) {
	return s.db.ListMeetings(projectID)
}

func (s *coreService) GetMeeting(id string) (*protocol.Meeting, error) {
	return s.db.GetMeeting(id)
}

func (s *coreService) ListMeetingUpdates(meetingID string) ([]*protocol.UpdateRecord, error) {
	return s.db.ListUpdatesByMeeting(meetingID)
}

func (s *coreService) MeetingStats() (*protocol.MeetingStats, error) {
	return s.db.Stats()
}

func (s *coreService) ListUnsynced() ([]*protocol.UpdateRecord, error) {
	return s.db.ListUnsynced()
}

func (s *coreService) Statuses(ctx context.Context) []protocol.StatusDescriptor {
	return s.mapper.Statuses(ctx)
}

func (s *coreService) ValidateTracker(ctx context.Context) (*gitlab.Project, error) {
	if !s.tracker.Configured() {
		return nil, syncer.ErrNotConfigured
	}
	return s.tracker.ValidateProject(ctx)
}

func (s *coreService) ListIssues(ctx context.Context, state string) ([]gitlab.Issue, error) {
	if !s.tracker.Configured() {
		return nil, syncer.ErrNotConfigured
	}
	return s.tracker.ListIssues(ctx, state)
}
