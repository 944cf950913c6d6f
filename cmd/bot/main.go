package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mvalkon/chatwarden/internal/antidelete"
	"github.com/mvalkon/chatwarden/internal/cache"
	"github.com/mvalkon/chatwarden/internal/command"
	"github.com/mvalkon/chatwarden/internal/convo"
	"github.com/mvalkon/chatwarden/internal/dispatch"
	"github.com/mvalkon/chatwarden/internal/game"
	"github.com/mvalkon/chatwarden/internal/plugins"
	"github.com/mvalkon/chatwarden/internal/responder"
	"github.com/mvalkon/chatwarden/internal/scheduler"
	"github.com/mvalkon/chatwarden/internal/storage"
	"github.com/mvalkon/chatwarden/internal/supervisor"
	"github.com/mvalkon/chatwarden/internal/transport"
	"github.com/mvalkon/chatwarden/internal/transport/telegram"
	"github.com/mvalkon/chatwarden/internal/viewonce"
	"github.com/mvalkon/chatwarden/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// A missing .env is fine, real deployments set the environment directly
	_ = godotenv.Load()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}
	if cfg.Telegram.Token == "" {
		logger.Fatal("TELEGRAM_TOKEN is required")
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.URL == "" {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using SQL storage", zap.String("url", cfg.Database.URL))
		store, err = storage.NewSQLStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Caches and conversation manager
	messages := cache.NewMessageCache(cfg.Cache.MessagesPerChat, cfg.Cache.MessageMaxAge, logger)
	settings := cache.NewSettingsCache(cfg.Cache.SettingsTTL, logger)
	conversations := convo.NewManager(store, cfg.Convo.MaxTurns, cfg.Convo.IdleTimeout, cfg.Convo.BatchSize, logger)

	// Reply generation is optional, the responder and gpt command stay
	// dormant without an API key
	var generator responder.Generator
	if cfg.OpenAI.APIKey != "" {
		generator = responder.NewOpenAIGenerator(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			logger,
		)
	}

	sudo := command.SudoList(cfg.Bot.Sudo)
	games := game.NewState(0, logger)
	antiDelete := antidelete.NewHandler(messages, settings, store, sudo, logger)
	viewOnce := viewonce.NewHandler(settings, store, logger)
	autoResponder := responder.New(settings, store, conversations, generator, cfg.OpenAI.Personality, logger)

	// Command registry
	registry := command.NewRegistry()
	err = plugins.RegisterAll(registry, plugins.Deps{
		Store:         store,
		Settings:      settings,
		Conversations: conversations,
		Games:         games,
		Generator:     generator,
		Marker:        cfg.Bot.Marker,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Failed to register commands", zap.Error(err))
	}

	pipeline := dispatch.NewPipeline(
		dispatch.Config{
			Marker:        cfg.Bot.Marker,
			BroadcastChat: cfg.Bot.BroadcastChat,
			Sudo:          sudo,
		},
		registry,
		store,
		antiDelete,
		viewOnce,
		games,
		autoResponder,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background maintenance
	sched := scheduler.New(logger)
	sched.Every("message-cache-sweep", cfg.Cache.SweepInterval, antiDelete.Sweep)
	sched.Every("conversation-flush", cfg.Convo.FlushInterval, conversations.Flush)
	sched.Start(ctx)
	defer sched.Stop()

	sup := supervisor.New(
		telegram.NewDialer(cfg.Telegram.Token, logger),
		store,
		supervisor.Handlers{
			OnEvents:   pipeline.HandleBatch,
			OnDeletion: pipeline.HandleDeletion,
			OnReady: func(conn transport.Conn) {
				logger.Info("Connection ready", zap.String("self", conn.SelfID()))
			},
		},
		cfg.Bot.ReconnectDelay,
		logger,
	)

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		// Flush staged conversation turns before giving up
		conversations.Flush(context.Background())
		logger.Fatal("Session ended", zap.Error(err))
	}

	conversations.Flush(context.Background())
	logger.Info("Shutdown complete")
}
