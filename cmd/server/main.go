// Package main is the entry point for the guildgate HTTP server.
//
// main stays minimal. Its job is to:
//  1. Read configuration (.env, then environment)
//  2. Create dependencies (logger, store, dispatcher, outbox, providers)
//  3. Start the server and register what must be torn down after it
//
// All actual logic lives in imported packages (internal/server, internal/service, ...).
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/guildgate/internal/auth"
	"github.com/sakif/guildgate/internal/config"
	"github.com/sakif/guildgate/internal/logging"
	"github.com/sakif/guildgate/internal/notify"
	"github.com/sakif/guildgate/internal/notify/discord"
	"github.com/sakif/guildgate/internal/payment"
	"github.com/sakif/guildgate/internal/payment/stripe"
	"github.com/sakif/guildgate/internal/server"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Logging)

	store, err := server.OpenStore(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === NOTIFICATIONS ===
	// Without a bot token the server still runs; messages are only logged.
	var (
		dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
		bot        *discord.Client
	)
	if cfg.Discord.BotToken != "" {
		bot, err = discord.New(cfg.Discord.BotToken, cfg.Discord.StaffChannelID, logger)
		if err != nil {
			logger.Error("failed to create Discord client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		dispatcher = bot
	} else {
		logger.Warn("DISCORD_BOT_TOKEN not set: notifications are logged, not sent")
	}

	outbox := notify.NewOutbox(dispatcher, notify.OutboxConfig{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Policy: notify.Policy{
			Timeout:     cfg.Notify.Timeout,
			MaxAttempts: cfg.Notify.MaxAttempts,
			Backoff:     500 * time.Millisecond,
		},
	}, logger)
	outbox.Start()

	// === PAYMENTS ===
	deps := server.Deps{
		Store:  store,
		Jobs:   outbox,
		SignIn: auth.NewDiscordProvider(cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Discord.CallbackURL),
	}
	if cfg.Stripe.SecretKey != "" {
		provider := stripe.New(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
		deps.Checkout = provider
		if cfg.Stripe.WebhookSecret != "" {
			deps.Verifiers = []payment.WebhookVerifier{provider}
		} else {
			logger.Warn("STRIPE_WEBHOOK_SECRET not set: card payments will never be reconciled")
		}
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set: card payments are disabled")
	}

	srv, err := server.New(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Hooks run in reverse: drain the outbox while the bot and store are
	// still open, then close the bot, then the store.
	srv.OnShutdown(func(context.Context) error { return store.Close() })

	if bot != nil {
		bot.HandleInteractions(srv.Activation())
		if err := bot.Open(); err != nil {
			logger.Error("failed to open Discord gateway", slog.String("error", err.Error()))
			os.Exit(1)
		}
		srv.OnShutdown(func(context.Context) error { return bot.Close() })
	}

	srv.OnShutdown(outbox.Stop)

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
}
