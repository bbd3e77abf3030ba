package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/guildgate/internal/access"
	"github.com/sakif/guildgate/internal/config"
	"github.com/sakif/guildgate/internal/logging"
	"github.com/sakif/guildgate/internal/notify"
	"github.com/sakif/guildgate/internal/notify/discord"
	"github.com/sakif/guildgate/internal/repository"
	"github.com/sakif/guildgate/internal/server"
	"github.com/sakif/guildgate/internal/service"
)

// app is what one command invocation needs. Notifications run inline so a
// review made here reaches the subject before the process exits.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      repository.Store
	activation *service.ActivationService
	payments   *service.PaymentService
}

// openApp loads operator configuration and opens the store. Logs go to the
// command's stderr so stdout stays clean for tables.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadOperator()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())

	store, err := server.OpenStore(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.Discord.BotToken != "" {
		// Direct messages and role grants are plain REST calls; no gateway
		// connection is needed for a one-shot command.
		bot, err := discord.New(cfg.Discord.BotToken, cfg.Discord.StaffChannelID, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		dispatcher = bot
	}
	jobs := notify.NewImmediate(dispatcher, notify.Policy{
		Timeout:     cfg.Notify.Timeout,
		MaxAttempts: cfg.Notify.MaxAttempts,
		Backoff:     500 * time.Millisecond,
	}, logger)

	role := service.RoleGrant{GuildID: cfg.Discord.GuildID, RoleID: cfg.Discord.ActivatedRoleID}
	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		activation: service.NewActivationService(store, jobs, role, logger),
		payments: service.NewPaymentService(store, nil, jobs, service.PaymentConfig{
			LocalCurrency: cfg.Payments.LocalCurrency,
			LocalRate:     cfg.Payments.LocalRate,
			PublicBaseURL: cfg.HTTP.PublicBaseURL,
		}, logger),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

// viewer resolves the --as profile id the way the gate resolves a session.
func (a *app) viewer(ctx context.Context, subjectID string) (access.Viewer, error) {
	if subjectID == "" {
		return access.Viewer{}, fmt.Errorf("--as is required")
	}
	p, err := a.store.GetProfileByID(ctx, subjectID)
	if err != nil {
		return access.Viewer{}, fmt.Errorf("resolving --as %s: %w", subjectID, err)
	}
	return access.NewViewer(p.ID, p), nil
}

// withApp opens the app around run.
func withApp(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, args, a)
	}
}
