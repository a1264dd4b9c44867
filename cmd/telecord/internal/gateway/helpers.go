package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tinyland-inc/telecord/cmd/telecord/internal"
	"github.com/tinyland-inc/telecord/cmd/telecord/internal/migrate"
	"github.com/tinyland-inc/telecord/pkg/auth"
	"github.com/tinyland-inc/telecord/pkg/channels"
	"github.com/tinyland-inc/telecord/pkg/discord"
	"github.com/tinyland-inc/telecord/pkg/forwarder"
	"github.com/tinyland-inc/telecord/pkg/logger"
	"github.com/tinyland-inc/telecord/pkg/metering"
	"github.com/tinyland-inc/telecord/pkg/reminders"
	"github.com/tinyland-inc/telecord/pkg/storage"
	"github.com/tinyland-inc/telecord/pkg/telegram"
)

const shutdownTimeout = 15 * time.Second

type reloader interface {
	ReloadChannels(ctx context.Context) error
}

func gatewayCmd(parent context.Context, configPath string, debug bool) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := storage.Open(cfg.DatabasePath(), migrate.Models()...)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.Close(db); err != nil {
			logger.WarnCF("storage", "Close failed", map[string]any{"error": err.Error()})
		}
	}()

	registry := channels.NewRegistry(db)
	store := reminders.NewStore(db, reminders.Limits{
		MaxGroupsPerUser: cfg.Reminders.MaxGroupsPerUser,
		MaxTextsPerGroup: cfg.Reminders.MaxTextsPerGroup,
	})
	meter := metering.NewStore()

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tg := telegram.New(telegram.Config{
		APIID:       cfg.Telegram.APIID,
		APIHash:     cfg.Telegram.APIHash,
		SessionPath: cfg.SessionPath(),
	})
	if err := tg.Connect(ctx); err != nil {
		// the bot still starts so an admin can run /telegram login
		logger.WarnCF("telegram", "Connect failed", map[string]any{"error": err.Error()})
		fmt.Printf("⚠ Telegram not connected: %v\n", err)
	} else {
		fmt.Println("✓ Telegram connected")
	}
	go tg.Serve(ctx)

	controller := auth.NewController(tg,
		auth.WithScanBuffer(time.Duration(cfg.Auth.ScanBufferSeconds)*time.Second))

	bot, err := discord.New(discord.Config{
		Token:    cfg.Discord.Token,
		GuildID:  cfg.Discord.GuildID,
		OwnerIDs: cfg.Discord.OwnerIDs,
	}, discord.Deps{
		Login:     controller,
		Telegram:  tg,
		Channels:  registry,
		Reminders: store,
		Meter:     meter,
	})
	if err != nil {
		return err
	}

	router := forwarder.New(tg, bot, registry, store,
		forwarder.WithMeter(meter),
		forwarder.WithOnlineNotice(cfg.Forwarder.OnlineNotice),
	)
	bot.SetRouter(router)

	if err := router.Start(ctx); err != nil {
		return fmt.Errorf("error starting forwarder: %w", err)
	}
	fmt.Println("✓ Forwarder started")

	if err := bot.Open(ctx); err != nil {
		_ = router.Stop(ctx)
		return err
	}
	fmt.Println("✓ Discord connected")

	scheduler, err := newReloadScheduler(ctx, cfg.Forwarder.ReloadInterval, router)
	if err != nil {
		logger.ErrorCF("gateway", "Invalid reload interval, periodic reload disabled", map[string]any{
			"interval": cfg.Forwarder.ReloadInterval,
			"error":    err.Error(),
		})
	}
	if scheduler != nil {
		scheduler.Start()
		fmt.Printf("✓ Channel reload scheduled (%s)\n", cfg.Forwarder.ReloadInterval)
	}

	fmt.Println("Press Ctrl+C to stop")
	<-ctx.Done()

	fmt.Println("\nShutting down...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if err := router.Stop(stopCtx); err != nil {
		logger.WarnCF("gateway", "Forwarder stop failed", map[string]any{"error": err.Error()})
	}
	if err := bot.Close(); err != nil {
		logger.WarnCF("gateway", "Discord close failed", map[string]any{"error": err.Error()})
	}
	if err := tg.Close(stopCtx); err != nil {
		logger.WarnCF("gateway", "Telegram close failed", map[string]any{"error": err.Error()})
	}
	fmt.Println("✓ Gateway stopped")
	return nil
}

// newReloadScheduler runs r.ReloadChannels on schedule. An empty schedule
// returns a nil scheduler.
func newReloadScheduler(ctx context.Context, schedule string, r reloader) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}
	c := cron.New(cron.WithLogger(cron.PrintfLogger(logger.NewPrinter("cron"))))
	_, err := c.AddFunc(schedule, func() {
		if err := r.ReloadChannels(ctx); err != nil {
			logger.WarnCF("gateway", "Scheduled channel reload failed", map[string]any{"error": err.Error()})
			return
		}
		logger.DebugC("gateway", "Channels reloaded")
	})
	if err != nil {
		return nil, fmt.Errorf("reload interval %q: %w", schedule, err)
	}
	return c, nil
}
