package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agenthub/internal/config"
	"github.com/nextlevelbuilder/agenthub/internal/delivery"
	"github.com/nextlevelbuilder/agenthub/internal/dispatch"
	"github.com/nextlevelbuilder/agenthub/internal/gateway"
	"github.com/nextlevelbuilder/agenthub/internal/hub"
	"github.com/nextlevelbuilder/agenthub/internal/inbound"
	"github.com/nextlevelbuilder/agenthub/internal/jobs"
	"github.com/nextlevelbuilder/agenthub/internal/outbound"
	"github.com/nextlevelbuilder/agenthub/internal/store"
	"github.com/nextlevelbuilder/agenthub/internal/store/pg"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the message hub",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	stores, cleanup, err := openStores(cfg)
	if err != nil {
		slog.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := jobs.NewTimerQueue(cfg.Dispatch.Workers)
	queue.Start(ctx)
	defer queue.Stop()

	deliverer := delivery.New()
	dispatcher := dispatch.NewDispatcher(stores, queue, deliverer)

	inboundReg := inbound.NewRegistry()
	inboundReg.Register(inbound.NewTwilioAdapter())
	inboundReg.Register(inbound.NewMetaAdapter())
	inboundReg.Register(inbound.NewTelegramAdapter())
	inboundReg.Register(inbound.NewGenericAdapter())

	outboundReg := outbound.NewRegistry()
	outboundReg.Register(outbound.NewTwilioAdapter())
	outboundReg.Register(outbound.NewMetaAdapter())
	outboundReg.Register(outbound.NewTelegramAdapter())
	outboundReg.Register(outbound.NewGenericAdapter())

	wsRegistry := gateway.NewRegistry()
	processor := hub.NewProcessor(stores, inboundReg, dispatcher, wsRegistry)
	sender := outbound.NewMessageSender(stores, outboundReg, wsRegistry)

	server := gateway.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, processor, sender, wsRegistry)
	if err := server.Start(ctx); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if verbose || level == "debug" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

// openStores selects the backend: Postgres when a DSN is configured,
// process memory otherwise.
func openStores(cfg *config.Config) (*store.Stores, func(), error) {
	if cfg.Database.DSN == "" {
		slog.Info("no database DSN configured, using in-memory store")
		return store.NewMemoryStores(), func() {}, nil
	}

	db, err := pg.OpenDB(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("connected to postgres")
	return pg.NewPGStores(db), func() { db.Close() }, nil
}
