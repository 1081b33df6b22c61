package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lovefi/agent-client/internal/composition/agentclient"
	"lovefi/agent-client/internal/config"
	"lovefi/agent-client/internal/platform/metrics"
	"lovefi/agent-client/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to agent.yaml (optional)")
	listenAddr := flag.String("listen", "", "Listen address override")
	expectedSender := flag.String("expected-sender", "", "Only accept envelopes from this address (optional)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()
	if *showVersion {
		fmt.Printf("agent-receiver version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		fatal(logger, "agent-receiver failed to load config", err)
	}
	if v := strings.TrimSpace(*listenAddr); v != "" {
		cfg.Receiver.ListenAddr = v
	}
	if v := strings.TrimSpace(*expectedSender); v != "" {
		cfg.Receiver.ExpectedSender = v
	}

	id, err := agentclient.LoadIdentity(cfg.Identity)
	if err != nil {
		fatal(logger, "agent-receiver failed to load identity", err)
	}
	var m *metrics.Recorder
	if cfg.Receiver.MetricsEnabled {
		m = metrics.New()
	}
	responder, err := agentclient.NewResponderFromConfig(cfg, id, m, logger)
	if err != nil {
		fatal(logger, "agent-receiver failed to initialize", err)
	}
	svc, err := agentclient.NewReceiverFromConfig(cfg, responder, m, logger)
	if err != nil {
		fatal(logger, "agent-receiver failed to initialize", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("agent-receiver starting", "address", id.Address, "trusted_senders", len(svc.TrustedAddresses()))
	if err := svc.Run(ctx); err != nil {
		stop()
		fatal(logger, "agent-receiver failed", err)
	}
	logger.Info("agent-receiver stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err.Error())
	os.Exit(1)
}
