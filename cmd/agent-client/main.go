package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lovefi/agent-client/internal/composition/agentclient"
	"lovefi/agent-client/internal/config"
	"lovefi/agent-client/internal/envelope"
	"lovefi/agent-client/internal/matching"
	"lovefi/agent-client/internal/platform/privacylog"
	"lovefi/agent-client/internal/transport"
	"lovefi/agent-client/pkg/models"
)

const (
	exitOK            = 0
	exitInvalidInput  = 10
	exitNetworkFailed = 20
	exitRejected      = 30
	exitVerifyFailed  = 40
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to agent.yaml (optional)")
	target := flag.String("target", "", "Matcher agent address override")
	endpoints := flag.String("endpoints", "", "Comma-separated /submit URLs override")
	profilesPath := flag.String("profiles", "", "JSON file with profile1 and profile2 (defaults to the built-in example)")
	listen := flag.String("listen", "", "Listen address for asynchronous replies (optional)")
	wait := flag.Duration("wait", 30*time.Second, "How long to wait for an asynchronous reply")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()
	if *showVersion {
		writeStdoutf(exitOK, "agent-client version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	logger := newLogger(*verbose)
	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	if v := strings.TrimSpace(*target); v != "" {
		cfg.Client.Target = v
	}
	if list := splitCSV(*endpoints); len(list) > 0 {
		cfg.Client.Endpoints = list
	}
	req, err := loadRequest(*profilesPath)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}

	id, err := agentclient.LoadIdentity(cfg.Identity)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	client, err := agentclient.NewClientFromConfig(cfg, id, nil, logger)
	if err != nil {
		writeStderrln(err.Error(), exitInvalidInput)
	}
	logger.Info("agent client ready", "address", id.Address, "target", cfg.Client.Target)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var replies chan agentclient.MatchResult
	if addr := strings.TrimSpace(*listen); addr != "" {
		replies = make(chan agentclient.MatchResult, 1)
		svc, err := agentclient.NewReplyReceiverFromConfig(cfg, client, addr, func(r agentclient.MatchResult) {
			select {
			case replies <- r:
			default:
			}
		}, logger)
		if err != nil {
			writeStderrln(err.Error(), exitInvalidInput)
		}
		go func() {
			if err := svc.Run(ctx); err != nil {
				logger.Error("reply listener failed", "error", err.Error())
			}
		}()
	}

	result, err := client.RequestMatch(ctx, req.Profile1, req.Profile2)
	if err != nil {
		writeStderrln(err.Error(), exitCodeFor(err))
	}
	if result.Response == nil && replies != nil {
		result, err = awaitReply(ctx, replies, result.Session, *wait)
		if err != nil {
			writeStderrln(err.Error(), exitNetworkFailed)
		}
	}
	if result.Response == nil {
		if err := printJSON(map[string]any{"status": result.Ack, "session": result.Session}); err != nil {
			os.Exit(exitNetworkFailed)
		}
		return
	}
	if err := printJSON(matching.Summarize(*result.Response, result.Authenticated)); err != nil {
		os.Exit(exitNetworkFailed)
	}
}

func awaitReply(ctx context.Context, replies <-chan agentclient.MatchResult, session string, wait time.Duration) (agentclient.MatchResult, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case r := <-replies:
			if r.Session == session {
				return r, nil
			}
		case <-timer.C:
			return agentclient.MatchResult{}, fmt.Errorf("no reply for session %s within %s", session, wait)
		case <-ctx.Done():
			return agentclient.MatchResult{}, ctx.Err()
		}
	}
}

func loadRequest(path string) (models.MatchingRequest, error) {
	if strings.TrimSpace(path) == "" {
		return exampleRequest(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.MatchingRequest{}, err
	}
	var req models.MatchingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return models.MatchingRequest{}, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	return req, nil
}

func exampleRequest() models.MatchingRequest {
	return models.MatchingRequest{
		Profile1: models.Profile{
			Age:       28,
			Interests: []string{"hiking", "reading", "cooking", "travel"},
			Location:  "New York",
			Name:      "Alice",
			Bio:       "Love exploring new places and trying new cuisines!",
		},
		Profile2: models.Profile{
			Age:       30,
			Interests: []string{"hiking", "music", "cooking", "photography"},
			Location:  "New York",
			Name:      "Bob",
			Bio:       "Outdoor enthusiast and music lover",
		},
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, matching.ErrInvalidProfile), errors.Is(err, envelope.ErrBuild):
		return exitInvalidInput
	case errors.Is(err, transport.ErrRejected):
		return exitRejected
	case errors.Is(err, transport.ErrTransport):
		return exitNetworkFailed
	case errors.Is(err, agentclient.ErrUnsignedReply),
		errors.Is(err, agentclient.ErrUnexpectedReply),
		errors.Is(err, agentclient.ErrReplySessionChanged),
		errors.Is(err, matching.ErrInvalidResponse):
		return exitVerifyFailed
	}
	if _, ok := envelope.RejectCodeOf(err); ok {
		return exitVerifyFailed
	}
	return exitNetworkFailed
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStdoutf(exitCode int, format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stdout, format, args...); err != nil {
		os.Exit(exitCode)
	}
}

func writeStderrln(line string, exitCode int) {
	if _, err := fmt.Fprintln(os.Stderr, line); err != nil {
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}
