// Command bridgecheck runs browser checks against a bridge deployment.
//
// Usage:
//
//	bridgecheck -config bridgecheck.yaml     # run against a configured target
//	bridgecheck -url http://localhost:4100   # quick smoke run against a URL
//	bridgecheck -fixture                     # self-test against the built-in fixture
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kembridge/bridgecheck/harness"
	"github.com/kembridge/bridgecheck/stubapp"
)

func main() {
	configPath := flag.String("config", "", "path to bridgecheck.yaml config file")
	targetURL := flag.String("url", "", "base URL of the bridge deployment")
	fixture := flag.Bool("fixture", false, "start the built-in bridge fixture and run against it")
	headless := flag.Bool("headless", true, "run Chrome headless")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *targetURL, *fixture, *headless); err != nil {
		logger.Error("bridgecheck: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, targetURL string, fixture, headless bool) error {
	var cfg *harness.Config
	switch {
	case configPath != "":
		loaded, err := harness.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

	case targetURL != "":
		cfg = harness.DefaultConfig()
		cfg.Target.BaseURL = targetURL

	case fixture:
		srv := stubapp.New(stubapp.Config{Logger: logger})
		addr, err := srv.Start()
		if err != nil {
			return fmt.Errorf("start fixture: %w", err)
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
		logger.Info("fixture started", "addr", addr)

		cfg = harness.DefaultConfig()
		cfg.Target.BaseURL = "http://" + addr

	default:
		fmt.Fprintln(os.Stderr, "usage: bridgecheck -config <file> | -url <base-url> | -fixture")
		os.Exit(1)
		return nil
	}
	cfg.Browser.Headless = headless

	return runSmoke(ctx, logger, cfg)
}

func runSmoke(ctx context.Context, logger *slog.Logger, cfg *harness.Config) error {
	h, err := harness.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.Close(closeCtx)
	}()

	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}

	res, err := h.RunSmoke(ctx)
	if err != nil {
		return fmt.Errorf("smoke: %w", err)
	}

	logger.Info("smoke passed",
		"run", h.RunID(),
		"quote", res.Quote,
		"soft_failures", res.Outcome.SoftFailures,
		"connects", res.Lifecycle.Connects,
		"reconnects", res.Lifecycle.Reconnects,
		"subscriptions", res.Lifecycle.Subscriptions)

	if res.Outcome.SoftFailures > 0 {
		return fmt.Errorf("smoke passed with %d soft failures", res.Outcome.SoftFailures)
	}
	return nil
}
