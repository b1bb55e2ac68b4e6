package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"apprentice-gateway/internal/config"
	"apprentice-gateway/internal/observability"
	"apprentice-gateway/internal/provider"
	providerfactory "apprentice-gateway/internal/provider/factory"
	"apprentice-gateway/internal/router"
	"apprentice-gateway/internal/server"
)

const serveUsage = `Usage:
  apprentice-gateway serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (optional; environment variables override it)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	redacted := cfg.Redacted()
	logger.Info("configuration loaded",
		"provider", redacted.Gateway.Provider,
		"max_attempts", redacted.Gateway.Retry.MaxAttempts,
		"retry_delay", redacted.Gateway.Retry.Delay,
		"request_timeout", redacted.Server.RequestTimeout,
		"primary_secret", redacted.Credentials.Primary,
		"secondary_secret", redacted.Credentials.Secondary,
		"runtime", redacted.Deployment.Runtime(),
	)

	metrics := observability.NewMetrics()

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(cfg, registry); err != nil {
		return err
	}

	rt, err := router.New(cfg, registry, logger, metrics)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rt, metrics, logger)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
