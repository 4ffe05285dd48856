package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/murr2k/linknode-com/internal/config"
	"github.com/murr2k/linknode-com/internal/eagle"
	"github.com/murr2k/linknode-com/internal/ingest"
	"github.com/murr2k/linknode-com/internal/ratelimit"
	"github.com/murr2k/linknode-com/internal/security"
	"github.com/murr2k/linknode-com/internal/server"
	"github.com/murr2k/linknode-com/internal/store"
	"github.com/murr2k/linknode-com/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/monitor.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"influx_url", cfg.Influx.URL,
		"influx_bucket", cfg.Influx.Bucket,
		"port", cfg.Server.Port,
		"auth_enabled", cfg.Auth.APIKey != "",
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create store client and wait for the backend. The monitor keeps
	// serving even when the store never comes up: writes fail, get
	// counted, and the device still receives acknowledgments.
	st := store.NewClient(
		cfg.Influx.URL,
		cfg.Influx.Token,
		cfg.Influx.Org,
		cfg.Influx.Bucket,
		store.WithWriteTimeout(cfg.Influx.WriteTimeout),
		store.WithLogger(logger),
	)
	defer st.Close()

	if waitForStore(ctx, st, cfg.Influx, logger) {
		logger.Info("influxdb connected", "url", cfg.Influx.URL)
	} else {
		logger.Error("influxdb unreachable, continuing without store",
			"url", cfg.Influx.URL, "retries", cfg.Influx.ConnectRetries)
	}

	// Assemble the pipeline
	eventLog := security.NewEventLog(cfg.Security.LogFile, logger)
	monitor := security.NewMonitor(security.Config{
		MaxAuthFailures:   cfg.Security.MaxAuthFailures,
		MaxRateViolations: cfg.Security.MaxRateViolations,
		Window:            cfg.Security.Window,
	}, eventLog)
	limiter := ratelimit.NewLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	parser := eagle.NewParser(logger)
	ing := ingest.NewService(st, limiter, monitor, parser, cfg.Auth.APIKey, logger)
	handler := server.New(ing, st, monitor, cfg.Auth.AdminKey, cfg.Stats.PricePerKWh, logger)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     handler.Routes(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("monitor exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("monitor stopped")
}

// waitForStore pings the store until it responds or retries run out.
func waitForStore(ctx context.Context, st *store.Client, cfg config.InfluxConfig, logger *slog.Logger) bool {
	for attempt := 1; attempt <= cfg.ConnectRetries; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		ok := st.Ping(pingCtx)
		pingCancel()
		if ok {
			return true
		}

		logger.Warn("waiting for influxdb",
			"attempt", attempt, "max", cfg.ConnectRetries)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(cfg.ConnectDelay):
		}
	}
	return false
}
