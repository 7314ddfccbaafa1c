package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for fatal errors outside the app logger
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoRateWatch/config"
	"cryptoRateWatch/internal/adapters/binanceclient"
	"cryptoRateWatch/internal/adapters/httpapi"
	"cryptoRateWatch/internal/adapters/logger"
	"cryptoRateWatch/internal/adapters/sink"
	"cryptoRateWatch/internal/adapters/sqlite"
	"cryptoRateWatch/internal/app"
	"cryptoRateWatch/internal/eventbus"
)

func main() {
	if err := run(); err != nil {
		log.Printf("FATAL: %v", err) // Use standard log; the app logger may not exist yet
		os.Exit(1)
	}
}

// run wires the application and blocks until shutdown. Deferred cleanup runs before it returns.
func run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: os.Stdout})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// Cancel everything on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger.With("sqlite"),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		return fmt.Errorf("failed to initialize database repository: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Market Data Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Symbols:    cfg.Symbols,
		QuoteAsset: cfg.QuoteAsset,
		Logger:     appLogger.With("binance"),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		return fmt.Errorf("failed to initialize Binance client: %w", err)
	}
	if err := binanceClient.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Binance ping failed; ingestion cycles will retry", map[string]interface{}{"error": err.Error()})
	}

	// 5. Event bus and sinks
	bus := eventbus.New(eventbus.Options{Mode: cfg.DispatchMode, MaxConcurrency: cfg.DispatchMaxConcurrency})
	sink.NewLogSink(appLogger.With("sink")).Register(bus)
	if cfg.SinkForwardAddr != "" {
		streamSink, err := sink.DialStreamSink(ctx, cfg.SinkForwardAddr, appLogger.With("stream-sink"))
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to connect stream sink")
			return fmt.Errorf("failed to connect stream sink: %w", err)
		}
		defer streamSink.Close()
		streamSink.Register(bus)
	}

	// 6. Initialize Application Service
	watchService, err := app.NewWatchService(cfg, appLogger.With("app"), binanceClient, repo, repo, bus)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize watch service")
		return fmt.Errorf("failed to initialize watch service: %w", err)
	}
	appLogger.Info(ctx, "Watch service initialized")

	// 7. HTTP API
	if cfg.HTTPEnabled {
		server, err := httpapi.New(httpapi.Config{
			Port:      cfg.HTTPPort,
			Logger:    appLogger.With("http"),
			Positions: watchService.Positions,
			Rates:     watchService,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize HTTP server")
			return fmt.Errorf("failed to initialize HTTP server: %w", err)
		}
		go func() {
			if err := server.Start(); err != nil {
				appLogger.Error(ctx, err, "HTTP server exited with error")
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				appLogger.Error(shutdownCtx, err, "Error shutting down HTTP server")
			}
		}()
	}

	// 8. Run until signalled
	if err := watchService.Start(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Watch service exited with error")
		return err
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
	return nil
}
