package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"cryptoRateWatch/config"
	"cryptoRateWatch/internal/adapters/binanceclient"
	"cryptoRateWatch/internal/adapters/logger"
	"cryptoRateWatch/internal/utils"
)

func main() {
	outDir := flag.String("out", "data", "directory the quotes CSV is written to")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: os.Stderr})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Market Data Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Symbols:    cfg.Symbols,
		QuoteAsset: cfg.QuoteAsset,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	observedAt := time.Now().UTC()
	quotes, err := binanceClient.FetchLatestQuotes(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching quotes")
		log.Fatalf("Error fetching quotes: %v", err)
	}
	appLogger.Info(ctx, "Fetched quotes", map[string]interface{}{"count": len(quotes)})

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Error creating output directory: %v", err)
	}
	filename := filepath.Join(*outDir, fmt.Sprintf("quotes_%s.csv", observedAt.Format("20060102T150405Z")))
	if err := utils.WriteQuotesToCSV(quotes, observedAt, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
