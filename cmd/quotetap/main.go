// quotetap connects to a quote feed, opens a handful of tagged
// subscriptions on the same symbol, prints decoded quotes, and tears
// everything down in lifecycle order.
// Usage: go run ./cmd/quotetap --config configs/quotetap.yaml
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

	"github.com/dxtools/quotetap/internal/config"
	"github.com/dxtools/quotetap/internal/console"
	"github.com/dxtools/quotetap/internal/database"
	"github.com/dxtools/quotetap/internal/feed"
	"github.com/dxtools/quotetap/internal/model"
	"github.com/dxtools/quotetap/internal/recorder"
	"github.com/dxtools/quotetap/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/quotetap.yaml", "path to config file")
	symbol := flag.String("symbol", "", "override the configured symbol")
	verbose := flag.Bool("verbose", false, "force debug logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *symbol != "" {
		cfg.Subscriptions.Symbol = *symbol
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting quotetap",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"feed_url", cfg.Feed.URL,
		"symbol", cfg.Subscriptions.Symbol,
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

	printer := console.NewPrinter(os.Stdout)

	// Open the feed session
	connCfg := feed.ConnConfig{
		URL:               cfg.Feed.URL,
		Token:             cfg.Feed.Token,
		SubscribeTimeout:  cfg.Feed.SubscribeTimeout,
		ReconnectBaseWait: cfg.Feed.ReconnectBaseWait,
		ReconnectMaxWait:  cfg.Feed.ReconnectMaxWait,
		PingInterval:      cfg.Feed.PingInterval,
		PingTimeout:       cfg.Feed.PingTimeout,
		WriteTimeout:      cfg.Feed.WriteTimeout,
		FrameBufferSize:   cfg.Feed.FrameBufferSize,
		QueueSize:         cfg.Feed.QueueSize,
		MaxSubscriptions:  config.MaxSubscriptionCount,
	}

	conn, err := feed.Dial(ctx, connCfg, logger)
	if err != nil {
		logger.Error("failed to open feed session", "error", err)
		printer.LastError(feed.LastError{
			Code:        feed.CodeConnectFailed,
			Description: err.Error(),
		})
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		conn.Close(shutdownCtx)
	}()

	logger.Info("feed session open", "session", conn.SessionID())

	// Optional quote recorder
	var recBuf *feed.GrowableBuffer[model.Quote]
	if cfg.Recorder.Enabled {
		logger.Info("connecting recorder database",
			"host", cfg.Recorder.Database.Host,
			"database", cfg.Recorder.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			logger.Error("failed to connect recorder database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		recBuf = feed.NewGrowableBuffer[model.Quote](cfg.Recorder.BufferSize)
		rec := recorder.NewQuoteWriter(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
		}, recBuf, pool, logger)

		if err := rec.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			rec.Stop(stopCtx)
		}()
	}

	// Create the staggered subscription sequence
	subs := make(map[int]*feed.Subscription)
	for tag := 1; tag <= cfg.Subscriptions.Count; tag++ {
		sub, err := setupSubscription(ctx, conn, tag, cfg.Subscriptions.Symbol, printer, recBuf)
		if err != nil {
			logger.Error("subscription setup failed", "tag", tag, "error", err)
			printer.LastError(conn.LastError())
		} else {
			subs[tag] = sub
		}

		if !sleepCtx(ctx, cfg.Subscriptions.StaggerDelay) {
			break
		}
	}

	// Close one subscription early to show independent teardown
	if sub, ok := subs[cfg.Subscriptions.CloseTag]; ok && ctx.Err() == nil {
		logger.Info("closing subscription early", "tag", sub.Tag())
		if err := sub.Close(ctx); err != nil {
			logger.Error("early close failed", "tag", sub.Tag(), "error", err)
			printer.LastError(conn.LastError())
		}
		sleepCtx(ctx, cfg.Subscriptions.Linger)
	}

	stats := conn.Stats()
	logger.Info("shutting down",
		"connected", stats.Connected,
		"subscriptions", stats.Subscriptions,
		"symbols", stats.Symbols,
	)
}

// setupSubscription runs the create / attach / add-symbol sequence for one
// tagged subscription. Each step is error-checked; the first failure aborts.
func setupSubscription(
	ctx context.Context,
	conn *feed.Conn,
	tag int,
	symbol string,
	printer *console.Printer,
	recBuf *feed.GrowableBuffer[model.Quote],
) (*feed.Subscription, error) {
	sub, err := conn.CreateSubscription(tag, model.EventQuote)
	if err != nil {
		return nil, err
	}

	listener := func(q model.Quote) {
		printer.Quote(tag, tag, q)
		if recBuf != nil {
			recBuf.Send(q)
		}
	}
	if err := sub.AttachListener(listener); err != nil {
		return nil, err
	}

	if err := sub.AddSymbol(ctx, symbol); err != nil {
		return nil, err
	}

	return sub, nil
}

// sleepCtx sleeps for d and reports whether the context is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// logLevel maps a config level string to a slog level.
func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
