// Package main is the entry point for TradeQuest.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tradequest-go/application"
	"tradequest-go/core/event"
	"tradequest-go/core/eventbus"
	"tradequest-go/domain/market"
	"tradequest-go/domain/storage"
	"tradequest-go/infrastructure/config"
	"tradequest-go/infrastructure/logging"
	"tradequest-go/infrastructure/metrics"
	"tradequest-go/infrastructure/repository"
	"tradequest-go/presentation"
	"tradequest-go/resources"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Initialize logging (dev: stderr only, prod: rotating file)
	logCfg := logging.DefaultConfig()
	logCfg.JSON = cfg.LogJSON
	if logCfg.Level, err = logging.ParseLevel(cfg.LogLevel); err != nil {
		os.Stderr.WriteString("Invalid LOG_LEVEL: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, closeLog, err := logging.Setup(logCfg)
	if err != nil {
		// Fallback to stderr if logging setup fails
		os.Stderr.WriteString("Failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.Error("TradeQuest exited with error", "error", err)
		closeLog()
		os.Exit(1)
	}
	logger.Info("Application shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("Starting TradeQuest", "store", cfg.StoreBackend, "turns", cfg.GameTurns)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Load tickers
	marketRegistry := market.NewRegistry()
	if err := market.NewLoader(marketRegistry).LoadFromFS(resources.MarketFiles); err != nil {
		return fmt.Errorf("failed to load market: %w", err)
	}
	logger.Info("Market loaded", "tickers", marketRegistry.Count())

	// Initialize event bus
	metricsRegistry := metrics.NewRegistry()
	eventBus := eventbus.New(
		eventbus.WithLogger(logger),
		eventbus.WithObserver(metricsRegistry),
		eventbus.WithFaultHandler(func(f eventbus.Fault) {
			logger.Debug("Subscriber stack", "event", f.Event, "stack", string(f.Stack))
		}),
	)
	defer eventBus.Clear()

	seed := cfg.GameSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	// Initialize coordinator
	coordinator, err := application.NewCoordinator(&application.CoordinatorConfig{
		EventBus:     eventBus,
		Store:        store,
		Market:       marketRegistry,
		Seed:         seed,
		MaxTurns:     cfg.GameTurns,
		StartingCash: cfg.StartingCash,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	defer coordinator.Close()

	// Initialize console presenter
	console := presentation.NewConsole(&presentation.ConsoleConfig{
		Coordinator: coordinator,
		EventBus:    eventBus,
		Out:         os.Stdout,
		Logger:      logger,
	})
	defer console.Close()
	logger.Info("Event bus ready", "catalog_version", event.CatalogVersion, "subscribed_events", len(eventBus.Names()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		server := metrics.NewServer(cfg.MetricsAddr, metricsRegistry, logger)
		g.Go(func() error {
			return server.Start(gctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		if cfg.Autopilot {
			pilot := application.NewAutopilot(coordinator, application.DefaultAutopilotConfig(), logger)
			defer pilot.Close()
			err := playAutopilot(gctx, coordinator, logger)
			logger.Info("Autopilot finished", "trades", pilot.Trades())
			return err
		}
		return playInteractive(gctx, console, os.Stdin, logger)
	})

	return g.Wait()
}

// openStore builds the store selected by STORE_BACKEND.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		redisCfg := repository.DefaultRedisConfig()
		redisCfg.URL = cfg.RedisURL
		redisCfg.Namespace = cfg.StoreNamespace

		store, err := repository.NewRedisStore(ctx, redisCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close Redis", "error", err)
			}
		}, nil

	case config.BackendMongo:
		mongoCfg := repository.DefaultMongoDBConfig()
		mongoCfg.URI = cfg.MongoURI
		mongoCfg.Database = cfg.MongoDatabase
		mongoCfg.Namespace = cfg.StoreNamespace
		mongoCfg.ConnectTimeout = cfg.MongoTimeout

		mongoDB, err := repository.NewMongoDB(ctx, mongoCfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
		}
		return mongoDB.Store(mongoCfg.Collection, mongoCfg.Namespace), func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoDB.Close(closeCtx); err != nil {
				logger.Warn("Failed to close MongoDB", "error", err)
			}
		}, nil

	default:
		return repository.NewMemoryStore(), func() {}, nil
	}
}

// playAutopilot plays one game to the end and saves it.
func playAutopilot(ctx context.Context, coordinator *application.Coordinator, logger *slog.Logger) error {
	if _, err := coordinator.NewGame(0); err != nil {
		return err
	}

	for coordinator.State().CanTrade() {
		if err := ctx.Err(); err != nil {
			logger.Info("Game interrupted", "turn", coordinator.Turn())
			break
		}
		if _, err := coordinator.AdvanceTurn(); err != nil {
			return err
		}
	}

	// Save with a fresh context so an interrupted game is still persisted
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := coordinator.Save(saveCtx)
	return err
}

// playInteractive reads console commands until EOF, "quit" or ctx is cancelled.
func playInteractive(ctx context.Context, console *presentation.Console, in io.Reader, logger *slog.Logger) error {
	done := make(chan struct{})
	defer close(done)
	lines := readLines(done, in, logger)

	_ = console.Execute(ctx, "help")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.EqualFold(strings.TrimSpace(line), "quit") {
				return nil
			}
			if err := console.Execute(ctx, line); err != nil {
				if errors.Is(err, presentation.ErrUsage) {
					fmt.Fprintln(os.Stdout, err)
					continue
				}
				logger.Warn("Command failed", "command", line, "error", err)
				fmt.Fprintln(os.Stdout, "Error:", err)
			}
		}
	}
}

// readLines sends each line of in until EOF or until done is closed.
// A line read after done is closed is dropped and the reader exits.
func readLines(done <-chan struct{}, in io.Reader, logger *slog.Logger) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case <-done:
				return
			default:
			}
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("Failed to read input", "error", err)
		}
	}()
	return lines
}
