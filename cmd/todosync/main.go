// Command todosync is a terminal todo list kept in sync with an embedded or
// networked store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/and161185/todosync/internal/app"
	"github.com/and161185/todosync/internal/backend"
	"github.com/and161185/todosync/internal/config"
	"github.com/and161185/todosync/internal/service"
	"github.com/and161185/todosync/internal/tui"
)

const shutdownGrace = 5 * time.Second

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, wires the todo component over the configured
// backend and runs the terminal UI until the user quits.
func main() {
	// Flags
	variant := flag.String("backend", "", "backend variant: embedded or networked (overrides "+config.EnvBackend+")")
	logFile := flag.String("log-file", filepath.Join(config.DataDir(), "todosync.log"), "log file path")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// The terminal belongs to the UI, so logs go to a file.
	logger, err := newLogger(*logFile, *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
	)

	cfg, err := config.LoadFrom(os.Getenv, config.Variant(*variant))
	if err != nil {
		logger.Error("config", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger.Info("config",
		zap.String("backend", string(cfg.Backend.Variant)),
		zap.String("address", cfg.Backend.Address),
		zap.String("namespace", cfg.Backend.Namespace),
		zap.String("database", cfg.Backend.Database),
		zap.Duration("addDelay", cfg.AddDelay),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Backend handle, initialized on first use
	factory, err := backend.FactoryFor(cfg.Backend, logger)
	if err != nil {
		logger.Fatal("backend", zap.Error(err))
	}
	handles := backend.NewProvider(factory, logger)
	defer func() {
		if err := handles.Close(); err != nil {
			logger.Warn("backend close", zap.Error(err))
		}
	}()

	// Services
	todoSvc := service.NewTodoService(handles, cfg.AddDelay, logger)
	todos := app.New(ctx, todoSvc, app.Options{DispatchTimeout: cfg.DispatchTimeout}, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = todos.Run(runCtx) }()

	changes := make(chan struct{}, 1)
	unsubscribe := todos.Notify(changes)
	defer unsubscribe()

	if err := tui.Run(todos, changes, tea.WithAltScreen(), tea.WithContext(ctx)); err != nil {
		logger.Error("ui", zap.Error(err))
	}

	waitCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
	defer done()
	if _, err := todos.WaitSettled(waitCtx); err != nil {
		logger.Warn("pending dispatches abandoned", zap.Error(err))
	}
	cancel()
	logger.Info("shutdown complete")
}

func newLogger(path string, debug bool) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}
