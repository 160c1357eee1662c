package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ipmon/internal/config"
	"ipmon/internal/logger"
	"ipmon/internal/monitor"
	"ipmon/internal/notify"
	"ipmon/internal/registrar"
	"ipmon/internal/resolver"
	"ipmon/internal/state"
	"ipmon/internal/version"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		info := version.GetInfo()
		fmt.Println(info.String())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(&cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	defer func(log *zap.Logger) {
		_ = log.Sync()
	}(log)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire components
	n := notify.New(cfg, log)
	r := resolver.New(&cfg.Resolver, log)
	st := state.NewStore(cfg.Monitor.StateFile, log)
	reg := registrar.NewClient(&cfg.Registrar, n, log)
	m := monitor.New(cfg, r, st, n, reg, log)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := m.Run(ctx); err != nil {
		log.Error("Monitor failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}

	log.Info("Shutdown complete")
}
