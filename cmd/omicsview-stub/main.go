package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/omicsview/internal/config"
	"github.com/HerbHall/omicsview/internal/server"
	"github.com/HerbHall/omicsview/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	addrFlag := flag.String("addr", "", "listen address (overrides stub.addr)")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	app, err := cfg.App()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	addr := app.Stub.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	fx := server.NewFixtures(app.Stub.Rows)
	var opts []server.Option
	if app.Stub.Latency > 0 {
		opts = append(opts, server.WithLatency(app.Stub.Latency))
	}
	if app.Stub.RequestRate > 0 {
		opts = append(opts, server.WithRateLimit(rate.Limit(app.Stub.RequestRate), max(1, int(app.Stub.RequestRate))))
	}
	srv := server.New(addr, fx.Collections(), server.NewNetworkHandler(fx.Genes()), logger, opts...)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("stub server ready",
		zap.String("addr", addr),
		zap.Int("rows", app.Stub.Rows),
		zap.Duration("latency", app.Stub.Latency),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("stub server stopped")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
