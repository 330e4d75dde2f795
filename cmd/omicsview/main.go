package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/omicsview/internal/client"
	"github.com/HerbHall/omicsview/internal/collection"
	"github.com/HerbHall/omicsview/internal/config"
	"github.com/HerbHall/omicsview/internal/event"
	"github.com/HerbHall/omicsview/internal/metrics"
	"github.com/HerbHall/omicsview/internal/network"
	"github.com/HerbHall/omicsview/internal/push"
	"github.com/HerbHall/omicsview/internal/tables"
	"github.com/HerbHall/omicsview/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	tableName := flag.String("table", tables.NameMolecules, fmt.Sprintf("table to browse %v", tables.Names))
	biomarkerID := flag.Int("biomarker", 1, "biomarker whose molecules, experiments or models are listed")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, *tableName, *biomarkerID, logger); err != nil {
		logger.Fatal("omicsview failed", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, app *config.App, tableName string, biomarkerID int, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &lockedWriter{w: os.Stdout}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	clientOpts := []client.Option{client.WithLogger(logger)}
	if app.Server.RequestTimeout > 0 {
		clientOpts = append(clientOpts, client.WithHTTPClient(&http.Client{Timeout: app.Server.RequestTimeout}))
	}
	if app.Server.RequestRate > 0 {
		clientOpts = append(clientOpts, client.WithRate(app.Server.RequestRate, app.Server.RequestBurst))
	}
	c, err := client.New(app.Server.BaseURL, clientOpts...)
	if err != nil {
		return err
	}

	notifier := collection.NotifierFunc(func(view string, err error) {
		logger.Warn("request failed", zap.String("view", view), zap.Error(err))
		fmt.Fprintf(out, "error [%s]: %v\n", view, err)
	})

	bus := event.NewBus(logger)
	t, err := openTable(tableName, biomarkerID, app, c,
		collection.WithLogger(logger),
		collection.WithNotifier(notifier),
		collection.WithMetrics(m),
		collection.WithBus(bus),
		collection.WithTimeout(app.Server.RequestTimeout),
	)
	if err != nil {
		return err
	}
	defer t.Close()

	unsubscribe := t.Subscribe(func() {
		if err := t.Render(out); err != nil {
			logger.Debug("render failed", zap.Error(err))
		}
	})
	defer unsubscribe()

	panel, err := newPanel(app, c, out, notifier, logger)
	if err != nil {
		return err
	}
	defer panel.Close()

	g, gctx := errgroup.WithContext(ctx)

	if src := newPushSource(app, bus, m, logger); src != nil {
		g.Go(func() error { return src.Run(gctx) })
	}
	if app.Metrics.Addr != "" {
		g.Go(func() error { return serveMetrics(gctx, app.Metrics.Addr, reg, logger) })
	}

	if err := t.Start(gctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "omicsview %s: browsing %s (type help for commands)\n", version.Short(), t.Name())

	g.Go(func() error {
		defer cancel()
		r := &repl{table: t, panel: panel, out: out}
		return r.run(gctx, os.Stdin)
	})

	return g.Wait()
}

func newPanel(app *config.App, c *client.Client, out *lockedWriter, n collection.Notifier, logger *zap.Logger) (*network.Panel, error) {
	styles, err := network.DefaultStyles()
	if err != nil {
		return nil, err
	}
	if app.Network.StyleFile != "" {
		f, err := os.Open(app.Network.StyleFile)
		if err != nil {
			return nil, fmt.Errorf("open style file: %w", err)
		}
		defer f.Close()
		if styles, err = network.LoadStyles(f); err != nil {
			return nil, err
		}
	}
	return network.New(
		network.NewHTTPSource(c, app.Network.Endpoint),
		network.NewTextRenderer(out, 10),
		styles,
		network.WithLogger(logger),
		network.WithNotifier(n),
		network.WithQuietInterval(app.View.QuietInterval),
		network.WithTimeout(app.Server.RequestTimeout),
	), nil
}

func newPushSource(app *config.App, bus *event.Bus, m *metrics.Metrics, logger *zap.Logger) push.Source {
	opts := []push.Option{
		push.WithLogger(logger),
		push.WithMetrics(m),
		push.WithReconnectDelay(app.Push.ReconnectDelay),
	}
	switch app.Push.Transport {
	case config.TransportWebSocket:
		return push.NewWebSocket(app.Push.URL, bus, opts...)
	case config.TransportMQTT:
		if app.Push.MQTTClientID != "" {
			opts = append(opts, push.WithClientID(app.Push.MQTTClientID))
		}
		return push.NewMQTT(app.Push.URL, app.Push.MQTTTopicPrefix, bus, opts...)
	default:
		return nil
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
