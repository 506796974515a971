package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"spool/app"
	"spool/hal"
	"spool/internal/buildinfo"
	promexp "spool/observability/prometheus"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "spool.toml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		headless   bool
		hz         int
		ticks      uint64
		listen     string
		trace      bool
		version    bool
	)
	flag.StringVar(&configPath, "config", defaultConfigPath, "TOML config file.")
	flag.BoolVar(&headless, "headless", false, "Run without a window.")
	flag.IntVar(&hz, "hz", 60, "Tick rate in headless mode.")
	flag.Uint64Var(&ticks, "ticks", 0, "Stop after N ticks in headless mode (0 = run until done).")
	flag.StringVar(&listen, "metrics", "", "Serve Prometheus metrics on this address.")
	flag.BoolVar(&trace, "trace", false, "Log scheduler lifecycle events.")
	flag.BoolVar(&version, "version", false, "Print the build version and exit.")
	flag.Parse()

	if version {
		fmt.Println("spool " + buildinfo.Long())
		return nil
	}

	cfg, err := app.LoadConfig(configPath, configPath == defaultConfigPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "headless":
			cfg.Host.Headless = headless
		case "hz":
			cfg.Host.Hz = hz
		case "ticks":
			cfg.Host.Ticks = ticks
		case "metrics":
			cfg.Metrics.Listen = listen
		case "trace":
			cfg.Runtime.Trace = trace
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	cfg.Runtime.Instance = uuid.NewString()
	reg := prom.NewRegistry()
	metrics, err := promexp.NewMetricsExporter(cfg.Metrics.Namespace, cfg.Runtime.Instance, reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Listen != "" {
		serveMetrics(gctx, g, cfg.Metrics.Listen, reg)
	}

	hcfg := hal.Config{Width: cfg.Host.Width, Height: cfg.Host.Height}
	newApp := app.NewStep(cfg, metrics)

	if cfg.Host.Headless {
		g.Go(func() error {
			defer cancel()
			err := hal.RunHeadless(gctx, hcfg, newApp, hal.HeadlessConfig{
				Enabled: true,
				Hz:      cfg.Host.Hz,
				Ticks:   cfg.Host.Ticks,
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		return g.Wait()
	}

	// The window loop must own the main goroutine.
	werr := hal.RunWindow(hcfg, newApp)
	cancel()
	if err := g.Wait(); err != nil && werr == nil {
		return err
	}
	return werr
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prom.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}
