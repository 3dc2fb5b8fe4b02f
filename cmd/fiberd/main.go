// Command fiberd runs one fiber process. It hosts a status entity under the
// process id so peers and operators can probe it through the proxy.
//
//	fiberd -config fiberd.yaml
//
// Every config value can be overridden with FIBER_* environment variables,
// e.g. FIBER_PROCESS_ID=2 FIBER_TRANSPORT=nats fiberd.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	promadapter "github.com/codewandler/clstr-fiber/adapters/prometheus"
	"github.com/codewandler/clstr-fiber/core/app"
	"github.com/codewandler/clstr-fiber/core/config"
	"github.com/codewandler/clstr-fiber/core/mailbox"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config, empty for defaults")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		slog.Error("fiberd failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error
	)
	if configPath != "" {
		watcher, err = config.NewWatcher(configPath, slog.Default())
		if err != nil {
			return err
		}
		cfg = watcher.Config()
	} else if cfg, err = config.Load(""); err != nil {
		return err
	}

	level := new(slog.LevelVar)
	log := cfg.Log.Logger(os.Stdout, level).With(slog.Int("process", int(cfg.Process.ID)))
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tr, err := newTransport(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer tr.Close()

	a, err := app.Run(app.Config{
		Context:     ctx,
		Log:         log,
		ProcessID:   cfg.Process.ID,
		Fibers:      cfg.Fiber.Count,
		Fiber:       cfg.FiberOptions(),
		Wire:        tr.wire,
		Locations:   tr.locations,
		LocationTTL: cfg.Location.TTL,
		Metrics:     promadapter.NewFiberMetrics(reg),
	}, statusHandlers(cfg.Process.ID)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Stop(); err != nil {
			log.Error("stop failed", slog.Any("error", err))
		}
	}()

	if _, _, err := a.Spawn(ctx, int64(cfg.Process.ID), "status", mailbox.UnorderedDispatch); err != nil {
		return fmt.Errorf("spawn status entity: %w", err)
	}

	if watcher != nil {
		watcher.OnChange(func(old, cur *config.Config) {
			if lv := cur.Log.SlogLevel(); lv != level.Level() {
				log.Info("applying log level", slog.String("level", lv.String()))
				level.Set(lv)
			}
			if cur.Fiber.BatchSize != old.Fiber.BatchSize {
				log.Info("applying batch size", slog.Int("batch_size", cur.Fiber.BatchSize))
				a.Process().SetBatchSize(cur.Fiber.BatchSize)
			}
		})
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error("config watcher stopped", slog.Any("error", err))
			}
		}()
	}

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics server starting", slog.String("addr", cfg.Metrics.Listen))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("fiberd running", slog.String("transport", cfg.Transport.Kind))
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
