package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meenmo/fxstruct/api"
	"github.com/meenmo/fxstruct/assembler"
	"github.com/meenmo/fxstruct/config"
	"github.com/meenmo/fxstruct/logger"
	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/pricing"
	"github.com/meenmo/fxstruct/structure"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fxstructd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config YAML path (optional; FXSTRUCT_* variables override it)")
	engineName := fs.String("engine", "", "pricing engine (default: analytic Garman-Kohlhagen)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "fxstructd: %v\n", err)
		return 1
	}
	config.SetConfig(cfg)
	log := logger.Init(cfg.LogLevel, stdout, cfg.LogJSON)

	srv, err := newServer(cfg, *engineName)
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}

	addr := ":" + cfg.Port
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "address", addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "error", err)
			return 1
		}
	}
	log.Info("server stopped")
	return 0
}

// newServer loads the configured definitions and market snapshot and builds the API.
func newServer(cfg config.Config, engineName string) (*api.Server, error) {
	log := logger.L
	reg := structure.NewRegistry(structure.WithLogger(log))
	if cfg.DefinitionsPath != "" {
		versions, err := reg.LoadDefinitions(cfg.DefinitionsPath)
		if err != nil {
			return nil, err
		}
		log.Info("definitions loaded", "path", cfg.DefinitionsPath, "versions", versions)
	}

	var md marketdata.MarketData
	if cfg.MarketDataPath != "" {
		snap, err := marketdata.LoadSnapshot(cfg.MarketDataPath)
		if err != nil {
			return nil, err
		}
		md = snap
		log.Info("market loaded", "path", cfg.MarketDataPath, "reference_date", snap.ReferenceDate().Format("2006-01-02"))
	}

	engine, err := pricing.NewEngine(engineName, cfg.BinomialSteps)
	if err != nil {
		return nil, err
	}
	return api.NewServer(reg, md,
		api.WithConfig(cfg),
		api.WithLogger(log),
		api.WithEngine(engine),
		api.WithLegCache(assembler.NewLegCache(cfg.LegCacheTTL, cfg.LegCacheCleanup)),
	), nil
}
