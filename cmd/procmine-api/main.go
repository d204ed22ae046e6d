// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	apiconfig "github.com/procmine/procmine/internal/api/config"
	"github.com/procmine/procmine/internal/api/handlers"
	"github.com/procmine/procmine/internal/api/services"
	"github.com/procmine/procmine/internal/enrich"
	"github.com/procmine/procmine/internal/extract"
	"github.com/procmine/procmine/internal/jobs"
	"github.com/procmine/procmine/internal/logging"
	"github.com/procmine/procmine/internal/server"
	"github.com/procmine/procmine/internal/store"
	"github.com/procmine/procmine/internal/version"
)

// Exit codes.
const (
	exitOK        = 0
	exitInit      = 1
	exitBind      = 2
	exitMigration = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("procmine-api", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	flags.Int("port", 0, "port the HTTP server listens on")
	flags.String("store-path", "", "path to the state database")
	flags.String("log-level", "", "minimum log level (debug, info, warn, error)")
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInit
	}

	if *showVersion {
		v := version.Get()
		fmt.Printf("%s %s (%s, built %s, %s)\n", v.Name, v.Version, v.GitRevision, v.BuildTime, v.GoVersion)
		return exitOK
	}

	cfg, err := apiconfig.Load(*configPath, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return exitInit
	}

	logger := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = store.DefaultPath()
	}
	st, err := store.Open(storePath, logger)
	if err != nil {
		logger.Error("failed to open store", "path", storePath, "error", err)
		if errors.Is(err, store.ErrSchemaDowngrade) {
			return exitMigration
		}
		return exitInit
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	if err := extract.Seed(ctx, st, logger); err != nil {
		logger.Error("failed to seed extraction rules", "error", err)
		return exitInit
	}

	extractor := extract.New(st, logger)
	orchestrator := jobs.New(st, extractor, logger)

	var enrichSvc *enrich.Service
	if cfg.LLM.APIKey != "" {
		provider, err := buildProvider(cfg.LLM, logger)
		if err != nil {
			logger.Error("failed to initialize llm provider", "error", err)
			return exitInit
		}
		enrichSvc = enrich.NewService(enrich.Config{
			Workers:       cfg.LLM.Workers,
			QueueCapacity: cfg.LLM.QueueCapacity,
			LowThreshold:  cfg.LLM.LowThreshold,
			AutoThreshold: cfg.LLM.AutoThreshold,
			CallTimeout:   cfg.LLM.Timeout,
			CacheSize:     cfg.LLM.CacheSize,
			CacheTTL:      cfg.LLM.CacheTTL,
		}, provider, st, logger)
		enrichSvc.Start(ctx)
		defer enrichSvc.Wait()
	} else {
		logger.Info("no llm api key configured, enrichment disabled")
	}

	svcs := services.NewServices(st, extractor, enrichSvc, orchestrator, logger)
	handler := handlers.New(svcs, logger.With("component", "handlers"))

	srv := server.New(server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, handler.Routes(), logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		if errors.Is(err, server.ErrBindFailed) {
			return exitBind
		}
		return exitInit
	}

	logger.Info("server stopped gracefully")
	return exitOK
}

// buildProvider constructs the Anthropic provider, wrapped in a failover
// breaker when a fallback model is configured.
func buildProvider(cfg apiconfig.LLMConfig, logger *slog.Logger) (enrich.Provider, error) {
	primary, err := enrich.NewAnthropicFromAPIKey(cfg.APIKey, cfg.ProviderURL, cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.FallbackModel == "" {
		return primary, nil
	}
	fallback, err := enrich.NewAnthropicFromAPIKey(cfg.APIKey, cfg.ProviderURL, cfg.FallbackModel)
	if err != nil {
		return nil, err
	}
	return enrich.NewFailoverProvider(primary, fallback, logger), nil
}
