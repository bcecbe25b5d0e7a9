// SPDX-License-Identifier: Apache-2.0

// Command bastion runs the tool-invocation gateway: JSON-RPC over stdin and
// stdout, one envelope per line. All diagnostics go to stderr so the
// protocol stream stays clean.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jllopis/bastion/pkg/config"
	"github.com/jllopis/bastion/pkg/gateway"
	"github.com/jllopis/bastion/pkg/llm"
	"github.com/jllopis/bastion/pkg/locator"
	"github.com/jllopis/bastion/pkg/memory"
	memollama "github.com/jllopis/bastion/pkg/memory/ollama"
	"github.com/jllopis/bastion/pkg/memory/qdrant"
	"github.com/jllopis/bastion/pkg/registry"
	"github.com/jllopis/bastion/pkg/resilience"
	"github.com/jllopis/bastion/pkg/skills"
	"github.com/jllopis/bastion/pkg/telemetry"
	"github.com/jllopis/bastion/pkg/timeout"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	watchSkills := flag.Bool("watch-skills", false, "reload the catalog when skill manifests change")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if err := timeout.Validate(); err != nil {
		fatal(err)
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig(cfg.Server.Name, cfg.Server.Version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			fatal(err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("telemetry shutdown failed", "err", err)
			}
		}()
	}

	table := locator.NewTable()

	store, closeStore, err := openStore(ctx, cfg.Memory)
	if err != nil {
		fatal(err)
	}
	defer closeStore()

	pool := resilience.NewPool(cfg.Memory.CastWorkers, cfg.Memory.CastQueueDepth)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), timeout.Lookup(timeout.ClassShort))
		defer cancel()
		pool.Shutdown(sctx)
	}()
	table.Register(memory.NewHandle(store, pool))

	table.Register(llm.NewHandle(newConsultant(cfg.LLM)))

	manager := skills.NewManager(cfg.Skills.Dir, table)
	defer manager.Close()

	reg := registry.NewRegistry(manager)
	if err := reg.Reload(ctx); err != nil {
		logger.Warn("initial skill load failed, continuing with built-in tools", "err", err)
	}

	if *watchSkills {
		watcher := skills.NewWatcher(cfg.Skills.Dir, func(wctx context.Context) {
			if err := reg.Reload(wctx); err != nil {
				logger.Warn("skill reload failed", "err", err)
			}
		}, skills.WithWatchLogger(logger))
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	var opts []gateway.ServerOption
	if cfg.Telemetry.Enabled {
		metrics, err := telemetry.NewGatewayMetrics()
		if err != nil {
			fatal(err)
		}
		opts = append(opts, gateway.WithMetrics(metrics))
	}

	server := gateway.NewServer(
		gateway.NewHandlers(table, reg),
		gateway.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version},
		opts...,
	)

	logger.Info("gateway listening", "server", cfg.Server.Name, "version", cfg.Server.Version,
		"tools", len(reg.Names()))

	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil {
		fatal(err)
	}
	logger.Info("gateway shut down")
}

// openStore builds the configured memory backend. The returned closer is
// always safe to call.
func openStore(ctx context.Context, cfg config.MemoryConfig) (memory.Store, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case "inmemory":
		return memory.NewInMemory(), noop, nil
	case "sqlite":
		store, err := memory.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, func() { store.Close() }, nil
	case "vector":
		backend, err := qdrant.New(cfg.QdrantAddr)
		if err != nil {
			return nil, noop, fmt.Errorf("connect qdrant: %w", err)
		}
		embedder := memollama.NewEmbedder(cfg.EmbedderBaseURL, cfg.EmbedderModel)
		store := memory.NewVectorMemory(backend, embedder, cfg.Collection)
		if err := store.Initialize(ctx); err != nil {
			backend.Close()
			return nil, noop, fmt.Errorf("initialize vector memory: %w", err)
		}
		return store, func() { backend.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown memory provider %q", cfg.Provider)
	}
}

func newConsultant(cfg config.LLMConfig) llm.Consultant {
	switch cfg.Provider {
	case "mock":
		return &llm.MockConsultant{Response: "ok"}
	default:
		return llm.NewOllama(cfg.BaseURL, cfg.Model)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "bastion:", err)
	os.Exit(1)
}
