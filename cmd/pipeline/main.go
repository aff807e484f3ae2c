// Command pipeline wires the engine's collaborators together and serves
// the observability surface, the way cmd/tarsy/main.go bootstraps TARSy's
// services: load env/config, open the store, start the pool, mount the
// router.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/api"
	"github.com/catalogops/enrichment-pipeline/pkg/broadcaster"
	"github.com/catalogops/enrichment-pipeline/pkg/config"
	"github.com/catalogops/enrichment-pipeline/pkg/coordinator"
	"github.com/catalogops/enrichment-pipeline/pkg/executor"
	"github.com/catalogops/enrichment-pipeline/pkg/llm"
	"github.com/catalogops/enrichment-pipeline/pkg/models"
	"github.com/catalogops/enrichment-pipeline/pkg/prompt"
	"github.com/catalogops/enrichment-pipeline/pkg/queue"
	"github.com/catalogops/enrichment-pipeline/pkg/selector"
	"github.com/catalogops/enrichment-pipeline/pkg/store/postgres"
	"github.com/catalogops/enrichment-pipeline/pkg/taxonomy"
	"github.com/joho/godotenv"
)

// taskHandler adapts *executor.Executor to queue.Handler.
type taskHandler struct {
	exec *executor.Executor
}

func (h *taskHandler) Execute(ctx context.Context, taskType models.TaskType, payload map[string]any) (map[string]any, error) {
	return h.exec.Execute(ctx, taskType, payload)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the pipeline config file")
	addr := flag.String("addr", ":8080", "address for the observability HTTP surface")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgStore, err := postgres.Open(ctx, postgres.Config{DSN: os.Getenv("DATABASE_URL")})
	if err != nil {
		logger.Error("open postgres store failed", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	taxTree, err := taxonomy.NewLoader(cfg.Paths.TaxonomyDir).Load()
	if err != nil {
		logger.Error("load taxonomy failed", "error", err)
		os.Exit(1)
	}
	matcher := taxonomy.NewMatcher(taxTree, cfg.Taxonomy.Cutoff)

	llmClient := llm.New(cfg.Ollama.BaseURL, time.Duration(cfg.Workers.TimeoutSecs)*time.Second, llm.WithLogger(logger))

	// cfg.ModelCapabilities.Capabilities is a YAML sequence specifically so
	// this stays a single ordered pass: a map here would have to recover
	// "declaration order" from Go's randomized map iteration, which is
	// exactly what spec §4.2 forbids (see pkg/config's doc comment).
	capOrder := make([]string, 0, len(cfg.ModelCapabilities.Capabilities))
	caps := make(map[string]models.ModelCapability, len(cfg.ModelCapabilities.Capabilities))
	for _, entry := range cfg.ModelCapabilities.Capabilities {
		capOrder = append(capOrder, entry.Name)
		caps[entry.Name] = models.ModelCapability{
			ModelName:   entry.Name,
			SupportedOn: entry.ModelTaskSet(),
			MaxTokens:   entry.MaxTokens,
			Description: entry.Description,
		}
	}
	sel := selector.New(capOrder, caps, cfg.ModelCapabilities.FallbackOrder, llmClient)

	renderer := prompt.NewFileRenderer(cfg.Paths.PromptDir)

	exec := executor.New(llmClient, sel, renderer, matcher)
	exec.MaxRetries = cfg.Workers.RetryAttempts
	exec.QuantizedModels = cfg.Models.QuantizedModels

	poolCfg := queue.DefaultConfig()
	poolCfg.MaxWorkers = cfg.Workers.MaxWorkers
	poolCfg.QueueCapacity = cfg.Workers.QueueSize
	poolCfg.MaxRetries = cfg.Workers.RetryAttempts

	pool := queue.New(poolCfg, &taskHandler{exec: exec}, logger)
	pool.Start(ctx)
	defer pool.Stop()

	bc := broadcaster.New(logger)
	coord := coordinator.New(pool, pgStore, bc, time.Duration(cfg.Workers.TimeoutSecs)*time.Second, logger)
	_ = coord // wired in for library consumers; this binary only serves observability

	server := api.NewServer(pool, pgStore)
	httpServer := &http.Server{Addr: *addr, Handler: server.Handler()}

	go func() {
		logger.Info("observability server listening", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
