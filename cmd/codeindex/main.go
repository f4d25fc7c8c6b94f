// File path: cmd/codeindex/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lfg-hq/codeindex/internal/api"
	"github.com/lfg-hq/codeindex/internal/catalog"
	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/embedding"
	"github.com/lfg-hq/codeindex/internal/gitrepo"
	"github.com/lfg-hq/codeindex/internal/indexer"
	"github.com/lfg-hq/codeindex/internal/indexmap"
	"github.com/lfg-hq/codeindex/internal/insights"
	"github.com/lfg-hq/codeindex/internal/job"
	"github.com/lfg-hq/codeindex/internal/parser"
	"github.com/lfg-hq/codeindex/internal/retrieval"
	"github.com/lfg-hq/codeindex/internal/vector"
)

func main() {
	logger := common.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logger.Warn("codeindex: .env file not loaded", "error", err)
	} else {
		logger.Info("codeindex: environment loaded from .env")
	}

	addr := flag.String("addr", ":8080", "listen address")
	catalogPath := flag.String("catalog", defaultCatalogPath(), "path to the SQLite catalog database")
	workspaceRoot := flag.String("workspace", "", "root directory for cloned repository workspaces")
	workers := flag.Int("workers", 2, "number of concurrent indexing workers")
	queueDepth := flag.Int("queue-depth", 32, "maximum queued indexing jobs")
	flag.Parse()

	logger.Info("codeindex: startup initiated", "addr", *addr, "catalog", *catalogPath)

	store, err := catalog.OpenWithConfig(catalog.Config{Path: *catalogPath})
	if err != nil {
		logger.Error("codeindex: catalog open failed", "error", err)
		fmt.Println("catalog error:", err)
		os.Exit(1)
	}
	defer store.Close()

	vectors, err := vector.NewFromEnv(ctx)
	if err != nil {
		logger.Error("codeindex: vector store initialization failed", "error", err)
		fmt.Println("vector store error:", err)
		os.Exit(1)
	}
	if vectors.Available() {
		logger.Info("codeindex: chromadb available")
	} else {
		logger.Warn("codeindex: chromadb unreachable, embeddings will be reconciled later")
	}

	provider := embedding.NewProvider()
	logger.Info("codeindex: embedding provider ready", "provider", provider.Name())
	generator := embedding.NewGenerator(provider)

	fetcher := gitrepo.NewService(*workspaceRoot, os.Getenv("GITHUB_TOKEN"))
	orch := indexer.New(store, fetcher, parser.New(), indexmap.NewBuilder(store),
		generator, vectors, insights.NewService(store, provider))

	manager := job.NewManager(job.Config{
		Store:       store,
		Runner:      orch,
		Concurrency: *workers,
		QueueDepth:  *queueDepth,
	})
	manager.Start(ctx)
	defer manager.Stop()

	engine := retrieval.NewEngine(store, vectors, generator)
	server := api.NewServer(store, manager, engine, orch)

	httpServer := &http.Server{Addr: *addr, Handler: server}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("codeindex: shutdown failed", "error", err)
		}
	}()

	logger.Info("codeindex: server listening", "addr", *addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	reachable := *addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info("codeindex: verify reachability", "suggestion", fmt.Sprintf("curl http://%s/healthz", reachable))

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("codeindex: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

func defaultCatalogPath() string {
	return filepath.Join("data", "catalog.db")
}
