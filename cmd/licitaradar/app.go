package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/licitaradar/licitaradar/internal/analysis"
	"github.com/licitaradar/licitaradar/internal/cache"
	"github.com/licitaradar/licitaradar/internal/chat"
	"github.com/licitaradar/licitaradar/internal/classifier"
	"github.com/licitaradar/licitaradar/internal/config"
	"github.com/licitaradar/licitaradar/internal/documents"
	"github.com/licitaradar/licitaradar/internal/engine"
	"github.com/licitaradar/licitaradar/internal/filters"
	"github.com/licitaradar/licitaradar/internal/model"
	"github.com/licitaradar/licitaradar/internal/pipeline"
	"github.com/licitaradar/licitaradar/internal/pncp"
	"github.com/licitaradar/licitaradar/internal/profile"
	"github.com/licitaradar/licitaradar/internal/retrieval"
	"github.com/licitaradar/licitaradar/internal/search"
	"github.com/licitaradar/licitaradar/internal/storage"
)

// app holds the wired components shared by serve, sync and search.
type app struct {
	cfg          config.Config
	store        *storage.Store
	profile      *profile.Manager
	orchestrator *pipeline.Orchestrator
	filters      *filters.Extractor
	searcher     *search.Searcher
	assistant    *chat.Assistant
	indexer      *documents.Indexer
}

func setupLogging(cfg config.Config) {
	level := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// newApp opens storage and builds the AI-backed components. The caller
// closes the store.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := cfg.RequireAI(); err != nil {
		return nil, err
	}

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating AI engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, os.Stderr); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	profileMgr := profile.NewManager(store)
	verdicts := cache.NewTTL[bool](cfg.Cache.ViabilityTTL)
	results := cache.NewTTL[[]model.Procurement](cfg.Cache.ResultsTTL)

	portal := pncp.New(cfg.PNCP)
	cls := classifier.New(eng, verdicts, profileMgr, cfg.Sync)
	analyzer := analysis.New(eng, profileMgr)
	extractor := filters.NewExtractor(eng, profileMgr)

	embedder := retrieval.NewEmbedder(eng, cfg.Retrieval.EmbedDimension)
	chunks := retrieval.NewSQLiteStore(store.DB())
	indexer := documents.NewIndexer(documents.NewExtractor(portal, cfg.Documents), embedder, chunks)
	retriever := retrieval.NewRetriever(embedder, chunks)

	assistant := chat.New(eng, store, retriever, 0)
	if cfg.Retrieval.TopK > 0 {
		assistant.TopK = cfg.Retrieval.TopK
	}

	return &app{
		cfg:          cfg,
		store:        store,
		profile:      profileMgr,
		orchestrator: pipeline.New(portal, cls, analyzer, store),
		filters:      extractor,
		searcher:     search.New(extractor, store, cls, results),
		assistant:    assistant,
		indexer:      indexer,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
