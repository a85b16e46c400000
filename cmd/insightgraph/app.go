package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/insightgraph/config"
	"github.com/mohammad-safakhou/insightgraph/internal/docstore"
	"github.com/mohammad-safakhou/insightgraph/internal/executor"
	"github.com/mohammad-safakhou/insightgraph/internal/extract"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge/snapshot"
	"github.com/mohammad-safakhou/insightgraph/internal/planner"
	"github.com/mohammad-safakhou/insightgraph/internal/telemetry"
	"github.com/mohammad-safakhou/insightgraph/internal/warehouse"
	"github.com/mohammad-safakhou/insightgraph/provider"
	openai_provider "github.com/mohammad-safakhou/insightgraph/provider/openai"
	"github.com/mohammad-safakhou/insightgraph/tools/embedding"
)

// app holds every wired component of one process.
type app struct {
	cfg       *config.Config
	llm       provider.Provider
	metrics   *telemetry.Metrics
	knowledge *knowledge.Store
	snapshots snapshot.Store
	planner   *planner.Planner
	engine    *executor.Engine
	extractor *extract.Extractor

	closers []func() error
}

func newLogger(component string) *log.Logger {
	return log.New(log.Writer(), "["+component+"] ", log.LstdFlags)
}

func newProvider(cfg config.LLMConfig) (provider.Provider, error) {
	switch provider.Client(strings.ToLower(cfg.Type)) {
	case provider.OpenAI, "":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key (or OPENAI_API_KEY) not configured")
		}
		return openai_provider.NewOpenAIClient(cfg, newLogger("LLM")), nil
	default:
		return nil, fmt.Errorf("unsupported llm type %q", cfg.Type)
	}
}

// openSnapshots connects the Redis snapshot store when storage.redis is configured.
func (a *app) openSnapshots(ctx context.Context) error {
	cfg := a.cfg.Storage.Redis
	if !cfg.Enabled() {
		return nil
	}
	client := snapshot.NewRedisClient(cfg)
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Addr(), err)
	}
	a.snapshots = snapshot.NewRedisStore(client, a.cfg.Knowledge.SnapshotKey, 0)
	return nil
}

// buildApp wires the provider, knowledge store, planner, engine and extractor from cfg.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if cfg.Telemetry.Enabled {
		a.metrics = telemetry.New(cfg.Telemetry.Namespace)
	}

	p, err := newProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.llm = telemetry.Instrument(p, a.metrics)
	embedder := embedding.NewEmbedding(a.llm, newLogger("EMBED"))

	if err := a.buildKnowledge(ctx, embedder); err != nil {
		a.Close()
		return nil, err
	}

	queries, err := a.buildWarehouse(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	retriever, err := a.buildRetriever(ctx, embedder)
	if err != nil {
		a.Close()
		return nil, err
	}

	engineOpts := []executor.Option{
		executor.WithLogger(newLogger("ENGINE")),
		executor.WithRetrievalTopK(cfg.Retrieval.TopK),
		executor.WithContextTopK(cfg.Retrieval.StructuredContextTopK),
		executor.WithContextRetriever(a.knowledge),
	}
	extractOpts := []extract.Option{
		extract.WithDelimiters(cfg.Extraction.Delimiters),
		extract.WithLogger(newLogger("EXTRACT")),
	}
	if a.metrics != nil {
		engineOpts = append(engineOpts, executor.WithMetrics(a.metrics.Executor()))
		extractOpts = append(extractOpts, extract.WithMetrics(a.metrics))
	}
	a.planner = planner.NewPlanner(a.llm, newLogger("PLANNER"))
	a.engine = executor.New(a.llm, queries, retriever, engineOpts...)
	a.extractor = extract.NewExtractor(a.llm, extractOpts...)
	return a, nil
}

func (a *app) buildKnowledge(ctx context.Context, embedder knowledge.Embedder) error {
	cfg := a.cfg
	opts := []knowledge.Option{
		knowledge.WithLogger(newLogger("KNOWLEDGE")),
		knowledge.WithDefaultTopK(cfg.Retrieval.TopK),
		knowledge.WithExpansionLimit(cfg.Retrieval.ExpansionLimit),
	}
	if a.metrics != nil {
		opts = append(opts, knowledge.WithMetrics(a.metrics))
	}
	if cfg.Knowledge.SeedFile != "" {
		seed, err := snapshot.NewFileStore(cfg.Knowledge.SeedFile).Load(ctx)
		if err != nil {
			return fmt.Errorf("knowledge seed %s: %w", cfg.Knowledge.SeedFile, err)
		}
		opts = append(opts, knowledge.WithSeed(seed))
	}
	a.knowledge = knowledge.New(embedder, opts...)
	if err := a.openSnapshots(ctx); err != nil {
		return err
	}

	if cfg.Knowledge.LoadSnapshot && a.snapshots != nil {
		items, err := a.snapshots.Load(ctx)
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			log.Printf("no knowledge snapshot found, using seed set")
		case err != nil:
			return fmt.Errorf("load knowledge snapshot: %w", err)
		default:
			return a.knowledge.Load(ctx, items)
		}
	}
	return nil
}

func (a *app) buildWarehouse(ctx context.Context) (executor.QueryExecutor, error) {
	cfg := a.cfg
	logger := newLogger("WAREHOUSE")
	if cfg.Warehouse.Backend != config.WarehouseBackendPostgres {
		return warehouse.NewStaticExecutor(logger), nil
	}
	db, err := warehouse.Open(ctx, cfg.Storage.Postgres)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	return warehouse.NewPostgresExecutor(db, a.llm, cfg.Warehouse.MaxRows, logger), nil
}

func (a *app) buildRetriever(ctx context.Context, embedder knowledge.Embedder) (executor.Retriever, error) {
	cfg := a.cfg
	if cfg.Retrieval.Backend != config.RetrievalBackendDocuments {
		return a.knowledge, nil
	}
	logger := newLogger("DOCSTORE")
	docs, err := docstore.New(
		docstore.WithEmbedder(embedder),
		docstore.WithChunkSize(cfg.Extraction.ChunkSize),
		docstore.WithDelimiters(cfg.Extraction.Delimiters),
		docstore.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, docs.Close)

	client := &http.Client{Timeout: cfg.General.DefaultTimeout}
	for _, src := range cfg.Retrieval.Documents {
		doc, err := extract.LoadDocument(ctx, client, src)
		if err != nil {
			logger.Printf("warn: skipping document %s: %v", src, err)
			continue
		}
		n, err := docs.AddDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		logger.Printf("indexed %s (%d chunks)", src, n)
	}
	return docs, nil
}

// Close releases databases, indexes and clients in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("warn: close: %v", err)
		}
	}
	a.closers = nil
}
