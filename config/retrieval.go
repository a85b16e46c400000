package config

import (
	"fmt"
	"strings"

	"github.com/gorhill/cronexpr"
)

const (
	DefaultRetrievalTopK         = 5
	DefaultStructuredContextTopK = 2
	DefaultExpansionLimit        = 5
	DefaultChunkSize             = 2000
	DefaultSnapshotKey           = "insightgraph:knowledge:snapshot"
	DefaultWarehouseMaxRows      = 100
)

// DefaultDelimiters are the sentence terminators used for chunking when none are configured.
var DefaultDelimiters = []string{"。"}

// Normalize fills unset retrieval values with defaults.
func (c RetrievalConfig) Normalize() RetrievalConfig {
	cfg := c
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = RetrievalBackendKnowledgeGraph
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultRetrievalTopK
	}
	if cfg.StructuredContextTopK < 0 {
		cfg.StructuredContextTopK = 0
	}
	if cfg.ExpansionLimit <= 0 {
		cfg.ExpansionLimit = DefaultExpansionLimit
	}
	return cfg
}

// Validate ensures the retrieval backend is known.
func (c RetrievalConfig) Validate() error {
	switch c.Backend {
	case RetrievalBackendKnowledgeGraph, RetrievalBackendDocuments:
		return nil
	default:
		return fmt.Errorf("retrieval.backend %q not supported", c.Backend)
	}
}

// Normalize fills unset extraction values with defaults and drops empty delimiters.
func (c ExtractionConfig) Normalize() ExtractionConfig {
	cfg := c
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	seen := make(map[string]struct{}, len(cfg.Delimiters))
	var delims []string
	for _, d := range cfg.Delimiters {
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		delims = append(delims, d)
	}
	if len(delims) == 0 {
		delims = append(delims, DefaultDelimiters...)
	}
	cfg.Delimiters = delims
	return cfg
}

// Validate checks the extraction configuration.
func (c ExtractionConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("extraction.chunk_size must be greater than zero")
	}
	return nil
}

// Normalize trims knowledge settings.
func (c KnowledgeConfig) Normalize() KnowledgeConfig {
	cfg := c
	cfg.SeedFile = strings.TrimSpace(cfg.SeedFile)
	cfg.RefreshCron = strings.TrimSpace(cfg.RefreshCron)
	if strings.TrimSpace(cfg.SnapshotKey) == "" {
		cfg.SnapshotKey = DefaultSnapshotKey
	}
	return cfg
}

// Validate checks that the refresh schedule parses.
func (c KnowledgeConfig) Validate() error {
	if c.RefreshCron == "" {
		return nil
	}
	if _, err := cronexpr.Parse(c.RefreshCron); err != nil {
		return fmt.Errorf("knowledge.refresh_cron: %w", err)
	}
	return nil
}

// Normalize fills warehouse defaults.
func (c WarehouseConfig) Normalize() WarehouseConfig {
	cfg := c
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = WarehouseBackendStatic
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultWarehouseMaxRows
	}
	return cfg
}

// Validate ensures the warehouse backend is known.
func (c WarehouseConfig) Validate() error {
	switch c.Backend {
	case WarehouseBackendStatic, WarehouseBackendPostgres:
		return nil
	default:
		return fmt.Errorf("warehouse.backend %q not supported", c.Backend)
	}
}
