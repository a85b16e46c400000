package config

import (
	"testing"
)

func TestRetrievalNormalize(t *testing.T) {
	norm := RetrievalConfig{Backend: " Documents ", StructuredContextTopK: -3}.Normalize()
	if norm.Backend != RetrievalBackendDocuments {
		t.Fatalf("expected backend to be lowercased, got %q", norm.Backend)
	}
	if norm.TopK != DefaultRetrievalTopK {
		t.Fatalf("expected default top_k, got %d", norm.TopK)
	}
	if norm.StructuredContextTopK != 0 {
		t.Fatalf("expected negative context top_k to clamp to 0, got %d", norm.StructuredContextTopK)
	}
	if norm.ExpansionLimit != DefaultExpansionLimit {
		t.Fatalf("expected default expansion limit, got %d", norm.ExpansionLimit)
	}
	if err := norm.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestRetrievalValidateRejectsUnknownBackend(t *testing.T) {
	if err := (RetrievalConfig{Backend: "neo4j"}).Validate(); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}

func TestExtractionNormalizeDeduplicatesDelimiters(t *testing.T) {
	norm := ExtractionConfig{Delimiters: []string{".", "", ".", "。"}}.Normalize()
	if norm.ChunkSize != DefaultChunkSize {
		t.Fatalf("expected default chunk size, got %d", norm.ChunkSize)
	}
	if len(norm.Delimiters) != 2 || norm.Delimiters[0] != "." || norm.Delimiters[1] != "。" {
		t.Fatalf("unexpected delimiters: %v", norm.Delimiters)
	}

	empty := ExtractionConfig{}.Normalize()
	if len(empty.Delimiters) != 1 || empty.Delimiters[0] != "。" {
		t.Fatalf("expected default delimiter, got %v", empty.Delimiters)
	}
}

func TestKnowledgeValidateCron(t *testing.T) {
	if err := (KnowledgeConfig{RefreshCron: "*/15 * * * *"}).Validate(); err != nil {
		t.Fatalf("expected cron to parse: %v", err)
	}
	if err := (KnowledgeConfig{RefreshCron: "every tuesday"}).Validate(); err == nil {
		t.Fatalf("expected invalid cron to fail")
	}
}

func TestWarehouseNormalize(t *testing.T) {
	norm := WarehouseConfig{}.Normalize()
	if norm.Backend != WarehouseBackendStatic || norm.MaxRows != DefaultWarehouseMaxRows {
		t.Fatalf("unexpected warehouse defaults: %+v", norm)
	}
	if err := (WarehouseConfig{Backend: "mysql"}).Validate(); err == nil {
		t.Fatalf("expected unknown warehouse backend to fail")
	}
}
