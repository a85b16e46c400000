package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/insightgraph/internal/helpers"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
	"github.com/mohammad-safakhou/insightgraph/provider"
)

const extractionInstruction = `You are a knowledge graph extraction expert. Extract the entities and relations from the given text.
Respond with JSON only, shaped like:
{
  "entities": [
    {
      "id": "entity_1",
      "type": "entity type (company, product, event, location, ...)",
      "name": "entity name",
      "description": "entity description",
      "properties": {}
    }
  ],
  "relations": [
    {
      "source": "source entity id",
      "target": "target entity id",
      "relation_type": "relation type (affects, contains, occurred, ...)",
      "description": "relation description"
    }
  ]
}`

//go:embed extraction_schema.json
var extractionSchemaJSON string

var (
	schemaOnce       sync.Once
	extractionSchema *jsonschema.Schema
	schemaErr        error
)

func chunkSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("extraction_schema.json", strings.NewReader(extractionSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		extractionSchema, schemaErr = compiler.Compile("extraction_schema.json")
	})
	return extractionSchema, schemaErr
}

// Metrics receives per-chunk outcomes ("ok", "failed", "skipped").
type Metrics interface {
	ObserveChunk(status string)
}

// Extractor turns raw text into knowledge items through one completion per chunk.
type Extractor struct {
	llm         provider.LLM
	delimiters  []string
	concurrency int
	logger      *log.Logger
	metrics     Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

func WithDelimiters(delims []string) Option {
	return func(e *Extractor) {
		if len(delims) > 0 {
			e.delimiters = delims
		}
	}
}

// WithConcurrency bounds how many chunks are sent to the model at once.
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

func NewExtractor(llm provider.LLM, opts ...Option) *Extractor {
	e := &Extractor{
		llm:         llm,
		delimiters:  []string{DefaultDelimiter},
		concurrency: 4,
		logger:      log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type chunkResult struct {
	Entities  []RawEntity   `json:"entities"`
	Relations []RawRelation `json:"relations"`
}

// ExtractFromText splits text, extracts every chunk, standardizes entities and links relations.
// A chunk whose completion fails or cannot be parsed is dropped; only cancellation is an error.
func (e *Extractor) ExtractFromText(ctx context.Context, text string, chunkSize int) ([]knowledge.Item, error) {
	chunks := SplitText(text, e.delimiters, chunkSize)
	results := make([]chunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		if strings.TrimSpace(chunk) == "" {
			e.observe("skipped")
			continue
		}
		g.Go(func() error {
			res, err := e.extractChunk(gctx, chunk)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Printf("warn: chunk %d dropped: %v", i, err)
				e.observe("failed")
				return nil
			}
			for j := range res.Entities {
				res.Entities[j].chunk = i
			}
			for j := range res.Relations {
				res.Relations[j].chunk = i
			}
			results[i] = res
			e.observe("ok")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		entities  []RawEntity
		relations []RawRelation
	)
	for _, res := range results {
		entities = append(entities, res.Entities...)
		relations = append(relations, res.Relations...)
	}
	items := BuildKnowledgeBase(StandardizeEntities(entities), relations)
	e.logger.Printf("extracted %d items from %d chunks", len(items), len(chunks))
	return items, nil
}

func (e *Extractor) extractChunk(ctx context.Context, chunk string) (chunkResult, error) {
	reply, err := e.llm.Complete(ctx, provider.Conversation(extractionInstruction, "Extract the entities and relations from the following text:\n\n"+chunk), provider.CompleteOptions{JSON: true})
	if err != nil {
		return chunkResult{}, fmt.Errorf("completion: %w", err)
	}
	raw, err := helpers.ExtractJSON(reply)
	if err != nil {
		return chunkResult{}, err
	}

	schema, err := chunkSchema()
	if err != nil {
		return chunkResult{}, err
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return chunkResult{}, fmt.Errorf("parse reply: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return chunkResult{}, fmt.Errorf("reply does not match extraction schema: %w", err)
	}

	var res chunkResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return chunkResult{}, fmt.Errorf("decode reply: %w", err)
	}
	return res, nil
}

func (e *Extractor) observe(status string) {
	if e.metrics != nil {
		e.metrics.ObserveChunk(status)
	}
}
