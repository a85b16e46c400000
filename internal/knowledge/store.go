package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTopK           = 5
	DefaultExpansionLimit = 5

	// NoKnowledgeText is returned by Search when nothing matched.
	NoKnowledgeText = "no relevant knowledge found"
	// QueryNotEmbeddedText is returned by Search when the query could not be embedded.
	QueryNotEmbeddedText = "unable to embed query"
)

var (
	ErrQueryNotEmbedded = errors.New("query could not be embedded")
	ErrInvalidItem      = errors.New("invalid knowledge item")
)

// Embedder produces one vector per text, or nothing when the batch failed.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) [][]float32
}

// Metrics receives search observations.
type Metrics interface {
	ObserveSearch(hits int, elapsed time.Duration)
}

// Hit is one ranked item.
type Hit struct {
	Item  Item    `json:"item"`
	Score float64 `json:"score"`
}

// Store holds the knowledge collection and its embedding cache.
type Store struct {
	embedder       Embedder
	seed           []Item
	expansionLimit int
	defaultTopK    int
	logger         *log.Logger
	metrics        Metrics

	// loadMu serializes Initialize and Load so the seed is embedded at most once.
	loadMu sync.Mutex

	mu          sync.RWMutex
	items       []Item
	vectors     map[string][]float32
	initialized bool
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSeed replaces the built-in seed set used by Initialize.
func WithSeed(items []Item) Option {
	return func(s *Store) { s.seed = items }
}

func WithExpansionLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.expansionLimit = n
		}
	}
}

// WithDefaultTopK sets the hit count used when a caller asks for zero or fewer hits.
func WithDefaultTopK(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.defaultTopK = n
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates an empty store. Call Initialize or Load, or let the first Search initialize it.
func New(embedder Embedder, opts ...Option) *Store {
	s := &Store{
		embedder:       embedder,
		seed:           SeedItems(),
		expansionLimit: DefaultExpansionLimit,
		defaultTopK:    DefaultTopK,
		logger:         log.New(log.Writer(), "[KNOWLEDGE] ", log.LstdFlags),
		vectors:        map[string][]float32{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads the seed set the first time it is called; later calls do nothing.
func (s *Store) Initialize(ctx context.Context) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.RLock()
	done := s.initialized
	s.mu.RUnlock()
	if done {
		return nil
	}
	return s.replace(ctx, s.seed)
}

// Load replaces the whole collection and rebuilds every embedding.
func (s *Store) Load(ctx context.Context, items []Item) error {
	if err := validateItems(items); err != nil {
		return err
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.replace(ctx, items)
}

func (s *Store) replace(ctx context.Context, items []Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	collection := make([]Item, len(items))
	copy(collection, items)
	vectors := s.buildEmbeddings(ctx, collection)

	s.mu.Lock()
	s.items = collection
	s.vectors = vectors
	s.initialized = true
	s.mu.Unlock()

	s.logger.Printf("loaded %d items (%d embedded)", len(collection), len(vectors))
	return nil
}

// buildEmbeddings embeds every item in one batch. Items past the end of a short response get no vector.
func (s *Store) buildEmbeddings(ctx context.Context, items []Item) map[string][]float32 {
	vectors := make(map[string][]float32, len(items))
	if len(items) == 0 {
		return vectors
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.EmbeddingText()
	}
	embedded := s.embedder.EmbedMany(ctx, texts)
	if len(embedded) < len(items) {
		s.logger.Printf("warn: embedded %d of %d items; the rest are not searchable", len(embedded), len(items))
	}
	for i, it := range items {
		if i < len(embedded) && len(embedded[i]) > 0 {
			vectors[it.ID()] = embedded[i]
		}
	}
	return vectors
}

func validateItems(items []Item) error {
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		id := it.ID()
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: item %d has no id", ErrInvalidItem, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidItem, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Items returns a copy of the current collection.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) snapshot() ([]Item, map[string][]float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items, s.vectors
}

// Hits ranks the collection against query and returns the best topK items.
// An empty collection triggers Initialize first.
func (s *Store) Hits(ctx context.Context, query string, topK int) ([]Hit, error) {
	started := time.Now()
	items, vectors := s.snapshot()
	if len(items) == 0 {
		if err := s.Initialize(ctx); err != nil {
			return nil, err
		}
		items, vectors = s.snapshot()
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	embedded := s.embedder.EmbedMany(ctx, []string{query})
	if len(embedded) == 0 || len(embedded[0]) == 0 {
		return nil, ErrQueryNotEmbedded
	}
	q := embedded[0]

	hits := make([]Hit, 0, len(items))
	for _, it := range items {
		vec, ok := vectors[it.ID()]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Item: it, Score: CosineSimilarity(q, vec)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	if s.metrics != nil {
		s.metrics.ObserveSearch(len(hits), time.Since(started))
	}
	return hits, nil
}

// Search returns the ranked hits and their graph expansion as display text.
func (s *Store) Search(ctx context.Context, query string, topK int) (string, error) {
	hits, err := s.Hits(ctx, query, topK)
	if errors.Is(err, ErrQueryNotEmbedded) {
		s.logger.Printf("warn: %v", err)
		return QueryNotEmbeddedText, nil
	}
	if err != nil {
		return "", err
	}
	items, _ := s.snapshot()
	return Render(hits, Expand(items, hits, s.expansionLimit)), nil
}

// Render formats hits and expansion lines. Nothing at all renders as NoKnowledgeText.
func Render(hits []Hit, expansion []string) string {
	parts := make([]string, 0, len(hits)+len(expansion)+1)
	for _, h := range hits {
		parts = append(parts, FormatHit(h))
	}
	if len(expansion) > 0 {
		parts = append(parts, "\n[related entities]")
		parts = append(parts, expansion...)
	}
	if len(parts) == 0 {
		return NoKnowledgeText
	}
	return strings.Join(parts, "\n")
}

// FormatHit renders one hit with its score to three decimals.
func FormatHit(h Hit) string {
	it := h.Item
	if it.Kind == KindRelation && it.Relation != nil {
		r := it.Relation
		return fmt.Sprintf("[relation] %s (source: %s, target: %s, similarity: %.3f)", r.Description, r.Source.ID, r.Target.ID, h.Score)
	}
	if it.Entity != nil {
		e := it.Entity
		kind := e.Type
		if kind == "" {
			kind = string(KindEntity)
		}
		return fmt.Sprintf("[%s] %s: %s (similarity: %.3f)", kind, e.Name, e.Description, h.Score)
	}
	return fmt.Sprintf("[unknown] %s (similarity: %.3f)", it.ID(), h.Score)
}

// Expand finds entities touched by the hits and, walking the collection in order, emits one line per
// entity describing the first relation that touches it. At most limit lines are returned.
func Expand(collection []Item, hits []Hit, limit int) []string {
	if limit <= 0 {
		limit = DefaultExpansionLimit
	}
	touched := map[string]struct{}{}
	for _, h := range hits {
		switch h.Item.Kind {
		case KindEntity:
			touched[h.Item.ID()] = struct{}{}
		case KindRelation:
			if r := h.Item.Relation; r != nil {
				if r.Source.Resolved {
					touched[r.Source.ID] = struct{}{}
				}
				if r.Target.Resolved {
					touched[r.Target.ID] = struct{}{}
				}
			}
		}
	}

	var lines []string
	for _, it := range collection {
		if len(lines) >= limit {
			break
		}
		if it.Kind != KindEntity || it.Entity == nil {
			continue
		}
		if _, ok := touched[it.Entity.ID]; !ok {
			continue
		}
		if rel := firstRelationTouching(collection, it.Entity.ID); rel != nil {
			lines = append(lines, fmt.Sprintf("- %s via '%s': %s", it.Entity.Name, rel.RelationType, rel.Description))
		}
	}
	return lines
}

func firstRelationTouching(collection []Item, entityID string) *Relation {
	for _, it := range collection {
		r := it.Relation
		if it.Kind != KindRelation || r == nil {
			continue
		}
		if (r.Source.Resolved && r.Source.ID == entityID) || (r.Target.Resolved && r.Target.ID == entityID) {
			return r
		}
	}
	return nil
}
