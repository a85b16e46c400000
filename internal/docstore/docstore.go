// Package docstore is a document retriever: chunks are indexed in an in-memory bleve
// index and, when an embedder is available, ranked again by vector similarity and
// fused with reciprocal rank fusion.
package docstore

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/insightgraph/internal/extract"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
)

const (
	// NoDocumentsText is returned when no chunk matches the query.
	NoDocumentsText = "no relevant documents found"

	rrfK       = 60
	snippetLen = 300
)

// Chunk is one indexed piece of a document.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// DefaultDelimiters end a chunking unit at Chinese and English sentence ends and at line breaks.
var DefaultDelimiters = []string{extract.DefaultDelimiter, ". ", "\n"}

// Hit is a ranked chunk.
type Hit struct {
	Chunk Chunk
	Score float64
	Rank  int
}

type vector struct {
	id  string
	vec []float32
}

// Store indexes document chunks for retrieval.
type Store struct {
	index      bleve.Index
	embedder   knowledge.Embedder
	chunkSize  int
	delimiters []string
	logger     *log.Logger

	mu      sync.RWMutex
	chunks  map[string]Chunk
	vectors []vector
	seq     int
}

// Option configures a Store.
type Option func(*Store)

func WithEmbedder(e knowledge.Embedder) Option { return func(s *Store) { s.embedder = e } }

func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithDelimiters adds sentence delimiters to DefaultDelimiters for chunking documents.
func WithDelimiters(d []string) Option {
	return func(s *Store) {
		for _, delim := range d {
			if delim != "" && !slices.Contains(s.delimiters, delim) {
				s.delimiters = append(s.delimiters, delim)
			}
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(opts ...Option) (*Store, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	s := &Store{
		index:      index,
		chunkSize:  800,
		delimiters: slices.Clone(DefaultDelimiters),
		logger:     log.New(log.Writer(), "[DOCSTORE] ", log.LstdFlags),
		chunks:     make(map[string]Chunk),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the index.
func (s *Store) Close() error { return s.index.Close() }

// Len reports how many chunks are indexed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// AddDocument splits doc into chunks and indexes them. It returns the number of chunks added.
func (s *Store) AddDocument(ctx context.Context, doc extract.Document) (int, error) {
	pieces := extract.SplitText(doc.Text, s.delimiters, s.chunkSize)
	if len(pieces) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	added := make([]Chunk, 0, len(pieces))
	for _, text := range pieces {
		s.seq++
		c := Chunk{ID: fmt.Sprintf("doc_%d", s.seq), Source: doc.Source, Title: doc.Title, Text: text}
		if err := s.index.Index(c.ID, c); err != nil {
			s.mu.Unlock()
			return len(added), fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
		s.chunks[c.ID] = c
		added = append(added, c)
	}
	s.mu.Unlock()

	if s.embedder != nil {
		texts := make([]string, len(added))
		for i, c := range added {
			texts[i] = c.Text
		}
		vecs := s.embedder.EmbedMany(ctx, texts)
		if len(vecs) == len(added) {
			s.mu.Lock()
			for i, c := range added {
				s.vectors = append(s.vectors, vector{id: c.ID, vec: vecs[i]})
			}
			s.mu.Unlock()
		} else {
			s.logger.Printf("warn: %d chunks from %q indexed without vectors", len(added), doc.Source)
		}
	}
	return len(added), nil
}

// Hits returns the top-k chunks for q, fusing keyword and vector rankings when vectors exist.
func (s *Store) Hits(ctx context.Context, q string, k int) ([]Hit, error) {
	if k <= 0 {
		k = knowledge.DefaultTopK
	}
	if strings.TrimSpace(q) == "" {
		return nil, nil
	}
	keyword, err := s.bm25(ctx, q, k*3)
	if err != nil {
		return nil, err
	}
	semantic := s.semantic(ctx, q, k*3)
	if len(semantic) == 0 {
		if len(keyword) > k {
			keyword = keyword[:k]
		}
		return keyword, nil
	}
	return fuse(keyword, semantic, k), nil
}

// Search renders the top-k chunks as retrieval text.
func (s *Store) Search(ctx context.Context, q string, k int) (string, error) {
	hits, err := s.Hits(ctx, q, k)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return NoDocumentsText, nil
	}
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		title := h.Chunk.Title
		if title == "" {
			title = h.Chunk.Source
		}
		lines = append(lines, fmt.Sprintf("[%s] %s (score: %.3f)", title, snippet(h.Chunk.Text), h.Score))
	}
	return strings.Join(lines, "\n"), nil
}

func (s *Store) bm25(ctx context.Context, q string, size int) ([]Hit, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(q), size, 0, false)
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Hit, 0, len(res.Hits))
	for _, m := range res.Hits {
		c, ok := s.chunks[m.ID]
		if !ok {
			continue
		}
		out = append(out, Hit{Chunk: c, Score: m.Score, Rank: len(out) + 1})
	}
	return out, nil
}

func (s *Store) semantic(ctx context.Context, q string, size int) []Hit {
	s.mu.RLock()
	empty := len(s.vectors) == 0
	s.mu.RUnlock()
	if s.embedder == nil || empty {
		return nil
	}
	qv := s.embedder.EmbedMany(ctx, []string{q})
	if len(qv) != 1 {
		s.logger.Printf("warn: query not embedded, keyword ranking only")
		return nil
	}

	s.mu.RLock()
	out := make([]Hit, 0, len(s.vectors))
	for _, v := range s.vectors {
		out = append(out, Hit{Chunk: s.chunks[v.id], Score: knowledge.CosineSimilarity(qv[0], v.vec)})
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > size {
		out = out[:size]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func fuse(a, b []Hit, k int) []Hit {
	type agg struct {
		hit   Hit
		score float64
		first int
	}
	seen := map[string]*agg{}
	order := 0
	add := func(list []Hit) {
		for _, h := range list {
			x, ok := seen[h.Chunk.ID]
			if !ok {
				x = &agg{hit: h, first: order}
				seen[h.Chunk.ID] = x
				order++
			}
			x.score += 1.0 / float64(rrfK+h.Rank)
		}
	}
	add(a)
	add(b)

	items := make([]*agg, 0, len(seen))
	for _, v := range seen {
		items = append(items, v)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].first < items[j].first
	})
	if len(items) > k {
		items = items[:k]
	}
	out := make([]Hit, len(items))
	for i, x := range items {
		out[i] = x.hit
		out[i].Score = x.score
		out[i].Rank = i + 1
	}
	return out
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetLen {
		return s
	}
	return string(r[:snippetLen]) + "..."
}
