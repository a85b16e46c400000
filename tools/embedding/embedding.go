package embedding

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/insightgraph/provider"
)

// Embedding wraps an embedder so callers never see a failure: a failed or
// malformed batch comes back empty and is logged.
type Embedding struct {
	provider provider.Embedder
	logger   *log.Logger
}

func NewEmbedding(provider provider.Embedder, logger *log.Logger) *Embedding {
	if logger == nil {
		logger = log.New(log.Writer(), "[EMBED] ", log.LstdFlags)
	}
	return &Embedding{
		provider: provider,
		logger:   logger,
	}
}

// EmbedMany returns one vector per text, or nil when the batch could not be embedded.
func (e *Embedding) EmbedMany(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 || e.provider == nil {
		return nil
	}

	vecs, err := e.provider.Embed(ctx, texts)
	if err != nil {
		e.logger.Printf("warn: embedding %d texts failed: %v", len(texts), err)
		return nil
	}
	if len(vecs) != len(texts) {
		e.logger.Printf("warn: embedding returned %d vectors for %d texts", len(vecs), len(texts))
		return nil
	}
	return vecs
}
