package telemetry

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/insightgraph/provider"
)

type instrumented struct {
	next    provider.Provider
	metrics *Metrics
}

// Instrument wraps p so every completion and embedding call is counted and timed.
func Instrument(p provider.Provider, m *Metrics) provider.Provider {
	if m == nil {
		return p
	}
	return &instrumented{next: p, metrics: m}
}

func (i *instrumented) Complete(ctx context.Context, messages []provider.Message, opts provider.CompleteOptions) (string, error) {
	started := time.Now()
	out, err := i.next.Complete(ctx, messages, opts)
	i.metrics.observeCall("complete", err, time.Since(started))
	return out, err
}

func (i *instrumented) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	started := time.Now()
	out, err := i.next.Embed(ctx, texts)
	i.metrics.observeCall("embed", err, time.Since(started))
	return out, err
}
