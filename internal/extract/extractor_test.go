package extract

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
	"github.com/mohammad-safakhou/insightgraph/provider"
)

// chunkLLM answers each chunk with the reply registered for the first marker the chunk contains.
type chunkLLM struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	prompts []string
}

func (c *chunkLLM) Complete(ctx context.Context, messages []provider.Message, opts provider.CompleteOptions) (string, error) {
	prompt := messages[len(messages)-1].Content
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	if !opts.JSON {
		return "", errors.New("extraction must use JSON mode")
	}
	for marker, err := range c.fail {
		if strings.Contains(prompt, marker) {
			return "", err
		}
	}
	for marker, reply := range c.replies {
		if strings.Contains(prompt, marker) {
			return reply, nil
		}
	}
	return `{"entities": [], "relations": []}`, nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) ObserveChunk(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[status]++
}

func newTestExtractor(llm provider.LLM, opts ...Option) *Extractor {
	return NewExtractor(llm, append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)...)
}

func TestExtractFromTextMergesChunks(t *testing.T) {
	llm := &chunkLLM{replies: map[string]string{
		"ALPHA": "```json\n" + `{
			"entities": [
				{"id": "entity_1", "type": "region", "name": "East China", "description": "key sales region"},
				{"id": "entity_2", "type": "event", "name": "Partner Plan", "description": "distributor renegotiation"}
			],
			"relations": [
				{"source": "entity_1", "target": "entity_2", "relation_type": "occurred", "description": "plan launched in Q3"}
			]
		}` + "\n```",
		"BETA": `{
			"entities": [
				{"id": "entity_1", "type": "region", "name": "East China", "description": "covers Shanghai", "properties": {"code": "HD"}},
				{"id": "entity_2", "type": "facility", "name": "Shanghai Logistics Center", "description": "upgraded in Q3"}
			],
			"relations": [
				{"source": "entity_1", "target": "entity_2", "relation_type": "contains", "description": "region contains center"},
				{"source": "Shanghai Logistics Center", "target": "Flagship Series", "relation_type": "ships", "description": "ships phones"}
			]
		}`,
	}}
	metrics := &countingMetrics{}
	ex := newTestExtractor(llm, WithMetrics(metrics))

	items, err := ex.ExtractFromText(context.Background(), "ALPHA report。BETA report。", 10)
	require.NoError(t, err)
	require.Len(t, llm.prompts, 2)
	require.Equal(t, 2, metrics.counts["ok"])

	// three distinct entities after merging, then three relations
	require.Len(t, items, 6)
	east := items[0].Entity
	require.Equal(t, "East China", east.Name)
	require.Equal(t, "key sales region；covers Shanghai", east.Description)
	require.Equal(t, "HD", east.Properties["code"])
	require.Equal(t, "Shanghai Logistics Center", items[2].Entity.Name)
	require.Equal(t, "entity_3", items[2].Entity.ID)

	occurred := items[3].Relation
	require.Equal(t, knowledge.Ref("entity_1"), occurred.Source)
	require.Equal(t, knowledge.Ref("entity_2"), occurred.Target)

	contains := items[4].Relation
	require.Equal(t, knowledge.Ref("entity_1"), contains.Source)
	require.Equal(t, knowledge.Ref("entity_3"), contains.Target)

	ships := items[5].Relation
	require.Equal(t, knowledge.Ref("entity_3"), ships.Source)
	require.Equal(t, knowledge.Unresolved("Flagship Series"), ships.Target)
}

func TestExtractFromTextDropsFailedChunks(t *testing.T) {
	llm := &chunkLLM{
		replies: map[string]string{
			"GOOD":   `{"entities": [{"name": "East China", "description": "region"}], "relations": []}`,
			"BROKEN": `I could not find anything useful, sorry.`,
			"SHAPE":  `{"entities": [{"description": "no name"}]}`,
		},
		fail: map[string]error{"DOWN": errors.New("upstream unavailable")},
	}
	metrics := &countingMetrics{}
	ex := newTestExtractor(llm, WithMetrics(metrics), WithConcurrency(1))

	items, err := ex.ExtractFromText(context.Background(), "GOOD。BROKEN。SHAPE。DOWN。", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "East China", items[0].Entity.Name)
	require.Equal(t, "entity", items[0].Entity.Type)
	require.Equal(t, 1, metrics.counts["ok"])
	require.Equal(t, 3, metrics.counts["failed"])
}

func TestExtractFromTextSkipsWhitespaceChunks(t *testing.T) {
	llm := &chunkLLM{}
	ex := newTestExtractor(llm, WithDelimiters([]string{"\n"}))
	items, err := ex.ExtractFromText(context.Background(), "   \n", 1)
	require.NoError(t, err)
	require.Empty(t, items)
	require.Empty(t, llm.prompts)
}

func TestExtractFromTextHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := &chunkLLM{fail: map[string]error{"": context.Canceled}}
	_, err := newTestExtractor(llm).ExtractFromText(ctx, "one。two。", 1)
	require.ErrorIs(t, err, context.Canceled)
}
