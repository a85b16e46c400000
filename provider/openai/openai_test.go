package openai_provider

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mohammad-safakhou/insightgraph/config"
	"github.com/mohammad-safakhou/insightgraph/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(config.LLMConfig{
		APIKey:          "test-key",
		BaseURL:         srv.URL + "/",
		CompletionModel: "test-model",
		EmbeddingModel:  "test-embed",
	}, log.New(io.Discard, "", 0))
}

func TestCompleteRequestsJSONMode(t *testing.T) {
	var got request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`)
	})

	out, err := client.Complete(context.Background(), provider.Conversation("sys", "user"), provider.CompleteOptions{JSON: true})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected content %q", out)
	}
	if got.Model != "test-model" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json_object response format, got %+v", got.ResponseFormat)
	}
}

func TestCompleteOmitsResponseFormatForText(t *testing.T) {
	var raw map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"plain"}}]}`)
	})
	if _, err := client.Complete(context.Background(), provider.Conversation("", "hi"), provider.CompleteOptions{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, ok := raw["response_format"]; ok {
		t.Fatalf("response_format should be omitted for text completions")
	}
}

func TestCompleteSurfacesHTTPErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":"rate limited"}`)
	})
	_, err := client.Complete(context.Background(), provider.Conversation("", "hi"), provider.CompleteOptions{})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})
	if _, err := client.Complete(context.Background(), provider.Conversation("", "hi"), provider.CompleteOptions{}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`)
	})
	vecs, err := client.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vectors out of order: %v", vecs)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"index":0,"embedding":[1]}]}`)
	})
	if _, err := client.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestEmbedEmptyInputSkipsRequest(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	vecs, err := client.Embed(context.Background(), nil)
	if err != nil || vecs != nil || called {
		t.Fatalf("expected no request, got vecs=%v err=%v called=%t", vecs, err, called)
	}
}

func TestCompleteErrorKeepsMultibyteBodyValid(t *testing.T) {
	body := strings.Repeat("请求过多", 80)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(body))
	})
	_, err := client.Complete(context.Background(), provider.Conversation("sys", "hi"), provider.CompleteOptions{})
	if err == nil {
		t.Fatalf("expected error for 429 response")
	}
	if !utf8.ValidString(err.Error()) {
		t.Fatalf("error message is not valid UTF-8: %q", err.Error())
	}
	if !strings.HasSuffix(err.Error(), "...") {
		t.Fatalf("expected truncated body, got %q", err.Error())
	}
}

func TestSnippetCountsRunes(t *testing.T) {
	short := strings.Repeat("区", snippetRunes)
	if got := snippet([]byte(short)); got != short {
		t.Fatalf("expected body of exactly %d runes to be kept, got %q", snippetRunes, got)
	}
	got := snippet([]byte(short + "域"))
	if utf8.RuneCountInString(got) != snippetRunes+3 || !strings.HasPrefix(got, short) {
		t.Fatalf("unexpected snippet %q", got)
	}
}
