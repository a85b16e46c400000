package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/insightgraph/internal/helpers"
)

// Document is source text ready for extraction.
type Document struct {
	Source string
	Title  string
	Text   string
}

// LoadDocument reads a local .txt/.md/.html file or fetches an http(s) URL. HTML is reduced to its
// main article text with readability and stripped of any residual markup.
func LoadDocument(ctx context.Context, client *http.Client, source string) (Document, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Document{}, fmt.Errorf("empty document source")
	}
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return fetchDocument(ctx, client, u)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return Document{}, fmt.Errorf("read document: %w", err)
	}
	switch strings.ToLower(filepath.Ext(source)) {
	case ".html", ".htm":
		return htmlDocument(source, data, &url.URL{Scheme: "file", Path: source})
	default:
		return Document{Source: source, Title: filepath.Base(source), Text: string(data)}, nil
	}
}

func fetchDocument(ctx context.Context, client *http.Client, u *url.URL) (Document, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Document{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", u, err)
	}
	body, err := helpers.ReadAllAndClose(resp.Body)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", u, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Document{}, fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") {
		return htmlDocument(u.String(), body, u)
	}
	return Document{Source: u.String(), Title: u.Host, Text: string(body)}, nil
}

func htmlDocument(source string, data []byte, pageURL *url.URL) (Document, error) {
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		// not an article; fall back to the whole page as text
		return Document{Source: source, Text: helpers.PlainText(string(data))}, nil
	}
	text := helpers.PlainText(article.TextContent)
	if text == "" {
		text = helpers.PlainText(string(data))
	}
	return Document{Source: source, Title: strings.TrimSpace(article.Title), Text: text}, nil
}
