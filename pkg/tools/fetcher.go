package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	readability "github.com/go-shiori/go-readability"
)

// Fetcher turns a URL into Markdown (§6 "Web fetcher: Fetch(url) →
// markdown; implementation tries a Reader service first, then an
// HTML→readability→Markdown fallback").
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// ReaderFallbackFetcher is the reference Fetcher: it tries a
// Jina-AI-style Reader proxy (https://r.jina.ai/<url>, which itself
// returns Markdown) first, and falls back to fetching the raw HTML and
// running it through go-readability + html-to-markdown when the Reader
// service errors or the URL is unreachable through it.
type ReaderFallbackFetcher struct {
	httpClient *http.Client
	readerBase string
}

// NewReaderFallbackFetcher builds a fetcher. readerBase may be empty to
// use the default public Reader endpoint.
func NewReaderFallbackFetcher(readerBase string) *ReaderFallbackFetcher {
	if readerBase == "" {
		readerBase = "https://r.jina.ai/"
	}
	return &ReaderFallbackFetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		readerBase: readerBase,
	}
}

func (f *ReaderFallbackFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	if content, err := f.fetchViaReader(ctx, rawURL); err == nil {
		return content, nil
	}

	return f.fetchViaReadability(ctx, rawURL)
}

func (f *ReaderFallbackFetcher) fetchViaReader(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.readerBase+rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reader service fetch %q: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader service returned HTTP %d for %q", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read reader service response for %q: %w", rawURL, err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("reader service returned empty body for %q", rawURL)
	}
	return string(body), nil
}

func (f *ReaderFallbackFetcher) fetchViaReadability(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %q: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %q returned HTTP %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", fmt.Errorf("extract readable content from %q: %w", rawURL, err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(article.Content)
	if err != nil {
		return "", fmt.Errorf("convert %q to markdown: %w", rawURL, err)
	}
	return markdown, nil
}
