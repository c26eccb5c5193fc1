package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// FetchResult is what a query execution produced: the raw capture to
// store as an artifact plus the narrative lines for the execution log.
type FetchResult struct {
	Capture     []byte
	ContentType string
	Log         []string
}

// Fetcher executes a query. Runner images with richer executors (a real
// browser, an agent loop) plug in here; the default grabs the page the
// query names over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (*FetchResult, error)
}

const maxCaptureSize = 5 << 20

type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, query string) (*FetchResult, error) {
	target, err := url.Parse(query)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, fmt.Errorf("query is not a fetchable url: %q", query)
	}

	result := &FetchResult{
		Log: []string{fmt.Sprintf("fetching %s", target)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCaptureSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/html"
	}

	result.Capture = body
	result.ContentType = contentType
	result.Log = append(result.Log,
		fmt.Sprintf("received %d bytes (%s), status %s", len(body), contentType, resp.Status))

	return result, nil
}
