package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const fetchTimeout = 10 * time.Second

// HTTPMetadataFetcher calls a metadata endpoint that unfurls page URLs.
type HTTPMetadataFetcher struct {
	Endpoint string
	Client   *http.Client
}

func (f *HTTPMetadataFetcher) Fetch(ctx context.Context, pageURL string) (*Metadata, error) {
	var out Metadata
	if err := getJSON(ctx, f.Client, f.Endpoint, pageURL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HTTPArticleExtractor calls a readability endpoint.
type HTTPArticleExtractor struct {
	Endpoint string
	Client   *http.Client
}

func (e *HTTPArticleExtractor) Extract(ctx context.Context, pageURL string) (*Article, error) {
	var out Article
	if err := getJSON(ctx, e.Client, e.Endpoint, pageURL, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint, pageURL string, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		endpoint+"?url="+url.QueryEscape(pageURL), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("enrichment endpoint returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode enrichment response: %w", err)
	}
	return nil
}
