package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFetchTimeout bounds each outbound feed request.
	DefaultFetchTimeout = 10 * time.Second

	// How many sources may be in flight at once.
	maxConcurrentFetches = 4

	// Responses past this size are cut off rather than read to the end.
	maxBodyBytes = 4 << 20
)

// SourceResult is the outcome for a single source in an aggregation cycle:
// either the tokens it contributed or the reason it was skipped.
type SourceResult struct {
	Source string
	Tokens []string
	Err    error
}

// Aggregator fetches every configured source and tokenizes the responses.
type Aggregator struct {
	client *http.Client
}

func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	return &Aggregator{
		client: &http.Client{Timeout: timeout},
	}
}

// Aggregate runs one cycle over the sources. Fetches fan out with bounded
// concurrency, but each result lands in its source's slot so token order
// follows the source list, not completion order. A failing source is
// recorded in place and never aborts the cycle; a run where every source
// fails is a valid empty result.
func (a *Aggregator) Aggregate(ctx context.Context, sources []string) []SourceResult {
	results := make([]SourceResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			tokens, err := a.fetch(gctx, src)
			results[i] = SourceResult{Source: src, Tokens: tokens, Err: err}

			if err != nil {
				slog.WarnContext(gctx, "skipping feed source", "source", src, "error", err)
			} else {
				slog.InfoContext(gctx, "loaded feed source", "source", src, "tokens", len(tokens))
			}

			return nil
		})
	}
	_ = g.Wait() // workers report failures in their slot, never as errors

	return results
}

func (a *Aggregator) fetch(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error getting feed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading feed body: %w", err)
	}

	return Parse(body)
}

// Texts flattens results into the token sequence for the display, keeping
// source-list order.
func Texts(results []SourceResult) []string {
	var texts []string
	for _, res := range results {
		texts = append(texts, res.Tokens...)
	}

	return texts
}
