package pubmed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const efetchBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi"

// E-utilities accept up to a few hundred IDs per request; 200 keeps well
// inside the documented limit. Without an API key NCBI allows ~3 req/s.
const (
	defaultBatchSize = 200
	defaultRateDelay = 340 * time.Millisecond
)

// FetchOptions configures article fetching.
type FetchOptions struct {
	// BatchSize caps PMIDs per EFetch request (default 200).
	BatchSize int

	// RateDelay is the pause between consecutive batches (default 340ms).
	RateDelay time.Duration

	// Refresh bypasses the cache and overwrites cached fragments.
	Refresh bool

	// BaseURL overrides the EFetch endpoint (tests).
	BaseURL string

	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client

	Log *slog.Logger
}

// FetchArticles returns a composite PubmedArticleSet document for the
// requested PMIDs, in request order (duplicates preserved). Each article is
// cached as an individual fragment, so only PMIDs without a valid cached
// fragment cost a network call; composite responses are split per article
// before storage and the output is reassembled from the cache.
//
// A failed batch loses only its own PMIDs for this invocation; earlier
// batches stay cached and usable.
func FetchArticles(ctx context.Context, store *Store, pmids []string, opts *FetchOptions) ([]byte, error) {
	if opts == nil {
		opts = &FetchOptions{}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	requested := make([]string, 0, len(pmids))
	for _, id := range pmids {
		if id = strings.TrimSpace(id); id != "" {
			requested = append(requested, id)
		}
	}
	if len(requested) == 0 {
		return nil, nil
	}

	delay := opts.RateDelay
	if delay == 0 {
		delay = defaultRateDelay
	}

	batchNum := 0
	resolver := &Resolver{
		Store:     store,
		Audit:     store.Audit(),
		Category:  CategoryFetch,
		Op:        OpFetch,
		BatchSize: opts.BatchSize,
		Refresh:   opts.Refresh,
		Log:       log,
		Fetch: func(ctx context.Context, batch []string) (map[string][]byte, error) {
			if batchNum > 0 && delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			batchNum++
			log.Debug("fetching batch", "n", batchNum, "pmids", len(batch))
			return efetchBatch(ctx, batch, opts)
		},
	}

	res, err := resolver.Resolve(ctx, requested)
	if err != nil {
		return nil, err
	}
	if len(res.Payloads) == 0 {
		return nil, nil
	}
	return ReassembleArticleSet(requested, res.Payloads), nil
}

// efetchBatch fetches one composite response and splits it into per-PMID
// fragments.
func efetchBatch(ctx context.Context, pmids []string, opts *FetchOptions) (map[string][]byte, error) {
	base := opts.BaseURL
	if base == "" {
		base = efetchBaseURL
	}
	u := fmt.Sprintf("%s?db=pubmed&id=%s&rettype=abstract&retmode=xml",
		base, strings.Join(pmids, ","))

	body, err := httpGet(ctx, opts.HTTPClient, u)
	if err != nil {
		return nil, err
	}

	fragments, err := SplitArticleSet(body)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(fragments))
	for _, frag := range fragments {
		out[frag.PMID] = frag.XML
	}
	return out, nil
}
