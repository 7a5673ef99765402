package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const esearchBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"

// DefaultSearchMax is the result cap applied when none is given.
const DefaultSearchMax = 10000

// ErrEmptyQuery reports a blank search query.
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchOptions configures a PubMed search.
type SearchOptions struct {
	// Max caps the number of returned PMIDs (default DefaultSearchMax).
	Max int

	// Refresh bypasses the cache and overwrites the stored record.
	Refresh bool

	// BaseURL overrides the ESearch endpoint (tests).
	BaseURL string

	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client

	Log *slog.Logger
}

type esearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	IDs     []string `xml:"IdList>Id"`
}

// Search queries PubMed and returns the matching PMIDs. Distinct normalized
// (query, max) pairs are cached permanently under their content digest; a
// hit answers from the cache and audits the reuse with the original
// timestamp. On a fresh search the audit event is written before the cache
// record.
func Search(ctx context.Context, store *Store, query string, opts *SearchOptions) ([]string, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	maxResults := opts.Max
	if maxResults <= 0 {
		maxResults = DefaultSearchMax
	}
	key := searchKey(query, maxResults)

	if !opts.Refresh {
		if rec, ok := store.GetSearchRecord(key); ok {
			log.Info("using cached search", "query", query, "from", rec.Timestamp)
			if err := store.Audit().Log(Event{
				Op:         OpSearch,
				Query:      query,
				Max:        maxResults,
				Count:      rec.Count,
				Cached:     len(rec.Keys),
				OriginalTS: rec.Timestamp,
			}); err != nil {
				return nil, err
			}
			return rec.Keys, nil
		}
	}

	pmids, err := esearch(ctx, query, maxResults, opts)
	if err != nil {
		return nil, err
	}

	// Audit before cache: the trail is the source of truth for
	// reproducibility, and a lost cache entry heals on re-fetch.
	if err := store.Audit().Log(Event{
		Op:        OpSearch,
		Query:     query,
		Max:       maxResults,
		Count:     len(pmids),
		Refreshed: opts.Refresh,
	}); err != nil {
		return nil, err
	}

	rec := SearchRecord{
		Query:     query,
		Max:       maxResults,
		Keys:      pmids,
		Count:     len(pmids),
		Timestamp: time.Now().UTC().Format(auditTimeLayout),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := store.Put(CategorySearch, key, data); err != nil {
		return nil, err
	}
	return pmids, nil
}

func esearch(ctx context.Context, query string, maxResults int, opts *SearchOptions) ([]string, error) {
	base := opts.BaseURL
	if base == "" {
		base = esearchBaseURL
	}
	u := fmt.Sprintf("%s?db=pubmed&term=%s&retmax=%d&retmode=xml",
		base, url.QueryEscape(query), maxResults)

	body, err := httpGet(ctx, opts.HTTPClient, u)
	if err != nil {
		return nil, err
	}

	var result esearchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse esearch response: %w", err)
	}
	pmids := make([]string, 0, len(result.IDs))
	for _, id := range result.IDs {
		if id = strings.TrimSpace(id); id != "" {
			pmids = append(pmids, id)
		}
	}
	return pmids, nil
}

// httpGet performs one GET and returns the body, treating any non-200
// status as an error. Retry policy belongs to the individual API clients.
func httpGet(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
