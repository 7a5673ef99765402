// Package pubmed provides tools for building reproducible PubMed literature
// pipelines: search, fetch, parse, filter, cite, and download, backed by a
// crash-safe local cache and an append-only audit trail.
//
// All state lives in a .pm/ directory:
//   - cache/{search,fetch,cite,download}  per-category cache entries
//   - audit.jsonl                         one JSON event per line, append-only
//   - index.db                            optional local article index
//
// Cache writes are atomic (temp file + rename) and audit appends are single
// bounded writes, so concurrent pm processes need no locking: a killed
// process leaves either the old or the new content, never a mix. Corrupted
// cache entries are treated as misses and heal on the next fetch. Composite
// fetch responses are split into per-article fragments so overlapping
// requests reuse the intersection, and audit events are written before the
// cache entries they describe, making the trail the source of truth for
// reproducibility reporting.
//
// Basic usage:
//
//	store, err := pubmed.Init(".")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	pmids, err := pubmed.Search(ctx, store, "CRISPR cancer therapy", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	xml, err := pubmed.FetchArticles(ctx, store, pmids, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	articles := pubmed.ParseArticles(xml)
package pubmed
