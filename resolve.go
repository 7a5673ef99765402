package pubmed

import (
	"context"
	"fmt"
	"log/slog"
)

// FetchFunc is the network collaborator for one cache category: given a
// batch of keys (already capped at the category's batch size), it returns
// the serialized result per key. Keys the upstream did not return are simply
// absent from the map. Retry and rate-limit policy belong to the
// collaborator, not the resolver.
type FetchFunc func(ctx context.Context, keys []string) (map[string][]byte, error)

// Resolver reconstitutes full results for a requested key list from the
// cache, calling the network collaborator only for misses and storing each
// result under its own key so overlapping future requests reuse the
// intersection.
type Resolver struct {
	Store     *Store      // nil disables caching
	Audit     *AuditLogger // nil disables auditing
	Category  Category
	Op        string // audit operation name
	BatchSize int
	Refresh   bool // treat every key as a miss, overwriting cached entries
	Fetch     FetchFunc
	Log       *slog.Logger
}

// Resolution is the outcome of a Resolve call. Payloads holds one entry per
// resolved key; Keys is the deduplicated request order.
type Resolution struct {
	Keys     Keys
	Payloads map[string][]byte
	Cached   int
	Fetched  int
	Failed   []string
}

// Keys is an ordered, deduplicated key list.
type Keys []string

func dedupeKeys(keys []string) Keys {
	seen := make(map[string]struct{}, len(keys))
	out := make(Keys, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Resolve probes the cache for every requested key, fetches the distinct
// misses in batches, audits the operation, persists the fetched results,
// and returns payloads in request order.
//
// The audit event is appended before the cache writes, so a crash in
// between leaves an audit trace with re-fetchable missing entries rather
// than unexplained cache state. A failed batch marks only its own keys as
// failed; the call errors only when nothing at all could be resolved.
func (r *Resolver) Resolve(ctx context.Context, requested []string) (*Resolution, error) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	res := &Resolution{
		Keys:     dedupeKeys(requested),
		Payloads: make(map[string][]byte),
	}
	if len(res.Keys) == 0 {
		return res, nil
	}

	var misses []string
	if r.Store != nil && !r.Refresh {
		for _, key := range res.Keys {
			if data, ok := r.Store.Get(r.Category, key); ok {
				res.Payloads[key] = data
				res.Cached++
			} else {
				misses = append(misses, key)
			}
		}
	} else {
		misses = res.Keys
	}

	fetched := make(map[string][]byte)
	var firstErr error
	for start := 0; start < len(misses); start += batchSize {
		end := min(start+batchSize, len(misses))
		batch := misses[start:end]

		results, err := r.Fetch(ctx, batch)
		if err != nil {
			log.Warn("batch failed", "op", r.Op, "keys", len(batch), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			res.Failed = append(res.Failed, batch...)
			continue
		}
		for _, key := range batch {
			if data, ok := results[key]; ok {
				fetched[key] = data
			} else {
				res.Failed = append(res.Failed, key)
			}
		}
	}
	res.Fetched = len(fetched)

	if err := r.Audit.Log(Event{
		Op:        r.Op,
		Requested: len(res.Keys),
		Cached:    res.Cached,
		Fetched:   res.Fetched,
		Failed:    len(res.Failed),
		Refreshed: r.Refresh,
	}); err != nil {
		return nil, err
	}

	for key, data := range fetched {
		if err := r.Store.Put(r.Category, key, data); err != nil {
			return nil, err
		}
	}

	// Re-read from the now-populated store so callers see exactly what a
	// later invocation would see.
	for key := range fetched {
		if r.Store != nil {
			if data, ok := r.Store.Get(r.Category, key); ok {
				res.Payloads[key] = data
				continue
			}
		}
		res.Payloads[key] = fetched[key]
	}

	if len(res.Payloads) == 0 && firstErr != nil {
		return res, fmt.Errorf("resolve %s: all %d keys failed: %w", r.Op, len(res.Keys), firstErr)
	}
	return res, nil
}
