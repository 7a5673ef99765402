package pubmed

import "sort"

// Reporter derives summaries from the audit trail. It reads retained
// records only; it never re-derives counts from raw cache entries.
type Reporter struct {
	Store *Store
}

// AuditSummary is the by-operation event breakdown.
type AuditSummary struct {
	TotalEvents   int            `json:"total_events"`
	ByOp          map[string]int `json:"by_op"`
	TruncatedTail bool           `json:"truncated_tail,omitempty"`
	Anomalies     int            `json:"anomalies,omitempty"`
}

// Summary tallies all recorded operations.
func (r *Reporter) Summary() (AuditSummary, error) {
	events, stats, err := r.Store.Audit().ReadEvents()
	if err != nil {
		return AuditSummary{}, err
	}
	byOp := make(map[string]int)
	for _, e := range events {
		op := e.Op
		if op == "" {
			op = "unknown"
		}
		byOp[op]++
	}
	return AuditSummary{
		TotalEvents:   len(events),
		ByOp:          byOp,
		TruncatedTail: stats.TruncatedTail,
		Anomalies:     stats.Anomalies,
	}, nil
}

// Searches returns the search events in chronological order.
func (r *Reporter) Searches() ([]Event, error) {
	events, _, err := r.Store.Audit().ReadEvents()
	if err != nil {
		return nil, err
	}
	var searches []Event
	for _, e := range events {
		if e.Op == OpSearch {
			searches = append(searches, e)
		}
	}
	return searches, nil
}

// SearchOverlap is the key overlap between one pair of recorded searches.
type SearchOverlap struct {
	QueryA  string `json:"query_a"`
	QueryB  string `json:"query_b"`
	Overlap int    `json:"overlap"`
}

// DedupReport quantifies result overlap across all recorded searches, built
// from the full key lists retained in the search cache records.
type DedupReport struct {
	Searches   int             `json:"searches"`
	TotalKeys  int             `json:"total_keys"`
	UniqueKeys int             `json:"unique_keys"`
	Overlaps   []SearchOverlap `json:"overlaps,omitempty"`
}

// Dedup computes pairwise overlaps between every pair of search events
// whose cache record is still present. Searches whose record was evicted or
// never cached are left out of the accounting.
func (r *Reporter) Dedup() (DedupReport, error) {
	searches, err := r.Searches()
	if err != nil {
		return DedupReport{}, err
	}

	type recorded struct {
		query string
		keys  []string
	}
	var recs []recorded
	seen := make(map[string]struct{})
	union := make(map[string]struct{})
	total := 0
	for _, e := range searches {
		key := searchKey(e.Query, e.Max)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rec, ok := r.Store.GetSearchRecord(key)
		if !ok {
			continue
		}
		recs = append(recs, recorded{query: e.Query, keys: rec.Keys})
		total += len(rec.Keys)
		for _, k := range rec.Keys {
			union[k] = struct{}{}
		}
	}

	report := DedupReport{
		Searches:   len(recs),
		TotalKeys:  total,
		UniqueKeys: len(union),
	}
	for i := 0; i < len(recs); i++ {
		set := make(map[string]struct{}, len(recs[i].keys))
		for _, k := range recs[i].keys {
			set[k] = struct{}{}
		}
		for j := i + 1; j < len(recs); j++ {
			overlap := 0
			for _, k := range recs[j].keys {
				if _, ok := set[k]; ok {
					overlap++
				}
			}
			report.Overlaps = append(report.Overlaps, SearchOverlap{
				QueryA:  recs[i].query,
				QueryB:  recs[j].query,
				Overlap: overlap,
			})
		}
	}
	return report, nil
}

// ExclusionReport sums screening exclusions across all filter events.
type ExclusionReport struct {
	Filters     int            `json:"filters"`
	Input       int            `json:"input"`
	Output      int            `json:"output"`
	Excluded    int            `json:"excluded"`
	ByCriterion map[string]int `json:"by_criterion,omitempty"`
}

// Exclusions sums the per-criterion breakdowns the filter events already
// carry; each excluded article was attributed to exactly one criterion at
// filter time.
func (r *Reporter) Exclusions() (ExclusionReport, error) {
	events, _, err := r.Store.Audit().ReadEvents()
	if err != nil {
		return ExclusionReport{}, err
	}
	report := ExclusionReport{ByCriterion: make(map[string]int)}
	for _, e := range events {
		if e.Op != OpFilter {
			continue
		}
		report.Filters++
		report.Input += e.Input
		report.Output += e.Output
		report.Excluded += e.Excluded
		for criterion, n := range e.ExcludedBy {
			report.ByCriterion[criterion] += n
		}
	}
	if len(report.ByCriterion) == 0 {
		report.ByCriterion = nil
	}
	return report, nil
}

// CriterionNames returns the criteria of a breakdown in the declared
// evaluation order, then any unknown names alphabetically.
func CriterionNames(byCriterion map[string]int) []string {
	var names []string
	known := make(map[string]struct{}, len(criterionOrder))
	for _, name := range criterionOrder {
		known[name] = struct{}{}
		if _, ok := byCriterion[name]; ok {
			names = append(names, name)
		}
	}
	var extra []string
	for name := range byCriterion {
		if _, ok := known[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}
