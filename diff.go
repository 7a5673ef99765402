package pubmed

import (
	"bufio"
	"encoding/json"
	"io"
	"reflect"
	"sort"
)

// DiffEntry is one difference between two article streams, keyed by PMID.
type DiffEntry struct {
	PMID          string         `json:"pmid"`
	Status        string         `json:"status"` // "added", "removed", "changed"
	Article       map[string]any `json:"article,omitempty"`
	Old           map[string]any `json:"old,omitempty"`
	New           map[string]any `json:"new,omitempty"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
}

// DiffSummary aggregates a comparison.
type DiffSummary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// LoadArticleMaps reads a JSONL stream into raw maps, keeping only objects
// carrying a pmid field. Comparison works on raw maps rather than Article so
// unknown fields still participate in the diff.
func LoadArticleMaps(r io.Reader) ([]map[string]any, error) {
	var out []map[string]any
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			continue
		}
		if _, ok := obj["pmid"]; ok {
			out = append(out, obj)
		}
	}
	return out, sc.Err()
}

// indexByPMID keys articles by pmid, last occurrence winning, preserving
// first-occurrence order.
func indexByPMID(articles []map[string]any) (map[string]map[string]any, []string) {
	byPMID := make(map[string]map[string]any, len(articles))
	var order []string
	for _, a := range articles {
		pmid, _ := a["pmid"].(string)
		if pmid == "" {
			continue
		}
		if _, seen := byPMID[pmid]; !seen {
			order = append(order, pmid)
		}
		byPMID[pmid] = a
	}
	return byPMID, order
}

func withoutFields(a map[string]any, ignore map[string]struct{}) map[string]any {
	if len(ignore) == 0 {
		return a
	}
	out := make(map[string]any, len(a))
	for k, v := range a {
		if _, skip := ignore[k]; !skip {
			out[k] = v
		}
	}
	return out
}

// DiffArticles compares two article streams by PMID, ignoring the named
// fields. Entries come back grouped: removed, then changed, then added.
func DiffArticles(oldArticles, newArticles []map[string]any, ignoreFields []string) []DiffEntry {
	ignore := make(map[string]struct{}, len(ignoreFields))
	for _, f := range ignoreFields {
		ignore[f] = struct{}{}
	}

	oldByPMID, oldOrder := indexByPMID(oldArticles)
	newByPMID, newOrder := indexByPMID(newArticles)

	var removed, changed, added []DiffEntry
	for _, pmid := range oldOrder {
		oldArticle := oldByPMID[pmid]
		newArticle, ok := newByPMID[pmid]
		if !ok {
			removed = append(removed, DiffEntry{PMID: pmid, Status: "removed", Article: oldArticle})
			continue
		}
		oldCmp := withoutFields(oldArticle, ignore)
		newCmp := withoutFields(newArticle, ignore)
		if reflect.DeepEqual(oldCmp, newCmp) {
			continue
		}
		fields := make(map[string]struct{})
		for k := range oldCmp {
			fields[k] = struct{}{}
		}
		for k := range newCmp {
			fields[k] = struct{}{}
		}
		var changedFields []string
		for k := range fields {
			if !reflect.DeepEqual(oldCmp[k], newCmp[k]) {
				changedFields = append(changedFields, k)
			}
		}
		sort.Strings(changedFields)
		changed = append(changed, DiffEntry{
			PMID: pmid, Status: "changed",
			Old: oldArticle, New: newArticle,
			ChangedFields: changedFields,
		})
	}
	for _, pmid := range newOrder {
		if _, ok := oldByPMID[pmid]; !ok {
			added = append(added, DiffEntry{PMID: pmid, Status: "added", Article: newByPMID[pmid]})
		}
	}

	out := make([]DiffEntry, 0, len(removed)+len(changed)+len(added))
	out = append(out, removed...)
	out = append(out, changed...)
	out = append(out, added...)
	return out
}

// Summarize counts differences by status; unchanged is the PMID
// intersection minus the changed count.
func Summarize(oldArticles, newArticles []map[string]any, ignoreFields []string) DiffSummary {
	diffs := DiffArticles(oldArticles, newArticles, ignoreFields)
	oldByPMID, _ := indexByPMID(oldArticles)
	newByPMID, _ := indexByPMID(newArticles)

	var s DiffSummary
	for _, d := range diffs {
		switch d.Status {
		case "added":
			s.Added++
		case "removed":
			s.Removed++
		case "changed":
			s.Changed++
		}
	}
	common := 0
	for pmid := range oldByPMID {
		if _, ok := newByPMID[pmid]; ok {
			common++
		}
	}
	s.Unchanged = common - s.Changed
	return s
}
