package pubmed

import (
	"strings"
	"testing"
)

func mustLoadMaps(t *testing.T, jsonl string) []map[string]any {
	t.Helper()
	maps, err := LoadArticleMaps(strings.NewReader(jsonl))
	if err != nil {
		t.Fatalf("LoadArticleMaps: %v", err)
	}
	return maps
}

func TestDiffArticlesGrouping(t *testing.T) {
	oldSet := mustLoadMaps(t, `{"pmid":"1","title":"a"}
{"pmid":"2","title":"b"}
{"pmid":"3","title":"c"}
`)
	newSet := mustLoadMaps(t, `{"pmid":"2","title":"b2"}
{"pmid":"3","title":"c"}
{"pmid":"4","title":"d"}
`)

	diffs := DiffArticles(oldSet, newSet, nil)
	if len(diffs) != 3 {
		t.Fatalf("got %d diffs: %+v", len(diffs), diffs)
	}
	// Removed first, then changed, then added.
	if diffs[0].Status != "removed" || diffs[0].PMID != "1" {
		t.Errorf("diffs[0] = %+v", diffs[0])
	}
	if diffs[1].Status != "changed" || diffs[1].PMID != "2" {
		t.Errorf("diffs[1] = %+v", diffs[1])
	}
	if diffs[2].Status != "added" || diffs[2].PMID != "4" {
		t.Errorf("diffs[2] = %+v", diffs[2])
	}

	if len(diffs[1].ChangedFields) != 1 || diffs[1].ChangedFields[0] != "title" {
		t.Errorf("changed_fields = %v", diffs[1].ChangedFields)
	}
	if diffs[1].Old["title"] != "b" || diffs[1].New["title"] != "b2" {
		t.Errorf("old/new = %v / %v", diffs[1].Old, diffs[1].New)
	}
}

func TestDiffIgnoreFields(t *testing.T) {
	oldSet := mustLoadMaps(t, `{"pmid":"1","title":"a","abstract":"x"}`+"\n")
	newSet := mustLoadMaps(t, `{"pmid":"1","title":"a","abstract":"y"}`+"\n")

	if diffs := DiffArticles(oldSet, newSet, []string{"abstract"}); len(diffs) != 0 {
		t.Errorf("ignored field still diffed: %+v", diffs)
	}
	if diffs := DiffArticles(oldSet, newSet, nil); len(diffs) != 1 {
		t.Errorf("unignored diff missing: %+v", diffs)
	}
}

func TestDiffChangedFieldsSorted(t *testing.T) {
	oldSet := mustLoadMaps(t, `{"pmid":"1","title":"a","year":2020,"journal":"N"}`+"\n")
	newSet := mustLoadMaps(t, `{"pmid":"1","title":"b","year":2021,"journal":"M"}`+"\n")

	diffs := DiffArticles(oldSet, newSet, nil)
	if len(diffs) != 1 {
		t.Fatalf("diffs = %+v", diffs)
	}
	want := []string{"journal", "title", "year"}
	got := diffs[0].ChangedFields
	if len(got) != len(want) {
		t.Fatalf("changed_fields = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("changed_fields = %v, want %v", got, want)
		}
	}
}

func TestDiffDuplicatePMIDLastWins(t *testing.T) {
	oldSet := mustLoadMaps(t, `{"pmid":"1","title":"first"}
{"pmid":"1","title":"second"}
`)
	newSet := mustLoadMaps(t, `{"pmid":"1","title":"second"}`+"\n")

	if diffs := DiffArticles(oldSet, newSet, nil); len(diffs) != 0 {
		t.Errorf("last occurrence should win: %+v", diffs)
	}
}

func TestDiffSummaryCounts(t *testing.T) {
	oldSet := mustLoadMaps(t, `{"pmid":"1","title":"a"}
{"pmid":"2","title":"b"}
{"pmid":"3","title":"c"}
`)
	newSet := mustLoadMaps(t, `{"pmid":"2","title":"B"}
{"pmid":"3","title":"c"}
{"pmid":"4","title":"d"}
{"pmid":"5","title":"e"}
`)
	s := Summarize(oldSet, newSet, nil)
	if s.Added != 2 || s.Removed != 1 || s.Changed != 1 || s.Unchanged != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestLoadArticleMapsSkipsNoise(t *testing.T) {
	maps := mustLoadMaps(t, `{"pmid":"1"}
not json
{"title":"no pmid"}

{"pmid":"2"}
`)
	if len(maps) != 2 {
		t.Fatalf("got %d maps, want 2", len(maps))
	}
}
