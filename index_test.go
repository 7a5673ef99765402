package pubmed

import (
	"context"
	"fmt"
	"testing"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := OpenIndex(":memory:")
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestIndexUpsertGet(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	articles := []Article{
		{PMID: "10", Title: "CRISPR screening", Journal: "Nat Methods", Year: 2023,
			Date: "2023-05-01", DOI: "10.1/a", Authors: []string{"Smith Jane"}},
		{PMID: "20", Title: "Base editing", Journal: "Science", Year: 2021},
		{Title: "no pmid, skipped"},
	}
	if err := ix.Upsert(ctx, articles); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	a, ok, err := ix.Get(ctx, "10")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if a.Title != "CRISPR screening" || a.DOI != "10.1/a" || len(a.Authors) != 1 {
		t.Errorf("article = %+v", a)
	}

	if _, ok, err = ix.Get(ctx, "404"); err != nil || ok {
		t.Errorf("missing pmid: ok=%v err=%v", ok, err)
	}

	// Re-upsert replaces rather than duplicates.
	articles[0].Title = "CRISPR screening, revised"
	if err := ix.Upsert(ctx, articles[:1]); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	a, _, _ = ix.Get(ctx, "10")
	if a.Title != "CRISPR screening, revised" {
		t.Errorf("title = %q after replace", a.Title)
	}
	stats, err := ix.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Articles != 2 {
		t.Errorf("articles = %d, want 2", stats.Articles)
	}
}

func TestIndexQuery(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	if err := ix.Upsert(ctx, []Article{
		{PMID: "1", Title: "Gene editing in mice", Journal: "Nature", Year: 2020},
		{PMID: "2", Title: "Protein folding", Journal: "Gene Therapy", Year: 2024},
		{PMID: "3", Title: "GENE drives", Journal: "Science", Year: 2022},
		{PMID: "4", Title: "Unrelated", Journal: "JAMA", Year: 2023},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := ix.Query(ctx, "gene", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d matches, want 3 (title or journal, case-insensitive)", len(got))
	}
	// Newest first.
	if got[0].PMID != "2" || got[1].PMID != "3" || got[2].PMID != "1" {
		t.Errorf("order = %s, %s, %s", got[0].PMID, got[1].PMID, got[2].PMID)
	}

	if got, err = ix.Query(ctx, "gene", 2); err != nil || len(got) != 2 {
		t.Errorf("limited query: %d matches, err=%v", len(got), err)
	}
}

func TestIndexStats(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	if err := ix.Upsert(ctx, []Article{
		{PMID: "1", Journal: "Nature", Year: 2019},
		{PMID: "2", Journal: "Nature", Year: 2024},
		{PMID: "3", Journal: "Science"}, // undated
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	stats, err := ix.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Articles != 3 || stats.Journals != 2 {
		t.Errorf("counts = %d articles / %d journals", stats.Articles, stats.Journals)
	}
	if stats.MinYear != 2019 || stats.MaxYear != 2024 {
		t.Errorf("year range = %d-%d", stats.MinYear, stats.MaxYear)
	}
}

func TestBuildIndex(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"10", "20"} {
		frag := fmt.Sprintf(`<PubmedArticle><MedlineCitation><PMID Version="1">%s</PMID>`+
			`<Article><ArticleTitle>Cached article %s</ArticleTitle></Article>`+
			`</MedlineCitation></PubmedArticle>`, id, id)
		if err := store.Put(CategoryFetch, id, []byte(frag)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	ix := newTestIndex(t)
	n, err := BuildIndex(context.Background(), store, ix)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if n != 2 {
		t.Errorf("indexed %d articles, want 2", n)
	}
	a, ok, err := ix.Get(context.Background(), "20")
	if err != nil || !ok || a.Title != "Cached article 20" {
		t.Errorf("Get 20: %+v ok=%v err=%v", a, ok, err)
	}
}
