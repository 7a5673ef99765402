package pubmed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Index is a local SQLite table over parsed article records, built from the
// fetch cache so screening queries work offline. The cache stays the source
// of truth; the index can always be rebuilt from it.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (or creates) the article index at path. Use ":memory:"
// for an in-memory index.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index %q: %w", path, err)
	}

	// WAL keeps concurrent readers off the writer's lock.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		pmid    TEXT PRIMARY KEY,
		title   TEXT NOT NULL DEFAULT '',
		journal TEXT NOT NULL DEFAULT '',
		year    INTEGER NOT NULL DEFAULT 0,
		date    TEXT NOT NULL DEFAULT '',
		doi     TEXT NOT NULL DEFAULT '',
		pmcid   TEXT NOT NULL DEFAULT '',
		record  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_articles_year ON articles(year);
	CREATE INDEX IF NOT EXISTS idx_articles_journal ON articles(journal);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Upsert inserts or replaces article records in one transaction. The full
// JSON record is stored alongside the queryable columns so lookups return
// complete articles.
func (ix *Index) Upsert(ctx context.Context, articles []Article) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO articles
			(pmid, title, journal, year, date, doi, pmcid, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range articles {
		if a.PMID == "" {
			continue
		}
		record, err := json.Marshal(a)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			a.PMID, a.Title, a.Journal, a.Year, a.Date, a.DOI, a.PMCID, string(record)); err != nil {
			return fmt.Errorf("upsert %s: %w", a.PMID, err)
		}
	}
	return tx.Commit()
}

// Get returns the indexed article for a PMID.
func (ix *Index) Get(ctx context.Context, pmid string) (*Article, bool, error) {
	var record string
	err := ix.db.QueryRowContext(ctx,
		"SELECT record FROM articles WHERE pmid = ?", pmid).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var a Article
	if err := json.Unmarshal([]byte(record), &a); err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

// Query returns indexed articles whose title or journal contains term
// (case-insensitive), newest first. A limit of 0 means no limit.
func (ix *Index) Query(ctx context.Context, term string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = -1
	}
	pattern := "%" + term + "%"
	rows, err := ix.db.QueryContext(ctx, `
		SELECT record FROM articles
		WHERE title LIKE ? COLLATE NOCASE OR journal LIKE ? COLLATE NOCASE
		ORDER BY year DESC, pmid
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var a Article
		if err := json.Unmarshal([]byte(record), &a); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// IndexStats summarizes the index contents.
type IndexStats struct {
	Articles int `json:"articles"`
	Journals int `json:"journals"`
	MinYear  int `json:"min_year,omitempty"`
	MaxYear  int `json:"max_year,omitempty"`
}

// Stats counts indexed articles and distinct journals and reports the year
// range of dated records.
func (ix *Index) Stats(ctx context.Context) (IndexStats, error) {
	var s IndexStats
	err := ix.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT journal),
		       COALESCE(MIN(year), 0),
		       COALESCE(MAX(year), 0)
		FROM articles WHERE year > 0`).Scan(&s.Articles, &s.Journals, &s.MinYear, &s.MaxYear)
	if err != nil {
		return s, err
	}
	// Undated articles are excluded from the year range but not the counts.
	err = ix.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT journal) FROM articles").Scan(&s.Articles, &s.Journals)
	return s, err
}

// BuildIndex parses every cached article fragment and upserts the results,
// returning the number of indexed articles.
func BuildIndex(ctx context.Context, store *Store, ix *Index) (int, error) {
	keys, err := store.Keys(CategoryFetch)
	if err != nil {
		return 0, err
	}
	total := 0
	batch := make([]Article, 0, defaultBatchSize)
	for _, key := range keys {
		data, ok := store.Get(CategoryFetch, key)
		if !ok {
			continue
		}
		batch = append(batch, ParseArticles(data)...)
		if len(batch) >= defaultBatchSize {
			if err := ix.Upsert(ctx, batch); err != nil {
				return total, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := ix.Upsert(ctx, batch); err != nil {
			return total, err
		}
		total += len(batch)
	}
	return total, nil
}
