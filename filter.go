package pubmed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Criteria holds filter conditions for screening article streams. All set
// conditions combine with AND. The zero value matches everything.
type Criteria struct {
	PMID         string `json:"pmid,omitempty"`
	Year         string `json:"year,omitempty"`
	Journal      string `json:"journal,omitempty"`
	JournalExact string `json:"journal_exact,omitempty"`
	Author       string `json:"author,omitempty"`
	Title        string `json:"title,omitempty"`
	MinAuthors   int    `json:"min_authors,omitempty"`
	HasAbstract  bool   `json:"has_abstract,omitempty"`
	HasDOI       bool   `json:"has_doi,omitempty"`
}

// criterionOrder is the declared evaluation order. An excluded article is
// attributed to the first criterion in this order that it fails.
var criterionOrder = []string{
	"pmid", "year", "journal", "journal_exact", "author",
	"title", "min_authors", "has_abstract", "has_doi",
}

var yearRangeRe = regexp.MustCompile(`^\d*-?\d*$`)

type yearRange struct {
	min, max       int
	hasMin, hasMax bool
}

// parseYearRange accepts "2024", "2020-2024", "2020-" and "-2024".
func parseYearRange(s string) (yearRange, error) {
	var r yearRange
	if s == "" || s == "-" || !strings.ContainsAny(s, "0123456789") || !yearRangeRe.MatchString(s) {
		return r, fmt.Errorf("invalid year format %q", s)
	}
	if strings.Contains(s, "-") {
		lo, hi, _ := strings.Cut(s, "-")
		if lo != "" {
			r.min, _ = strconv.Atoi(lo)
			r.hasMin = true
		}
		if hi != "" {
			r.max, _ = strconv.Atoi(hi)
			r.hasMax = true
		}
		return r, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return r, fmt.Errorf("invalid year format %q", s)
	}
	r.min, r.max = v, v
	r.hasMin, r.hasMax = true, true
	return r, nil
}

// Validate reports whether the criteria are well formed.
func (c Criteria) Validate() error {
	if c.Year != "" {
		if _, err := parseYearRange(c.Year); err != nil {
			return err
		}
	}
	return nil
}

func (c Criteria) isZero() bool { return c == Criteria{} }

// failing returns the name of the first criterion the article fails, or ""
// when it passes all of them.
func (c Criteria) failing(a Article) string {
	if c.PMID != "" {
		ok := false
		for _, p := range strings.Split(c.PMID, ",") {
			if strings.TrimSpace(p) == a.PMID {
				ok = true
				break
			}
		}
		if !ok {
			return "pmid"
		}
	}
	if c.Year != "" {
		r, err := parseYearRange(c.Year)
		if err != nil || !r.contains(a.Year) {
			return "year"
		}
	}
	if c.Journal != "" && !strings.Contains(strings.ToLower(a.Journal), strings.ToLower(c.Journal)) {
		return "journal"
	}
	if c.JournalExact != "" && a.Journal != c.JournalExact {
		return "journal_exact"
	}
	if c.Author != "" {
		pat := strings.ToLower(c.Author)
		ok := false
		for _, au := range a.Authors {
			if strings.Contains(strings.ToLower(au), pat) {
				ok = true
				break
			}
		}
		if !ok {
			return "author"
		}
	}
	if c.Title != "" && !strings.Contains(strings.ToLower(a.Title), strings.ToLower(c.Title)) {
		return "title"
	}
	if c.MinAuthors > 0 && len(a.Authors) < c.MinAuthors {
		return "min_authors"
	}
	if c.HasAbstract && a.Abstract == "" {
		return "has_abstract"
	}
	if c.HasDOI && a.DOI == "" {
		return "has_doi"
	}
	return ""
}

func (r yearRange) contains(year int) bool {
	if year == 0 {
		return false
	}
	if r.hasMin && year < r.min {
		return false
	}
	if r.hasMax && year > r.max {
		return false
	}
	return true
}

// FilterArticles returns the articles passing all criteria.
func FilterArticles(articles []Article, c Criteria) []Article {
	var out []Article
	for _, a := range articles {
		if c.failing(a) == "" {
			out = append(out, a)
		}
	}
	return out
}

// FilterArticlesAudited filters articles and records screening counts in the
// audit trail: input, output, excluded, the criteria used, and a breakdown
// attributing each excluded article to the first criterion it failed.
func FilterArticlesAudited(articles []Article, c Criteria, audit *AuditLogger) ([]Article, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var out []Article
	excludedBy := make(map[string]int)
	for _, a := range articles {
		if name := c.failing(a); name != "" {
			excludedBy[name]++
			continue
		}
		out = append(out, a)
	}
	if len(excludedBy) == 0 {
		excludedBy = nil
	}
	if audit != nil {
		crit := c
		if err := audit.Log(Event{
			Op:         OpFilter,
			Input:      len(articles),
			Output:     len(out),
			Excluded:   len(articles) - len(out),
			Criteria:   &crit,
			ExcludedBy: excludedBy,
		}); err != nil {
			return out, err
		}
	}
	return out, nil
}
