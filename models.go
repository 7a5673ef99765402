package pubmed

import (
	"bufio"
	"encoding/json"
	"io"
)

// Article is the structured record extracted from one PubmedArticle element.
// Zero-valued fields are omitted from the JSONL output, matching the wire
// format consumed by filter and diff.
type Article struct {
	// PMID is the PubMed identifier; records without one are dropped.
	PMID string `json:"pmid"`

	Title string `json:"title,omitempty"`

	// Authors as "LastName ForeName" strings, in document order.
	Authors []string `json:"authors,omitempty"`

	// Journal is the full journal title.
	Journal string `json:"journal,omitempty"`

	// Year is the publication year, possibly recovered from a MedlineDate.
	Year int `json:"year,omitempty"`

	// Date is the best-effort ISO date: YYYY, YYYY-MM, or YYYY-MM-DD.
	Date string `json:"date,omitempty"`

	// Abstract is the concatenation of all AbstractText sections.
	Abstract string `json:"abstract,omitempty"`

	// AbstractSections holds labelled sections when present.
	AbstractSections []AbstractSection `json:"abstract_sections,omitempty"`

	DOI   string `json:"doi,omitempty"`
	PMCID string `json:"pmcid,omitempty"`
}

// AbstractSection is one labelled AbstractText section.
type AbstractSection struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// ReadArticles decodes a JSONL article stream. Blank and malformed lines
// are skipped so partial pipelines still produce output.
func ReadArticles(r io.Reader) ([]Article, error) {
	var articles []Article
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var a Article
		if err := json.Unmarshal(line, &a); err != nil {
			continue
		}
		articles = append(articles, a)
	}
	return articles, sc.Err()
}

// WriteArticles encodes articles as JSONL, one compact object per line.
func WriteArticles(w io.Writer, articles []Article) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, a := range articles {
		if err := enc.Encode(a); err != nil {
			return err
		}
	}
	return bw.Flush()
}
