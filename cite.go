package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// NCBI Citation Exporter (ctxp), CSL-JSON format.
const ctxpBaseURL = "https://pmc.ncbi.nlm.nih.gov/api/ctxp/v1/pubmed/"

// CiteOptions configures citation fetching.
type CiteOptions struct {
	BatchSize  int
	RateDelay  time.Duration
	Refresh    bool
	BaseURL    string
	HTTPClient *http.Client
	Log        *slog.Logger
}

// CiteArticles returns one CSL-JSON citation record per distinct PMID, in
// request order. Records are cached individually under the cite category, so
// repeat citations of overlapping PMID sets reuse the intersection.
func CiteArticles(ctx context.Context, store *Store, pmids []string, opts *CiteOptions) ([]json.RawMessage, error) {
	if opts == nil {
		opts = &CiteOptions{}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	delay := opts.RateDelay
	if delay == 0 {
		delay = defaultRateDelay
	}

	batchNum := 0
	resolver := &Resolver{
		Store:     store,
		Audit:     store.Audit(),
		Category:  CategoryCite,
		Op:        OpCite,
		BatchSize: opts.BatchSize,
		Refresh:   opts.Refresh,
		Log:       log,
		Fetch: func(ctx context.Context, batch []string) (map[string][]byte, error) {
			if batchNum > 0 && delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			batchNum++
			log.Debug("citing batch", "n", batchNum, "pmids", len(batch))
			return ctxpBatch(ctx, batch, opts)
		},
	}

	res, err := resolver.Resolve(ctx, pmids)
	if err != nil {
		return nil, err
	}

	citations := make([]json.RawMessage, 0, len(res.Payloads))
	for _, pmid := range res.Keys {
		if data, ok := res.Payloads[pmid]; ok {
			citations = append(citations, json.RawMessage(data))
		}
	}
	return citations, nil
}

// ctxpBatch fetches one Citation Exporter response and keys each CSL item by
// its PMID field. Items without a PMID cannot be cached and are dropped.
func ctxpBatch(ctx context.Context, pmids []string, opts *CiteOptions) (map[string][]byte, error) {
	base := opts.BaseURL
	if base == "" {
		base = ctxpBaseURL
	}
	u := fmt.Sprintf("%s?format=csl&id=%s", base, strings.Join(pmids, ","))

	body, err := httpGet(ctx, opts.HTTPClient, u)
	if err != nil {
		return nil, err
	}

	// A single-ID request returns one object, multi-ID a JSON array.
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		var single json.RawMessage
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("decode citation response: %w", err)
		}
		items = []json.RawMessage{single}
	}

	out := make(map[string][]byte, len(items))
	for _, item := range items {
		var probe struct {
			PMID string `json:"PMID"`
		}
		if err := json.Unmarshal(item, &probe); err != nil || probe.PMID == "" {
			continue
		}
		out[probe.PMID] = []byte(item)
	}
	return out, nil
}

// Citation is the subset of a CSL-JSON record used for formatting.
type Citation struct {
	PMID           string          `json:"PMID"`
	Title          string          `json:"title"`
	ContainerTitle string          `json:"container-title"`
	Authors        []CitationName  `json:"author"`
	Issued         *CitationIssued `json:"issued"`
	Volume         string          `json:"volume"`
	Issue          string          `json:"issue"`
	Page           string          `json:"page"`
}

type CitationName struct {
	Family string `json:"family"`
	Given  string `json:"given"`
}

type CitationIssued struct {
	DateParts [][]json.Number `json:"date-parts"`
}

func (c *Citation) year() string {
	if c.Issued == nil || len(c.Issued.DateParts) == 0 || len(c.Issued.DateParts[0]) == 0 {
		return ""
	}
	return c.Issued.DateParts[0][0].String()
}

// FormatCitation renders a CSL-JSON record in the given style, "apa"
// (default) or "vancouver".
func FormatCitation(raw json.RawMessage, style string) (string, error) {
	var c Citation
	if err := json.Unmarshal(raw, &c); err != nil {
		return "", fmt.Errorf("decode citation: %w", err)
	}
	if style == "vancouver" {
		return c.vancouver(), nil
	}
	return c.apa(), nil
}

func initials(given, sep string) string {
	var parts []string
	for _, w := range strings.Fields(given) {
		r, _ := utf8.DecodeRuneInString(w)
		parts = append(parts, string(r))
	}
	return strings.Join(parts, sep)
}

func (c *Citation) vancouver() string {
	var names []string
	for _, a := range c.Authors {
		names = append(names, a.Family+" "+initials(a.Given, ""))
	}
	parts := []string{strings.Join(names, ", ") + ".", c.Title + "."}
	if c.ContainerTitle != "" {
		ref := c.ContainerTitle + "."
		if year := c.year(); year != "" {
			ref = c.ContainerTitle + ". " + year
		}
		if c.Volume != "" {
			ref += ";" + c.Volume
		}
		if c.Issue != "" {
			ref += "(" + c.Issue + ")"
		}
		if c.Page != "" {
			ref += ":" + c.Page
		}
		parts = append(parts, ref+".")
	}
	return strings.Join(parts, " ")
}

func (c *Citation) apa() string {
	var names []string
	for _, a := range c.Authors {
		if ini := initials(a.Given, ". "); ini != "" {
			names = append(names, a.Family+", "+ini+".")
		} else {
			names = append(names, a.Family)
		}
	}
	var authors string
	switch {
	case len(names) > 1:
		authors = strings.Join(names[:len(names)-1], ", ") + ", & " + names[len(names)-1]
	case len(names) == 1:
		authors = names[0]
	}

	var parts []string
	if authors != "" {
		parts = append(parts, authors)
	}
	if year := c.year(); year != "" {
		parts = append(parts, "("+year+").")
	} else {
		parts = append(parts, "(n.d.).")
	}
	if c.Title != "" {
		parts = append(parts, c.Title+".")
	}
	if c.ContainerTitle != "" {
		ref := "*" + c.ContainerTitle + "*"
		if c.Volume != "" {
			ref += ", *" + c.Volume + "*"
		}
		if c.Issue != "" {
			ref += "(" + c.Issue + ")"
		}
		if c.Page != "" {
			ref += ", " + c.Page
		}
		parts = append(parts, ref+".")
	}
	return strings.Join(parts, " ")
}
