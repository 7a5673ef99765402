package pubmed

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	idconvBaseURL    = "https://pmc.ncbi.nlm.nih.gov/tools/idconv/api/v1/articles/"
	pmcOABaseURL     = "https://www.ncbi.nlm.nih.gov/pmc/utils/oa/oa.fcgi"
	unpaywallBaseURL = "https://api.unpaywall.org/v2/"

	// Guard against decompression bombs in PMC archives.
	maxPDFMemberSize = 200 * 1024 * 1024

	downloadRetries = 3
)

// DownloadOptions configures PDF source lookup and download.
type DownloadOptions struct {
	// OutputDir receives <pmid>.pdf files (default current directory).
	OutputDir string

	// Overwrite replaces existing files instead of skipping them.
	Overwrite bool

	// Email identifies the caller to the ID converter and Unpaywall.
	Email string

	// PMCOnly skips Unpaywall; UnpaywallOnly skips PMC.
	PMCOnly       bool
	UnpaywallOnly bool

	// Endpoint overrides (tests).
	IDConvURL    string
	PMCOAURL     string
	UnpaywallURL string

	HTTPClient *http.Client
	Log        *slog.Logger
}

func (o *DownloadOptions) log() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// IDRecord is one NCBI ID converter result.
type IDRecord struct {
	PMID  string `json:"pmid"`
	PMCID string `json:"pmcid"`
	DOI   string `json:"doi"`
}

// ConvertPMIDs resolves PMIDs to their PMCID and DOI via the NCBI ID
// Converter, batching at the standard batch size.
func ConvertPMIDs(ctx context.Context, pmids []string, opts *DownloadOptions) ([]IDRecord, error) {
	if opts == nil {
		opts = &DownloadOptions{}
	}
	base := opts.IDConvURL
	if base == "" {
		base = idconvBaseURL
	}
	email := opts.Email
	if email == "" {
		email = "user@example.com"
	}

	var records []IDRecord
	for start := 0; start < len(pmids); start += defaultBatchSize {
		if start > 0 {
			select {
			case <-time.After(defaultRateDelay):
			case <-ctx.Done():
				return records, ctx.Err()
			}
		}
		batch := pmids[start:min(start+defaultBatchSize, len(pmids))]
		u := fmt.Sprintf("%s?ids=%s&format=json&tool=pm-download&email=%s",
			base, strings.Join(batch, ","), url.QueryEscape(email))
		body, err := httpGet(ctx, opts.HTTPClient, u)
		if err != nil {
			return records, err
		}
		var resp struct {
			Records []IDRecord `json:"records"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return records, fmt.Errorf("decode id converter response: %w", err)
		}
		records = append(records, resp.Records...)
	}
	return records, nil
}

// PDFSource is a resolved download location for one article. Source is
// empty when no full text could be located.
type PDFSource struct {
	PMID      string `json:"pmid"`
	Source    string `json:"source,omitempty"`
	URL       string `json:"url,omitempty"`
	PMCID     string `json:"pmcid,omitempty"`
	DOI       string `json:"doi,omitempty"`
	PMCFormat string `json:"pmc_format,omitempty"`
}

// FindPDFSources locates a download URL per article, preferring PMC open
// access (pdf over tgz) and falling back to Unpaywall when a DOI and email
// are available. Every article yields a source entry; lookup failures
// degrade to a no-source entry rather than aborting the batch.
func FindPDFSources(ctx context.Context, articles []Article, opts *DownloadOptions) []PDFSource {
	if opts == nil {
		opts = &DownloadOptions{}
	}
	log := opts.log()

	var sources []PDFSource
	for _, a := range articles {
		if !opts.UnpaywallOnly && a.PMCID != "" {
			if link := pmcLookup(ctx, a.PMCID, opts); link != nil {
				sources = append(sources, PDFSource{
					PMID:      a.PMID,
					Source:    "pmc",
					URL:       link.URL,
					PMCID:     a.PMCID,
					PMCFormat: link.Format,
				})
				continue
			}
		}
		if !opts.PMCOnly && a.DOI != "" && opts.Email != "" {
			if pdfURL := unpaywallLookup(ctx, a.DOI, opts); pdfURL != "" {
				sources = append(sources, PDFSource{
					PMID:   a.PMID,
					Source: "unpaywall",
					URL:    pdfURL,
					DOI:    a.DOI,
				})
				continue
			}
		}
		log.Debug("no full-text source", "pmid", a.PMID, "pmcid", a.PMCID != "", "doi", a.DOI != "")
		sources = append(sources, PDFSource{PMID: a.PMID})
	}
	return sources
}

type pmcLink struct {
	URL    string
	Format string // "pdf" or "tgz"
}

type oaResponse struct {
	Error *struct {
		Code string `xml:"code,attr"`
	} `xml:"error"`
	Links []struct {
		Format string `xml:"format,attr"`
		Href   string `xml:"href,attr"`
	} `xml:"records>record>link"`
}

// pmcLookup queries the PMC OA service. PDF links win over tgz; ftp hrefs
// are rewritten to https.
func pmcLookup(ctx context.Context, pmcid string, opts *DownloadOptions) *pmcLink {
	log := opts.log()
	base := opts.PMCOAURL
	if base == "" {
		base = pmcOABaseURL
	}
	body, err := httpGet(ctx, opts.HTTPClient, base+"?id="+url.QueryEscape(pmcid))
	if err != nil {
		log.Warn("pmc lookup failed", "pmcid", pmcid, "error", err)
		return nil
	}
	var resp oaResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		log.Warn("pmc lookup: bad response", "pmcid", pmcid, "error", err)
		return nil
	}
	if resp.Error != nil {
		log.Warn("pmc lookup: service error", "pmcid", pmcid, "code", resp.Error.Code)
		return nil
	}
	var pdfHref, tgzHref string
	for _, link := range resp.Links {
		href := link.Href
		if href == "" {
			continue
		}
		if strings.HasPrefix(href, "ftp://") {
			href = "https://" + strings.TrimPrefix(href, "ftp://")
		}
		switch link.Format {
		case "pdf":
			pdfHref = href
		case "tgz":
			tgzHref = href
		}
	}
	if pdfHref != "" {
		return &pmcLink{URL: pdfHref, Format: "pdf"}
	}
	if tgzHref != "" {
		return &pmcLink{URL: tgzHref, Format: "tgz"}
	}
	return nil
}

// unpaywallLookup returns the best open-access PDF URL for a DOI, or "".
func unpaywallLookup(ctx context.Context, doi string, opts *DownloadOptions) string {
	log := opts.log()
	base := opts.UnpaywallURL
	if base == "" {
		base = unpaywallBaseURL
	}
	u := base + url.PathEscape(doi) + "?email=" + url.QueryEscape(opts.Email)
	body, err := httpGet(ctx, opts.HTTPClient, u)
	if err != nil {
		log.Warn("unpaywall lookup failed", "doi", doi, "error", err)
		return ""
	}
	var resp struct {
		IsOA    bool `json:"is_oa"`
		BestLoc *struct {
			URLForPDF string `json:"url_for_pdf"`
		} `json:"best_oa_location"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Warn("unpaywall lookup: bad response", "doi", doi, "error", err)
		return ""
	}
	if !resp.IsOA || resp.BestLoc == nil {
		return ""
	}
	return resp.BestLoc.URLForPDF
}

// DownloadRecord is the per-PMID provenance entry cached under the download
// category after each attempt.
type DownloadRecord struct {
	Source    string `json:"source,omitempty"`
	URL       string `json:"url,omitempty"`
	Path      string `json:"path,omitempty"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// DownloadResult summarizes one DownloadPDFs run.
type DownloadResult struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// DownloadPDFs fetches each source to <OutputDir>/<pmid>.pdf. Existing
// files are skipped unless Overwrite is set; tgz archives have their main
// PDF extracted in memory. One source failing never aborts the run. The
// audit event is appended before per-PMID provenance records are cached.
func DownloadPDFs(ctx context.Context, store *Store, sources []PDFSource, opts *DownloadOptions) (DownloadResult, error) {
	if opts == nil {
		opts = &DownloadOptions{}
	}
	log := opts.log()
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return DownloadResult{}, &IOError{Op: "mkdir", Path: outDir, Err: err}
	}

	var result DownloadResult
	records := make(map[string]DownloadRecord, len(sources))
	now := time.Now().UTC().Format(auditTimeLayout)

	for _, src := range sources {
		if src.URL == "" {
			log.Warn("no pdf url", "pmid", src.PMID)
			result.Failed++
			records[src.PMID] = DownloadRecord{Status: "failed", Timestamp: now}
			continue
		}
		outFile := filepath.Join(outDir, src.PMID+".pdf")
		if !opts.Overwrite {
			if _, err := os.Stat(outFile); err == nil {
				result.Skipped++
				records[src.PMID] = DownloadRecord{
					Source: src.Source, URL: src.URL, Path: outFile,
					Status: "skipped", Timestamp: now,
				}
				continue
			}
		}

		content, err := downloadWithRetry(ctx, src.URL, opts)
		if err != nil {
			log.Warn("download failed", "pmid", src.PMID, "url", src.URL, "error", err)
			result.Failed++
			records[src.PMID] = DownloadRecord{
				Source: src.Source, URL: src.URL,
				Status: "failed", Timestamp: now,
			}
			continue
		}
		if src.PMCFormat == "tgz" {
			pdf := extractPDFFromTGZ(content, src.PMCID)
			if pdf == nil {
				log.Warn("no pdf in archive", "pmid", src.PMID, "url", src.URL)
				result.Failed++
				records[src.PMID] = DownloadRecord{
					Source: src.Source, URL: src.URL,
					Status: "failed", Timestamp: now,
				}
				continue
			}
			content = pdf
		}
		if err := writeFileAtomic(outFile, content); err != nil {
			log.Warn("write failed", "pmid", src.PMID, "error", err)
			result.Failed++
			records[src.PMID] = DownloadRecord{
				Source: src.Source, URL: src.URL,
				Status: "failed", Timestamp: now,
			}
			continue
		}
		result.Downloaded++
		records[src.PMID] = DownloadRecord{
			Source: src.Source, URL: src.URL, Path: outFile,
			Status: "downloaded", Timestamp: now,
		}
	}

	if err := store.Audit().Log(Event{
		Op:         OpDownload,
		Total:      len(sources),
		Downloaded: result.Downloaded,
		Skipped:    result.Skipped,
		Failed:     result.Failed,
	}); err != nil {
		return result, err
	}
	for pmid, rec := range records {
		if pmid == "" {
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return result, err
		}
		if err := store.Put(CategoryDownload, pmid, data); err != nil {
			return result, err
		}
	}
	return result, nil
}

// downloadWithRetry fetches a URL, retrying 429 and 503 responses with a
// short linear backoff.
func downloadWithRetry(ctx context.Context, u string, opts *DownloadOptions) ([]byte, error) {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	var lastStatus int
	for attempt := 0; attempt < downloadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		lastStatus = resp.StatusCode
		switch resp.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			continue
		case http.StatusOK, http.StatusIMUsed:
			if len(body) == 0 {
				return nil, fmt.Errorf("empty response from %s", u)
			}
			return body, nil
		default:
			return nil, fmt.Errorf("http %d from %s", resp.StatusCode, u)
		}
	}
	return nil, fmt.Errorf("http %d from %s after %d attempts", lastStatus, u, downloadRetries)
}

// extractPDFFromTGZ pulls the article PDF out of a PMC OA package, fully in
// memory. Members over maxPDFMemberSize are ignored. When several PDFs are
// present, a member whose name contains the PMCID wins; ties go to the
// largest member (main article over supplements).
func extractPDFFromTGZ(content []byte, pmcid string) []byte {
	gz, err := gzip.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil
	}
	defer gz.Close()

	var best []byte
	var bestSize int64
	bestMatches := false
	pmcidLower := strings.ToLower(pmcid)

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		name := strings.ToLower(hdr.Name)
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(name, ".pdf") {
			continue
		}
		if hdr.Size <= 0 || hdr.Size > maxPDFMemberSize {
			continue
		}
		matches := pmcidLower != "" && strings.Contains(name, pmcidLower)
		if best != nil {
			if bestMatches && !matches {
				continue
			}
			if bestMatches == matches && hdr.Size <= bestSize {
				continue
			}
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxPDFMemberSize))
		if err != nil || len(data) == 0 {
			continue
		}
		best, bestSize, bestMatches = data, hdr.Size, matches
	}
	return best
}
