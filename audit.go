package pubmed

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"
)

// Operation names recorded in the audit trail.
const (
	OpInit     = "init"
	OpSearch   = "search"
	OpFetch    = "fetch"
	OpCite     = "cite"
	OpFilter   = "filter"
	OpDownload = "download"
)

// auditTimeLayout is UTC ISO-8601 at second resolution.
const auditTimeLayout = "2006-01-02T15:04:05Z"

// Event is one immutable audit record. The field set is closed: every
// operation's shape is enumerable here, and unused fields are omitted from
// the JSON line. Cached counts are key counts in every operation, including
// search, where a cache hit reports the full result count as cached.
type Event struct {
	TS string `json:"ts,omitempty"`
	Op string `json:"op"`

	// search
	Query      string `json:"query,omitempty"`
	Max        int    `json:"max,omitempty"`
	Count      int    `json:"count,omitempty"`
	OriginalTS string `json:"original_ts,omitempty"`

	// fetch / cite (smart batch resolution)
	Requested int  `json:"requested,omitempty"`
	Cached    int  `json:"cached,omitempty"`
	Fetched   int  `json:"fetched,omitempty"`
	Failed    int  `json:"failed,omitempty"`
	Refreshed bool `json:"refreshed,omitempty"`

	// filter
	Input      int            `json:"input,omitempty"`
	Output     int            `json:"output,omitempty"`
	Excluded   int            `json:"excluded,omitempty"`
	Criteria   *Criteria      `json:"criteria,omitempty"`
	ExcludedBy map[string]int `json:"excluded_by,omitempty"`

	// download
	Total      int `json:"total,omitempty"`
	Downloaded int `json:"downloaded,omitempty"`
	Skipped    int `json:"skipped,omitempty"`
}

// AuditLogger appends events to an audit.jsonl file. Appends are single
// bounded writes on an O_APPEND descriptor, so events from concurrent
// processes never interleave and prior bytes are immutable.
//
// A nil logger is a pure no-op, so callers need no "is auditing on" checks.
//
// Callers must log an operation's event before persisting its cache
// effects: a crash between the two leaves an audit trace with re-fetchable
// missing entries, never an unexplained cache entry.
type AuditLogger struct {
	path string
	now  func() time.Time
}

// NewAuditLogger returns a logger appending to path.
func NewAuditLogger(path string) *AuditLogger {
	return &AuditLogger{path: path}
}

// Log stamps the event with the current UTC time and appends it as one
// compact JSON line. Events too large for an atomic append are rejected
// with ErrOversizedRecord; that is a caller bug, not a runtime condition.
func (l *AuditLogger) Log(e Event) error {
	if l == nil {
		return nil
	}
	nowFn := l.now
	if nowFn == nil {
		nowFn = time.Now
	}
	e.TS = nowFn().UTC().Format(auditTimeLayout)
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return appendFileAtomic(l.path, line)
}

// ReadStats describes irregularities found while reading the trail.
type ReadStats struct {
	// TruncatedTail is true when the final line was not valid JSON; this is
	// the expected residue of a crash mid-append and is not an anomaly.
	TruncatedTail bool
	// Anomalies counts malformed non-final lines, which atomic appends
	// should make impossible.
	Anomalies int
}

// ReadEvents returns all events in append (chronological) order. Blank
// lines are skipped; a malformed final line is tolerated; malformed earlier
// lines are skipped and counted as anomalies.
func (l *AuditLogger) ReadEvents() ([]Event, ReadStats, error) {
	var stats ReadStats
	if l == nil {
		return nil, stats, nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, stats, nil
		}
		return nil, stats, &IOError{Op: "open", Path: l.path, Err: err}
	}
	defer f.Close()

	var events []Event
	badLines := 0
	lastBad := false
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, maxAppendRecord), maxAppendRecord*4)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			badLines++
			lastBad = true
			continue
		}
		lastBad = false
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return events, stats, &IOError{Op: "read", Path: l.path, Err: err}
	}
	if lastBad {
		stats.TruncatedTail = true
		badLines--
	}
	stats.Anomalies = badLines
	return events, stats, nil
}
