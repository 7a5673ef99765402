package pubmed

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Category partitions the cache by operation kind.
type Category string

const (
	CategorySearch   Category = "search"
	CategoryFetch    Category = "fetch"
	CategoryCite     Category = "cite"
	CategoryDownload Category = "download"
)

var categories = []Category{CategorySearch, CategoryFetch, CategoryCite, CategoryDownload}

// ext returns the on-disk file extension for entries in this category.
func (c Category) ext() string {
	if c == CategoryFetch {
		return ".xml"
	}
	return ".json"
}

// wellFormed validates raw entry bytes against the category's expected
// shape: parseable JSON for search/cite/download, parseable XML for fetch.
func (c Category) wellFormed(data []byte) bool {
	if c == CategoryFetch {
		return xmlWellFormed(data)
	}
	return json.Valid(data)
}

func xmlWellFormed(data []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(data))
	sawElement := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return sawElement
		}
		if err != nil {
			return false
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
}

// PMDirName is the state directory created by Init in the working directory.
const PMDirName = ".pm"

const gitignoreContent = "cache/\n"

// ErrAlreadyInitialized reports an Init on a directory that already has a
// .pm/ tree. Init never overwrites existing state.
var ErrAlreadyInitialized = errors.New(".pm already exists")

// SearchRecord is the payload of a search cache entry. The full key list is
// retained so deduplication reporting works without re-querying.
type SearchRecord struct {
	Query     string   `json:"query"`
	Max       int      `json:"max"`
	Keys      []string `json:"keys"`
	Count     int      `json:"count"`
	Timestamp string   `json:"timestamp"`
}

// Store is a category-keyed cache rooted at a .pm/ directory. All methods
// are safe to call from any number of concurrent processes: writes are
// atomic whole-file replaces and the last rename wins.
//
// A nil *Store means "no cache configured": reads miss and writes are
// no-ops, so callers behave identically with caching disabled.
type Store struct {
	root string // path to the .pm directory
	log  *slog.Logger
}

// Init creates the .pm/ tree in dir. The initial mkdir is atomic (create,
// fail if exists), so two racing initializations cannot interleave into a
// half-built tree; the loser gets ErrAlreadyInitialized.
func Init(dir string) (*Store, error) {
	pmDir := filepath.Join(dir, PMDirName)
	if err := os.Mkdir(pmDir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrAlreadyInitialized
		}
		return nil, &IOError{Op: "mkdir", Path: pmDir, Err: err}
	}
	for _, cat := range categories {
		sub := filepath.Join(pmDir, "cache", string(cat))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, &IOError{Op: "mkdir", Path: sub, Err: err}
		}
	}
	gi := filepath.Join(pmDir, ".gitignore")
	if err := os.WriteFile(gi, []byte(gitignoreContent), 0o644); err != nil {
		return nil, &IOError{Op: "write", Path: gi, Err: err}
	}
	s := &Store{root: pmDir, log: slog.Default()}
	if err := s.Audit().Log(Event{Op: OpInit}); err != nil {
		return nil, err
	}
	return s, nil
}

// Open returns a Store for an existing .pm/ directory.
func Open(dir string) (*Store, error) {
	pmDir := filepath.Join(dir, PMDirName)
	info, err := os.Stat(pmDir)
	if err != nil || !info.IsDir() {
		return nil, &IOError{Op: "open", Path: pmDir, Err: fs.ErrNotExist}
	}
	return &Store{root: pmDir, log: slog.Default()}, nil
}

// Discover returns a Store if dir contains a .pm/ directory, or nil. A nil
// Store disables caching and auditing without changing caller behavior.
func Discover(dir string) *Store {
	s, err := Open(dir)
	if err != nil {
		return nil
	}
	return s
}

// SetLogger replaces the diagnostic logger (not the audit trail).
func (s *Store) SetLogger(l *slog.Logger) {
	if s != nil && l != nil {
		s.log = l
	}
}

// Root returns the path of the .pm directory, or "" for a nil store.
func (s *Store) Root() string {
	if s == nil {
		return ""
	}
	return s.root
}

// Audit returns the store's audit logger, writing to <root>/audit.jsonl.
// For a nil store the returned logger is a no-op.
func (s *Store) Audit() *AuditLogger {
	if s == nil {
		return nil
	}
	return &AuditLogger{path: filepath.Join(s.root, "audit.jsonl")}
}

// IndexPath returns the path of the local article index database.
func (s *Store) IndexPath() string {
	if s == nil {
		return ""
	}
	return filepath.Join(s.root, "index.db")
}

func (s *Store) entryPath(cat Category, key string) string {
	return filepath.Join(s.root, "cache", string(cat), key+cat.ext())
}

// Get reads a cache entry. A missing or corrupted entry is a miss, never an
// error: corruption from a partial crash heals on the next Put with no
// separate repair pass.
func (s *Store) Get(cat Category, key string) ([]byte, bool) {
	if s == nil || key == "" {
		return nil, false
	}
	path := s.entryPath(cat, key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if !cat.wellFormed(data) {
		s.log.Debug("corrupted cache entry treated as miss",
			"category", string(cat), "key", key)
		return nil, false
	}
	return data, true
}

// Put writes a cache entry atomically. Writing content identical to the
// current entry is a no-op. Concurrent writers race benignly: the last
// rename wins, and both would be storing the same logical value.
func (s *Store) Put(cat Category, key string, data []byte) error {
	if s == nil {
		return nil
	}
	path := s.entryPath(cat, key)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	return writeFileAtomic(path, data)
}

// GetSearchRecord reads and decodes the search entry for key.
func (s *Store) GetSearchRecord(key string) (*SearchRecord, bool) {
	data, ok := s.Get(CategorySearch, key)
	if !ok {
		return nil, false
	}
	var rec SearchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Debug("search record with unexpected shape treated as miss", "key", key)
		return nil, false
	}
	return &rec, true
}

// Keys lists the entry keys present in a category, in directory order.
func (s *Store) Keys(cat Category) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	dir := filepath.Join(s.root, "cache", string(cat))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &IOError{Op: "read dir", Path: dir, Err: err}
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, cat.ext()) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, cat.ext()))
	}
	return keys, nil
}
