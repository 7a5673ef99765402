package pubmed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// maxAppendRecord is the conservative ceiling for a single atomic append.
// POSIX guarantees writes up to PIPE_BUF (>= 512, 4096 on Linux) are not
// interleaved with writes from other processes.
const maxAppendRecord = 4096

// ErrOversizedRecord reports an audit record larger than maxAppendRecord.
// Appending it in multiple syscalls would break the no-interleaving
// guarantee, so the caller gets an error instead of a truncated record.
var ErrOversizedRecord = errors.New("record exceeds atomic append limit")

// IOError is a filesystem failure from the cache or audit layer. It is
// surfaced to the caller as-is; this layer never retries.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// writeFileAtomic replaces path with data via a sibling temp file and
// rename(2). A concurrent reader sees either the old content or the new
// content, never a mix. On failure the temp file is removed and path is
// untouched.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &IOError{Op: "create temp in", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// appendFileAtomic appends one newline-terminated record to path using a
// single write syscall on an O_APPEND descriptor. Records larger than
// maxAppendRecord are rejected with ErrOversizedRecord rather than split.
func appendFileAtomic(path string, record []byte) error {
	if len(record) == 0 || record[len(record)-1] != '\n' {
		record = append(append([]byte(nil), record...), '\n')
	}
	if len(record) > maxAppendRecord {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrOversizedRecord, len(record), maxAppendRecord)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return &IOError{Op: "open", Path: path, Err: err}
	}
	_, werr := f.Write(record)
	cerr := f.Close()
	if werr != nil {
		return &IOError{Op: "append", Path: path, Err: werr}
	}
	if cerr != nil {
		return &IOError{Op: "close", Path: path, Err: cerr}
	}
	return nil
}
