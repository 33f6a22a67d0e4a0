package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gulkily/thywill-sub001/internal/config"
	"github.com/gulkily/thywill-sub001/internal/record"
)

// WriteError reports a failed archive write after retries were exhausted.
// The write-ahead invariant makes this fatal to the triggering operation:
// the caller must not proceed with a matching database write.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("archive write failed: %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsWriteFailed reports whether err is (or wraps) a WriteError.
func IsWriteFailed(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// Writer appends records to the archive tree. It is the single logical
// writer for its root: concurrent appends to the same file are serialized
// by a per-file lock held for the duration of the atomic write; different
// files append in parallel.
type Writer struct {
	root    string
	retries int
	backoff time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriter creates a writer rooted at cfg.ArchiveRoot with cfg's retry
// policy.
func NewWriter(cfg config.Config) *Writer {
	return &Writer{
		root:    cfg.ArchiveRoot,
		retries: cfg.WriteRetries,
		backoff: cfg.WriteBackoff,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Append encodes the record and appends its block to the record's archive
// file, creating the file (and parents) as needed. The block is composed
// fully in memory and lands in a single write, so a concurrent reader never
// observes a half-written record. Returns the block's Location.
//
// On I/O failure the write is retried with doubling backoff up to the
// configured bound, then surfaces a WriteError.
func (w *Writer) Append(rec *record.Record) (Location, error) {
	block, err := record.Encode(rec)
	if err != nil {
		return Location{}, fmt.Errorf("append %s: %w", rec.Domain, err)
	}

	rel := PathFor(rec)
	if rel == "" {
		return Location{}, fmt.Errorf("append: no archive path for domain %s", rec.Domain)
	}

	lock := w.fileLock(rel)
	lock.Lock()
	defer lock.Unlock()

	var loc Location
	backoff := w.backoff
	for attempt := 1; ; attempt++ {
		loc, err = w.appendOnce(rel, block)
		if err == nil {
			return loc, nil
		}
		if attempt >= w.retries {
			return Location{}, &WriteError{Path: rel, Err: err}
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

// appendOnce performs one atomic write attempt. A missing file is created
// via write-to-temp-then-rename; an existing file gets a single O_APPEND
// write ending in the block terminator.
func (w *Writer) appendOnce(rel string, block []byte) (Location, error) {
	abs := filepath.Join(w.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Location{}, err
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		if err := replaceFile(abs, block); err != nil {
			return Location{}, err
		}
		return Location{Path: rel, Offset: 0, Length: int64(len(block))}, nil
	}
	if err != nil {
		return Location{}, err
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Location{}, err
	}
	offset := info.Size()
	if _, err := f.Write(block); err != nil {
		f.Close()
		return Location{}, err
	}
	if err := f.Close(); err != nil {
		return Location{}, err
	}
	return Location{Path: rel, Offset: offset, Length: int64(len(block))}, nil
}

// replaceFile writes content to a temp file in the target directory and
// renames it into place. Rename is atomic on POSIX filesystems, so readers
// see either the old file or the complete new one.
func replaceFile(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	tmp, err := os.CreateTemp(dir, ".thywill-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (w *Writer) fileLock(rel string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.locks[rel]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[rel] = lock
	}
	return lock
}
