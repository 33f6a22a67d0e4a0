package archive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gulkily/thywill-sub001/internal/record"
)

// ScanFunc receives each scanned block: its location and either the decoded
// record or the parse error. Returning a non-nil error stops the scan.
type ScanFunc func(loc Location, rec *record.Record, err error) error

// Scanner walks an archive tree and yields parsed records lazily. It is
// stateless between calls: nothing is cached beyond the block currently
// being parsed, and the scan is bounded by the files present when it
// starts.
type Scanner struct {
	root string
}

// NewScanner creates a scanner over the archive tree at root.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root}
}

// Scan visits every record of the given domain in lexical file order.
// Prayer tree files interleave Prayer, Mark, and Attribute blocks; blocks
// of other domains in the same file are skipped silently. Malformed blocks
// are yielded with their parse error and the scan continues, so one corrupt
// block never hides the rest of the archive.
func (s *Scanner) Scan(ctx context.Context, domain record.Domain, fn ScanFunc) error {
	return s.scan(ctx, domain, Location{}, fn)
}

// ScanFrom resumes a scan after a previously returned location: files
// lexically before it are skipped entirely, and within its file scanning
// resumes past the located block.
func (s *Scanner) ScanFrom(ctx context.Context, domain record.Domain, after Location, fn ScanFunc) error {
	return s.scan(ctx, domain, after, fn)
}

func (s *Scanner) scan(ctx context.Context, domain record.Domain, after Location, fn ScanFunc) error {
	dir := DirFor(domain)
	if dir == "" {
		return fmt.Errorf("scan: no archive directory for domain %s", domain)
	}

	files, err := s.listFiles(dir)
	if err != nil {
		return err
	}

	for _, rel := range files {
		if !after.IsZero() && rel < after.Path {
			continue
		}
		startAt := int64(0)
		if rel == after.Path {
			startAt = after.Offset + after.Length
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.scanFile(ctx, domain, rel, startAt, fn); err != nil {
			return err
		}
	}
	return nil
}

// listFiles returns the root-relative paths of all archive files under dir,
// sorted lexically. A missing domain directory is an empty archive, not an
// error.
func (s *Scanner) listFiles(dir string) ([]string, error) {
	base := filepath.Join(s.root, dir)
	var files []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".txt") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadAt re-reads and decodes the single block at a stored location. Used
// by the consistency validator to compare a database row against the exact
// archive text it was derived from.
func (s *Scanner) ReadAt(loc Location) (*record.Record, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(loc.Path)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	defer f.Close()

	block := make([]byte, loc.Length)
	if _, err := f.ReadAt(block, loc.Offset); err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	rec, err := record.Decode(block)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", loc, err)
	}
	return rec, nil
}

// scanFile yields each terminated block in one file. An unterminated block
// at EOF is an in-progress append and is not yielded; it will be visible to
// the next scan once its terminator lands.
func (s *Scanner) scanFile(ctx context.Context, domain record.Domain, rel string, startAt int64, fn ScanFunc) error {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("scan %s: %w", rel, err)
	}
	defer f.Close()

	if startAt > 0 {
		if _, err := f.Seek(startAt, 0); err != nil {
			return fmt.Errorf("scan %s: seek: %w", rel, err)
		}
	}

	r := bufio.NewReader(f)
	offset := startAt
	var block []byte
	blockStart := offset

	flush := func(terminated bool) error {
		if len(block) == 0 {
			return nil
		}
		if !terminated {
			block = nil
			return nil
		}
		loc := Location{Path: rel, Offset: blockStart, Length: offset - blockStart}
		rec, decErr := record.Decode(block)
		block = nil
		if decErr != nil {
			return fn(loc, nil, decErr)
		}
		if rec.Domain != domain {
			return nil
		}
		return fn(loc, rec, nil)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, readErr := r.ReadString('\n')
		if line != "" {
			complete := strings.HasSuffix(line, "\n")
			blank := strings.TrimRight(line, "\n") == ""
			if len(block) == 0 && blank {
				// Stray blank line between blocks.
				offset += int64(len(line))
			} else {
				if len(block) == 0 {
					blockStart = offset
				}
				block = append(block, line...)
				offset += int64(len(line))
				if complete && blank {
					if err := flush(true); err != nil {
						return err
					}
				}
			}
		}
		if readErr == io.EOF {
			// Anything still buffered lacks its terminator.
			return flush(false)
		}
		if readErr != nil {
			return fmt.Errorf("scan %s: %w", rel, readErr)
		}
	}
}
