package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gulkily/thywill-sub001/internal/record"
)

func TestScan_YieldsRecordsInFileOrder(t *testing.T) {
	cfg := testConfig(t)
	w := NewWriter(cfg)
	for i, name := range []string{"alice", "bob", "carol"} {
		created := time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if _, err := w.Append(userRecord(name, created)); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	var keys []string
	s := NewScanner(cfg.ArchiveRoot)
	err := s.Scan(context.Background(), record.DomainUser, func(loc Location, rec *record.Record, err error) error {
		if err != nil {
			t.Fatalf("unexpected parse error at %s: %v", loc, err)
		}
		keys = append(keys, rec.NaturalKey())
		return nil
	})
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	want := []string{"alice", "bob", "carol"}
	if len(keys) != len(want) {
		t.Fatalf("scanned %d records, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestScan_FiltersDomainWithinPrayerFile(t *testing.T) {
	cfg := testConfig(t)
	w := NewWriter(cfg)
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	id := record.NewPrayerID(created, "bob", "help")

	if _, err := w.Append(&record.Record{Domain: record.DomainPrayer, Prayer: &record.Prayer{ID: id, Author: "bob", Created: created, Text: "help"}}); err != nil {
		t.Fatalf("Append(prayer): %v", err)
	}
	if _, err := w.Append(&record.Record{Domain: record.DomainPrayerMark, Mark: &record.PrayerMark{PrayerID: id, Username: "alice", MarkedAt: created.Add(time.Hour)}}); err != nil {
		t.Fatalf("Append(mark): %v", err)
	}
	if _, err := w.Append(&record.Record{Domain: record.DomainPrayerAttribute, Attribute: &record.PrayerAttribute{PrayerID: id, Name: "answered", Value: "yes"}}); err != nil {
		t.Fatalf("Append(attribute): %v", err)
	}

	s := NewScanner(cfg.ArchiveRoot)
	counts := map[record.Domain]int{}
	for _, d := range []record.Domain{record.DomainPrayer, record.DomainPrayerMark, record.DomainPrayerAttribute} {
		err := s.Scan(context.Background(), d, func(loc Location, rec *record.Record, err error) error {
			if err != nil {
				t.Fatalf("parse error at %s: %v", loc, err)
			}
			if rec.Domain != d {
				t.Errorf("Scan(%s) yielded %s record", d, rec.Domain)
			}
			counts[d]++
			return nil
		})
		if err != nil {
			t.Fatalf("Scan(%s) failed: %v", d, err)
		}
	}
	for _, d := range []record.Domain{record.DomainPrayer, record.DomainPrayerMark, record.DomainPrayerAttribute} {
		if counts[d] != 1 {
			t.Errorf("Scan(%s) yielded %d records, want 1", d, counts[d])
		}
	}
}

func TestScan_MalformedBlockTolerance(t *testing.T) {
	cfg := testConfig(t)
	w := NewWriter(cfg)
	for i := 0; i < 9; i++ {
		created := time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC)
		if _, err := w.Append(userRecord(usernames[i], created)); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	// Corrupt one terminated block by hand: a bad timestamp appended to
	// the shard.
	shard := filepath.Join(cfg.ArchiveRoot, "users", "2024-01.txt")
	corrupt := "== User mallory\nCreated: not-a-timestamp\n\n"
	f, err := os.OpenFile(shard, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open shard: %v", err)
	}
	if _, err := f.WriteString(corrupt); err != nil {
		t.Fatalf("append corruption: %v", err)
	}
	f.Close()

	var good, bad int
	s := NewScanner(cfg.ArchiveRoot)
	err = s.Scan(context.Background(), record.DomainUser, func(loc Location, rec *record.Record, err error) error {
		if err != nil {
			if !record.IsParseError(err) {
				t.Errorf("error at %s is %T, want *ParseError", loc, err)
			}
			bad++
			return nil
		}
		good++
		return nil
	})
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if good != 9 || bad != 1 {
		t.Errorf("good = %d, bad = %d, want 9 good and 1 parse error", good, bad)
	}
}

var usernames = []string{"alice", "bob", "carol", "dan", "erin", "frank", "grace", "heidi", "ivan"}

func TestScan_IgnoresUnterminatedTrailingBlock(t *testing.T) {
	cfg := testConfig(t)
	w := NewWriter(cfg)
	if _, err := w.Append(userRecord("alice", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	// Simulate an in-progress append: a block missing its terminator.
	shard := filepath.Join(cfg.ArchiveRoot, "users", "2024-01.txt")
	f, err := os.OpenFile(shard, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open shard: %v", err)
	}
	if _, err := f.WriteString("== User bob\nCreated: 2024-01-02T00:00:00Z\n"); err != nil {
		t.Fatalf("append partial: %v", err)
	}
	f.Close()

	var keys []string
	s := NewScanner(cfg.ArchiveRoot)
	err = s.Scan(context.Background(), record.DomainUser, func(loc Location, rec *record.Record, err error) error {
		if err != nil {
			t.Fatalf("parse error at %s: %v", loc, err)
		}
		keys = append(keys, rec.NaturalKey())
		return nil
	})
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "alice" {
		t.Errorf("keys = %v, want just alice (partial block invisible)", keys)
	}
}

func TestScanFrom_ResumesAfterLocation(t *testing.T) {
	cfg := testConfig(t)
	w := NewWriter(cfg)
	var locs []Location
	for i, name := range []string{"alice", "bob", "carol"} {
		created := time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
		loc, err := w.Append(userRecord(name, created))
		if err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		locs = append(locs, loc)
	}

	var keys []string
	s := NewScanner(cfg.ArchiveRoot)
	err := s.ScanFrom(context.Background(), record.DomainUser, locs[0], func(loc Location, rec *record.Record, err error) error {
		if err != nil {
			t.Fatalf("parse error at %s: %v", loc, err)
		}
		keys = append(keys, rec.NaturalKey())
		return nil
	})
	if err != nil {
		t.Fatalf("ScanFrom() failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "bob" || keys[1] != "carol" {
		t.Errorf("keys = %v, want [bob carol]", keys)
	}
}

func TestReadAt_RoundTrip(t *testing.T) {
	cfg := testConfig(t)
	w := NewWriter(cfg)
	rec := userRecord("alice", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	loc, err := w.Append(rec)
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	// Another record after it, so the read must respect the byte range.
	if _, err := w.Append(userRecord("bob", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	got, err := NewScanner(cfg.ArchiveRoot).ReadAt(loc)
	if err != nil {
		t.Fatalf("ReadAt() failed: %v", err)
	}
	if got.NaturalKey() != "alice" {
		t.Errorf("ReadAt key = %q, want alice", got.NaturalKey())
	}
}

func TestScan_Cancellation(t *testing.T) {
	cfg := testConfig(t)
	w := NewWriter(cfg)
	if _, err := w.Append(userRecord("alice", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewScanner(cfg.ArchiveRoot).Scan(ctx, record.DomainUser, func(Location, *record.Record, error) error {
		t.Fatal("callback invoked after cancellation")
		return nil
	})
	if err != context.Canceled {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}
