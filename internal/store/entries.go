package store

import (
	"context"
	"fmt"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/record"
)

// Entry is a domain-independent view of one stored row: its surrogate id,
// natural key, archive location, and the record synthesized from its columns.
type Entry struct {
	ID  int64
	Key string
	Loc archive.Location
	Rec *record.Record
}

// ReadEntries reads every row of a domain as entries, ordered by natural key.
func (s *Store) ReadEntries(ctx context.Context, domain record.Domain) ([]Entry, error) {
	switch domain {
	case record.DomainUser:
		rows, err := s.ReadUsers(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(rows))
		for _, r := range rows {
			out = append(out, Entry{ID: r.ID, Key: r.NaturalKey, Loc: r.Loc, Rec: r.Record()})
		}
		return out, nil
	case record.DomainRole:
		rows, err := s.ReadRoles(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(rows))
		for _, r := range rows {
			out = append(out, Entry{ID: r.ID, Key: r.NaturalKey, Loc: r.Loc, Rec: r.Record()})
		}
		return out, nil
	case record.DomainPrayer:
		rows, err := s.ReadPrayers(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(rows))
		for _, r := range rows {
			out = append(out, Entry{ID: r.ID, Key: r.NaturalKey, Loc: r.Loc, Rec: r.Record()})
		}
		return out, nil
	case record.DomainPrayerMark:
		rows, err := s.ReadMarks(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(rows))
		for _, r := range rows {
			out = append(out, Entry{ID: r.ID, Key: r.NaturalKey, Loc: r.Loc, Rec: r.Record()})
		}
		return out, nil
	case record.DomainPrayerAttribute:
		rows, err := s.ReadAttributes(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(rows))
		for _, r := range rows {
			out = append(out, Entry{ID: r.ID, Key: r.NaturalKey, Loc: r.Loc, Rec: r.Record()})
		}
		return out, nil
	case record.DomainActivity:
		rows, err := s.ReadActivity(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(rows))
		for _, r := range rows {
			out = append(out, Entry{ID: r.ID, Key: r.NaturalKey, Loc: r.Loc, Rec: r.Record()})
		}
		return out, nil
	case record.DomainAuthEvent:
		rows, err := s.ReadAuthEvents(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(rows))
		for _, r := range rows {
			out = append(out, Entry{ID: r.ID, Key: r.NaturalKey, Loc: r.Loc, Rec: r.Record()})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("store: unknown domain %d", int(domain))
	}
}

// CountUnanchored counts rows of a domain with no recorded archive location.
func (s *Store) CountUnanchored(ctx context.Context, domain record.Domain) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableFor(domain)+" WHERE archive_path IS NULL").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count unanchored %s: %w", tableFor(domain), err)
	}
	return n, nil
}

// KeyIDMap loads the natural key to surrogate id mapping for a domain.
// Reconciliation uses it to resolve cross-references without per-record
// queries.
func (s *Store) KeyIDMap(ctx context.Context, domain record.Domain) (map[string]int64, error) {
	query := fmt.Sprintf(`SELECT natural_key, id FROM %s`, tableFor(domain))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: load key map: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var id int64
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("store: load key map: %w", err)
		}
		out[key] = id
	}
	return out, rows.Err()
}
