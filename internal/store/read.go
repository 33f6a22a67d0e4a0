package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Reads return full row slices ordered by natural key for deterministic
// iteration. The healing service and validator walk these; domain tables
// are small enough that streaming is not worth the cursor bookkeeping.

func (s *Store) ReadUsers(ctx context.Context) ([]UserRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, natural_key, username, display_name, email, password_hash, is_admin, created_at,
		       archive_path, archive_offset, archive_length
		FROM users ORDER BY natural_key
	`)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	defer rows.Close()

	var out []UserRow
	for rows.Next() {
		var r UserRow
		var admin int
		var created string
		var p sql.NullString
		var o, l sql.NullInt64
		if err := rows.Scan(&r.ID, &r.NaturalKey, &r.Username, &r.DisplayName, &r.Email, &r.PasswordHash, &admin, &created, &p, &o, &l); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		r.Admin = admin != 0
		if r.Created, err = decodeTimeCol(created); err != nil {
			return nil, fmt.Errorf("user %q: %w", r.NaturalKey, err)
		}
		r.Loc = scanLoc(p, o, l)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadRoles(ctx context.Context) ([]RoleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.natural_key, r.user_id, u.username, r.role_name, r.granted_by, r.granted_at,
		       r.archive_path, r.archive_offset, r.archive_length
		FROM roles r JOIN users u ON r.user_id = u.id
		ORDER BY r.natural_key
	`)
	if err != nil {
		return nil, fmt.Errorf("read roles: %w", err)
	}
	defer rows.Close()

	var out []RoleRow
	for rows.Next() {
		var r RoleRow
		var granted string
		var p sql.NullString
		var o, l sql.NullInt64
		if err := rows.Scan(&r.ID, &r.NaturalKey, &r.UserID, &r.Username, &r.RoleName, &r.GrantedBy, &granted, &p, &o, &l); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if r.GrantedAt, err = decodeTimeCol(granted); err != nil {
			return nil, fmt.Errorf("role %q: %w", r.NaturalKey, err)
		}
		r.Loc = scanLoc(p, o, l)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadPrayers(ctx context.Context) ([]PrayerRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.natural_key, p.author_id, u.username, p.text, p.category, p.safety_score, p.flags, p.created_at,
		       p.archive_path, p.archive_offset, p.archive_length
		FROM prayers p JOIN users u ON p.author_id = u.id
		ORDER BY p.natural_key
	`)
	if err != nil {
		return nil, fmt.Errorf("read prayers: %w", err)
	}
	defer rows.Close()

	var out []PrayerRow
	for rows.Next() {
		var r PrayerRow
		var flags, created string
		var p sql.NullString
		var o, l sql.NullInt64
		if err := rows.Scan(&r.ID, &r.NaturalKey, &r.AuthorID, &r.Author, &r.Text, &r.Category, &r.SafetyScore, &flags, &created, &p, &o, &l); err != nil {
			return nil, fmt.Errorf("scan prayer: %w", err)
		}
		r.Flags = splitFlags(flags)
		if r.Created, err = decodeTimeCol(created); err != nil {
			return nil, fmt.Errorf("prayer %q: %w", r.NaturalKey, err)
		}
		r.Loc = scanLoc(p, o, l)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadMarks(ctx context.Context) ([]MarkRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.natural_key, m.prayer_id, p.natural_key, m.user_id, u.username, m.marked_at,
		       m.archive_path, m.archive_offset, m.archive_length
		FROM prayer_marks m
		JOIN prayers p ON m.prayer_id = p.id
		JOIN users u ON m.user_id = u.id
		ORDER BY m.natural_key
	`)
	if err != nil {
		return nil, fmt.Errorf("read marks: %w", err)
	}
	defer rows.Close()

	var out []MarkRow
	for rows.Next() {
		var r MarkRow
		var marked string
		var p sql.NullString
		var o, l sql.NullInt64
		if err := rows.Scan(&r.ID, &r.NaturalKey, &r.PrayerID, &r.PrayerKey, &r.UserID, &r.Username, &marked, &p, &o, &l); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		if r.MarkedAt, err = decodeTimeCol(marked); err != nil {
			return nil, fmt.Errorf("mark %q: %w", r.NaturalKey, err)
		}
		r.Loc = scanLoc(p, o, l)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadAttributes(ctx context.Context) ([]AttributeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.natural_key, a.prayer_id, p.natural_key, a.name, a.value, a.set_by, a.set_at,
		       a.archive_path, a.archive_offset, a.archive_length
		FROM prayer_attributes a
		JOIN prayers p ON a.prayer_id = p.id
		ORDER BY a.natural_key
	`)
	if err != nil {
		return nil, fmt.Errorf("read attributes: %w", err)
	}
	defer rows.Close()

	var out []AttributeRow
	for rows.Next() {
		var r AttributeRow
		var set string
		var p sql.NullString
		var o, l sql.NullInt64
		if err := rows.Scan(&r.ID, &r.NaturalKey, &r.PrayerID, &r.PrayerKey, &r.Name, &r.Value, &r.SetBy, &set, &p, &o, &l); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		if r.SetAt, err = decodeTimeCol(set); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", r.NaturalKey, err)
		}
		r.Loc = scanLoc(p, o, l)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadActivity(ctx context.Context) ([]ActivityRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, natural_key, at, actor, action, target, archive_path, archive_offset, archive_length
		FROM activity_log ORDER BY natural_key
	`)
	if err != nil {
		return nil, fmt.Errorf("read activity: %w", err)
	}
	defer rows.Close()

	var out []ActivityRow
	for rows.Next() {
		var r ActivityRow
		var at string
		var p sql.NullString
		var o, l sql.NullInt64
		if err := rows.Scan(&r.ID, &r.NaturalKey, &at, &r.Actor, &r.Action, &r.Target, &p, &o, &l); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if r.At, err = decodeTimeCol(at); err != nil {
			return nil, fmt.Errorf("activity %q: %w", r.NaturalKey, err)
		}
		r.Loc = scanLoc(p, o, l)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ReadAuthEvents(ctx context.Context) ([]AuthEventRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, natural_key, at, username, kind, note, archive_path, archive_offset, archive_length
		FROM auth_events ORDER BY natural_key
	`)
	if err != nil {
		return nil, fmt.Errorf("read auth events: %w", err)
	}
	defer rows.Close()

	var out []AuthEventRow
	for rows.Next() {
		var r AuthEventRow
		var at string
		var p sql.NullString
		var o, l sql.NullInt64
		if err := rows.Scan(&r.ID, &r.NaturalKey, &at, &r.Username, &r.Kind, &r.Note, &p, &o, &l); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		if r.At, err = decodeTimeCol(at); err != nil {
			return nil, fmt.Errorf("auth event %q: %w", r.NaturalKey, err)
		}
		r.Loc = scanLoc(p, o, l)
		out = append(out, r)
	}
	return out, rows.Err()
}
