package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/record"
)

// Tx is one write batch. Reconcile and heal passes commit after a bounded
// number of records or at end of domain, so a mid-batch failure rolls back
// only that batch, never prior committed progress.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a write batch.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the batch.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback aborts the batch. No-op after Commit.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// LookupID resolves a natural key within this batch, seeing uncommitted
// rows inserted earlier in it.
func (t *Tx) LookupID(ctx context.Context, domain record.Domain, naturalKey string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx,
		"SELECT id FROM "+tableFor(domain)+" WHERE natural_key = ?", naturalKey).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %s %q: %w", tableFor(domain), naturalKey, err)
	}
	return id, true, nil
}

// Inserts use ON CONFLICT(natural_key) DO NOTHING: a duplicate key is a
// silent no-op and reports inserted=false, so a repeated import never
// creates a second row for the same natural key.

func (t *Tx) InsertUser(ctx context.Context, row *UserRow) (int64, bool, error) {
	p, o, l := locColumns(row.Loc)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO users
		(natural_key, username, display_name, email, password_hash, is_admin, created_at, archive_path, archive_offset, archive_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO NOTHING
	`, row.NaturalKey, row.Username, row.DisplayName, row.Email, row.PasswordHash, boolCol(row.Admin), encodeTime(row.Created), p, o, l)
	return insertOutcome(ctx, t, record.DomainUser, row.NaturalKey, res, err)
}

func (t *Tx) UpdateUser(ctx context.Context, row *UserRow) error {
	p, o, l := locColumns(row.Loc)
	_, err := t.tx.ExecContext(ctx, `
		UPDATE users
		SET username = ?, display_name = ?, email = ?, password_hash = ?, is_admin = ?, created_at = ?,
		    archive_path = ?, archive_offset = ?, archive_length = ?
		WHERE id = ?
	`, row.Username, row.DisplayName, row.Email, row.PasswordHash, boolCol(row.Admin), encodeTime(row.Created), p, o, l, row.ID)
	if err != nil {
		return fmt.Errorf("update user %q: %w", row.NaturalKey, err)
	}
	return nil
}

func (t *Tx) InsertRole(ctx context.Context, row *RoleRow) (int64, bool, error) {
	p, o, l := locColumns(row.Loc)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO roles
		(natural_key, user_id, role_name, granted_by, granted_at, archive_path, archive_offset, archive_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO NOTHING
	`, row.NaturalKey, row.UserID, row.RoleName, row.GrantedBy, encodeTime(row.GrantedAt), p, o, l)
	return insertOutcome(ctx, t, record.DomainRole, row.NaturalKey, res, err)
}

func (t *Tx) UpdateRole(ctx context.Context, row *RoleRow) error {
	p, o, l := locColumns(row.Loc)
	_, err := t.tx.ExecContext(ctx, `
		UPDATE roles
		SET user_id = ?, role_name = ?, granted_by = ?, granted_at = ?,
		    archive_path = ?, archive_offset = ?, archive_length = ?
		WHERE id = ?
	`, row.UserID, row.RoleName, row.GrantedBy, encodeTime(row.GrantedAt), p, o, l, row.ID)
	if err != nil {
		return fmt.Errorf("update role %q: %w", row.NaturalKey, err)
	}
	return nil
}

func (t *Tx) InsertPrayer(ctx context.Context, row *PrayerRow) (int64, bool, error) {
	p, o, l := locColumns(row.Loc)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO prayers
		(natural_key, author_id, text, category, safety_score, flags, created_at, archive_path, archive_offset, archive_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO NOTHING
	`, row.NaturalKey, row.AuthorID, row.Text, row.Category, row.SafetyScore, joinFlags(row.Flags), encodeTime(row.Created), p, o, l)
	return insertOutcome(ctx, t, record.DomainPrayer, row.NaturalKey, res, err)
}

func (t *Tx) UpdatePrayer(ctx context.Context, row *PrayerRow) error {
	p, o, l := locColumns(row.Loc)
	_, err := t.tx.ExecContext(ctx, `
		UPDATE prayers
		SET author_id = ?, text = ?, category = ?, safety_score = ?, flags = ?, created_at = ?,
		    archive_path = ?, archive_offset = ?, archive_length = ?
		WHERE id = ?
	`, row.AuthorID, row.Text, row.Category, row.SafetyScore, joinFlags(row.Flags), encodeTime(row.Created), p, o, l, row.ID)
	if err != nil {
		return fmt.Errorf("update prayer %q: %w", row.NaturalKey, err)
	}
	return nil
}

func (t *Tx) InsertMark(ctx context.Context, row *MarkRow) (int64, bool, error) {
	p, o, l := locColumns(row.Loc)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO prayer_marks
		(natural_key, prayer_id, user_id, marked_at, archive_path, archive_offset, archive_length)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO NOTHING
	`, row.NaturalKey, row.PrayerID, row.UserID, encodeTime(row.MarkedAt), p, o, l)
	return insertOutcome(ctx, t, record.DomainPrayerMark, row.NaturalKey, res, err)
}

func (t *Tx) UpdateMark(ctx context.Context, row *MarkRow) error {
	p, o, l := locColumns(row.Loc)
	_, err := t.tx.ExecContext(ctx, `
		UPDATE prayer_marks
		SET prayer_id = ?, user_id = ?, marked_at = ?,
		    archive_path = ?, archive_offset = ?, archive_length = ?
		WHERE id = ?
	`, row.PrayerID, row.UserID, encodeTime(row.MarkedAt), p, o, l, row.ID)
	if err != nil {
		return fmt.Errorf("update mark %q: %w", row.NaturalKey, err)
	}
	return nil
}

func (t *Tx) InsertAttribute(ctx context.Context, row *AttributeRow) (int64, bool, error) {
	p, o, l := locColumns(row.Loc)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO prayer_attributes
		(natural_key, prayer_id, name, value, set_by, set_at, archive_path, archive_offset, archive_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO NOTHING
	`, row.NaturalKey, row.PrayerID, row.Name, row.Value, row.SetBy, encodeTime(row.SetAt), p, o, l)
	return insertOutcome(ctx, t, record.DomainPrayerAttribute, row.NaturalKey, res, err)
}

func (t *Tx) UpdateAttribute(ctx context.Context, row *AttributeRow) error {
	p, o, l := locColumns(row.Loc)
	_, err := t.tx.ExecContext(ctx, `
		UPDATE prayer_attributes
		SET prayer_id = ?, name = ?, value = ?, set_by = ?, set_at = ?,
		    archive_path = ?, archive_offset = ?, archive_length = ?
		WHERE id = ?
	`, row.PrayerID, row.Name, row.Value, row.SetBy, encodeTime(row.SetAt), p, o, l, row.ID)
	if err != nil {
		return fmt.Errorf("update attribute %q: %w", row.NaturalKey, err)
	}
	return nil
}

func (t *Tx) InsertActivity(ctx context.Context, row *ActivityRow) (int64, bool, error) {
	p, o, l := locColumns(row.Loc)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity_log
		(natural_key, at, actor, action, target, archive_path, archive_offset, archive_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO NOTHING
	`, row.NaturalKey, encodeTime(row.At), row.Actor, row.Action, row.Target, p, o, l)
	return insertOutcome(ctx, t, record.DomainActivity, row.NaturalKey, res, err)
}

func (t *Tx) UpdateActivity(ctx context.Context, row *ActivityRow) error {
	p, o, l := locColumns(row.Loc)
	_, err := t.tx.ExecContext(ctx, `
		UPDATE activity_log
		SET at = ?, actor = ?, action = ?, target = ?,
		    archive_path = ?, archive_offset = ?, archive_length = ?
		WHERE id = ?
	`, encodeTime(row.At), row.Actor, row.Action, row.Target, p, o, l, row.ID)
	if err != nil {
		return fmt.Errorf("update activity %q: %w", row.NaturalKey, err)
	}
	return nil
}

func (t *Tx) InsertAuthEvent(ctx context.Context, row *AuthEventRow) (int64, bool, error) {
	p, o, l := locColumns(row.Loc)
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO auth_events
		(natural_key, at, username, kind, note, archive_path, archive_offset, archive_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO NOTHING
	`, row.NaturalKey, encodeTime(row.At), row.Username, row.Kind, row.Note, p, o, l)
	return insertOutcome(ctx, t, record.DomainAuthEvent, row.NaturalKey, res, err)
}

func (t *Tx) UpdateAuthEvent(ctx context.Context, row *AuthEventRow) error {
	p, o, l := locColumns(row.Loc)
	_, err := t.tx.ExecContext(ctx, `
		UPDATE auth_events
		SET at = ?, username = ?, kind = ?, note = ?,
		    archive_path = ?, archive_offset = ?, archive_length = ?
		WHERE id = ?
	`, encodeTime(row.At), row.Username, row.Kind, row.Note, p, o, l, row.ID)
	if err != nil {
		return fmt.Errorf("update auth event %q: %w", row.NaturalKey, err)
	}
	return nil
}

// SetLocation persists a row's archive location. Used by the healing
// service after synthesizing a missing archive file.
func (t *Tx) SetLocation(ctx context.Context, domain record.Domain, id int64, loc archive.Location) error {
	p, o, l := locColumns(loc)
	_, err := t.tx.ExecContext(ctx,
		"UPDATE "+tableFor(domain)+" SET archive_path = ?, archive_offset = ?, archive_length = ? WHERE id = ?",
		p, o, l, id)
	if err != nil {
		return fmt.Errorf("set location on %s id %d: %w", tableFor(domain), id, err)
	}
	return nil
}

// insertOutcome resolves an idempotent insert: a fresh row id when the
// insert landed, or the existing row's id when the natural key conflicted.
func insertOutcome(ctx context.Context, t *Tx, domain record.Domain, naturalKey string, res sql.Result, err error) (int64, bool, error) {
	if err != nil {
		return 0, false, fmt.Errorf("insert %s %q: %w", tableFor(domain), naturalKey, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert %s %q: rows affected: %w", tableFor(domain), naturalKey, err)
	}
	if affected > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert %s %q: last insert id: %w", tableFor(domain), naturalKey, err)
		}
		return id, true, nil
	}
	id, ok, err := t.LookupID(ctx, domain, naturalKey)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, fmt.Errorf("insert %s %q: conflicted but no existing row", tableFor(domain), naturalKey)
	}
	return id, false, nil
}
