package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/gulkily/thywill-sub001/internal/archive"
)

// Row types mirror the domain tables. Joined name fields (Username, Author,
// PrayerKey) are populated on reads so records can be synthesized from rows
// without extra lookups; writes use the surrogate id fields.

type UserRow struct {
	ID           int64
	NaturalKey   string
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	Admin        bool
	Created      time.Time
	Loc          archive.Location
}

type RoleRow struct {
	ID         int64
	NaturalKey string
	UserID     int64
	Username   string // joined on read
	RoleName   string
	GrantedBy  string
	GrantedAt  time.Time
	Loc        archive.Location
}

type PrayerRow struct {
	ID          int64
	NaturalKey  string
	AuthorID    int64
	Author      string // joined on read
	Text        string
	Category    string
	SafetyScore int
	Flags       []string
	Created     time.Time
	Loc         archive.Location
}

type MarkRow struct {
	ID         int64
	NaturalKey string
	PrayerID   int64
	PrayerKey  string // joined on read
	UserID     int64
	Username   string // joined on read
	MarkedAt   time.Time
	Loc        archive.Location
}

type AttributeRow struct {
	ID         int64
	NaturalKey string
	PrayerID   int64
	PrayerKey  string // joined on read
	Name       string
	Value      string
	SetBy      string
	SetAt      time.Time
	Loc        archive.Location
}

type ActivityRow struct {
	ID         int64
	NaturalKey string
	At         time.Time
	Actor      string
	Action     string
	Target     string
	Loc        archive.Location
}

type AuthEventRow struct {
	ID         int64
	NaturalKey string
	At         time.Time
	Username   string
	Kind       string
	Note       string
	Loc        archive.Location
}

// locColumns converts a Location to its three nullable column values.
func locColumns(loc archive.Location) (any, any, any) {
	if loc.IsZero() {
		return nil, nil, nil
	}
	return loc.Path, loc.Offset, loc.Length
}

func scanLoc(path sql.NullString, offset, length sql.NullInt64) archive.Location {
	if !path.Valid {
		return archive.Location{}
	}
	return archive.Location{Path: path.String, Offset: offset.Int64, Length: length.Int64}
}

func joinFlags(flags []string) string {
	return strings.Join(flags, ",")
}

func splitFlags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func boolCol(b bool) int {
	if b {
		return 1
	}
	return 0
}
