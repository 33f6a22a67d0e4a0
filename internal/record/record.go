// Package record defines the archived domain entities and their canonical
// human-readable text encoding.
//
// Archives are the authoritative source of truth for the application; the
// relational database is a derived index rebuilt from them. Every record is
// identified by a natural key derived from its payload alone, never from a
// database-assigned surrogate id, so archives stay parseable without any
// database present.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Domain identifies one archived entity type. It is a closed set: adding a
// domain requires updating every exhaustive switch over it.
type Domain int

const (
	DomainUser Domain = iota
	DomainRole
	DomainPrayer
	DomainPrayerMark
	DomainPrayerAttribute
	DomainActivity
	DomainAuthEvent
)

// Domains lists all domains in import dependency order: entities before the
// entities that reference them.
var Domains = []Domain{
	DomainUser,
	DomainRole,
	DomainPrayer,
	DomainPrayerAttribute,
	DomainPrayerMark,
	DomainActivity,
	DomainAuthEvent,
}

// String returns the domain name used in archive block headers.
func (d Domain) String() string {
	switch d {
	case DomainUser:
		return "User"
	case DomainRole:
		return "Role"
	case DomainPrayer:
		return "Prayer"
	case DomainPrayerMark:
		return "Mark"
	case DomainPrayerAttribute:
		return "Attribute"
	case DomainActivity:
		return "Activity"
	case DomainAuthEvent:
		return "Auth"
	default:
		return fmt.Sprintf("Domain(%d)", int(d))
	}
}

// MarshalJSON emits the domain's header name, so JSON command output reads
// "User" rather than an enum ordinal.
func (d Domain) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// DomainFromHeader maps a block header name back to its domain.
func DomainFromHeader(name string) (Domain, bool) {
	switch name {
	case "User":
		return DomainUser, true
	case "Role":
		return DomainRole, true
	case "Prayer":
		return DomainPrayer, true
	case "Mark":
		return DomainPrayerMark, true
	case "Attribute":
		return DomainPrayerAttribute, true
	case "Activity":
		return DomainActivity, true
	case "Auth":
		return DomainAuthEvent, true
	default:
		return 0, false
	}
}

// Field is one named value in a record block. Extension fields keep their
// first-seen order so re-encoding reproduces the original block.
type Field struct {
	Name  string
	Value string
}

// User is a registration record.
type User struct {
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	Created      time.Time
	Admin        bool
}

// Role assigns a named role to a user.
type Role struct {
	Username  string
	Role      string
	GrantedBy string
	GrantedAt time.Time
}

// Prayer is a submitted prayer request. ID is assigned once at creation via
// NewPrayerID and carried in the payload thereafter; edits change Text but
// never ID.
type Prayer struct {
	ID          string
	Author      string
	Text        string
	Created     time.Time
	Category    string
	SafetyScore int
	Flags       []string
}

// PrayerMark records one user marking ("praying for") a prayer.
type PrayerMark struct {
	PrayerID string
	Username string
	MarkedAt time.Time
}

// PrayerAttribute is a named attribute set on a prayer (answered, featured).
type PrayerAttribute struct {
	PrayerID string
	Name     string
	Value    string
	SetBy    string
	SetAt    time.Time
}

// Activity is one line in the site activity log.
type Activity struct {
	At     time.Time
	Actor  string
	Action string
	Target string
}

// AuthEvent records an authentication event (login, logout, failure).
type AuthEvent struct {
	At       time.Time
	Username string
	Kind     string
	Note     string
}

// Record is a tagged variant over the archived domains. Exactly one payload
// pointer matching Domain is set. Extra holds unrecognized fields preserved
// verbatim for forward compatibility.
type Record struct {
	Domain Domain

	User      *User
	Role      *Role
	Prayer    *Prayer
	Mark      *PrayerMark
	Attribute *PrayerAttribute
	Activity  *Activity
	Auth      *AuthEvent

	Extra []Field
}

// NewPrayerID derives a stable prayer id from creation time, author, and the
// initial text. The content hash disambiguates same-second submissions; the
// id never changes once assigned, even when the text is later edited.
func NewPrayerID(created time.Time, author, text string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(text)))
	return fmt.Sprintf("p-%d-%s-%s", created.UTC().Unix(), author, hex.EncodeToString(sum[:4]))
}

// NaturalKey derives the record's natural key from its payload. The key is
// stable and human-meaningful; it never depends on database surrogate ids.
func (r *Record) NaturalKey() string {
	switch r.Domain {
	case DomainUser:
		return r.User.Username
	case DomainRole:
		return r.Role.Username + "/" + r.Role.Role
	case DomainPrayer:
		return r.Prayer.ID
	case DomainPrayerMark:
		return fmt.Sprintf("%s/%s/%d", r.Mark.PrayerID, r.Mark.Username, r.Mark.MarkedAt.UTC().Unix())
	case DomainPrayerAttribute:
		return r.Attribute.PrayerID + "/" + r.Attribute.Name
	case DomainActivity:
		return fmt.Sprintf("%d/%s/%s", r.Activity.At.UTC().Unix(), r.Activity.Actor, r.Activity.Action)
	case DomainAuthEvent:
		return fmt.Sprintf("%d/%s/%s", r.Auth.At.UTC().Unix(), r.Auth.Username, r.Auth.Kind)
	default:
		return ""
	}
}

// Timestamp returns the record's own time, used for monthly sharding of
// time-series domains.
func (r *Record) Timestamp() time.Time {
	switch r.Domain {
	case DomainUser:
		return r.User.Created
	case DomainRole:
		return r.Role.GrantedAt
	case DomainPrayer:
		return r.Prayer.Created
	case DomainPrayerMark:
		return r.Mark.MarkedAt
	case DomainPrayerAttribute:
		return r.Attribute.SetAt
	case DomainActivity:
		return r.Activity.At
	case DomainAuthEvent:
		return r.Auth.At
	default:
		return time.Time{}
	}
}

// Validate checks required payload fields. A record failing validation is
// structurally well-formed text but not importable (PayloadInvalid).
func (r *Record) Validate() error {
	switch r.Domain {
	case DomainUser:
		if r.User == nil || r.User.Username == "" {
			return fmt.Errorf("user: username is required")
		}
		if r.User.Created.IsZero() {
			return fmt.Errorf("user %s: created timestamp is required", r.User.Username)
		}
	case DomainRole:
		if r.Role == nil || r.Role.Username == "" || r.Role.Role == "" {
			return fmt.Errorf("role: username and role are required")
		}
	case DomainPrayer:
		if r.Prayer == nil || r.Prayer.ID == "" {
			return fmt.Errorf("prayer: id is required")
		}
		if r.Prayer.Author == "" || r.Prayer.Text == "" {
			return fmt.Errorf("prayer %s: author and text are required", r.Prayer.ID)
		}
	case DomainPrayerMark:
		if r.Mark == nil || r.Mark.PrayerID == "" || r.Mark.Username == "" {
			return fmt.Errorf("mark: prayer and username are required")
		}
		if r.Mark.MarkedAt.IsZero() {
			return fmt.Errorf("mark %s/%s: marked-at timestamp is required", r.Mark.PrayerID, r.Mark.Username)
		}
	case DomainPrayerAttribute:
		if r.Attribute == nil || r.Attribute.PrayerID == "" || r.Attribute.Name == "" {
			return fmt.Errorf("attribute: prayer and name are required")
		}
	case DomainActivity:
		if r.Activity == nil || r.Activity.Actor == "" || r.Activity.Action == "" {
			return fmt.Errorf("activity: actor and action are required")
		}
		if r.Activity.At.IsZero() {
			return fmt.Errorf("activity %s/%s: timestamp is required", r.Activity.Actor, r.Activity.Action)
		}
	case DomainAuthEvent:
		if r.Auth == nil || r.Auth.Username == "" || r.Auth.Kind == "" {
			return fmt.Errorf("auth: username and kind are required")
		}
		if r.Auth.At.IsZero() {
			return fmt.Errorf("auth %s/%s: timestamp is required", r.Auth.Username, r.Auth.Kind)
		}
	default:
		return fmt.Errorf("unknown domain %d", int(r.Domain))
	}
	return nil
}
