// Package archive owns the physical archive tree: sharded file layout,
// crash-atomic writes, and the lazy scanner the import and validation
// passes read from.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"

	"github.com/gulkily/thywill-sub001/internal/record"
)

// Location identifies where a record's canonical text lives: a path
// relative to the archive root plus the byte range of the block. Database
// rows derived from archives carry their Location so the validator can
// re-read the exact block they came from.
type Location struct {
	Path   string
	Offset int64
	Length int64
}

// String formats a location for logs and findings.
func (l Location) String() string {
	return fmt.Sprintf("%s@%d+%d", l.Path, l.Offset, l.Length)
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Path == ""
}

// PathFor derives the root-relative archive path for a record.
//
// Time-series domains shard by calendar month of the record's own
// timestamp. Prayers and their dependent records (marks, attributes) are
// entity-keyed: one growing file per prayer, bucketed by a short hash of
// the prayer id to keep directories small.
func PathFor(rec *record.Record) string {
	switch rec.Domain {
	case record.DomainUser:
		return monthShard("users", rec)
	case record.DomainRole:
		return monthShard("roles", rec)
	case record.DomainActivity:
		return monthShard("activity", rec)
	case record.DomainAuthEvent:
		return monthShard("auth", rec)
	case record.DomainPrayer:
		return prayerPath(rec.Prayer.ID)
	case record.DomainPrayerMark:
		return prayerPath(rec.Mark.PrayerID)
	case record.DomainPrayerAttribute:
		return prayerPath(rec.Attribute.PrayerID)
	default:
		return ""
	}
}

// DirFor returns the root-relative directory scanned for a domain.
func DirFor(domain record.Domain) string {
	switch domain {
	case record.DomainUser:
		return "users"
	case record.DomainRole:
		return "roles"
	case record.DomainActivity:
		return "activity"
	case record.DomainAuthEvent:
		return "auth"
	case record.DomainPrayer, record.DomainPrayerMark, record.DomainPrayerAttribute:
		return "prayers"
	default:
		return ""
	}
}

func monthShard(dir string, rec *record.Record) string {
	return path.Join(dir, rec.Timestamp().UTC().Format("2006-01")+".txt")
}

func prayerPath(prayerID string) string {
	sum := sha256.Sum256([]byte(prayerID))
	bucket := hex.EncodeToString(sum[:1])
	return path.Join("prayers", bucket, prayerID+".txt")
}
