package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Encode serializes a record to its canonical text block: a header line
// naming the entity type and natural key, `Field: value` lines in canonical
// order followed by any preserved extension fields, and a blank-line
// terminator.
//
// Encoding is deterministic: re-encoding a decoded record reproduces the
// original block byte for byte. Field values are NFC-normalized and
// newline-escaped so every field occupies exactly one line. Optional fields
// holding their default value are omitted.
func Encode(r *Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "== %s %s\n", r.Domain, r.NaturalKey())

	switch r.Domain {
	case DomainUser:
		writeField(&b, "Created", encodeTime(r.User.Created))
		writeOptField(&b, "DisplayName", r.User.DisplayName)
		writeOptField(&b, "Email", r.User.Email)
		writeOptField(&b, "PasswordHash", r.User.PasswordHash)
		if r.User.Admin {
			writeField(&b, "Admin", "true")
		}
	case DomainRole:
		writeField(&b, "Username", r.Role.Username)
		writeField(&b, "Role", r.Role.Role)
		writeOptField(&b, "GrantedBy", r.Role.GrantedBy)
		if !r.Role.GrantedAt.IsZero() {
			writeField(&b, "GrantedAt", encodeTime(r.Role.GrantedAt))
		}
	case DomainPrayer:
		writeField(&b, "Author", r.Prayer.Author)
		writeField(&b, "Created", encodeTime(r.Prayer.Created))
		writeField(&b, "Text", r.Prayer.Text)
		writeOptField(&b, "Category", r.Prayer.Category)
		if r.Prayer.SafetyScore != 0 {
			writeField(&b, "SafetyScore", strconv.Itoa(r.Prayer.SafetyScore))
		}
		if len(r.Prayer.Flags) > 0 {
			writeField(&b, "Flags", strings.Join(r.Prayer.Flags, ","))
		}
	case DomainPrayerMark:
		writeField(&b, "Prayer", r.Mark.PrayerID)
		writeField(&b, "Username", r.Mark.Username)
		writeField(&b, "MarkedAt", encodeTime(r.Mark.MarkedAt))
	case DomainPrayerAttribute:
		writeField(&b, "Prayer", r.Attribute.PrayerID)
		writeField(&b, "Name", r.Attribute.Name)
		writeOptField(&b, "Value", r.Attribute.Value)
		writeOptField(&b, "SetBy", r.Attribute.SetBy)
		if !r.Attribute.SetAt.IsZero() {
			writeField(&b, "SetAt", encodeTime(r.Attribute.SetAt))
		}
	case DomainActivity:
		writeField(&b, "At", encodeTime(r.Activity.At))
		writeField(&b, "Actor", r.Activity.Actor)
		writeField(&b, "Action", r.Activity.Action)
		writeOptField(&b, "Target", r.Activity.Target)
	case DomainAuthEvent:
		writeField(&b, "At", encodeTime(r.Auth.At))
		writeField(&b, "Username", r.Auth.Username)
		writeField(&b, "Kind", r.Auth.Kind)
		writeOptField(&b, "Note", r.Auth.Note)
	}

	for _, f := range r.Extra {
		writeField(&b, f.Name, f.Value)
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}

func writeField(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "%s: %s\n", name, escapeValue(value))
}

// writeOptField omits fields holding their zero value so that records
// predating an optional field re-encode without it.
func writeOptField(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	writeField(b, name, value)
}

// encodeTime serializes a timestamp as RFC 3339 UTC at second precision.
// Comparisons elsewhere truncate to seconds to match.
func encodeTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// escapeValue NFC-normalizes a value and escapes backslashes and line
// breaks so the value occupies a single line.
func escapeValue(v string) string {
	v = norm.NFC.String(v)
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\r", `\r`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return v
}

func unescapeValue(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i+1 == len(v) {
			b.WriteByte(v[i])
			continue
		}
		i++
		switch v[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
