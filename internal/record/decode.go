package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseErrorKind categorizes archive text parse failures.
type ParseErrorKind string

const (
	// KindMalformed indicates broken block structure: a missing header
	// line, an unrecognized entity type, or a field line without a colon.
	KindMalformed ParseErrorKind = "MALFORMED"

	// KindBadValue indicates a recognized field whose value does not parse
	// (bad timestamp, non-numeric score).
	KindBadValue ParseErrorKind = "BAD_VALUE"
)

// ParseError reports a single undecodable archive block. Scans record the
// error and continue; one corrupt block never blocks the rest of a recovery.
type ParseError struct {
	Kind ParseErrorKind
	Line int // 1-based line within the block, 0 when structural
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Kind, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Decode parses one canonical text block into a Record. Unrecognized field
// names are preserved as extension fields in their original order rather
// than discarded. Missing optional fields take their documented defaults;
// only structural damage or an unparseable known value fails the decode.
func Decode(block []byte) (*Record, error) {
	lines := strings.Split(strings.TrimSuffix(string(block), "\n"), "\n")
	// Trim the blank-line terminator if present.
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, &ParseError{Kind: KindMalformed, Msg: "empty block"}
	}

	header := lines[0]
	if !strings.HasPrefix(header, "== ") {
		return nil, &ParseError{Kind: KindMalformed, Line: 1, Msg: fmt.Sprintf("missing block header, got %q", truncate(header))}
	}
	rest := strings.TrimPrefix(header, "== ")
	name, key, found := strings.Cut(rest, " ")
	if !found || name == "" {
		return nil, &ParseError{Kind: KindMalformed, Line: 1, Msg: fmt.Sprintf("header needs entity type and key, got %q", truncate(header))}
	}
	domain, ok := DomainFromHeader(name)
	if !ok {
		return nil, &ParseError{Kind: KindMalformed, Line: 1, Msg: fmt.Sprintf("unknown entity type %q", name)}
	}

	rec := newEmpty(domain)
	for i, line := range lines[1:] {
		lineNo := i + 2
		if line == "" {
			// Interior blank line: the terminator arrived early.
			return nil, &ParseError{Kind: KindMalformed, Line: lineNo, Msg: "blank line before end of block"}
		}
		fname, raw, found := strings.Cut(line, ": ")
		if !found || fname == "" {
			return nil, &ParseError{Kind: KindMalformed, Line: lineNo, Msg: fmt.Sprintf("expected 'Field: value', got %q", truncate(line))}
		}
		value := unescapeValue(raw)
		known, err := setField(rec, fname, value)
		if err != nil {
			return nil, &ParseError{Kind: KindBadValue, Line: lineNo, Msg: fmt.Sprintf("field %s: %v", fname, err)}
		}
		if !known {
			rec.Extra = append(rec.Extra, Field{Name: fname, Value: value})
		}
	}

	// A username or prayer id lives only in the header key, never in a
	// body field; restore it so the decoded key matches the header.
	switch rec.Domain {
	case DomainUser:
		if rec.User.Username == "" {
			rec.User.Username = key
		}
	case DomainPrayer:
		if rec.Prayer.ID == "" {
			rec.Prayer.ID = key
		}
	}

	return rec, nil
}

func newEmpty(d Domain) *Record {
	rec := &Record{Domain: d}
	switch d {
	case DomainUser:
		rec.User = &User{}
	case DomainRole:
		rec.Role = &Role{}
	case DomainPrayer:
		rec.Prayer = &Prayer{}
	case DomainPrayerMark:
		rec.Mark = &PrayerMark{}
	case DomainPrayerAttribute:
		rec.Attribute = &PrayerAttribute{}
	case DomainActivity:
		rec.Activity = &Activity{}
	case DomainAuthEvent:
		rec.Auth = &AuthEvent{}
	}
	return rec
}

// setField assigns a known field on the record's payload. Returns
// known=false for names the domain does not recognize; those are kept as
// extension data by the caller.
func setField(rec *Record, name, value string) (known bool, err error) {
	switch rec.Domain {
	case DomainUser:
		switch name {
		case "Created":
			rec.User.Created, err = decodeTime(value)
		case "DisplayName":
			rec.User.DisplayName = value
		case "Email":
			rec.User.Email = value
		case "PasswordHash":
			rec.User.PasswordHash = value
		case "Admin":
			rec.User.Admin, err = decodeBool(value)
		default:
			return false, nil
		}
	case DomainRole:
		switch name {
		case "Username":
			rec.Role.Username = value
		case "Role":
			rec.Role.Role = value
		case "GrantedBy":
			rec.Role.GrantedBy = value
		case "GrantedAt":
			rec.Role.GrantedAt, err = decodeTime(value)
		default:
			return false, nil
		}
	case DomainPrayer:
		switch name {
		case "Author":
			rec.Prayer.Author = value
		case "Created":
			rec.Prayer.Created, err = decodeTime(value)
		case "Text":
			rec.Prayer.Text = value
		case "Category":
			rec.Prayer.Category = value
		case "SafetyScore":
			rec.Prayer.SafetyScore, err = strconv.Atoi(value)
		case "Flags":
			rec.Prayer.Flags = strings.Split(value, ",")
		default:
			return false, nil
		}
	case DomainPrayerMark:
		switch name {
		case "Prayer":
			rec.Mark.PrayerID = value
		case "Username":
			rec.Mark.Username = value
		case "MarkedAt":
			rec.Mark.MarkedAt, err = decodeTime(value)
		default:
			return false, nil
		}
	case DomainPrayerAttribute:
		switch name {
		case "Prayer":
			rec.Attribute.PrayerID = value
		case "Name":
			rec.Attribute.Name = value
		case "Value":
			rec.Attribute.Value = value
		case "SetBy":
			rec.Attribute.SetBy = value
		case "SetAt":
			rec.Attribute.SetAt, err = decodeTime(value)
		default:
			return false, nil
		}
	case DomainActivity:
		switch name {
		case "At":
			rec.Activity.At, err = decodeTime(value)
		case "Actor":
			rec.Activity.Actor = value
		case "Action":
			rec.Activity.Action = value
		case "Target":
			rec.Activity.Target = value
		default:
			return false, nil
		}
	case DomainAuthEvent:
		switch name {
		case "At":
			rec.Auth.At, err = decodeTime(value)
		case "Username":
			rec.Auth.Username = value
		case "Kind":
			rec.Auth.Kind = value
		case "Note":
			rec.Auth.Note = value
		default:
			return false, nil
		}
	}
	return true, err
}

func decodeTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", v)
	}
	return t.UTC(), nil
}

func decodeBool(v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("bad boolean %q", v)
	}
}

func truncate(s string) string {
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
