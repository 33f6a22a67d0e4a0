package record

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func testUser() *Record {
	return &Record{
		Domain: DomainUser,
		User: &User{
			Username:     "alice",
			DisplayName:  "Alice",
			Email:        "alice@example.org",
			PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
			Created:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Admin:        true,
		},
	}
}

func testPrayer() *Record {
	return &Record{
		Domain: DomainPrayer,
		Prayer: &Prayer{
			ID:          "p-1704153600-bob-deadbeef",
			Author:      "bob",
			Created:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Text:        "Please pray for my family.\nWe are grateful.",
			Category:    "family",
			SafetyScore: 92,
			Flags:       []string{"reviewed", "featured"},
		},
	}
}

func TestNaturalKey_AllDomains(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		name string
		rec  *Record
		want string
	}{
		{"user", testUser(), "alice"},
		{"role", &Record{Domain: DomainRole, Role: &Role{Username: "alice", Role: "moderator"}}, "alice/moderator"},
		{"prayer", testPrayer(), "p-1704153600-bob-deadbeef"},
		{"mark", &Record{Domain: DomainPrayerMark, Mark: &PrayerMark{PrayerID: "p-1", Username: "alice", MarkedAt: at}}, "p-1/alice/1704164645"},
		{"attribute", &Record{Domain: DomainPrayerAttribute, Attribute: &PrayerAttribute{PrayerID: "p-1", Name: "answered"}}, "p-1/answered"},
		{"activity", &Record{Domain: DomainActivity, Activity: &Activity{At: at, Actor: "alice", Action: "login"}}, "1704164645/alice/login"},
		{"auth", &Record{Domain: DomainAuthEvent, Auth: &AuthEvent{At: at, Username: "alice", Kind: "login"}}, "1704164645/alice/login"},
	}
	for _, tc := range cases {
		if got := tc.rec.NaturalKey(); got != tc.want {
			t.Errorf("%s: NaturalKey() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestNewPrayerID_Deterministic(t *testing.T) {
	created := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	a := NewPrayerID(created, "bob", "help")
	b := NewPrayerID(created, "bob", "help")
	if a != b {
		t.Errorf("NewPrayerID not deterministic: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "p-1704153600-bob-") {
		t.Errorf("NewPrayerID = %q, want p-1704153600-bob-<hash> prefix", a)
	}
	if c := NewPrayerID(created, "bob", "different text"); c == a {
		t.Error("different text produced identical prayer id")
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	recs := []*Record{
		testUser(),
		testPrayer(),
		{Domain: DomainRole, Role: &Role{Username: "alice", Role: "moderator", GrantedBy: "admin", GrantedAt: at}},
		{Domain: DomainPrayerMark, Mark: &PrayerMark{PrayerID: "p-1", Username: "carol", MarkedAt: at}},
		{Domain: DomainPrayerAttribute, Attribute: &PrayerAttribute{PrayerID: "p-1", Name: "answered", Value: "yes", SetBy: "alice", SetAt: at}},
		{Domain: DomainActivity, Activity: &Activity{At: at, Actor: "carol", Action: "submit_prayer", Target: "p-1"}},
		{Domain: DomainAuthEvent, Auth: &AuthEvent{At: at, Username: "carol", Kind: "login", Note: "remembered session"}},
	}

	for _, rec := range recs {
		first, err := Encode(rec)
		if err != nil {
			t.Fatalf("%s: Encode() failed: %v", rec.Domain, err)
		}

		decoded, err := Decode(first)
		if err != nil {
			t.Fatalf("%s: Decode() failed: %v", rec.Domain, err)
		}
		if decoded.NaturalKey() != rec.NaturalKey() {
			t.Errorf("%s: key after round trip = %q, want %q", rec.Domain, decoded.NaturalKey(), rec.NaturalKey())
		}

		second, err := Encode(decoded)
		if err != nil {
			t.Fatalf("%s: re-Encode() failed: %v", rec.Domain, err)
		}
		if !bytes.Equal(first, second) {
			t.Errorf("%s: re-encoding not byte-stable:\nfirst:\n%s\nsecond:\n%s", rec.Domain, first, second)
		}
	}
}

func TestDecode_UnknownFieldsPreserved(t *testing.T) {
	block := []byte("== Mark p-1/carol/1710495000\n" +
		"Prayer: p-1\n" +
		"Username: carol\n" +
		"MarkedAt: 2024-03-15T09:30:00Z\n" +
		"Mood: hopeful\n" +
		"Source: mobile\n" +
		"\n")

	rec, err := Decode(block)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(rec.Extra) != 2 {
		t.Fatalf("Extra = %v, want 2 preserved fields", rec.Extra)
	}
	if rec.Extra[0].Name != "Mood" || rec.Extra[0].Value != "hopeful" {
		t.Errorf("Extra[0] = %+v, want Mood: hopeful", rec.Extra[0])
	}

	// Re-encoding keeps the unknown fields, after the known ones.
	out, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if !bytes.Equal(out, block) {
		t.Errorf("unknown fields lost on re-encode:\ngot:\n%s\nwant:\n%s", out, block)
	}
}

func TestDecode_MissingOptionalFieldsDefault(t *testing.T) {
	// A prayer written before categorization metadata existed.
	block := []byte("== Prayer p-100-dan-cafe0000\n" +
		"Author: dan\n" +
		"Created: 2024-01-01T00:00:00Z\n" +
		"Text: An old prayer.\n" +
		"\n")

	rec, err := Decode(block)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if rec.Prayer.Category != "" {
		t.Errorf("Category = %q, want empty default", rec.Prayer.Category)
	}
	if rec.Prayer.SafetyScore != 0 {
		t.Errorf("SafetyScore = %d, want 0 default", rec.Prayer.SafetyScore)
	}
	if rec.Prayer.Flags != nil {
		t.Errorf("Flags = %v, want nil default", rec.Prayer.Flags)
	}
	if rec.Prayer.ID != "p-100-dan-cafe0000" {
		t.Errorf("ID = %q, want header key", rec.Prayer.ID)
	}
}

func TestDecode_UsernameComesFromHeaderKey(t *testing.T) {
	// User blocks carry the username only in the header line.
	block := []byte("== User alice\n" +
		"Created: 2024-01-01T00:00:00Z\n" +
		"Email: alice@example.org\n" +
		"\n")

	rec, err := Decode(block)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if rec.User.Username != "alice" {
		t.Errorf("Username = %q, want header key", rec.User.Username)
	}
	if rec.NaturalKey() != "alice" {
		t.Errorf("NaturalKey() = %q, want %q", rec.NaturalKey(), "alice")
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		block string
		kind  ParseErrorKind
	}{
		{"no header", "Username: alice\n\n", KindMalformed},
		{"empty block", "", KindMalformed},
		{"header without key", "== User\n\n", KindMalformed},
		{"unknown entity type", "== Widget w-1\n\n", KindMalformed},
		{"field without colon", "== User alice\nCreated 2024-01-01T00:00:00Z\n\n", KindMalformed},
		{"bad timestamp", "== User alice\nCreated: yesterday\n\n", KindBadValue},
		{"bad boolean", "== User alice\nAdmin: maybe\n\n", KindBadValue},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.block))
			if err == nil {
				t.Fatal("Decode() succeeded, want ParseError")
			}
			pe, ok := err.(*ParseError)
			if !ok {
				t.Fatalf("error type = %T, want *ParseError", err)
			}
			if pe.Kind != tc.kind {
				t.Errorf("Kind = %s, want %s", pe.Kind, tc.kind)
			}
		})
	}
}

func TestEscapeValue_RoundTrip(t *testing.T) {
	values := []string{
		"plain",
		"line one\nline two",
		"windows\r\nline",
		`back\slash`,
		`trailing\`,
		"mixed\\n literal and\nreal newline",
	}
	for _, v := range values {
		escaped := escapeValue(v)
		if strings.ContainsAny(escaped, "\n\r") {
			t.Errorf("escapeValue(%q) = %q still contains line breaks", v, escaped)
		}
		if got := unescapeValue(escaped); got != v {
			t.Errorf("unescape(escape(%q)) = %q", v, got)
		}
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	bad := []*Record{
		{Domain: DomainUser, User: &User{}},
		{Domain: DomainPrayer, Prayer: &Prayer{ID: "p-1", Author: "bob"}}, // no text
		{Domain: DomainPrayerMark, Mark: &PrayerMark{PrayerID: "p-1"}},
		{Domain: DomainActivity, Activity: &Activity{Actor: "x"}},
	}
	for _, rec := range bad {
		if err := rec.Validate(); err == nil {
			t.Errorf("%s: Validate() passed on invalid record", rec.Domain)
		}
	}
	if err := testUser().Validate(); err != nil {
		t.Errorf("valid user failed validation: %v", err)
	}
}
