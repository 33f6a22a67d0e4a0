// Package consistency detects drift between the archives and the derived
// database index. Archives are authoritative, so a finding is always read as
// "the database disagrees with the archive", never the reverse.
package consistency

import (
	"fmt"

	"github.com/gulkily/thywill-sub001/internal/record"
)

// Finding reports one field of one record where the database diverges from
// the archive.
type Finding struct {
	Domain        record.Domain `json:"domain"`
	NaturalKey    string        `json:"natural_key"`
	Field         string        `json:"field"`
	ArchiveValue  string        `json:"archive_value"`
	DatabaseValue string        `json:"database_value"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s: %s archive=%q database=%q",
		f.Domain, f.NaturalKey, f.Field, f.ArchiveValue, f.DatabaseValue)
}

// Diff compares an archived record against its database counterpart field by
// field and returns one finding per divergent field. Both records must belong
// to the same domain; extension fields are not tracked by the database and
// are not compared.
func Diff(archived, stored *record.Record) []Finding {
	key := archived.NaturalKey()
	av := archived.Fields()
	dv := stored.Fields()

	dbByName := make(map[string]string, len(dv))
	for _, f := range dv {
		dbByName[f.Name] = f.Value
	}

	var findings []Finding
	for _, f := range av {
		if got := dbByName[f.Name]; got != f.Value {
			findings = append(findings, Finding{
				Domain:        archived.Domain,
				NaturalKey:    key,
				Field:         f.Name,
				ArchiveValue:  f.Value,
				DatabaseValue: got,
			})
		}
	}
	return findings
}
