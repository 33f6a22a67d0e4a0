package consistency

import (
	"context"
	"fmt"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/logger"
	"github.com/gulkily/thywill-sub001/internal/record"
	"github.com/gulkily/thywill-sub001/internal/store"
)

// Validator checks every database row against the archive block its recorded
// location points at.
type Validator struct {
	store   *store.Store
	scanner *archive.Scanner
	log     *logger.Logger
}

func NewValidator(st *store.Store, sc *archive.Scanner, log *logger.Logger) *Validator {
	return &Validator{store: st, scanner: sc, log: log}
}

// Validate reads back each row's archive location for one domain and compares
// the tracked fields. Rows without a location, rows whose location cannot be
// read, and rows whose block decodes to a different natural key are reported
// under the pseudo-field "archive".
func (v *Validator) Validate(ctx context.Context, domain record.Domain) ([]Finding, error) {
	entries, err := v.store.ReadEntries(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", domain, err)
	}

	var findings []Finding
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		if e.Loc.IsZero() {
			findings = append(findings, Finding{
				Domain:        domain,
				NaturalKey:    e.Key,
				Field:         "archive",
				DatabaseValue: "<no location>",
			})
			continue
		}
		archived, err := v.scanner.ReadAt(e.Loc)
		if err != nil {
			findings = append(findings, Finding{
				Domain:        domain,
				NaturalKey:    e.Key,
				Field:         "archive",
				ArchiveValue:  "<unreadable>",
				DatabaseValue: e.Loc.String(),
			})
			continue
		}
		if got := archived.NaturalKey(); got != e.Key {
			findings = append(findings, Finding{
				Domain:        domain,
				NaturalKey:    e.Key,
				Field:         "archive",
				ArchiveValue:  got,
				DatabaseValue: e.Key,
			})
			continue
		}
		findings = append(findings, Diff(archived, e.Rec)...)
	}

	if len(findings) > 0 {
		v.log.Warn("validation found drift", "domain", domain.String(), "findings", len(findings))
	} else {
		v.log.Debug("validation clean", "domain", domain.String(), "rows", len(entries))
	}
	return findings, nil
}

// ValidateAll validates every domain in dependency order.
func (v *Validator) ValidateAll(ctx context.Context) ([]Finding, error) {
	var all []Finding
	for _, domain := range record.Domains {
		findings, err := v.Validate(ctx, domain)
		all = append(all, findings...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
