// Package reconcile imports archived records into the database index,
// skipping what is already there and correcting rows that have drifted from
// the archive. A reconcile pass is idempotent: running it twice over the same
// archives leaves the database unchanged and reports zero imports on the
// second run.
package reconcile

import (
	"fmt"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/consistency"
	"github.com/gulkily/thywill-sub001/internal/record"
)

// ErrorCode classifies why a record could not be imported.
type ErrorCode string

const (
	// CodeParseFailed marks a block the scanner could not decode.
	CodeParseFailed ErrorCode = "parse_failed"
	// CodePayloadInvalid marks a well-formed block missing required fields.
	CodePayloadInvalid ErrorCode = "payload_invalid"
	// CodeReferenceUnresolved marks a record naming a user or prayer that
	// exists nowhere in the archives, after the deferred retry pass.
	CodeReferenceUnresolved ErrorCode = "reference_unresolved"
	// CodeDatabaseWriteFailed marks a record whose row write failed.
	CodeDatabaseWriteFailed ErrorCode = "database_write_failed"
)

// RecordError is one record the pass could not import.
type RecordError struct {
	Key  string           `json:"key,omitempty"`
	Loc  archive.Location `json:"location"`
	Code ErrorCode        `json:"code"`
	Err  error            `json:"-"`
}

func (e RecordError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %q at %s: %v", e.Code, e.Key, e.Loc, e.Err)
	}
	return fmt.Sprintf("%s at %s: %v", e.Code, e.Loc, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// Result accounts for every scanned block of one domain: each lands in
// exactly one of Imported, Corrected, SkippedDuplicate, SkippedInvalid, or
// Failed.
type Result struct {
	Domain           record.Domain         `json:"domain"`
	Imported         int                   `json:"imported"`
	Corrected        int                   `json:"corrected"`
	SkippedDuplicate int                   `json:"skipped_duplicate"`
	SkippedInvalid   int                   `json:"skipped_invalid"`
	Failed           int                   `json:"failed"`
	Findings         []consistency.Finding `json:"findings,omitempty"`
	Errors           []RecordError         `json:"errors,omitempty"`
}

// Total returns the number of blocks the pass accounted for.
func (r *Result) Total() int {
	return r.Imported + r.Corrected + r.SkippedDuplicate + r.SkippedInvalid + r.Failed
}

func (r *Result) String() string {
	return fmt.Sprintf("%s: imported=%d corrected=%d duplicate=%d invalid=%d failed=%d",
		r.Domain, r.Imported, r.Corrected, r.SkippedDuplicate, r.SkippedInvalid, r.Failed)
}
