package reconcile

import (
	"context"
	"fmt"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/config"
	"github.com/gulkily/thywill-sub001/internal/consistency"
	"github.com/gulkily/thywill-sub001/internal/logger"
	"github.com/gulkily/thywill-sub001/internal/record"
	"github.com/gulkily/thywill-sub001/internal/store"
)

// Reconciler imports one domain's archives into the database. Writes are
// batched into transactions of BatchSize records; with DryRun set the whole
// pass runs inside a single transaction that is rolled back at the end, so
// the result reports what would happen without touching the database.
type Reconciler struct {
	store   *store.Store
	scanner *archive.Scanner
	batch   int
	log     *logger.Logger

	DryRun bool
}

func New(st *store.Store, sc *archive.Scanner, cfg config.Config, log *logger.Logger) *Reconciler {
	return &Reconciler{store: st, scanner: sc, batch: cfg.BatchSize, log: log}
}

// Item is one scanned block: a decoded record or the parse error that stood
// in its place.
type Item struct {
	Loc archive.Location
	Rec *record.Record
	Err error
}

// Reconcile scans a domain's archive files and imports every block.
func (r *Reconciler) Reconcile(ctx context.Context, domain record.Domain) (*Result, error) {
	return r.reconcile(ctx, domain, nil)
}

// ReconcileAll reconciles every domain in dependency order, so records are
// imported before the records that reference them. With DryRun set, all
// domains run inside one shared transaction so later domains can resolve
// references against rows the dry run would have inserted; the transaction
// is rolled back at the end.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]*Result, error) {
	var shared *store.Tx
	if r.DryRun {
		tx, err := r.store.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("reconcile all: %w", err)
		}
		shared = tx
		defer shared.Rollback()
	}

	var results []*Result
	for _, domain := range record.Domains {
		res, err := r.reconcile(ctx, domain, shared)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (r *Reconciler) reconcile(ctx context.Context, domain record.Domain, shared *store.Tx) (*Result, error) {
	var items []Item
	err := r.scanner.Scan(ctx, domain, func(loc archive.Location, rec *record.Record, scanErr error) error {
		items = append(items, Item{Loc: loc, Rec: rec, Err: scanErr})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: scan: %w", domain, err)
	}
	return r.reconcileItems(ctx, domain, items, shared)
}

// ReconcileItems imports an explicit sequence of scanned blocks. Records
// whose cross-references cannot be resolved yet are deferred and retried once
// after the rest of the sequence, so import order within a domain does not
// matter.
func (r *Reconciler) ReconcileItems(ctx context.Context, domain record.Domain, items []Item) (*Result, error) {
	return r.reconcileItems(ctx, domain, items, nil)
}

func (r *Reconciler) reconcileItems(ctx context.Context, domain record.Domain, items []Item, shared *store.Tx) (*Result, error) {
	p, err := r.newPass(ctx, domain, shared)
	if err != nil {
		return nil, err
	}
	if shared == nil {
		defer func() { p.tx.Rollback() }()
	}

	items, superseded := collapseEdits(items)
	p.res.SkippedDuplicate += superseded

	var deferred []Item
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return p.res, err
		}
		wait, err := p.process(ctx, item, false)
		if err != nil {
			return p.res, err
		}
		if wait {
			deferred = append(deferred, item)
		}
	}

	// One bounded retry for records whose references arrived later in the
	// sequence. Anything still unresolved is a genuine orphan.
	for _, item := range deferred {
		if err := ctx.Err(); err != nil {
			return p.res, err
		}
		if _, err := p.process(ctx, item, true); err != nil {
			return p.res, err
		}
	}

	if err := p.finish(); err != nil {
		return p.res, err
	}
	r.log.Info("reconciled domain",
		"domain", domain.String(),
		"imported", p.res.Imported,
		"corrected", p.res.Corrected,
		"duplicate", p.res.SkippedDuplicate,
		"invalid", p.res.SkippedInvalid,
		"failed", p.res.Failed,
		"dry_run", r.DryRun)
	return p.res, nil
}

// collapseEdits reduces edit history to its outcome: when several valid
// blocks share a natural key, only the last block is reconciled and the
// earlier ones count as superseded duplicates. Without this, a rerun over an
// unchanged archive with edit history would flip the row back and forth and
// report phantom corrections. Parse failures and invalid payloads keep their
// place so they are still classified individually.
func collapseEdits(items []Item) ([]Item, int) {
	kept := items[:0:0]
	seen := make(map[string]int)
	superseded := 0
	for _, item := range items {
		if item.Err != nil || item.Rec.Validate() != nil {
			kept = append(kept, item)
			continue
		}
		key := item.Rec.NaturalKey()
		if i, ok := seen[key]; ok {
			kept[i] = item
			superseded++
			continue
		}
		seen[key] = len(kept)
		kept = append(kept, item)
	}
	return kept, superseded
}

// pass is the mutable state of one domain reconciliation.
type pass struct {
	r      *Reconciler
	domain record.Domain
	res    *Result
	tx     *store.Tx
	shared bool
	wrote  int

	// existing maps natural key to the row's id and current record view,
	// seeded from the database and extended as the pass inserts.
	existing map[string]store.Entry

	// Cross-reference id caches, loaded only for domains that need them.
	users   map[string]int64
	prayers map[string]int64
}

func (r *Reconciler) newPass(ctx context.Context, domain record.Domain, shared *store.Tx) (*pass, error) {
	entries, err := r.store.ReadEntries(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", domain, err)
	}
	existing := make(map[string]store.Entry, len(entries))
	for _, e := range entries {
		existing[e.Key] = e
	}

	p := &pass{
		r:        r,
		domain:   domain,
		res:      &Result{Domain: domain},
		existing: existing,
	}

	switch domain {
	case record.DomainRole, record.DomainPrayer, record.DomainPrayerMark:
		if p.users, err = r.store.KeyIDMap(ctx, record.DomainUser); err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", domain, err)
		}
	}
	switch domain {
	case record.DomainPrayerMark, record.DomainPrayerAttribute:
		if p.prayers, err = r.store.KeyIDMap(ctx, record.DomainPrayer); err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", domain, err)
		}
	}

	if shared != nil {
		p.tx, p.shared = shared, true
	} else if p.tx, err = r.store.Begin(ctx); err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", domain, err)
	}
	return p, nil
}

// process imports one block. It reports wait=true when the record references
// a row that does not exist yet and final is false; a non-nil error aborts
// the whole pass.
func (p *pass) process(ctx context.Context, item Item, final bool) (wait bool, err error) {
	if item.Err != nil {
		p.res.SkippedInvalid++
		p.res.Errors = append(p.res.Errors, RecordError{Loc: item.Loc, Code: CodeParseFailed, Err: item.Err})
		return false, nil
	}
	rec := item.Rec
	if err := rec.Validate(); err != nil {
		p.res.SkippedInvalid++
		p.res.Errors = append(p.res.Errors, RecordError{Key: rec.NaturalKey(), Loc: item.Loc, Code: CodePayloadInvalid, Err: err})
		return false, nil
	}
	key := rec.NaturalKey()

	userID, prayerID, err := p.resolveRefs(ctx, rec)
	if err != nil {
		if !final {
			return true, nil
		}
		p.res.Failed++
		p.res.Errors = append(p.res.Errors, RecordError{Key: key, Loc: item.Loc, Code: CodeReferenceUnresolved, Err: err})
		return false, nil
	}

	if e, ok := p.existing[key]; ok {
		diffs := consistency.Diff(rec, e.Rec)
		if len(diffs) == 0 {
			p.res.SkippedDuplicate++
			return false, nil
		}
		// The archive wins: correct the drifted row and record what changed.
		if err := p.writeRow(ctx, rec, item.Loc, e.ID, userID, prayerID, true); err != nil {
			p.res.Failed++
			p.res.Errors = append(p.res.Errors, RecordError{Key: key, Loc: item.Loc, Code: CodeDatabaseWriteFailed, Err: err})
			return false, nil
		}
		p.res.Corrected++
		p.res.Findings = append(p.res.Findings, diffs...)
		p.existing[key] = store.Entry{ID: e.ID, Key: key, Loc: item.Loc, Rec: rec}
		return false, p.bump(ctx)
	}

	id, inserted, err := p.insertRow(ctx, rec, item.Loc, userID, prayerID)
	if err != nil {
		p.res.Failed++
		p.res.Errors = append(p.res.Errors, RecordError{Key: key, Loc: item.Loc, Code: CodeDatabaseWriteFailed, Err: err})
		return false, nil
	}
	if !inserted {
		// Row landed outside our view of the table; treat as duplicate.
		p.r.log.Warn("insert conflicted with unseen row", "domain", p.domain.String(), "key", key)
		p.res.SkippedDuplicate++
		return false, nil
	}
	p.res.Imported++
	p.existing[key] = store.Entry{ID: id, Key: key, Loc: item.Loc, Rec: rec}
	if p.domain == record.DomainUser && p.users != nil {
		p.users[key] = id
	}
	if p.domain == record.DomainPrayer && p.prayers != nil {
		p.prayers[key] = id
	}
	return false, p.bump(ctx)
}

// bump counts a write and rotates the transaction at the batch boundary.
func (p *pass) bump(ctx context.Context) error {
	p.wrote++
	if p.shared || p.r.DryRun || p.wrote%p.r.batch != 0 {
		return nil
	}
	if err := p.tx.Commit(); err != nil {
		return fmt.Errorf("reconcile %s: %w", p.domain, err)
	}
	tx, err := p.r.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", p.domain, err)
	}
	p.tx = tx
	return nil
}

func (p *pass) finish() error {
	if p.shared {
		// Lifecycle owned by the caller.
		return nil
	}
	if p.r.DryRun {
		return p.tx.Rollback()
	}
	if err := p.tx.Commit(); err != nil {
		return fmt.Errorf("reconcile %s: %w", p.domain, err)
	}
	return nil
}

// unresolvedRef reports a cross-reference naming a row that does not exist.
type unresolvedRef struct {
	domain record.Domain
	key    string
}

func (e *unresolvedRef) Error() string {
	return fmt.Sprintf("no %s with key %q", e.domain, e.key)
}

func (p *pass) resolveRefs(ctx context.Context, rec *record.Record) (userID, prayerID int64, err error) {
	switch rec.Domain {
	case record.DomainRole:
		userID, err = p.lookupRef(ctx, record.DomainUser, p.users, rec.Role.Username)
	case record.DomainPrayer:
		userID, err = p.lookupRef(ctx, record.DomainUser, p.users, rec.Prayer.Author)
	case record.DomainPrayerMark:
		if userID, err = p.lookupRef(ctx, record.DomainUser, p.users, rec.Mark.Username); err != nil {
			return 0, 0, err
		}
		prayerID, err = p.lookupRef(ctx, record.DomainPrayer, p.prayers, rec.Mark.PrayerID)
	case record.DomainPrayerAttribute:
		prayerID, err = p.lookupRef(ctx, record.DomainPrayer, p.prayers, rec.Attribute.PrayerID)
	}
	return userID, prayerID, err
}

func (p *pass) lookupRef(ctx context.Context, domain record.Domain, cache map[string]int64, key string) (int64, error) {
	if id, ok := cache[key]; ok {
		return id, nil
	}
	// The cache is a snapshot from pass start; check the batch for rows
	// committed or inserted since.
	id, ok, err := p.tx.LookupID(ctx, domain, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &unresolvedRef{domain: domain, key: key}
	}
	cache[key] = id
	return id, nil
}

func (p *pass) insertRow(ctx context.Context, rec *record.Record, loc archive.Location, userID, prayerID int64) (int64, bool, error) {
	return p.write(ctx, rec, loc, 0, userID, prayerID, false)
}

func (p *pass) writeRow(ctx context.Context, rec *record.Record, loc archive.Location, id, userID, prayerID int64, update bool) error {
	_, _, err := p.write(ctx, rec, loc, id, userID, prayerID, update)
	return err
}

func (p *pass) write(ctx context.Context, rec *record.Record, loc archive.Location, id, userID, prayerID int64, update bool) (int64, bool, error) {
	key := rec.NaturalKey()
	switch rec.Domain {
	case record.DomainUser:
		row := &store.UserRow{
			ID: id, NaturalKey: key,
			Username:     rec.User.Username,
			DisplayName:  rec.User.DisplayName,
			Email:        rec.User.Email,
			PasswordHash: rec.User.PasswordHash,
			Admin:        rec.User.Admin,
			Created:      rec.User.Created,
			Loc:          loc,
		}
		if update {
			return 0, false, p.tx.UpdateUser(ctx, row)
		}
		return p.tx.InsertUser(ctx, row)
	case record.DomainRole:
		row := &store.RoleRow{
			ID: id, NaturalKey: key,
			UserID:    userID,
			RoleName:  rec.Role.Role,
			GrantedBy: rec.Role.GrantedBy,
			GrantedAt: rec.Role.GrantedAt,
			Loc:       loc,
		}
		if update {
			return 0, false, p.tx.UpdateRole(ctx, row)
		}
		return p.tx.InsertRole(ctx, row)
	case record.DomainPrayer:
		row := &store.PrayerRow{
			ID: id, NaturalKey: key,
			AuthorID:    userID,
			Text:        rec.Prayer.Text,
			Category:    rec.Prayer.Category,
			SafetyScore: rec.Prayer.SafetyScore,
			Flags:       rec.Prayer.Flags,
			Created:     rec.Prayer.Created,
			Loc:         loc,
		}
		if update {
			return 0, false, p.tx.UpdatePrayer(ctx, row)
		}
		return p.tx.InsertPrayer(ctx, row)
	case record.DomainPrayerMark:
		row := &store.MarkRow{
			ID: id, NaturalKey: key,
			PrayerID: prayerID,
			UserID:   userID,
			MarkedAt: rec.Mark.MarkedAt,
			Loc:      loc,
		}
		if update {
			return 0, false, p.tx.UpdateMark(ctx, row)
		}
		return p.tx.InsertMark(ctx, row)
	case record.DomainPrayerAttribute:
		row := &store.AttributeRow{
			ID: id, NaturalKey: key,
			PrayerID: prayerID,
			Name:     rec.Attribute.Name,
			Value:    rec.Attribute.Value,
			SetBy:    rec.Attribute.SetBy,
			SetAt:    rec.Attribute.SetAt,
			Loc:      loc,
		}
		if update {
			return 0, false, p.tx.UpdateAttribute(ctx, row)
		}
		return p.tx.InsertAttribute(ctx, row)
	case record.DomainActivity:
		row := &store.ActivityRow{
			ID: id, NaturalKey: key,
			At:     rec.Activity.At,
			Actor:  rec.Activity.Actor,
			Action: rec.Activity.Action,
			Target: rec.Activity.Target,
			Loc:    loc,
		}
		if update {
			return 0, false, p.tx.UpdateActivity(ctx, row)
		}
		return p.tx.InsertActivity(ctx, row)
	case record.DomainAuthEvent:
		row := &store.AuthEventRow{
			ID: id, NaturalKey: key,
			At:       rec.Auth.At,
			Username: rec.Auth.Username,
			Kind:     rec.Auth.Kind,
			Note:     rec.Auth.Note,
			Loc:      loc,
		}
		if update {
			return 0, false, p.tx.UpdateAuthEvent(ctx, row)
		}
		return p.tx.InsertAuthEvent(ctx, row)
	default:
		return 0, false, fmt.Errorf("unknown domain %d", int(rec.Domain))
	}
}
