// Package recovery rebuilds the database index from the archives alone: wipe
// every derived row, reimport each domain in dependency order, then validate
// the result against the archive blocks it was built from.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gulkily/thywill-sub001/internal/consistency"
	"github.com/gulkily/thywill-sub001/internal/logger"
	"github.com/gulkily/thywill-sub001/internal/reconcile"
	"github.com/gulkily/thywill-sub001/internal/record"
	"github.com/gulkily/thywill-sub001/internal/store"
)

// State names a completed stage of a recovery run. A run advances strictly
// forward through the sequence; Failed is terminal.
type State string

const (
	StateUninitialized    State = "uninitialized"
	StateUsersImported    State = "users_imported"
	StateRolesImported    State = "roles_imported"
	StatePrayersImported  State = "prayers_imported"
	StateActivityImported State = "activity_imported"
	StateAuthImported     State = "auth_imported"
	StateValidated        State = "validated"
	StateComplete         State = "complete"
	StateFailed           State = "failed"
)

// Run is the record of one recovery: its token, how far it got, and what
// each stage produced. A failed run keeps the partial results accumulated
// before the failure.
type Run struct {
	Token     string                `json:"token"`
	StartedAt time.Time             `json:"started_at"`
	Duration  time.Duration         `json:"duration"`
	State     State                 `json:"state"`
	History   []State               `json:"history"`
	Results   []*reconcile.Result   `json:"results,omitempty"`
	Findings  []consistency.Finding `json:"findings,omitempty"`
	Err       string                `json:"error,omitempty"`
}

// Importer runs one domain's reconciliation pass.
type Importer interface {
	Reconcile(ctx context.Context, domain record.Domain) (*reconcile.Result, error)
}

// Auditor checks the rebuilt index against the archive blocks it was
// derived from.
type Auditor interface {
	ValidateAll(ctx context.Context) ([]consistency.Finding, error)
}

type Orchestrator struct {
	store      *store.Store
	reconciler Importer
	validator  Auditor
	log        *logger.Logger
}

func New(st *store.Store, rec Importer, val Auditor, log *logger.Logger) *Orchestrator {
	return &Orchestrator{store: st, reconciler: rec, validator: val, log: log}
}

// stages maps each state transition to the domains it imports. Prayers,
// their attributes, and their marks move together: they live in the same
// archive files and the latter two resolve against the former.
var stages = []struct {
	next    State
	domains []record.Domain
}{
	{StateUsersImported, []record.Domain{record.DomainUser}},
	{StateRolesImported, []record.Domain{record.DomainRole}},
	{StatePrayersImported, []record.Domain{record.DomainPrayer, record.DomainPrayerAttribute, record.DomainPrayerMark}},
	{StateActivityImported, []record.Domain{record.DomainActivity}},
	{StateAuthImported, []record.Domain{record.DomainAuthEvent}},
}

// Recover executes a full recovery. Cancellation is honored only between
// stage transitions, so every stage that starts runs to completion and the
// returned run never reflects a half-imported domain.
func (o *Orchestrator) Recover(ctx context.Context) (*Run, error) {
	run := &Run{
		Token:     uuid.Must(uuid.NewV7()).String(),
		StartedAt: time.Now().UTC(),
		State:     StateUninitialized,
		History:   []State{StateUninitialized},
	}
	defer func() { run.Duration = time.Since(run.StartedAt) }()
	o.log.Info("recovery started", "token", run.Token)

	if err := o.store.Wipe(ctx); err != nil {
		return o.fail(run, fmt.Errorf("wipe: %w", err))
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return o.fail(run, err)
		}
		for _, domain := range stage.domains {
			res, err := o.reconciler.Reconcile(ctx, domain)
			if res != nil {
				run.Results = append(run.Results, res)
			}
			if err != nil {
				return o.fail(run, fmt.Errorf("import %s: %w", domain, err))
			}
			// All-or-nothing at domain granularity: a pass with failed
			// records aborts the run, keeping the partial results.
			if res.Failed > 0 {
				return o.fail(run, fmt.Errorf("import %s: %d record(s) failed", domain, res.Failed))
			}
		}
		o.advance(run, stage.next)
	}

	if err := ctx.Err(); err != nil {
		return o.fail(run, err)
	}
	findings, err := o.validator.ValidateAll(ctx)
	run.Findings = findings
	if err != nil {
		return o.fail(run, fmt.Errorf("validate: %w", err))
	}
	o.advance(run, StateValidated)

	// Findings mean the rebuilt index disagrees with the blocks it was
	// built from. The run halts here for operator decision rather than
	// claiming completion over a possibly corrupt archive.
	if len(run.Findings) > 0 {
		o.log.Warn("recovery halted with findings",
			"token", run.Token,
			"findings", len(run.Findings))
		return run, nil
	}

	o.advance(run, StateComplete)
	o.log.Info("recovery complete",
		"token", run.Token,
		"stages", len(run.History))
	return run, nil
}

func (o *Orchestrator) advance(run *Run, next State) {
	run.State = next
	run.History = append(run.History, next)
	o.log.Debug("recovery stage complete", "token", run.Token, "state", string(next))
}

func (o *Orchestrator) fail(run *Run, err error) (*Run, error) {
	run.State = StateFailed
	run.History = append(run.History, StateFailed)
	run.Err = err.Error()
	o.log.Error("recovery failed", "token", run.Token, "error", err)
	return run, err
}
