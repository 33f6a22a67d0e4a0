// Package heal restores the archive side of the invariant: every database
// row must be anchored to a readable archive block. Rows with no recorded
// location, or whose location no longer points at their block, get a fresh
// block synthesized from their columns and appended to the archive.
package heal

import (
	"context"
	"fmt"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/config"
	"github.com/gulkily/thywill-sub001/internal/logger"
	"github.com/gulkily/thywill-sub001/internal/record"
	"github.com/gulkily/thywill-sub001/internal/store"
)

// Result accounts for one domain's healing pass.
type Result struct {
	Domain record.Domain `json:"domain"`
	// Healed rows had a block appended and their location updated.
	Healed int `json:"healed"`
	// Anchored rows already pointed at a readable block and were left alone.
	Anchored int `json:"anchored"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

type Healer struct {
	store   *store.Store
	writer  *archive.Writer
	scanner *archive.Scanner
	batch   int
	log     *logger.Logger
}

func New(st *store.Store, w *archive.Writer, sc *archive.Scanner, cfg config.Config, log *logger.Logger) *Healer {
	return &Healer{store: st, writer: w, scanner: sc, batch: cfg.BatchSize, log: log}
}

// Heal walks one domain's rows and re-anchors every row whose archive block
// is missing or unreadable. The archive append happens before the location
// update, so a crash between the two leaves a duplicate block, never a row
// pointing at nothing; a later import recognizes the duplicate and skips it.
func (h *Healer) Heal(ctx context.Context, domain record.Domain) (*Result, error) {
	entries, err := h.store.ReadEntries(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("heal %s: %w", domain, err)
	}

	res := &Result{Domain: domain}
	tx, err := h.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("heal %s: %w", domain, err)
	}
	defer func() { tx.Rollback() }()

	pending := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if h.anchored(e) {
			res.Anchored++
			continue
		}
		loc, err := h.writer.Append(e.Rec)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.Key, err))
			continue
		}
		if err := tx.SetLocation(ctx, domain, e.ID, loc); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", e.Key, err))
			continue
		}
		res.Healed++
		pending++
		if pending >= h.batch {
			if err := tx.Commit(); err != nil {
				return res, fmt.Errorf("heal %s: %w", domain, err)
			}
			if tx, err = h.store.Begin(ctx); err != nil {
				return res, fmt.Errorf("heal %s: %w", domain, err)
			}
			pending = 0
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("heal %s: %w", domain, err)
	}
	h.log.Info("healed domain",
		"domain", domain.String(),
		"healed", res.Healed,
		"anchored", res.Anchored,
		"failed", res.Failed)
	return res, nil
}

// HealAll heals every domain in dependency order.
func (h *Healer) HealAll(ctx context.Context) ([]*Result, error) {
	var results []*Result
	for _, domain := range record.Domains {
		res, err := h.Heal(ctx, domain)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// anchored reports whether the row's location still points at its block.
func (h *Healer) anchored(e store.Entry) bool {
	if e.Loc.IsZero() {
		return false
	}
	rec, err := h.scanner.ReadAt(e.Loc)
	if err != nil {
		return false
	}
	return rec.NaturalKey() == e.Key
}
