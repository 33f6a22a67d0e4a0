// Package export writes a complete archive tree from the database. It is the
// bulk counterpart of healing: healing patches individual gaps in the live
// archive, export produces a fresh snapshot under any root, leaving the
// database untouched.
package export

import (
	"context"
	"fmt"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/config"
	"github.com/gulkily/thywill-sub001/internal/logger"
	"github.com/gulkily/thywill-sub001/internal/record"
	"github.com/gulkily/thywill-sub001/internal/store"
)

// Result accounts for one domain's export.
type Result struct {
	Domain   record.Domain `json:"domain"`
	Exported int           `json:"exported"`
	Failed   int           `json:"failed"`
	Errors   []string      `json:"errors,omitempty"`
}

type Exporter struct {
	store *store.Store
	cfg   config.Config
	log   *logger.Logger
}

func New(st *store.Store, cfg config.Config, log *logger.Logger) *Exporter {
	return &Exporter{store: st, cfg: cfg, log: log}
}

// Export writes every row of every domain as archive blocks under root, in
// dependency order so the snapshot imports cleanly. Exporting into a root
// that already holds blocks for the same records appends duplicates; export
// into a fresh directory.
func (e *Exporter) Export(ctx context.Context, root string) ([]*Result, error) {
	cfg := e.cfg
	cfg.ArchiveRoot = root
	writer := archive.NewWriter(cfg)

	var results []*Result
	for _, domain := range record.Domains {
		res, err := e.exportDomain(ctx, writer, domain)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (e *Exporter) exportDomain(ctx context.Context, writer *archive.Writer, domain record.Domain) (*Result, error) {
	entries, err := e.store.ReadEntries(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", domain, err)
	}

	res := &Result{Domain: domain}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := writer.Append(entry.Rec); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", entry.Key, err))
			continue
		}
		res.Exported++
	}

	e.log.Info("exported domain",
		"domain", domain.String(),
		"exported", res.Exported,
		"failed", res.Failed)
	return res, nil
}
