package entrysync

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"journal-sync/internal/contextutil"
	"journal-sync/internal/document"
	"journal-sync/internal/errs"
	"journal-sync/internal/reconcile"
	"journal-sync/internal/storage"
	"journal-sync/internal/vault"
)

// RemovedReason is recorded on entries soft-deleted because their file
// disappeared from the journal.
const RemovedReason = "source document removed"

// Pipeline mirrors a journal directory into the store.
type Pipeline struct {
	manager *Manager
	journal *vault.Journal
	workers int
}

// NewPipeline creates a Pipeline. workers bounds parallel parsing.
func NewPipeline(manager *Manager, journal *vault.Journal, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{manager: manager, journal: journal, workers: workers}
}

// scanned is one file after the parallel read and parse stage.
type scanned struct {
	file  vault.ScannedFile
	hash  string
	doc   *document.Document
	entry *storage.Entry
	err   error
}

func (s *scanned) unchanged() bool {
	return s.entry != nil && s.entry.FileHash == s.hash
}

// SyncAll scans the journal, ingests new and changed documents, restores
// entries whose file reappeared and soft-deletes entries whose file vanished.
// Per-file failures are counted and logged and do not stop the run; they are
// also reported through SyncStats.Err.
func (p *Pipeline) SyncAll(ctx context.Context) (*SyncStats, error) {
	stats := &SyncStats{RunID: uuid.NewString()}
	ctx = contextutil.WithAttrs(ctx, "run_id", stats.RunID)
	logger := contextutil.LoggerFromContext(ctx)

	files, err := p.journal.Scan(ctx)
	if err != nil {
		return nil, errs.WrapError(err, "failed to scan journal")
	}

	entries, err := p.manager.List(ctx, true)
	if err != nil {
		return nil, errs.WrapError(err, "failed to list entries")
	}
	byPath := make(map[string]*storage.Entry, len(entries))
	for i := range entries {
		byPath[entries[i].FilePath] = &entries[i]
	}

	logger.InfoContext(ctx, "starting sync", "journal", p.journal.Root(), "total_files", len(files))

	results, err := p.parseAll(ctx, files, byPath)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(results))
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++
		id, err := p.ingest(ctx, r, stats)
		if r.entry != nil {
			seen[r.entry.ID] = true
		}
		if id != 0 {
			seen[id] = true
		}
		if err != nil {
			stats.Failed++
			logger.ErrorContext(ctx, "failed to sync document", "rel_path", r.file.RelPath, "error", err)
		}
	}

	for _, e := range entries {
		if seen[e.ID] || e.IsDeleted() || !p.journal.Contains(e.FilePath) {
			continue
		}
		if err := p.manager.Delete(ctx, e.ID, "", RemovedReason, false); err != nil {
			stats.Failed++
			logger.ErrorContext(ctx, "failed to delete vanished entry", "entry_id", e.ID, "file_path", e.FilePath, "error", err)
			continue
		}
		stats.Deleted++
	}

	logger.InfoContext(ctx, "sync completed", stats.LogAttrs()...)
	return stats, nil
}

// parseAll reads, hashes and parses files in parallel. Unchanged files are
// hashed but not parsed. Results keep the scan order.
func (p *Pipeline) parseAll(ctx context.Context, files []vault.ScannedFile, byPath map[string]*storage.Entry) ([]*scanned, error) {
	results := make([]*scanned, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, f := range files {
		r := &scanned{file: f, entry: byPath[f.AbsPath]}
		results[i] = r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(f.AbsPath)
			if err != nil {
				r.err = fmt.Errorf("failed to read file %s: %w", f.AbsPath, err)
				return nil
			}
			r.hash = HashBytes(data)
			if r.unchanged() {
				return nil
			}
			r.doc, r.err = document.ParseNamed(f.AbsPath, data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ingest applies one scanned file and returns the id of its entry.
func (p *Pipeline) ingest(ctx context.Context, r *scanned, stats *SyncStats) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}

	e := r.entry
	if e == nil && r.doc != nil {
		// A file moved or renamed keeps the entry of its date.
		found, err := p.manager.GetByDate(ctx, r.doc.DateString(), true)
		switch {
		case err == nil:
			if _, statErr := os.Stat(found.FilePath); statErr == nil && found.FilePath != r.file.AbsPath {
				return 0, errs.Invalid("date", "%s is already recorded from %s", r.doc.DateString(), found.FilePath)
			}
			e = found
		case !errors.Is(err, errs.ErrNotFound):
			return 0, err
		}
	}

	if r.unchanged() {
		if e.IsDeleted() {
			if _, err := p.manager.Restore(ctx, e.ID); err != nil {
				return e.ID, err
			}
			stats.Restored++
			return e.ID, nil
		}
		stats.Unchanged++
		return e.ID, nil
	}

	in := Input{Document: r.doc, FilePath: r.file.AbsPath, FileHash: r.hash}
	if e != nil && e.IsDeleted() {
		res, err := p.manager.Revive(ctx, e.ID, in)
		if err != nil {
			return e.ID, err
		}
		stats.Restored++
		stats.Updated++
		stats.Conflicts += len(res.Conflicts)
		return res.Entry.ID, nil
	}
	if e == nil {
		res, err := p.manager.Create(ctx, in)
		if err != nil {
			return 0, err
		}
		stats.Created++
		stats.Conflicts += len(res.Conflicts)
		return res.Entry.ID, nil
	}

	res, err := p.manager.Update(ctx, e.ID, in, reconcile.Overwrite, Removals{})
	if err != nil {
		return e.ID, err
	}
	stats.Updated++
	stats.Conflicts += len(res.Conflicts)
	return res.Entry.ID, nil
}
