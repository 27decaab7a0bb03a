// Package entrysync keeps the relational store in step with journal
// documents: it creates, updates, deletes and restores entries, exports them
// back to documents, and mirrors a whole journal directory.
package entrysync

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	"journal-sync/internal/contextutil"
	"journal-sync/internal/dedup"
	"journal-sync/internal/document"
	"journal-sync/internal/errs"
	"journal-sync/internal/reconcile"
	"journal-sync/internal/retry"
	"journal-sync/internal/storage"
)

// Options configures a Manager.
type Options struct {
	// Actor is recorded on soft deletes and tombstones.
	Actor string
	// Source identifies this replica on tombstones.
	Source string
	// TombstoneTTL bounds how long removals block re-adds from other
	// sources. Zero never expires.
	TombstoneTTL   time.Duration
	Retry          retry.Policy
	WordsPerMinute int
	Now            func() time.Time
}

// Input is a parsed document together with the file it came from.
type Input struct {
	Document *document.Document
	FilePath string
	// FileHash is the hash of the file bytes. When empty the hash of the
	// serialized document is used.
	FileHash string
}

// Removals are the explicit remove lists of an incremental update.
type Removals struct {
	People    []document.PersonSpec `json:"people,omitempty"`
	Cities    []string              `json:"cities,omitempty"`
	Locations map[string][]string   `json:"locations,omitempty"`
	Events    []string              `json:"events,omitempty"`
	Tags      []string              `json:"tags,omitempty"`
	Arcs      []string              `json:"arcs,omitempty"`
}

// Result is the outcome of a create or update.
type Result struct {
	Entry     *storage.Entry       `json:"entry"`
	Created   bool                 `json:"created"`
	Conflicts []reconcile.Conflict `json:"conflicts,omitempty"`
}

// Manager is the entry synchronization orchestrator.
type Manager struct {
	db       *sql.DB
	opts     Options
	rec      *reconcile.Reconciler
	versions *dedup.Engine
}

// NewManager creates a Manager over db.
func NewManager(db *sql.DB, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WordsPerMinute <= 0 {
		opts.WordsPerMinute = document.DefaultWordsPerMinute
	}
	rec := reconcile.New(opts.Actor, opts.Source, opts.TombstoneTTL)
	rec.Now = opts.Now
	return &Manager{
		db:       db,
		opts:     opts,
		rec:      rec,
		versions: &dedup.Engine{Now: opts.Now},
	}
}

// DB returns the underlying database.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Source returns the sync source recorded on tombstones.
func (m *Manager) Source() string {
	return m.opts.Source
}

// write runs fn in its own transaction, retrying the whole transaction while
// the store is busy.
func (m *Manager) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retry.Do(ctx, m.opts.Retry, func(ctx context.Context) error {
		return storage.WithTx(ctx, m.db, fn)
	})
}

func validate(in Input) error {
	if in.Document == nil || in.Document.Date.IsZero() {
		return errs.Invalid("date", "is required")
	}
	if in.FilePath == "" {
		return errs.Invalid("file_path", "is required")
	}
	return nil
}

func (m *Manager) fileHash(in Input) (string, error) {
	if in.FileHash != "" {
		return in.FileHash, nil
	}
	data, err := document.Serialize(in.Document)
	if err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// applyScalars copies the document's scalar fields onto e. Word count and
// reading time fall back to the body statistics.
func (m *Manager) applyScalars(e *storage.Entry, doc *document.Document) {
	meta := &doc.Metadata
	words, minutes := document.BodyStats(doc.Body, m.opts.WordsPerMinute)
	if meta.WordCount != nil {
		words = *meta.WordCount
	}
	if meta.ReadingTime != nil {
		minutes = *meta.ReadingTime
	}
	e.Date = doc.DateString()
	e.WordCount = words
	e.ReadingTime = minutes
	e.Rating = meta.Rating
	e.Epigraph = meta.Epigraph
	e.EpigraphAttribution = meta.EpigraphAttribution
	e.Notes = meta.Notes
	e.ExcludeEntryDate = meta.ExcludeEntryDate
}

// Create ingests a new document. Every collection starts empty, so the
// relationships are applied in overwrite mode. A file path or date that
// already has an entry is a DatabaseError.
func (m *Manager) Create(ctx context.Context, in Input) (*Result, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	hash, err := m.fileHash(in)
	if err != nil {
		return nil, err
	}
	ctx = contextutil.WithAttrs(ctx, "entry_date", in.Document.DateString(), "file_path", in.FilePath)
	logger := contextutil.LoggerFromContext(ctx)

	var res *Result
	err = m.write(ctx, func(tx *sql.Tx) error {
		e := &storage.Entry{FilePath: in.FilePath, FileHash: hash}
		m.applyScalars(e, in.Document)
		if err := storage.NewEntryRepo(tx).Create(ctx, e); err != nil {
			return err
		}
		conflicts, err := m.sync(ctx, tx, e, &in.Document.Metadata, reconcile.Overwrite, Removals{})
		if err != nil {
			return err
		}
		res = &Result{Entry: e, Created: true, Conflicts: conflicts}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to create entry", "error", err)
		return nil, err
	}
	logger.InfoContext(ctx, "created entry", "entry_id", res.Entry.ID, "conflicts", len(res.Conflicts))
	return res, nil
}

// Update re-applies a document to an existing active entry in the given
// mode. Removals only apply in incremental mode.
func (m *Manager) Update(ctx context.Context, id int64, in Input, mode reconcile.Mode, rm Removals) (*Result, error) {
	return m.update(ctx, id, in, mode, rm, false)
}

// Revive restores a soft-deleted entry and overwrites it with in. Both happen
// in one transaction, so a failed update leaves the entry deleted.
func (m *Manager) Revive(ctx context.Context, id int64, in Input) (*Result, error) {
	return m.update(ctx, id, in, reconcile.Overwrite, Removals{}, true)
}

func (m *Manager) update(ctx context.Context, id int64, in Input, mode reconcile.Mode, rm Removals, restore bool) (*Result, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	if _, err := reconcile.ParseMode(string(mode)); err != nil {
		return nil, err
	}
	hash, err := m.fileHash(in)
	if err != nil {
		return nil, err
	}
	ctx = contextutil.WithAttrs(ctx, "entry_id", id, "file_path", in.FilePath, "mode", string(mode))
	logger := contextutil.LoggerFromContext(ctx)

	var res *Result
	err = m.write(ctx, func(tx *sql.Tx) error {
		if restore {
			if err := storage.NewSoftDeleter(tx).Restore(ctx, "entries", id); err != nil {
				return err
			}
		}
		entries := storage.NewEntryRepo(tx)
		e, err := entries.Get(ctx, id, false)
		if err != nil {
			return err
		}
		e.FilePath = in.FilePath
		e.FileHash = hash
		m.applyScalars(e, in.Document)
		if err := entries.Update(ctx, e); err != nil {
			return err
		}
		conflicts, err := m.sync(ctx, tx, e, &in.Document.Metadata, mode, rm)
		if err != nil {
			return err
		}
		res = &Result{Entry: e, Conflicts: conflicts}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to update entry", "error", err)
		return nil, err
	}
	logger.InfoContext(ctx, "updated entry", "entry_date", res.Entry.Date, "restored", restore, "conflicts", len(res.Conflicts))
	return res, nil
}

// Delete soft-deletes the entry, or removes it with everything it owns when
// hard is set.
func (m *Manager) Delete(ctx context.Context, id int64, actor, reason string, hard bool) error {
	if actor == "" {
		actor = m.opts.Actor
	}
	err := m.write(ctx, func(tx *sql.Tx) error {
		if hard {
			return storage.NewEntryRepo(tx).HardDelete(ctx, id)
		}
		return storage.NewSoftDeleter(tx).Delete(ctx, "entries", id, actor, reason, m.opts.Now())
	})
	if err != nil {
		return err
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "deleted entry",
		"entry_id", id, "hard", hard, "actor", actor, "reason", reason)
	return nil
}

// Restore reactivates a soft-deleted entry. Restoring an active entry is a
// DatabaseError.
func (m *Manager) Restore(ctx context.Context, id int64) (*storage.Entry, error) {
	var e *storage.Entry
	err := m.write(ctx, func(tx *sql.Tx) error {
		if err := storage.NewSoftDeleter(tx).Restore(ctx, "entries", id); err != nil {
			return err
		}
		var err error
		e, err = storage.NewEntryRepo(tx).Get(ctx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "restored entry", "entry_id", id, "entry_date", e.Date)
	return e, nil
}

// Get returns an entry by id. Deleted entries are returned only when
// includeDeleted is set.
func (m *Manager) Get(ctx context.Context, id int64, includeDeleted bool) (*storage.Entry, error) {
	return storage.NewEntryRepo(m.db).Get(ctx, id, includeDeleted)
}

// GetByDate returns the entry of a calendar date.
func (m *Manager) GetByDate(ctx context.Context, date string, includeDeleted bool) (*storage.Entry, error) {
	return storage.NewEntryRepo(m.db).GetByDate(ctx, date, includeDeleted)
}

// List returns entries ordered by date.
func (m *Manager) List(ctx context.Context, includeDeleted bool) ([]storage.Entry, error) {
	return storage.NewEntryRepo(m.db).List(ctx, includeDeleted)
}

// PruneTombstones deletes expired association tombstones.
func (m *Manager) PruneTombstones(ctx context.Context) (int64, error) {
	var n int64
	err := m.write(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = storage.NewTombstoneRepo(tx).Prune(ctx, m.opts.Now())
		return err
	})
	return n, err
}

// Export rebuilds the document of entry e from the store.
func (m *Manager) Export(ctx context.Context, e *storage.Entry) (*document.Document, error) {
	return NewExporter(m.db).Document(ctx, e)
}

// Tombstones lists association tombstones, newest first.
func (m *Manager) Tombstones(ctx context.Context, includeExpired bool) ([]storage.Tombstone, error) {
	return storage.NewTombstoneRepo(m.db).List(ctx, m.opts.Now(), includeExpired)
}
