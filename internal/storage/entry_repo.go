package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"journal-sync/internal/errs"
)

// EntryRepo provides methods for entry operations.
type EntryRepo struct {
	db DBTX
}

// NewEntryRepo creates a new EntryRepo.
func NewEntryRepo(db DBTX) *EntryRepo {
	return &EntryRepo{db: db}
}

const entryColumns = `id, date, file_path, file_hash, word_count, reading_time, rating,
	epigraph, epigraph_attribution, notes, exclude_entry_date, created_at, updated_at,
	deleted_at, deleted_by, deletion_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e       Entry
		rating  sql.NullFloat64
		created sql.NullTime
		updated sql.NullTime
		del     deletionColumns
	)
	err := row.Scan(&e.ID, &e.Date, &e.FilePath, &e.FileHash, &e.WordCount, &e.ReadingTime, &rating,
		&e.Epigraph, &e.EpigraphAttribution, &e.Notes, &e.ExcludeEntryDate, &created, &updated,
		&del.at, &del.by, &del.reason)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		e.Rating = &rating.Float64
	}
	e.CreatedAt = created.Time
	e.UpdatedAt = updated.Time
	e.Deletion = del.value()
	return &e, nil
}

func activeClause(includeDeleted bool) string {
	if includeDeleted {
		return ""
	}
	return " AND deleted_at IS NULL"
}

func (r *EntryRepo) getWhere(ctx context.Context, key any, where string, includeDeleted bool) (*Entry, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE "+where+activeClause(includeDeleted), key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("entry", key)
	}
	if err != nil {
		return nil, errs.Database("get", "entry", key, fmt.Errorf("failed to query entry: %w", err))
	}
	return e, nil
}

// Get returns the entry with id. Soft-deleted entries are returned only when
// includeDeleted is set.
func (r *EntryRepo) Get(ctx context.Context, id int64, includeDeleted bool) (*Entry, error) {
	return r.getWhere(ctx, id, "id = ?", includeDeleted)
}

// GetByDate returns the entry for a YYYY-MM-DD date.
func (r *EntryRepo) GetByDate(ctx context.Context, date string, includeDeleted bool) (*Entry, error) {
	return r.getWhere(ctx, date, "date = ?", includeDeleted)
}

// GetByPath returns the entry mirrored from a file path.
func (r *EntryRepo) GetByPath(ctx context.Context, path string, includeDeleted bool) (*Entry, error) {
	return r.getWhere(ctx, path, "file_path = ?", includeDeleted)
}

// List returns entries ordered by date.
func (r *EntryRepo) List(ctx context.Context, includeDeleted bool) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE 1 = 1"+activeClause(includeDeleted)+" ORDER BY date")
	if err != nil {
		return nil, errs.Database("list", "entry", nil, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errs.Database("list", "entry", nil, err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("list", "entry", nil, err)
	}
	return entries, nil
}

// Create inserts e and sets its ID and timestamps. A duplicate date or file
// path is a DatabaseError wrapping errs.ErrConflict.
func (r *EntryRepo) Create(ctx context.Context, e *Entry) error {
	now := timestamp(time.Now())
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (date, file_path, file_hash, word_count, reading_time, rating,
			epigraph, epigraph_attribution, notes, exclude_entry_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Date, e.FilePath, e.FileHash, e.WordCount, e.ReadingTime, nullFloat(e.Rating),
		e.Epigraph, e.EpigraphAttribution, e.Notes, e.ExcludeEntryDate, now, now,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return errs.Database("create", "entry", e.FilePath, fmt.Errorf("%w: %v", errs.ErrConflict, err))
		}
		return errs.Database("create", "entry", e.FilePath, err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return errs.Database("create", "entry", e.FilePath, err)
	}
	e.CreatedAt, e.UpdatedAt = now, now
	return nil
}

// Update writes the scalar columns of e.
func (r *EntryRepo) Update(ctx context.Context, e *Entry) error {
	now := timestamp(time.Now())
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET date = ?, file_path = ?, file_hash = ?, word_count = ?, reading_time = ?,
			rating = ?, epigraph = ?, epigraph_attribution = ?, notes = ?, exclude_entry_date = ?,
			updated_at = ?
		 WHERE id = ?`,
		e.Date, e.FilePath, e.FileHash, e.WordCount, e.ReadingTime, nullFloat(e.Rating),
		e.Epigraph, e.EpigraphAttribution, e.Notes, e.ExcludeEntryDate, now, e.ID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return errs.Database("update", "entry", e.ID, fmt.Errorf("%w: %v", errs.ErrConflict, err))
		}
		return errs.Database("update", "entry", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("entry", e.ID)
	}
	e.UpdatedAt = now
	return nil
}

// HardDelete removes the entry and, through cascades, everything it owns.
func (r *EntryRepo) HardDelete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return errs.Database("delete", "entry", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("entry", id)
	}
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
