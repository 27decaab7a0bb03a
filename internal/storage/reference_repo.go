package storage

import (
	"context"
	"database/sql"

	"journal-sync/internal/errs"
)

// ReferenceRepo provides methods for the references of an entry.
type ReferenceRepo struct {
	db DBTX
}

// NewReferenceRepo creates a new ReferenceRepo.
func NewReferenceRepo(db DBTX) *ReferenceRepo {
	return &ReferenceRepo{db: db}
}

// Create appends ref to its entry.
func (r *ReferenceRepo) Create(ctx context.Context, ref *Reference, position int) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entry_references (entry_id, source_id, content, description, mode, speaker, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ref.EntryID, nullInt(ref.SourceID), ref.Content, ref.Description, ref.Mode, ref.Speaker, position)
	if err != nil {
		return errs.Database("create", "reference", ref.EntryID, err)
	}
	ref.ID, err = res.LastInsertId()
	return err
}

// Exists reports whether an identical reference is already attached to the
// entry.
func (r *ReferenceRepo) Exists(ctx context.Context, ref *Reference) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM entry_references
		 WHERE entry_id = ? AND source_id IS ? AND content = ? AND description = ? AND mode = ? AND speaker = ?`,
		ref.EntryID, nullInt(ref.SourceID), ref.Content, ref.Description, ref.Mode, ref.Speaker).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.Database("get", "reference", ref.EntryID, err)
	}
	return true, nil
}

// ListByEntry returns the references of entryID in document order.
func (r *ReferenceRepo) ListByEntry(ctx context.Context, entryID int64) ([]Reference, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entry_id, source_id, content, description, mode, speaker
		 FROM entry_references WHERE entry_id = ? ORDER BY position, id`, entryID)
	if err != nil {
		return nil, errs.Database("list", "reference", entryID, err)
	}
	defer rows.Close()

	var refs []Reference
	for rows.Next() {
		var (
			ref Reference
			src sql.NullInt64
		)
		if err := rows.Scan(&ref.ID, &ref.EntryID, &src, &ref.Content, &ref.Description, &ref.Mode, &ref.Speaker); err != nil {
			return nil, errs.Database("list", "reference", entryID, err)
		}
		if src.Valid {
			ref.SourceID = &src.Int64
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("list", "reference", entryID, err)
	}
	return refs, nil
}

// Count returns how many references entryID has.
func (r *ReferenceRepo) Count(ctx context.Context, entryID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entry_references WHERE entry_id = ?", entryID).Scan(&n); err != nil {
		return 0, errs.Database("count", "reference", entryID, err)
	}
	return n, nil
}

// DeleteByEntry removes every reference of entryID.
func (r *ReferenceRepo) DeleteByEntry(ctx context.Context, entryID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM entry_references WHERE entry_id = ?", entryID); err != nil {
		return errs.Database("delete", "reference", entryID, err)
	}
	return nil
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
