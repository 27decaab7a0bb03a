package storage

import (
	"context"
	"database/sql"
	"time"

	"journal-sync/internal/errs"
)

// TombstoneRepo provides methods for association tombstones.
type TombstoneRepo struct {
	db DBTX
}

// NewTombstoneRepo creates a new TombstoneRepo.
func NewTombstoneRepo(db DBTX) *TombstoneRepo {
	return &TombstoneRepo{db: db}
}

const tombstoneColumns = "id, table_name, left_id, right_id, removed_at, removed_by, sync_source, reason, expires_at"

func scanTombstone(row rowScanner) (*Tombstone, error) {
	var (
		t       Tombstone
		expires sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Table, &t.LeftID, &t.RightID, &t.RemovedAt, &t.RemovedBy,
		&t.SyncSource, &t.Reason, &expires); err != nil {
		return nil, err
	}
	if expires.Valid {
		t.ExpiresAt = &expires.Time
	}
	return &t, nil
}

// Get returns the tombstone of (rel, left, right).
func (r *TombstoneRepo) Get(ctx context.Context, rel Relation, left, right int64) (*Tombstone, error) {
	t, err := scanTombstone(r.db.QueryRowContext(ctx,
		"SELECT "+tombstoneColumns+" FROM association_tombstones WHERE table_name = ? AND left_id = ? AND right_id = ?",
		rel.Table, left, right))
	if isNoRows(err) {
		return nil, errs.NotFound("tombstone", [2]int64{left, right})
	}
	if err != nil {
		return nil, errs.Database("get", "tombstone", rel.Table, err)
	}
	return t, nil
}

// Upsert records the removal, replacing any earlier tombstone of the same
// association.
func (r *TombstoneRepo) Upsert(ctx context.Context, t *Tombstone) error {
	var expires sql.NullTime
	if t.ExpiresAt != nil {
		expires = sql.NullTime{Time: timestamp(*t.ExpiresAt), Valid: true}
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO association_tombstones
			(table_name, left_id, right_id, removed_at, removed_by, sync_source, reason, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (table_name, left_id, right_id) DO UPDATE SET
			removed_at = excluded.removed_at, removed_by = excluded.removed_by,
			sync_source = excluded.sync_source, reason = excluded.reason, expires_at = excluded.expires_at
		 RETURNING id`,
		t.Table, t.LeftID, t.RightID, timestamp(t.RemovedAt), t.RemovedBy, t.SyncSource, t.Reason, expires,
	).Scan(&t.ID)
	if err != nil {
		return errs.Database("upsert", "tombstone", t.Table, err)
	}
	return nil
}

// Delete clears the tombstone of (rel, left, right) if present.
func (r *TombstoneRepo) Delete(ctx context.Context, rel Relation, left, right int64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM association_tombstones WHERE table_name = ? AND left_id = ? AND right_id = ?",
		rel.Table, left, right)
	if err != nil {
		return errs.Database("delete", "tombstone", rel.Table, err)
	}
	return nil
}

// List returns tombstones, newest first. Expired ones are included only when
// includeExpired is set.
func (r *TombstoneRepo) List(ctx context.Context, now time.Time, includeExpired bool) ([]Tombstone, error) {
	query := "SELECT " + tombstoneColumns + " FROM association_tombstones"
	var args []any
	if !includeExpired {
		query += " WHERE expires_at IS NULL OR expires_at > ?"
		args = append(args, timestamp(now))
	}
	rows, err := r.db.QueryContext(ctx, query+" ORDER BY removed_at DESC, id DESC", args...)
	if err != nil {
		return nil, errs.Database("list", "tombstone", nil, err)
	}
	defer rows.Close()

	var out []Tombstone
	for rows.Next() {
		t, err := scanTombstone(rows)
		if err != nil {
			return nil, errs.Database("list", "tombstone", nil, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("list", "tombstone", nil, err)
	}
	return out, nil
}

// Prune deletes tombstones that expired at or before now and returns how
// many were removed.
func (r *TombstoneRepo) Prune(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM association_tombstones WHERE expires_at IS NOT NULL AND expires_at <= ?", timestamp(now))
	if err != nil {
		return 0, errs.Database("prune", "tombstone", nil, err)
	}
	return res.RowsAffected()
}
