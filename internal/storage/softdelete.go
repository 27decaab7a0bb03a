package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"journal-sync/internal/errs"
)

// softDeletable maps tables carrying deleted_at/deleted_by/deletion_reason to
// the entity name used in errors.
var softDeletable = map[string]string{
	"entries": "entry",
	"persons": "person",
	"poems":   "poem",
}

type deletionColumns struct {
	at     sql.NullTime
	by     sql.NullString
	reason sql.NullString
}

func (d deletionColumns) value() Deletion {
	if !d.at.Valid {
		return Deletion{}
	}
	at := d.at.Time
	return Deletion{DeletedAt: &at, DeletedBy: d.by.String, Reason: d.reason.String}
}

// SoftDeleter marks rows of soft-deletable tables as deleted and restores
// them.
type SoftDeleter struct {
	db DBTX
}

// NewSoftDeleter creates a new SoftDeleter.
func NewSoftDeleter(db DBTX) *SoftDeleter {
	return &SoftDeleter{db: db}
}

// Delete records actor, reason and time on an active row. Deleting an
// already-deleted row is a conflict.
func (s *SoftDeleter) Delete(ctx context.Context, table string, id int64, actor, reason string, at time.Time) error {
	entity, err := entityFor(table)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = ?, deleted_by = ?, deletion_reason = ? WHERE id = ? AND deleted_at IS NULL",
		timestamp(at), actor, reason, id)
	if err != nil {
		return errs.Database("delete", entity, id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return s.explainMiss(ctx, table, entity, "delete", id, "already deleted")
}

// Restore clears the deletion marker of a deleted row. Restoring an active
// row is a DatabaseError.
func (s *SoftDeleter) Restore(ctx context.Context, table string, id int64) error {
	entity, err := entityFor(table)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = NULL, deleted_by = NULL, deletion_reason = NULL WHERE id = ? AND deleted_at IS NOT NULL",
		id)
	if err != nil {
		if IsUniqueViolation(err) {
			return errs.Database("restore", entity, id, fmt.Errorf("%w: %v", errs.ErrConflict, err))
		}
		return errs.Database("restore", entity, id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return s.explainMiss(ctx, table, entity, "restore", id, "not deleted")
}

func (s *SoftDeleter) explainMiss(ctx context.Context, table, entity, op string, id int64, state string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound(entity, id)
	}
	if err != nil {
		return errs.Database(op, entity, id, err)
	}
	return errs.Database(op, entity, id, fmt.Errorf("%w: %s", errs.ErrConflict, state))
}

func entityFor(table string) (string, error) {
	entity, ok := softDeletable[table]
	if !ok {
		return "", fmt.Errorf("table %q does not support soft delete", table)
	}
	return entity, nil
}
