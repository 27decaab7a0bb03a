package storage

import (
	"context"
	"fmt"

	"journal-sync/internal/errs"
)

// InstanceRepo provides methods for theme or motif instances of an entry.
type InstanceRepo struct {
	db     DBTX
	table  string
	vocab  string
	column string
}

// NewThemeInstanceRepo creates an InstanceRepo over theme_instances.
func NewThemeInstanceRepo(db DBTX) *InstanceRepo {
	return &InstanceRepo{db: db, table: "theme_instances", vocab: Themes, column: "theme_id"}
}

// NewMotifInstanceRepo creates an InstanceRepo over motif_instances.
func NewMotifInstanceRepo(db DBTX) *InstanceRepo {
	return &InstanceRepo{db: db, table: "motif_instances", vocab: Motifs, column: "motif_id"}
}

// Upsert attaches the vocabulary item to the entry or updates its description.
func (r *InstanceRepo) Upsert(ctx context.Context, inst *Instance, position int) error {
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`INSERT INTO %[1]s (entry_id, %[2]s, description, position) VALUES (?, ?, ?, ?)
		 ON CONFLICT (entry_id, %[2]s) DO UPDATE SET description = excluded.description, position = excluded.position
		 RETURNING id`, r.table, r.column),
		inst.EntryID, inst.VocabID, inst.Description, position).Scan(&inst.ID)
	if err != nil {
		return errs.Database("upsert", r.table, inst.VocabID, err)
	}
	return nil
}

// ListByEntry returns the instances of entryID with their vocabulary names.
func (r *InstanceRepo) ListByEntry(ctx context.Context, entryID int64) ([]Instance, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT i.id, i.entry_id, i.%[2]s, v.name, i.description
		 FROM %[1]s i JOIN %[3]s v ON v.id = i.%[2]s
		 WHERE i.entry_id = ? ORDER BY i.position, i.id`, r.table, r.column, r.vocab),
		entryID)
	if err != nil {
		return nil, errs.Database("list", r.table, entryID, err)
	}
	defer rows.Close()

	var out []Instance
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.ID, &inst.EntryID, &inst.VocabID, &inst.Name, &inst.Description); err != nil {
			return nil, errs.Database("list", r.table, entryID, err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("list", r.table, entryID, err)
	}
	return out, nil
}

// DeleteByEntry removes every instance of entryID.
func (r *InstanceRepo) DeleteByEntry(ctx context.Context, entryID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+r.table+" WHERE entry_id = ?", entryID); err != nil {
		return errs.Database("delete", r.table, entryID, err)
	}
	return nil
}

// ManuscriptRepo provides methods for the editorial record of an entry.
type ManuscriptRepo struct {
	db DBTX
}

// NewManuscriptRepo creates a new ManuscriptRepo.
func NewManuscriptRepo(db DBTX) *ManuscriptRepo {
	return &ManuscriptRepo{db: db}
}

// Upsert writes m.
func (r *ManuscriptRepo) Upsert(ctx context.Context, m *Manuscript) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO manuscript_entries (entry_id, status, edited, notes) VALUES (?, ?, ?, ?)
		 ON CONFLICT (entry_id) DO UPDATE SET status = excluded.status, edited = excluded.edited, notes = excluded.notes`,
		m.EntryID, m.Status, m.Edited, m.Notes)
	if err != nil {
		return errs.Database("upsert", "manuscript", m.EntryID, err)
	}
	return nil
}

// Get returns the manuscript record of entryID.
func (r *ManuscriptRepo) Get(ctx context.Context, entryID int64) (*Manuscript, error) {
	var m Manuscript
	err := r.db.QueryRowContext(ctx,
		"SELECT entry_id, status, edited, notes FROM manuscript_entries WHERE entry_id = ?", entryID).
		Scan(&m.EntryID, &m.Status, &m.Edited, &m.Notes)
	if err != nil {
		if isNoRows(err) {
			return nil, errs.NotFound("manuscript", entryID)
		}
		return nil, errs.Database("get", "manuscript", entryID, err)
	}
	return &m, nil
}

// Delete removes the manuscript record of entryID and its theme links.
func (r *ManuscriptRepo) Delete(ctx context.Context, entryID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM manuscript_entries WHERE entry_id = ?", entryID); err != nil {
		return errs.Database("delete", "manuscript", entryID, err)
	}
	return nil
}
