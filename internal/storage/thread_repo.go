package storage

import (
	"context"

	"journal-sync/internal/errs"
)

// ThreadRepo provides methods for the threads owned by an entry.
type ThreadRepo struct {
	db DBTX
}

// NewThreadRepo creates a new ThreadRepo.
func NewThreadRepo(db DBTX) *ThreadRepo {
	return &ThreadRepo{db: db}
}

// Upsert creates or updates the thread named t.Name within t.EntryID.
func (r *ThreadRepo) Upsert(ctx context.Context, t *Thread, position int) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO threads (entry_id, name, from_date, to_date, referenced_entry, content, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entry_id, name) DO UPDATE SET
			from_date = excluded.from_date, to_date = excluded.to_date,
			referenced_entry = excluded.referenced_entry, content = excluded.content,
			position = excluded.position
		 RETURNING id`,
		t.EntryID, t.Name, t.From, t.To, t.ReferencedEntry, t.Content, position).Scan(&t.ID)
	if err != nil {
		return errs.Database("upsert", "thread", t.Name, err)
	}
	return nil
}

// ListByEntry returns the threads of entryID in document order.
func (r *ThreadRepo) ListByEntry(ctx context.Context, entryID int64) ([]Thread, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entry_id, name, from_date, to_date, referenced_entry, content
		 FROM threads WHERE entry_id = ? ORDER BY position, id`, entryID)
	if err != nil {
		return nil, errs.Database("list", "thread", entryID, err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.EntryID, &t.Name, &t.From, &t.To, &t.ReferencedEntry, &t.Content); err != nil {
			return nil, errs.Database("list", "thread", entryID, err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("list", "thread", entryID, err)
	}
	return threads, nil
}

// DeleteByEntry removes every thread of entryID.
func (r *ThreadRepo) DeleteByEntry(ctx context.Context, entryID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM threads WHERE entry_id = ?", entryID); err != nil {
		return errs.Database("delete", "thread", entryID, err)
	}
	return nil
}

// MomentRepo provides methods for the dates mentioned in an entry.
type MomentRepo struct {
	db DBTX
}

// NewMomentRepo creates a new MomentRepo.
func NewMomentRepo(db DBTX) *MomentRepo {
	return &MomentRepo{db: db}
}

// Upsert creates or updates the moment for m.Date within m.EntryID.
func (r *MomentRepo) Upsert(ctx context.Context, m *Moment, position int) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO moments (entry_id, date, context, position) VALUES (?, ?, ?, ?)
		 ON CONFLICT (entry_id, date) DO UPDATE SET context = excluded.context, position = excluded.position
		 RETURNING id`,
		m.EntryID, m.Date, m.Context, position).Scan(&m.ID)
	if err != nil {
		return errs.Database("upsert", "moment", m.Date, err)
	}
	return nil
}

// ListByEntry returns the moments of entryID in document order.
func (r *MomentRepo) ListByEntry(ctx context.Context, entryID int64) ([]Moment, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, entry_id, date, context FROM moments WHERE entry_id = ? ORDER BY position, id", entryID)
	if err != nil {
		return nil, errs.Database("list", "moment", entryID, err)
	}
	defer rows.Close()

	var moments []Moment
	for rows.Next() {
		var m Moment
		if err := rows.Scan(&m.ID, &m.EntryID, &m.Date, &m.Context); err != nil {
			return nil, errs.Database("list", "moment", entryID, err)
		}
		moments = append(moments, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("list", "moment", entryID, err)
	}
	return moments, nil
}

// DeleteByEntry removes every moment of entryID.
func (r *MomentRepo) DeleteByEntry(ctx context.Context, entryID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM moments WHERE entry_id = ?", entryID); err != nil {
		return errs.Database("delete", "moment", entryID, err)
	}
	return nil
}
