package storage

import (
	"context"
	"database/sql"
	"errors"

	"journal-sync/internal/errs"
)

// SceneRepo provides methods for the scenes owned by an entry.
type SceneRepo struct {
	db DBTX
}

// NewSceneRepo creates a new SceneRepo.
func NewSceneRepo(db DBTX) *SceneRepo {
	return &SceneRepo{db: db}
}

// Upsert creates the scene named s.Name in s.EntryID or updates its
// description, then replaces its dates.
func (r *SceneRepo) Upsert(ctx context.Context, s *Scene, position int) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO scenes (entry_id, name, description, position) VALUES (?, ?, ?, ?)
		 ON CONFLICT (entry_id, name) DO UPDATE SET description = excluded.description, position = excluded.position
		 RETURNING id`,
		s.EntryID, s.Name, s.Description, position).Scan(&s.ID)
	if err != nil {
		return errs.Database("upsert", "scene", s.Name, err)
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM scene_dates WHERE scene_id = ?", s.ID); err != nil {
		return errs.Database("upsert", "scene", s.Name, err)
	}
	for _, d := range s.Dates {
		if _, err := r.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO scene_dates (scene_id, date) VALUES (?, ?)", s.ID, d); err != nil {
			return errs.Database("upsert", "scene", s.Name, err)
		}
	}
	return nil
}

// GetByName returns the scene named name within entryID.
func (r *SceneRepo) GetByName(ctx context.Context, entryID int64, name string) (*Scene, error) {
	var s Scene
	err := r.db.QueryRowContext(ctx,
		"SELECT id, entry_id, name, description FROM scenes WHERE entry_id = ? AND name = ?", entryID, name).
		Scan(&s.ID, &s.EntryID, &s.Name, &s.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("scene", name)
	}
	if err != nil {
		return nil, errs.Database("get", "scene", name, err)
	}
	if s.Dates, err = r.dates(ctx, s.ID); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByEntry returns the scenes of entryID in document order.
func (r *SceneRepo) ListByEntry(ctx context.Context, entryID int64) ([]Scene, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, entry_id, name, description FROM scenes WHERE entry_id = ? ORDER BY position, id", entryID)
	if err != nil {
		return nil, errs.Database("list", "scene", entryID, err)
	}
	var scenes []Scene
	for rows.Next() {
		var s Scene
		if err := rows.Scan(&s.ID, &s.EntryID, &s.Name, &s.Description); err != nil {
			_ = rows.Close()
			return nil, errs.Database("list", "scene", entryID, err)
		}
		scenes = append(scenes, s)
	}
	if err := rows.Close(); err != nil {
		return nil, errs.Database("list", "scene", entryID, err)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("list", "scene", entryID, err)
	}

	for i := range scenes {
		if scenes[i].Dates, err = r.dates(ctx, scenes[i].ID); err != nil {
			return nil, err
		}
	}
	return scenes, nil
}

func (r *SceneRepo) dates(ctx context.Context, sceneID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT date FROM scene_dates WHERE scene_id = ? ORDER BY rowid", sceneID)
	if err != nil {
		return nil, errs.Database("list", "scene date", sceneID, err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, errs.Database("list", "scene date", sceneID, err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// DeleteByEntry removes every scene of entryID along with its links.
func (r *SceneRepo) DeleteByEntry(ctx context.Context, entryID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM scenes WHERE entry_id = ?", entryID); err != nil {
		return errs.Database("delete", "scene", entryID, err)
	}
	return nil
}
