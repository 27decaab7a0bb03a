package storage

import (
	"context"
	"fmt"

	"journal-sync/internal/errs"
)

// Relation describes a many-to-many association table: rows of
// (OwnerColumn, MemberColumn) in Table.
type Relation struct {
	Table        string
	OwnerColumn  string
	MemberColumn string
}

func (r Relation) String() string { return r.Table }

// Association tables.
var (
	EntryPeople       = Relation{"entry_people", "entry_id", "person_id"}
	EntryCities       = Relation{"entry_cities", "entry_id", "city_id"}
	EntryLocations    = Relation{"entry_locations", "entry_id", "location_id"}
	EntryEvents       = Relation{"entry_events", "entry_id", "event_id"}
	EntryTags         = Relation{"entry_tags", "entry_id", "tag_id"}
	EntryArcs         = Relation{"entry_arcs", "entry_id", "arc_id"}
	EntryPoemVersions = Relation{"entry_poem_versions", "entry_id", "poem_version_id"}
	ScenePeople       = Relation{"scene_people", "scene_id", "person_id"}
	SceneLocations    = Relation{"scene_locations", "scene_id", "location_id"}
	EventScenes       = Relation{"event_scenes", "event_id", "scene_id"}
	ThreadPeople      = Relation{"thread_people", "thread_id", "person_id"}
	ThreadLocations   = Relation{"thread_locations", "thread_id", "location_id"}
	MomentPeople      = Relation{"moment_people", "moment_id", "person_id"}
	MomentLocations   = Relation{"moment_locations", "moment_id", "location_id"}
	MomentEvents      = Relation{"moment_events", "moment_id", "event_id"}
	ManuscriptThemes  = Relation{"manuscript_entry_themes", "entry_id", "theme_id"}
)

// LinkRepo adds and removes association rows. Adds are add-if-absent and
// removes are delete-if-present; neither fails on a no-op.
type LinkRepo struct {
	db DBTX
}

// NewLinkRepo creates a new LinkRepo.
func NewLinkRepo(db DBTX) *LinkRepo {
	return &LinkRepo{db: db}
}

// Add links member to owner and reports whether a row was inserted.
func (r *LinkRepo) Add(ctx context.Context, rel Relation, owner, member int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO %s (%s, %s) VALUES (?, ?)", rel.Table, rel.OwnerColumn, rel.MemberColumn),
		owner, member)
	if err != nil {
		return false, errs.Database("link", rel.Table, [2]int64{owner, member}, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Remove unlinks member from owner and reports whether a row was deleted.
func (r *LinkRepo) Remove(ctx context.Context, rel Relation, owner, member int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", rel.Table, rel.OwnerColumn, rel.MemberColumn),
		owner, member)
	if err != nil {
		return false, errs.Database("unlink", rel.Table, [2]int64{owner, member}, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Members returns the member ids linked to owner in insertion order.
func (r *LinkRepo) Members(ctx context.Context, rel Relation, owner int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY rowid", rel.MemberColumn, rel.Table, rel.OwnerColumn),
		owner)
	if err != nil {
		return nil, errs.Database("list", rel.Table, owner, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Database("list", rel.Table, owner, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("list", rel.Table, owner, err)
	}
	return ids, nil
}

// Clear removes every member of owner.
func (r *LinkRepo) Clear(ctx context.Context, rel Relation, owner int64) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", rel.Table, rel.OwnerColumn), owner)
	if err != nil {
		return errs.Database("clear", rel.Table, owner, err)
	}
	return nil
}
