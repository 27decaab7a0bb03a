package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"journal-sync/internal/errs"
)

// Vocabulary tables keyed by a unique name.
const (
	Events = "events"
	Tags   = "tags"
	Arcs   = "arcs"
	Themes = "themes"
	Motifs = "motifs"
)

var vocabEntity = map[string]string{
	Events: "event",
	Tags:   "tag",
	Arcs:   "arc",
	Themes: "theme",
	Motifs: "motif",
}

// VocabRepo provides get/create access to one named vocabulary table.
type VocabRepo struct {
	db     DBTX
	table  string
	entity string
}

// NewVocabRepo creates a VocabRepo for table, which must be one of Events,
// Tags, Arcs, Themes or Motifs.
func NewVocabRepo(db DBTX, table string) *VocabRepo {
	entity, ok := vocabEntity[table]
	if !ok {
		panic(fmt.Sprintf("storage: unknown vocabulary table %q", table))
	}
	return &VocabRepo{db: db, table: table, entity: entity}
}

// Entity returns the singular entity name for errors and logs.
func (r *VocabRepo) Entity() string { return r.entity }

// Find returns the row named name.
func (r *VocabRepo) Find(ctx context.Context, name string) (*Named, error) {
	return r.one(ctx, name, "name = ?", name)
}

// Get returns the row with id.
func (r *VocabRepo) Get(ctx context.Context, id int64) (*Named, error) {
	return r.one(ctx, id, "id = ?", id)
}

func (r *VocabRepo) one(ctx context.Context, key any, where string, arg any) (*Named, error) {
	var n Named
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM "+r.table+" WHERE "+where, arg).Scan(&n.ID, &n.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound(r.entity, key)
	}
	if err != nil {
		return nil, errs.Database("get", r.entity, key, err)
	}
	return &n, nil
}

// Create inserts name. Unique violations are returned unwrapped.
func (r *VocabRepo) Create(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "INSERT INTO "+r.table+" (name) VALUES (?)", name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Names returns the names of ids, in order.
func (r *VocabRepo) Names(ctx context.Context, ids []int64) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := r.Get(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, n.Name)
	}
	return out, nil
}

// SourceRepo provides methods for reference sources.
type SourceRepo struct {
	db DBTX
}

// NewSourceRepo creates a new SourceRepo.
func NewSourceRepo(db DBTX) *SourceRepo {
	return &SourceRepo{db: db}
}

const sourceColumns = "id, title, type, author, url"

// FindByTitle returns the source titled title.
func (r *SourceRepo) FindByTitle(ctx context.Context, title string) (*ReferenceSource, error) {
	return r.one(ctx, title, "title = ?", title)
}

// Get returns the source with id.
func (r *SourceRepo) Get(ctx context.Context, id int64) (*ReferenceSource, error) {
	return r.one(ctx, id, "id = ?", id)
}

func (r *SourceRepo) one(ctx context.Context, key any, where string, arg any) (*ReferenceSource, error) {
	var s ReferenceSource
	err := r.db.QueryRowContext(ctx, "SELECT "+sourceColumns+" FROM reference_sources WHERE "+where, arg).
		Scan(&s.ID, &s.Title, &s.Type, &s.Author, &s.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("reference source", key)
	}
	if err != nil {
		return nil, errs.Database("get", "reference source", key, err)
	}
	return &s, nil
}

// Create inserts s. Unique violations are returned unwrapped.
func (r *SourceRepo) Create(ctx context.Context, s *ReferenceSource) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO reference_sources (title, type, author, url) VALUES (?, ?, ?, ?)",
		s.Title, s.Type, s.Author, s.URL)
	if err != nil {
		return err
	}
	s.ID, err = res.LastInsertId()
	return err
}

// FillBlanks sets author and url where they are still empty.
func (r *SourceRepo) FillBlanks(ctx context.Context, id int64, author, url string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reference_sources SET
			author = CASE WHEN author = '' THEN ? ELSE author END,
			url = CASE WHEN url = '' THEN ? ELSE url END
		 WHERE id = ?`, author, url, id)
	if err != nil {
		return errs.Database("update", "reference source", id, err)
	}
	return nil
}
