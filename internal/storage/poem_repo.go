package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"journal-sync/internal/errs"
)

// PoemRepo provides methods for poems and their versions.
type PoemRepo struct {
	db DBTX
}

// NewPoemRepo creates a new PoemRepo.
func NewPoemRepo(db DBTX) *PoemRepo {
	return &PoemRepo{db: db}
}

const poemColumns = "id, title, created_at, deleted_at, deleted_by, deletion_reason"

func scanPoem(row rowScanner) (*Poem, error) {
	var (
		p       Poem
		created sql.NullTime
		del     deletionColumns
	)
	if err := row.Scan(&p.ID, &p.Title, &created, &del.at, &del.by, &del.reason); err != nil {
		return nil, err
	}
	p.CreatedAt = created.Time
	p.Deletion = del.value()
	return &p, nil
}

// FindByTitle returns the oldest active poem titled title. Titles are not
// unique; later poems with the same title are reachable only by id.
func (r *PoemRepo) FindByTitle(ctx context.Context, title string) (*Poem, error) {
	p, err := scanPoem(r.db.QueryRowContext(ctx,
		"SELECT "+poemColumns+" FROM poems WHERE title = ? AND deleted_at IS NULL ORDER BY id LIMIT 1", title))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("poem", title)
	}
	if err != nil {
		return nil, errs.Database("get", "poem", title, err)
	}
	return p, nil
}

// Get returns a poem by id, including soft-deleted poems.
func (r *PoemRepo) Get(ctx context.Context, id int64) (*Poem, error) {
	p, err := scanPoem(r.db.QueryRowContext(ctx, "SELECT "+poemColumns+" FROM poems WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("poem", id)
	}
	if err != nil {
		return nil, errs.Database("get", "poem", id, err)
	}
	return p, nil
}

// Create inserts a poem titled title.
func (r *PoemRepo) Create(ctx context.Context, title string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "INSERT INTO poems (title, created_at) VALUES (?, ?)", title, timestamp(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const versionColumns = "id, poem_id, content, content_hash, revision_date, notes, entry_id, created_at"

func scanVersion(row rowScanner) (*PoemVersion, error) {
	var (
		v       PoemVersion
		entryID sql.NullInt64
		created sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.PoemID, &v.Content, &v.ContentHash, &v.RevisionDate, &v.Notes, &entryID, &created); err != nil {
		return nil, err
	}
	if entryID.Valid {
		v.EntryID = &entryID.Int64
	}
	v.CreatedAt = created.Time
	return &v, nil
}

func (r *PoemRepo) version(ctx context.Context, key any, where string, args ...any) (*PoemVersion, error) {
	v, err := scanVersion(r.db.QueryRowContext(ctx, "SELECT "+versionColumns+" FROM poem_versions WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("poem version", key)
	}
	if err != nil {
		return nil, errs.Database("get", "poem version", key, err)
	}
	return v, nil
}

// GetVersion returns a version by id.
func (r *PoemRepo) GetVersion(ctx context.Context, id int64) (*PoemVersion, error) {
	return r.version(ctx, id, "id = ?", id)
}

// FindVersionByHash returns the version of poemID with the given content hash.
func (r *PoemRepo) FindVersionByHash(ctx context.Context, poemID int64, hash string) (*PoemVersion, error) {
	return r.version(ctx, hash, "poem_id = ? AND content_hash = ?", poemID, hash)
}

// CreateVersion inserts v. Unique violations are returned unwrapped.
func (r *PoemRepo) CreateVersion(ctx context.Context, v *PoemVersion) error {
	now := timestamp(time.Now())
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO poem_versions (poem_id, content, content_hash, revision_date, notes, entry_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.PoemID, v.Content, v.ContentHash, v.RevisionDate, v.Notes, nullInt(v.EntryID), now)
	if err != nil {
		return err
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	v.CreatedAt = now
	return nil
}

// UpdateVersionContent replaces the content and hash of a version. Colliding
// with a sibling version's hash is a DatabaseError wrapping errs.ErrConflict.
func (r *PoemRepo) UpdateVersionContent(ctx context.Context, id int64, content, hash string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE poem_versions SET content = ?, content_hash = ? WHERE id = ?", content, hash, id)
	if err != nil {
		if IsUniqueViolation(err) {
			return errs.Database("update", "poem version", id, fmt.Errorf("%w: identical content already exists", errs.ErrConflict))
		}
		return errs.Database("update", "poem version", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("poem version", id)
	}
	return nil
}

// ListVersions returns the versions of poemID, oldest first.
func (r *PoemRepo) ListVersions(ctx context.Context, poemID int64) ([]PoemVersion, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+versionColumns+" FROM poem_versions WHERE poem_id = ? ORDER BY id", poemID)
	if err != nil {
		return nil, errs.Database("list", "poem version", poemID, err)
	}
	defer rows.Close()

	var versions []PoemVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, errs.Database("list", "poem version", poemID, err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Database("list", "poem version", poemID, err)
	}
	return versions, nil
}
