package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"journal-sync/internal/errs"
)

// PersonRepo provides methods for person operations.
type PersonRepo struct {
	db DBTX
}

// NewPersonRepo creates a new PersonRepo.
func NewPersonRepo(db DBTX) *PersonRepo {
	return &PersonRepo{db: db}
}

const personColumns = "id, name, lastname, disambiguator, full_name, alias, deleted_at, deleted_by, deletion_reason"

func scanPerson(row rowScanner) (*Person, error) {
	var (
		p     Person
		alias sql.NullString
		del   deletionColumns
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Lastname, &p.Disambiguator, &p.FullName, &alias,
		&del.at, &del.by, &del.reason); err != nil {
		return nil, err
	}
	p.Alias = alias.String
	p.Deletion = del.value()
	return &p, nil
}

func (r *PersonRepo) one(ctx context.Context, key any, query string, args ...any) (*Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx, "SELECT "+personColumns+" FROM persons WHERE "+query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("person", key)
	}
	if err != nil {
		return nil, errs.Database("get", "person", key, err)
	}
	return p, nil
}

// Get returns a person by id, including soft-deleted persons.
func (r *PersonRepo) Get(ctx context.Context, id int64) (*Person, error) {
	return r.one(ctx, id, "id = ?", id)
}

// FindByAlias returns the active person holding alias.
func (r *PersonRepo) FindByAlias(ctx context.Context, alias string) (*Person, error) {
	return r.one(ctx, "@"+alias, "alias = ? AND deleted_at IS NULL", alias)
}

// FindByKey returns the active person with the natural key
// (name, lastname, disambiguator).
func (r *PersonRepo) FindByKey(ctx context.Context, name, lastname, disambiguator string) (*Person, error) {
	key := fmt.Sprintf("%s|%s|%s", name, lastname, disambiguator)
	return r.one(ctx, key, "name = ? AND lastname = ? AND disambiguator = ? AND deleted_at IS NULL",
		name, lastname, disambiguator)
}

// Create inserts p. Unique violations are returned unwrapped so callers can
// recover from a concurrent insert.
func (r *PersonRepo) Create(ctx context.Context, p *Person) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO persons (name, lastname, disambiguator, full_name, alias) VALUES (?, ?, ?, ?, ?)",
		p.Name, p.Lastname, p.Disambiguator, p.FullName, nullString(p.Alias))
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

// FillBlanks sets alias and full name on an existing person where they are
// still empty.
func (r *PersonRepo) FillBlanks(ctx context.Context, id int64, alias, fullName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE persons SET
			alias = COALESCE(alias, ?),
			full_name = CASE WHEN full_name = '' THEN ? ELSE full_name END
		 WHERE id = ?`,
		nullString(alias), fullName, id)
	if err != nil {
		if IsUniqueViolation(err) {
			return errs.Database("update", "person", id, fmt.Errorf("%w: alias %q already taken", errs.ErrConflict, alias))
		}
		return errs.Database("update", "person", id, err)
	}
	return nil
}

// ListByIDs returns persons in the order of ids. Unknown ids are skipped.
func (r *PersonRepo) ListByIDs(ctx context.Context, ids []int64) ([]Person, error) {
	out := make([]Person, 0, len(ids))
	for _, id := range ids {
		p, err := r.Get(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
