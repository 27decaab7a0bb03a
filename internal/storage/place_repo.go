package storage

import (
	"context"
	"database/sql"
	"errors"

	"journal-sync/internal/errs"
)

// PlaceRepo provides methods for cities and the locations within them.
type PlaceRepo struct {
	db DBTX
}

// NewPlaceRepo creates a new PlaceRepo.
func NewPlaceRepo(db DBTX) *PlaceRepo {
	return &PlaceRepo{db: db}
}

// FindCity returns the city named name.
func (r *PlaceRepo) FindCity(ctx context.Context, name string) (*City, error) {
	var c City
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM cities WHERE name = ?", name).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("city", name)
	}
	if err != nil {
		return nil, errs.Database("get", "city", name, err)
	}
	return &c, nil
}

// GetCity returns a city by id.
func (r *PlaceRepo) GetCity(ctx context.Context, id int64) (*City, error) {
	var c City
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM cities WHERE id = ?", id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("city", id)
	}
	if err != nil {
		return nil, errs.Database("get", "city", id, err)
	}
	return &c, nil
}

// CreateCity inserts a city. Unique violations are returned unwrapped.
func (r *PlaceRepo) CreateCity(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "INSERT INTO cities (name) VALUES (?)", name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const locationSelect = `SELECT l.id, l.name, l.city_id, c.name FROM locations l JOIN cities c ON c.id = l.city_id`

// FindLocation returns the location named name in cityID.
func (r *PlaceRepo) FindLocation(ctx context.Context, name string, cityID int64) (*Location, error) {
	var l Location
	err := r.db.QueryRowContext(ctx, locationSelect+" WHERE l.name = ? AND l.city_id = ?", name, cityID).
		Scan(&l.ID, &l.Name, &l.CityID, &l.City)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("location", name)
	}
	if err != nil {
		return nil, errs.Database("get", "location", name, err)
	}
	return &l, nil
}

// GetLocation returns a location by id.
func (r *PlaceRepo) GetLocation(ctx context.Context, id int64) (*Location, error) {
	var l Location
	err := r.db.QueryRowContext(ctx, locationSelect+" WHERE l.id = ?", id).Scan(&l.ID, &l.Name, &l.CityID, &l.City)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("location", id)
	}
	if err != nil {
		return nil, errs.Database("get", "location", id, err)
	}
	return &l, nil
}

// CreateLocation inserts a location. Unique violations are returned unwrapped.
func (r *PlaceRepo) CreateLocation(ctx context.Context, name string, cityID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "INSERT INTO locations (name, city_id) VALUES (?, ?)", name, cityID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListLocations returns locations by id, in order, with their city names.
func (r *PlaceRepo) ListLocations(ctx context.Context, ids []int64) ([]Location, error) {
	out := make([]Location, 0, len(ids))
	for _, id := range ids {
		l, err := r.GetLocation(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, nil
}
