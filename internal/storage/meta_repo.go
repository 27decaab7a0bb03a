package storage

import (
	"context"

	"github.com/google/uuid"

	"journal-sync/internal/errs"
)

const deviceIDKey = "device_id"

// MetaRepo stores key/value settings of the database itself.
type MetaRepo struct {
	db DBTX
}

// NewMetaRepo creates a new MetaRepo.
func NewMetaRepo(db DBTX) *MetaRepo {
	return &MetaRepo{db: db}
}

// Get returns the value stored under key.
func (r *MetaRepo) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if isNoRows(err) {
		return "", errs.NotFound("meta", key)
	}
	if err != nil {
		return "", errs.Database("get", "meta", key, err)
	}
	return v, nil
}

// Set stores value under key.
func (r *MetaRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return errs.Database("set", "meta", key, err)
	}
	return nil
}

// DeviceID returns the identity of this replica, generating and persisting
// a UUID on first use. A non-empty override is persisted and returned.
func (r *MetaRepo) DeviceID(ctx context.Context, override string) (string, error) {
	if override != "" {
		if err := r.Set(ctx, deviceIDKey, override); err != nil {
			return "", err
		}
		return override, nil
	}

	if _, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", deviceIDKey, uuid.New().String()); err != nil {
		return "", errs.Database("set", "meta", deviceIDKey, err)
	}
	return r.Get(ctx, deviceIDKey)
}
