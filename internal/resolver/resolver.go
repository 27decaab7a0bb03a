// Package resolver maps references (ids, names or structured specs) to
// persisted canonical entities, creating them when absent.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"journal-sync/internal/errs"
	"journal-sync/internal/storage"
)

// Kind describes how to find and create one kind of shared entity by its
// natural key K. It is a plain value; callers may build their own.
type Kind[K any] struct {
	// Name is the entity name used in errors.
	Name string
	// Lookup returns the id for key, or an error wrapping errs.ErrNotFound.
	// It never writes.
	Lookup func(ctx context.Context, q storage.DBTX, key K) (int64, error)
	// Adopt, when set, copies details from key onto the existing entity id
	// after a lookup hit during resolution.
	Adopt func(ctx context.Context, q storage.DBTX, id int64, key K) error
	// Create persists key and returns the new id. A uniqueness violation
	// means a concurrent writer created it first.
	Create func(ctx context.Context, q storage.DBTX, key K) (int64, error)
	// Exists returns an error wrapping errs.ErrNotFound when id is unknown.
	Exists func(ctx context.Context, q storage.DBTX, id int64) error
}

// Ref references an entity either by id or by natural key. A non-zero ID
// takes precedence.
type Ref[K any] struct {
	ID  int64
	Key K
}

// ByKey builds a reference from a natural key.
func ByKey[K any](key K) Ref[K] { return Ref[K]{Key: key} }

// ByID builds a reference from an id.
func ByID[K any](id int64) Ref[K] { return Ref[K]{ID: id} }

// Resolve returns the id of ref, creating the entity when ref is a key that
// does not exist yet.
func Resolve[K any](ctx context.Context, q storage.DBTX, kind Kind[K], ref Ref[K]) (int64, error) {
	if ref.ID != 0 {
		return Get(ctx, q, kind, ref.ID)
	}
	return GetOrCreate(ctx, q, kind, ref.Key)
}

// Find returns the id of ref without creating or modifying anything. The
// boolean is false when the entity does not exist.
func Find[K any](ctx context.Context, q storage.DBTX, kind Kind[K], ref Ref[K]) (int64, bool, error) {
	var err error
	id := ref.ID
	if id != 0 {
		err = kind.Exists(ctx, q, id)
	} else {
		id, err = kind.Lookup(ctx, q, ref.Key)
	}
	if errors.Is(err, errs.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Get verifies that id exists.
func Get[K any](ctx context.Context, q storage.DBTX, kind Kind[K], id int64) (int64, error) {
	if err := kind.Exists(ctx, q, id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return 0, errs.NotFound(kind.Name, id)
		}
		return 0, errs.Database("get", kind.Name, id, err)
	}
	return id, nil
}

// GetOrCreate looks key up and creates it on a miss. When the create loses a
// race to a concurrent writer, the failed write is rolled back to a
// savepoint and the winner's row is returned.
func GetOrCreate[K any](ctx context.Context, q storage.DBTX, kind Kind[K], key K) (int64, error) {
	id, err := kind.Lookup(ctx, q, key)
	if err == nil {
		return adopt(ctx, q, kind, id, key)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return 0, errs.Database("get", kind.Name, key, err)
	}

	err = storage.Savepoint(ctx, q, func() error {
		var createErr error
		id, createErr = kind.Create(ctx, q, key)
		return createErr
	})
	if err == nil {
		return id, nil
	}
	if !storage.IsUniqueViolation(err) {
		return 0, errs.Database("create", kind.Name, key, err)
	}

	id, err = kind.Lookup(ctx, q, key)
	if err != nil {
		return 0, errs.Database("create", kind.Name, key,
			fmt.Errorf("%w: uniqueness violation but no row on re-query: %v", errs.ErrConflict, err))
	}
	return adopt(ctx, q, kind, id, key)
}

func adopt[K any](ctx context.Context, q storage.DBTX, kind Kind[K], id int64, key K) (int64, error) {
	if kind.Adopt == nil {
		return id, nil
	}
	if err := kind.Adopt(ctx, q, id, key); err != nil {
		return 0, errs.Database("update", kind.Name, id, err)
	}
	return id, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}
