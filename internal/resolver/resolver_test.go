package resolver

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journal-sync/internal/document"
	"journal-sync/internal/errs"
	"journal-sync/internal/storage"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db))
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestGetOrCreate_CreatesOnceThenFinds(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	first, err := GetOrCreate(ctx, db, City, "Seattle")
	require.NoError(t, err)
	second, err := GetOrCreate(ctx, db, City, "Seattle")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, countRows(t, db, "cities"))
}

// stale returns a copy of kind whose first lookup misses, as if another
// writer inserted the row between our lookup and our insert.
func stale[K any](kind Kind[K]) Kind[K] {
	calls := 0
	lookup := kind.Lookup
	kind.Lookup = func(ctx context.Context, q storage.DBTX, key K) (int64, error) {
		calls++
		if calls == 1 {
			return 0, errs.NotFound(kind.Name, key)
		}
		return lookup(ctx, q, key)
	}
	return kind
}

func TestGetOrCreate_RecoversFromLostRace(t *testing.T) {
	tests := []struct {
		name string
		inTx bool
	}{
		{name: "inside transaction", inTx: true},
		{name: "autocommit", inTx: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openDB(t)
			ctx := context.Background()

			winner, err := storage.NewPlaceRepo(db).CreateCity(ctx, "Seattle")
			require.NoError(t, err)

			var got int64
			run := func(q storage.DBTX) error {
				// The outer transaction keeps working after the recovered race.
				if _, err := GetOrCreate(ctx, q, City, "Portland"); err != nil {
					return err
				}
				got, err = GetOrCreate(ctx, q, stale(City), "Seattle")
				if err != nil {
					return err
				}
				_, err = GetOrCreate(ctx, q, City, "Tacoma")
				return err
			}
			if tt.inTx {
				require.NoError(t, storage.WithTx(ctx, db, func(tx *sql.Tx) error { return run(tx) }))
			} else {
				require.NoError(t, run(db))
			}

			assert.Equal(t, winner, got)
			assert.Equal(t, 3, countRows(t, db, "cities"))
		})
	}
}

func TestGetOrCreate_ConcurrentWritersLeaveOneRow(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = map[int64]bool{}
		errc = make(chan error, writers)
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := storage.WithTx(ctx, db, func(tx *sql.Tx) error {
				id, err := GetOrCreate(ctx, tx, City, "Seattle")
				if err != nil {
					return err
				}
				mu.Lock()
				ids[id] = true
				mu.Unlock()
				return nil
			})
			errc <- err
		}()
	}
	wg.Wait()
	close(errc)

	for err := range errc {
		require.NoError(t, err)
	}
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, countRows(t, db, "cities"))
}

func TestGetOrCreate_ViolationWithoutRowIsDatabaseError(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	_, err := storage.NewPlaceRepo(db).CreateCity(ctx, "Ghost")
	require.NoError(t, err)

	blind := City
	blind.Lookup = func(ctx context.Context, q storage.DBTX, name string) (int64, error) {
		return 0, errs.NotFound("city", name)
	}

	_, err = GetOrCreate(ctx, db, blind, "Ghost")
	require.Error(t, err)
	assert.True(t, errs.IsDatabase(err))
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestResolveByID(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	id, err := GetOrCreate(ctx, db, Tag, "winter")
	require.NoError(t, err)

	got, err := Resolve(ctx, db, Tag, ByID[string](id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = Resolve(ctx, db, Tag, ByID[string](id+100))
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.True(t, errs.IsDatabase(err))
}

func TestFind_NeverCreates(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	_, ok, err := Find(ctx, db, Arc, ByKey("travel"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, countRows(t, db, "arcs"))
}

func TestFind_LeavesPersonUntouched(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	bob, err := GetOrCreate(ctx, db, Person, document.PersonSpec{Name: "Bob", Lastname: "Smith"})
	require.NoError(t, err)

	id, ok, err := Find(ctx, db, Person, ByKey(document.PersonSpec{Name: "Bob", Lastname: "Smith", Alias: "bobby", FullName: "Robert Smith"}))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bob, id)

	p, err := storage.NewPersonRepo(db).Get(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, p.Alias)
	assert.Empty(t, p.FullName)
}

func TestLocation_CreatesCity(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	a, err := GetOrCreate(ctx, db, Location, LocationKey{Name: "Gare", City: "Lyon"})
	require.NoError(t, err)
	b, err := GetOrCreate(ctx, db, Location, LocationKey{Name: "Gare", City: "Paris"})
	require.NoError(t, err)
	again, err := GetOrCreate(ctx, db, Location, LocationKey{Name: "Gare", City: "Lyon"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)
	assert.Equal(t, 2, countRows(t, db, "cities"))
}

func TestPerson_AliasThenKey(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	bob, err := GetOrCreate(ctx, db, Person, document.PersonSpec{Name: "Bob", Lastname: "Smith"})
	require.NoError(t, err)

	// Same natural key with an alias adopts the alias.
	withAlias, err := GetOrCreate(ctx, db, Person, document.PersonSpec{Name: "Bob", Lastname: "Smith", Alias: "bobby", FullName: "Robert Smith"})
	require.NoError(t, err)
	assert.Equal(t, bob, withAlias)

	// The alias alone now finds the same person even with a different name.
	byAlias, err := GetOrCreate(ctx, db, Person, document.PersonSpec{Name: "bobby", Alias: "bobby"})
	require.NoError(t, err)
	assert.Equal(t, bob, byAlias)

	p, err := storage.NewPersonRepo(db).Get(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "bobby", p.Alias)
	assert.Equal(t, "Robert Smith", p.FullName)

	other, err := GetOrCreate(ctx, db, Person, document.PersonSpec{Name: "Bob", Disambiguator: "work"})
	require.NoError(t, err)
	assert.NotEqual(t, bob, other)
}

func TestPoem_TitlesAreNotUnique(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	first, err := GetOrCreate(ctx, db, Poem, "Untitled")
	require.NoError(t, err)
	second, err := storage.NewPoemRepo(db).Create(ctx, "Untitled")
	require.NoError(t, err)

	got, err := GetOrCreate(ctx, db, Poem, "Untitled")
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.NotEqual(t, first, second)
}
