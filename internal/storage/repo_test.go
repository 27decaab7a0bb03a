package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"journal-sync/internal/errs"
)

func TestPersonRepo_AliasUniqueAmongActive(t *testing.T) {
	db := newTestDB(t)
	r := NewRepos(db)
	ctx := context.Background()

	first := &Person{Name: "Bob", Alias: "bobby"}
	if err := r.Persons.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := r.Persons.Create(ctx, &Person{Name: "Robert", Alias: "bobby"}); !IsUniqueViolation(err) {
		t.Fatalf("Create() duplicate alias error = %v, want unique violation", err)
	}

	if err := r.Persons.Create(ctx, &Person{Name: "Bob", Lastname: "Jones"}); err != nil {
		t.Errorf("same first name with a different last name should be allowed: %v", err)
	}

	if err := NewSoftDeleter(db).Delete(ctx, "persons", first.ID, "me", "duplicate", time.Now()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := r.Persons.FindByAlias(ctx, "bobby"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("FindByAlias() should skip deleted persons, got %v", err)
	}
	if err := r.Persons.Create(ctx, &Person{Name: "Robert", Alias: "bobby"}); err != nil {
		t.Errorf("alias of a deleted person should be reusable: %v", err)
	}

	if err := NewSoftDeleter(db).Restore(ctx, "persons", first.ID); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("Restore() into a taken alias error = %v, want conflict", err)
	}
}

func TestPersonRepo_FillBlanks(t *testing.T) {
	db := newTestDB(t)
	repo := NewPersonRepo(db)
	ctx := context.Background()

	p := &Person{Name: "Bob", Lastname: "Smith"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.FillBlanks(ctx, p.ID, "bob", "Robert Smith"); err != nil {
		t.Fatalf("FillBlanks() error = %v", err)
	}
	if err := repo.FillBlanks(ctx, p.ID, "other", "Other Name"); err != nil {
		t.Fatalf("FillBlanks() error = %v", err)
	}

	got, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Alias != "bob" || got.FullName != "Robert Smith" {
		t.Errorf("FillBlanks() should only fill empty fields, got %+v", got)
	}
}

func TestPlaceRepo_LocationUniquePerCity(t *testing.T) {
	db := newTestDB(t)
	repo := NewPlaceRepo(db)
	ctx := context.Background()

	paris, _ := repo.CreateCity(ctx, "Paris")
	lyon, _ := repo.CreateCity(ctx, "Lyon")

	if _, err := repo.CreateLocation(ctx, "Gare", paris); err != nil {
		t.Fatalf("CreateLocation() error = %v", err)
	}
	if _, err := repo.CreateLocation(ctx, "Gare", lyon); err != nil {
		t.Errorf("same name in another city should be allowed: %v", err)
	}
	if _, err := repo.CreateLocation(ctx, "Gare", paris); !IsUniqueViolation(err) {
		t.Errorf("duplicate location in a city error = %v, want unique violation", err)
	}
	if _, err := repo.CreateCity(ctx, "Paris"); !IsUniqueViolation(err) {
		t.Errorf("duplicate city error = %v, want unique violation", err)
	}

	loc, err := repo.FindLocation(ctx, "Gare", lyon)
	if err != nil {
		t.Fatalf("FindLocation() error = %v", err)
	}
	if loc.City != "Lyon" {
		t.Errorf("FindLocation() city = %q, want Lyon", loc.City)
	}
}

func TestLinkRepo_AddRemoveAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	r := NewRepos(db)
	ctx := context.Background()

	entry := &Entry{Date: "2024-01-15", FilePath: "a.md"}
	if err := r.Entries.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	a, _ := r.Tags.Create(ctx, "a")
	b, _ := r.Tags.Create(ctx, "b")

	steps := []struct {
		name    string
		run     func() (bool, error)
		changed bool
	}{
		{name: "add a", run: func() (bool, error) { return r.Links.Add(ctx, EntryTags, entry.ID, a) }, changed: true},
		{name: "add a again", run: func() (bool, error) { return r.Links.Add(ctx, EntryTags, entry.ID, a) }, changed: false},
		{name: "add b", run: func() (bool, error) { return r.Links.Add(ctx, EntryTags, entry.ID, b) }, changed: true},
		{name: "remove a", run: func() (bool, error) { return r.Links.Remove(ctx, EntryTags, entry.ID, a) }, changed: true},
		{name: "remove a again", run: func() (bool, error) { return r.Links.Remove(ctx, EntryTags, entry.ID, a) }, changed: false},
	}
	for _, s := range steps {
		changed, err := s.run()
		if err != nil {
			t.Fatalf("%s: error = %v", s.name, err)
		}
		if changed != s.changed {
			t.Errorf("%s: changed = %v, want %v", s.name, changed, s.changed)
		}
	}

	members, err := r.Links.Members(ctx, EntryTags, entry.ID)
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	if !reflect.DeepEqual(members, []int64{b}) {
		t.Errorf("Members() = %v, want [%d]", members, b)
	}
}

func TestPoemRepo_VersionHashUniquePerPoem(t *testing.T) {
	db := newTestDB(t)
	repo := NewPoemRepo(db)
	ctx := context.Background()

	x1, _ := repo.Create(ctx, "X")
	x2, _ := repo.Create(ctx, "X")

	found, err := repo.FindByTitle(ctx, "X")
	if err != nil {
		t.Fatalf("FindByTitle() error = %v", err)
	}
	if found.ID != x1 {
		t.Errorf("FindByTitle() = %d, want oldest poem %d", found.ID, x1)
	}

	v := &PoemVersion{PoemID: x1, Content: "same", ContentHash: "h1", RevisionDate: "2024-01-15"}
	if err := repo.CreateVersion(ctx, v); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
	if err := repo.CreateVersion(ctx, &PoemVersion{PoemID: x1, Content: "same", ContentHash: "h1", RevisionDate: "2024-01-16"}); !IsUniqueViolation(err) {
		t.Errorf("duplicate hash under one poem error = %v, want unique violation", err)
	}
	if err := repo.CreateVersion(ctx, &PoemVersion{PoemID: x2, Content: "same", ContentHash: "h1", RevisionDate: "2024-01-16"}); err != nil {
		t.Errorf("same hash under another poem should be allowed: %v", err)
	}

	other := &PoemVersion{PoemID: x1, Content: "other", ContentHash: "h2", RevisionDate: "2024-01-17"}
	if err := repo.CreateVersion(ctx, other); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}
	if err := repo.UpdateVersionContent(ctx, other.ID, "same", "h1"); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("UpdateVersionContent() onto a sibling hash error = %v, want conflict", err)
	}
}

func TestTombstoneRepo(t *testing.T) {
	db := newTestDB(t)
	repo := NewTombstoneRepo(db)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	soon := now.Add(time.Hour)

	ts := &Tombstone{Table: EntryPeople.Table, LeftID: 1, RightID: 2, RemovedAt: now, RemovedBy: "me", SyncSource: "laptop", ExpiresAt: &soon}
	if err := repo.Upsert(ctx, ts); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	ts.SyncSource = "phone"
	if err := repo.Upsert(ctx, ts); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, &Tombstone{Table: EntryTags.Table, LeftID: 1, RightID: 3, RemovedAt: now, RemovedBy: "me", SyncSource: "laptop"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.Get(ctx, EntryPeople, 1, 2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SyncSource != "phone" || !got.Live(now) || got.Live(soon.Add(time.Second)) {
		t.Errorf("Get() = %+v", got)
	}

	live, err := repo.List(ctx, soon.Add(time.Minute), false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(live) != 1 || live[0].Table != EntryTags.Table {
		t.Errorf("List() live = %+v, want only the non-expiring tombstone", live)
	}

	n, err := repo.Prune(ctx, soon.Add(time.Minute))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if _, err := repo.Get(ctx, EntryPeople, 1, 2); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Get() after prune error = %v, want ErrNotFound", err)
	}
}

func TestMetaRepo_DeviceIDIsStable(t *testing.T) {
	repo := NewMetaRepo(newTestDB(t))
	ctx := context.Background()

	first, err := repo.DeviceID(ctx, "")
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	second, err := repo.DeviceID(ctx, "")
	if err != nil {
		t.Fatalf("DeviceID() error = %v", err)
	}
	if first == "" || first != second {
		t.Errorf("DeviceID() = %q then %q, want a stable id", first, second)
	}

	override, err := repo.DeviceID(ctx, "laptop")
	if err != nil || override != "laptop" {
		t.Errorf("DeviceID(override) = %q, %v", override, err)
	}
}

func TestErrorClassification(t *testing.T) {
	if IsUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Error("plain errors are not sqlite errors")
	}
	if IsBusy(nil) {
		t.Error("IsBusy(nil) should be false")
	}
}
