package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"journal-sync/internal/errs"
)

func TestEntryRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewEntryRepo(db)
	ctx := context.Background()

	rating := 4.5
	entry := &Entry{
		Date:        "2024-01-15",
		FilePath:    "2024/2024-01-15.md",
		FileHash:    "abc",
		WordCount:   120,
		ReadingTime: 0.6,
		Rating:      &rating,
		Epigraph:    "Two roads",
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == 0 {
		t.Fatal("Create() should set ID")
	}

	tests := []struct {
		name string
		get  func() (*Entry, error)
	}{
		{name: "by id", get: func() (*Entry, error) { return repo.Get(ctx, entry.ID, false) }},
		{name: "by date", get: func() (*Entry, error) { return repo.GetByDate(ctx, "2024-01-15", false) }},
		{name: "by path", get: func() (*Entry, error) { return repo.GetByPath(ctx, "2024/2024-01-15.md", false) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.get()
			if err != nil {
				t.Fatalf("get error = %v", err)
			}
			if got.ID != entry.ID || got.WordCount != 120 || got.Epigraph != "Two roads" {
				t.Errorf("got %+v", got)
			}
			if got.Rating == nil || *got.Rating != 4.5 {
				t.Errorf("Rating = %v, want 4.5", got.Rating)
			}
			if got.IsDeleted() {
				t.Error("new entry should not be deleted")
			}
		})
	}
}

func TestEntryRepo_CreateDuplicate(t *testing.T) {
	db := newTestDB(t)
	repo := NewEntryRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &Entry{Date: "2024-01-15", FilePath: "a.md"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name  string
		entry *Entry
	}{
		{name: "same path", entry: &Entry{Date: "2024-01-16", FilePath: "a.md"}},
		{name: "same date", entry: &Entry{Date: "2024-01-15", FilePath: "b.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, tt.entry)
			if !errs.IsDatabase(err) || !errors.Is(err, errs.ErrConflict) {
				t.Errorf("Create() error = %v, want DatabaseError conflict", err)
			}
		})
	}
}

func TestEntryRepo_GetMissing(t *testing.T) {
	repo := NewEntryRepo(newTestDB(t))

	_, err := repo.Get(context.Background(), 42, true)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestEntryRepo_SoftDeleteAndRestore(t *testing.T) {
	db := newTestDB(t)
	repo := NewEntryRepo(db)
	soft := NewSoftDeleter(db)
	ctx := context.Background()

	entry := &Entry{Date: "2024-01-15", FilePath: "a.md"}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := soft.Delete(ctx, "entries", entry.ID, "laptop", "cleanup", time.Now()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := repo.Get(ctx, entry.ID, false); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Get() default after delete error = %v, want ErrNotFound", err)
	}
	got, err := repo.Get(ctx, entry.ID, true)
	if err != nil {
		t.Fatalf("Get(includeDeleted) error = %v", err)
	}
	if !got.IsDeleted() || got.DeletedBy != "laptop" || got.Reason != "cleanup" {
		t.Errorf("deletion = %+v", got.Deletion)
	}
	if list, _ := repo.List(ctx, false); len(list) != 0 {
		t.Errorf("List() default = %d entries, want 0", len(list))
	}

	if err := soft.Delete(ctx, "entries", entry.ID, "laptop", "again", time.Now()); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("second Delete() error = %v, want conflict", err)
	}

	if err := soft.Restore(ctx, "entries", entry.ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	got, err = repo.Get(ctx, entry.ID, false)
	if err != nil {
		t.Fatalf("Get() after restore error = %v", err)
	}
	if got.Deletion != (Deletion{}) {
		t.Errorf("Restore() should clear all deletion fields, got %+v", got.Deletion)
	}

	err = soft.Restore(ctx, "entries", entry.ID)
	if !errs.IsDatabase(err) {
		t.Errorf("Restore() of active entry error = %v, want DatabaseError", err)
	}
	if err := soft.Restore(ctx, "entries", 999); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Restore() of missing entry error = %v, want ErrNotFound", err)
	}
}

func TestEntryRepo_HardDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	r := NewRepos(db)
	ctx := context.Background()

	entry := &Entry{Date: "2024-01-15", FilePath: "a.md"}
	if err := r.Entries.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	scene := &Scene{EntryID: entry.ID, Name: "Coffee", Dates: []string{"2024-01-14"}}
	if err := r.Scenes.Upsert(ctx, scene, 0); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	tagID, err := r.Tags.Create(ctx, "winter")
	if err != nil {
		t.Fatalf("Create tag error = %v", err)
	}
	if _, err := r.Links.Add(ctx, EntryTags, entry.ID, tagID); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := r.Entries.HardDelete(ctx, entry.ID); err != nil {
		t.Fatalf("HardDelete() error = %v", err)
	}

	scenes, err := r.Scenes.ListByEntry(ctx, entry.ID)
	if err != nil || len(scenes) != 0 {
		t.Errorf("scenes after hard delete = %v, %v", scenes, err)
	}
	var links int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entry_tags WHERE tag_id = ?", tagID).Scan(&links); err != nil || links != 0 {
		t.Errorf("tag links after hard delete = %d, %v", links, err)
	}
	if _, err := r.Tags.Get(ctx, tagID); err != nil {
		t.Errorf("shared tag should survive entry deletion: %v", err)
	}
}
