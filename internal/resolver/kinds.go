package resolver

import (
	"context"

	"journal-sync/internal/document"
	"journal-sync/internal/storage"
)

// LocationKey is the natural key of a location: unique per city.
type LocationKey struct {
	Name string
	City string
}

// City resolves cities by name.
var City = Kind[string]{
	Name: "city",
	Lookup: func(ctx context.Context, q storage.DBTX, name string) (int64, error) {
		c, err := storage.NewPlaceRepo(q).FindCity(ctx, name)
		if err != nil {
			return 0, err
		}
		return c.ID, nil
	},
	Create: func(ctx context.Context, q storage.DBTX, name string) (int64, error) {
		return storage.NewPlaceRepo(q).CreateCity(ctx, name)
	},
	Exists: func(ctx context.Context, q storage.DBTX, id int64) error {
		_, err := storage.NewPlaceRepo(q).GetCity(ctx, id)
		return err
	},
}

// Location resolves locations by (name, city), creating the city as needed.
var Location = Kind[LocationKey]{
	Name: "location",
	Lookup: func(ctx context.Context, q storage.DBTX, key LocationKey) (int64, error) {
		places := storage.NewPlaceRepo(q)
		c, err := places.FindCity(ctx, key.City)
		if err != nil {
			return 0, err
		}
		l, err := places.FindLocation(ctx, key.Name, c.ID)
		if err != nil {
			return 0, err
		}
		return l.ID, nil
	},
	Create: func(ctx context.Context, q storage.DBTX, key LocationKey) (int64, error) {
		cityID, err := GetOrCreate(ctx, q, City, key.City)
		if err != nil {
			return 0, err
		}
		return storage.NewPlaceRepo(q).CreateLocation(ctx, key.Name, cityID)
	},
	Exists: func(ctx context.Context, q storage.DBTX, id int64) error {
		_, err := storage.NewPlaceRepo(q).GetLocation(ctx, id)
		return err
	},
}

// Person resolves persons by alias first, then by (name, lastname,
// disambiguator). A match by key adopts the spec's alias and full name when
// the stored person has none.
var Person = Kind[document.PersonSpec]{
	Name: "person",
	Lookup: func(ctx context.Context, q storage.DBTX, spec document.PersonSpec) (int64, error) {
		persons := storage.NewPersonRepo(q)
		if spec.Alias != "" {
			p, err := persons.FindByAlias(ctx, spec.Alias)
			if err == nil {
				return p.ID, nil
			}
			if !isNotFound(err) {
				return 0, err
			}
		}
		p, err := persons.FindByKey(ctx, spec.Name, spec.Lastname, spec.Disambiguator)
		if err != nil {
			return 0, err
		}
		return p.ID, nil
	},
	Adopt: func(ctx context.Context, q storage.DBTX, id int64, spec document.PersonSpec) error {
		if spec.Alias == "" && spec.FullName == "" {
			return nil
		}
		persons := storage.NewPersonRepo(q)
		p, err := persons.Get(ctx, id)
		if err != nil {
			return err
		}
		if (spec.Alias != "" && p.Alias == "") || (spec.FullName != "" && p.FullName == "") {
			return persons.FillBlanks(ctx, p.ID, spec.Alias, spec.FullName)
		}
		return nil
	},
	Create: func(ctx context.Context, q storage.DBTX, spec document.PersonSpec) (int64, error) {
		p := &storage.Person{
			Name:          spec.Name,
			Lastname:      spec.Lastname,
			Disambiguator: spec.Disambiguator,
			FullName:      spec.FullName,
			Alias:         spec.Alias,
		}
		if err := storage.NewPersonRepo(q).Create(ctx, p); err != nil {
			return 0, err
		}
		return p.ID, nil
	},
	Exists: func(ctx context.Context, q storage.DBTX, id int64) error {
		_, err := storage.NewPersonRepo(q).Get(ctx, id)
		return err
	},
}

// Vocabulary returns the kind for a named vocabulary table (storage.Events,
// storage.Tags, storage.Arcs, storage.Themes or storage.Motifs).
func Vocabulary(table string) Kind[string] {
	entity := storage.NewVocabRepo(nil, table).Entity()
	return Kind[string]{
		Name: entity,
		Lookup: func(ctx context.Context, q storage.DBTX, name string) (int64, error) {
			n, err := storage.NewVocabRepo(q, table).Find(ctx, name)
			if err != nil {
				return 0, err
			}
			return n.ID, nil
		},
		Create: func(ctx context.Context, q storage.DBTX, name string) (int64, error) {
			return storage.NewVocabRepo(q, table).Create(ctx, name)
		},
		Exists: func(ctx context.Context, q storage.DBTX, id int64) error {
			_, err := storage.NewVocabRepo(q, table).Get(ctx, id)
			return err
		},
	}
}

var (
	Event = Vocabulary(storage.Events)
	Tag   = Vocabulary(storage.Tags)
	Arc   = Vocabulary(storage.Arcs)
	Theme = Vocabulary(storage.Themes)
	Motif = Vocabulary(storage.Motifs)
)

// Source resolves reference sources by title. A match adopts author and url
// when the stored source has none.
var Source = Kind[document.SourceSpec]{
	Name: "reference source",
	Lookup: func(ctx context.Context, q storage.DBTX, spec document.SourceSpec) (int64, error) {
		s, err := storage.NewSourceRepo(q).FindByTitle(ctx, spec.Title)
		if err != nil {
			return 0, err
		}
		return s.ID, nil
	},
	Adopt: func(ctx context.Context, q storage.DBTX, id int64, spec document.SourceSpec) error {
		if spec.Author == "" && spec.URL == "" {
			return nil
		}
		sources := storage.NewSourceRepo(q)
		s, err := sources.Get(ctx, id)
		if err != nil {
			return err
		}
		if (spec.Author != "" && s.Author == "") || (spec.URL != "" && s.URL == "") {
			return sources.FillBlanks(ctx, s.ID, spec.Author, spec.URL)
		}
		return nil
	},
	Create: func(ctx context.Context, q storage.DBTX, spec document.SourceSpec) (int64, error) {
		s := &storage.ReferenceSource{Title: spec.Title, Type: string(spec.Type), Author: spec.Author, URL: spec.URL}
		if err := storage.NewSourceRepo(q).Create(ctx, s); err != nil {
			return 0, err
		}
		return s.ID, nil
	},
	Exists: func(ctx context.Context, q storage.DBTX, id int64) error {
		_, err := storage.NewSourceRepo(q).Get(ctx, id)
		return err
	},
}

// Poem resolves poems by title. Titles are not unique: the oldest active
// poem with the title wins, and a poem is created only when none exists.
var Poem = Kind[string]{
	Name: "poem",
	Lookup: func(ctx context.Context, q storage.DBTX, title string) (int64, error) {
		p, err := storage.NewPoemRepo(q).FindByTitle(ctx, title)
		if err != nil {
			return 0, err
		}
		return p.ID, nil
	},
	Create: func(ctx context.Context, q storage.DBTX, title string) (int64, error) {
		return storage.NewPoemRepo(q).Create(ctx, title)
	},
	Exists: func(ctx context.Context, q storage.DBTX, id int64) error {
		_, err := storage.NewPoemRepo(q).Get(ctx, id)
		return err
	},
}
