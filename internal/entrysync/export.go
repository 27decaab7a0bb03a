package entrysync

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"journal-sync/internal/document"
	"journal-sync/internal/errs"
	"journal-sync/internal/storage"
)

// Exporter rebuilds documents from the store.
type Exporter struct {
	repos *storage.Repos
}

// NewExporter creates an Exporter reading through db.
func NewExporter(db storage.DBTX) *Exporter {
	return &Exporter{repos: storage.NewRepos(db)}
}

// Document rebuilds the document of entry e. The body is read from the
// entry's file when it still exists, and left empty otherwise.
func (x *Exporter) Document(ctx context.Context, e *storage.Entry) (*document.Document, error) {
	date, err := time.Parse(document.DateLayout, e.Date)
	if err != nil {
		return nil, errs.Invalid("date", "stored date %q: %v", e.Date, err)
	}
	meta, err := x.Metadata(ctx, e)
	if err != nil {
		return nil, err
	}
	doc := &document.Document{Date: date, Metadata: *meta}
	if data, err := os.ReadFile(e.FilePath); err == nil {
		if parsed, err := document.ParseNamed(e.FilePath, data); err == nil {
			doc.Body = parsed.Body
		}
	}
	return doc, nil
}

// Metadata rebuilds the header of entry e from its stored relationships.
func (x *Exporter) Metadata(ctx context.Context, e *storage.Entry) (*document.Metadata, error) {
	words, minutes := e.WordCount, e.ReadingTime
	meta := &document.Metadata{
		WordCount:           &words,
		ReadingTime:         &minutes,
		Rating:              e.Rating,
		Epigraph:            e.Epigraph,
		EpigraphAttribution: e.EpigraphAttribution,
		Notes:               e.Notes,
		ExcludeEntryDate:    e.ExcludeEntryDate,
	}

	steps := []func(context.Context, *storage.Entry, *document.Metadata) error{
		x.places,
		x.people,
		x.vocabulary,
		x.scenesAndEvents,
		x.threads,
		x.moments,
		x.instances,
		x.references,
		x.poems,
		x.manuscript,
	}
	for _, step := range steps {
		if err := step(ctx, e, meta); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func (x *Exporter) members(ctx context.Context, rel storage.Relation, owner int64) ([]int64, error) {
	return x.repos.Links.Members(ctx, rel, owner)
}

func (x *Exporter) places(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	ids, err := x.members(ctx, storage.EntryCities, e.ID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		c, err := x.repos.Places.GetCity(ctx, id)
		if err != nil {
			return err
		}
		meta.Cities = append(meta.Cities, c.Name)
	}

	ids, err = x.members(ctx, storage.EntryLocations, e.ID)
	if err != nil {
		return err
	}
	locations, err := x.repos.Places.ListLocations(ctx, ids)
	if err != nil {
		return err
	}
	for _, l := range locations {
		if meta.Locations == nil {
			meta.Locations = map[string][]string{}
		}
		meta.Locations[l.City] = append(meta.Locations[l.City], l.Name)
	}
	return nil
}

func personSpec(p storage.Person) document.PersonSpec {
	return document.PersonSpec{
		Name:          p.Name,
		Lastname:      p.Lastname,
		Disambiguator: p.Disambiguator,
		Alias:         p.Alias,
		FullName:      p.FullName,
	}
}

// personToken renders p so that it matches the same person when synced back.
func personToken(p storage.Person) string {
	switch {
	case p.Alias != "":
		return "@" + p.Alias
	case p.Lastname != "":
		return p.Name + " " + p.Lastname
	}
	return strings.ReplaceAll(p.Name, " ", "-")
}

func (x *Exporter) personTokens(ctx context.Context, rel storage.Relation, owner int64) ([]string, error) {
	ids, err := x.members(ctx, rel, owner)
	if err != nil {
		return nil, err
	}
	persons, err := x.repos.Persons.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	var tokens []string
	for _, p := range persons {
		tokens = append(tokens, personToken(p))
	}
	return tokens, nil
}

func (x *Exporter) locationNames(ctx context.Context, rel storage.Relation, owner int64) ([]string, error) {
	ids, err := x.members(ctx, rel, owner)
	if err != nil {
		return nil, err
	}
	locations, err := x.repos.Places.ListLocations(ctx, ids)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, l := range locations {
		names = append(names, l.Name)
	}
	return names, nil
}

func (x *Exporter) people(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	ids, err := x.members(ctx, storage.EntryPeople, e.ID)
	if err != nil {
		return err
	}
	persons, err := x.repos.Persons.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range persons {
		meta.People = append(meta.People, personSpec(p))
	}
	return nil
}

func (x *Exporter) vocabulary(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	for _, v := range []struct {
		rel  storage.Relation
		repo *storage.VocabRepo
		dst  *[]string
	}{
		{storage.EntryTags, x.repos.Tags, &meta.Tags},
		{storage.EntryArcs, x.repos.Arcs, &meta.Arcs},
	} {
		ids, err := x.members(ctx, v.rel, e.ID)
		if err != nil {
			return err
		}
		names, err := v.repo.Names(ctx, ids)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			*v.dst = names
		}
	}
	return nil
}

func (x *Exporter) scenesAndEvents(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	scenes, err := x.repos.Scenes.ListByEntry(ctx, e.ID)
	if err != nil {
		return err
	}
	sceneNames := make(map[int64]string, len(scenes))
	for _, sc := range scenes {
		sceneNames[sc.ID] = sc.Name
		spec := document.SceneSpec{Name: sc.Name, Description: sc.Description, Dates: sc.Dates}
		if spec.People, err = x.personTokens(ctx, storage.ScenePeople, sc.ID); err != nil {
			return err
		}
		if spec.Locations, err = x.locationNames(ctx, storage.SceneLocations, sc.ID); err != nil {
			return err
		}
		meta.Scenes = append(meta.Scenes, spec)
	}

	ids, err := x.members(ctx, storage.EntryEvents, e.ID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		ev, err := x.repos.Events.Get(ctx, id)
		if err != nil {
			return err
		}
		spec := document.EventSpec{Name: ev.Name}
		grouped, err := x.members(ctx, storage.EventScenes, id)
		if err != nil {
			return err
		}
		for _, sceneID := range grouped {
			if name, ok := sceneNames[sceneID]; ok {
				spec.Scenes = append(spec.Scenes, name)
			}
		}
		meta.Events = append(meta.Events, spec)
	}
	return nil
}

func (x *Exporter) threads(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	threads, err := x.repos.Threads.ListByEntry(ctx, e.ID)
	if err != nil {
		return err
	}
	for _, t := range threads {
		spec := document.ThreadSpec{
			Name:    t.Name,
			From:    t.From,
			To:      t.To,
			Entry:   t.ReferencedEntry,
			Content: t.Content,
		}
		if spec.People, err = x.personTokens(ctx, storage.ThreadPeople, t.ID); err != nil {
			return err
		}
		if spec.Locations, err = x.locationNames(ctx, storage.ThreadLocations, t.ID); err != nil {
			return err
		}
		meta.Threads = append(meta.Threads, spec)
	}
	return nil
}

func (x *Exporter) moments(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	moments, err := x.repos.Moments.ListByEntry(ctx, e.ID)
	if err != nil {
		return err
	}
	for _, m := range moments {
		spec := document.MomentSpec{Date: m.Date, Context: m.Context}
		if spec.People, err = x.personTokens(ctx, storage.MomentPeople, m.ID); err != nil {
			return err
		}
		if spec.Locations, err = x.locationNames(ctx, storage.MomentLocations, m.ID); err != nil {
			return err
		}
		ids, err := x.members(ctx, storage.MomentEvents, m.ID)
		if err != nil {
			return err
		}
		names, err := x.repos.Events.Names(ctx, ids)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			spec.Events = names
		}
		meta.Dates = append(meta.Dates, spec)
	}
	return nil
}

func (x *Exporter) instances(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	for _, v := range []struct {
		uses *storage.InstanceRepo
		dst  *[]document.InstanceSpec
	}{
		{x.repos.ThemeUses, &meta.Themes},
		{x.repos.MotifUses, &meta.Motifs},
	} {
		items, err := v.uses.ListByEntry(ctx, e.ID)
		if err != nil {
			return err
		}
		for _, it := range items {
			*v.dst = append(*v.dst, document.InstanceSpec{Name: it.Name, Description: it.Description})
		}
	}
	return nil
}

func (x *Exporter) references(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	refs, err := x.repos.References.ListByEntry(ctx, e.ID)
	if err != nil {
		return err
	}
	for _, r := range refs {
		spec := document.ReferenceSpec{
			Content:     r.Content,
			Description: r.Description,
			Mode:        document.ReferenceMode(r.Mode),
			Speaker:     r.Speaker,
		}
		if r.SourceID != nil {
			s, err := x.repos.Sources.Get(ctx, *r.SourceID)
			if err != nil {
				return err
			}
			spec.Source = &document.SourceSpec{
				Title:  s.Title,
				Type:   document.SourceType(s.Type),
				Author: s.Author,
				URL:    s.URL,
			}
		}
		meta.References = append(meta.References, spec)
	}
	return nil
}

func (x *Exporter) poems(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	ids, err := x.members(ctx, storage.EntryPoemVersions, e.ID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		v, err := x.repos.Poems.GetVersion(ctx, id)
		if err != nil {
			return err
		}
		p, err := x.repos.Poems.Get(ctx, v.PoemID)
		if err != nil {
			return err
		}
		meta.Poems = append(meta.Poems, document.PoemSpec{
			Title:        p.Title,
			Content:      v.Content,
			RevisionDate: v.RevisionDate,
			Notes:        v.Notes,
		})
	}
	return nil
}

func (x *Exporter) manuscript(ctx context.Context, e *storage.Entry, meta *document.Metadata) error {
	ms, err := x.repos.Manuscripts.Get(ctx, e.ID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	spec := &document.ManuscriptSpec{
		Status: document.ManuscriptStatus(ms.Status),
		Edited: ms.Edited,
		Notes:  ms.Notes,
	}
	ids, err := x.members(ctx, storage.ManuscriptThemes, e.ID)
	if err != nil {
		return err
	}
	names, err := x.repos.Themes.Names(ctx, ids)
	if err != nil {
		return err
	}
	if len(names) > 0 {
		spec.Themes = names
	}
	meta.Manuscript = spec
	return nil
}
