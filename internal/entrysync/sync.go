package entrysync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"journal-sync/internal/contextutil"
	"journal-sync/internal/dedup"
	"journal-sync/internal/document"
	"journal-sync/internal/errs"
	"journal-sync/internal/matcher"
	"journal-sync/internal/reconcile"
	"journal-sync/internal/resolver"
	"journal-sync/internal/storage"
)

// syncer applies one document's relationships to one entry inside a
// transaction. It lives for a single call.
type syncer struct {
	ctx      context.Context
	tx       storage.DBTX
	repos    *storage.Repos
	rec      *reconcile.Reconciler
	versions *dedup.Engine
	logger   *slog.Logger

	entry *storage.Entry
	meta  *document.Metadata
	mode  reconcile.Mode
	rm    Removals

	result reconcile.Result

	people    []matcher.Candidate
	locations []matcher.Candidate
	events    []matcher.Candidate
}

// sync drives every relationship category in dependency order and returns
// the add conflicts found along the way.
func (m *Manager) sync(ctx context.Context, tx storage.DBTX, e *storage.Entry, meta *document.Metadata,
	mode reconcile.Mode, rm Removals) ([]reconcile.Conflict, error) {
	s := &syncer{
		ctx:      ctx,
		tx:       tx,
		repos:    storage.NewRepos(tx),
		rec:      m.rec,
		versions: m.versions,
		logger:   contextutil.LoggerFromContext(ctx),
		entry:    e,
		meta:     meta,
		mode:     mode,
		rm:       rm,
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"cities", s.cities},
		{"locations", s.syncLocations},
		{"people", s.syncPeople},
		{"tags", s.tags},
		{"arcs", s.arcs},
		{"candidates", s.loadCandidates},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("failed to sync %s: %w", step.name, err)
		}
	}

	sceneIDs, err := s.scenes()
	if err != nil {
		return nil, fmt.Errorf("failed to sync scenes: %w", err)
	}
	if err := s.syncEvents(sceneIDs); err != nil {
		return nil, fmt.Errorf("failed to sync events: %w", err)
	}

	steps = []struct {
		name string
		run  func() error
	}{
		{"threads", s.threads},
		{"dates", s.moments},
		{"themes", func() error { return s.instances(s.repos.ThemeUses, resolver.Theme, s.meta.Themes) }},
		{"motifs", func() error { return s.instances(s.repos.MotifUses, resolver.Motif, s.meta.Motifs) }},
		{"references", s.references},
		{"poems", s.poems},
		{"manuscript", s.manuscript},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("failed to sync %s: %w", step.name, err)
		}
	}
	return s.result.Conflicts, nil
}

func (s *syncer) overwrite() bool {
	return s.mode == reconcile.Overwrite
}

func (s *syncer) merge(res reconcile.Result, err error) error {
	if err != nil {
		return err
	}
	s.result.Merge(res)
	return nil
}

func (s *syncer) cities() error {
	names := append([]string(nil), s.meta.Cities...)
	for city := range s.meta.Locations {
		if !slices.Contains(names, city) {
			names = append(names, city)
		}
	}
	return s.merge(reconcile.ApplyRefs(s.ctx, s.tx, s.rec, storage.EntryCities, s.entry.ID, s.mode,
		resolver.City, reconcile.Keys(names), reconcile.Keys(s.rm.Cities)))
}

func locationKeys(cities []string, locations map[string][]string) []resolver.LocationKey {
	var keys []resolver.LocationKey
	seen := map[string]bool{}
	add := func(city string) {
		if seen[city] {
			return
		}
		seen[city] = true
		for _, name := range locations[city] {
			keys = append(keys, resolver.LocationKey{Name: name, City: city})
		}
	}
	for _, city := range cities {
		add(city)
	}
	for _, city := range slices.Sorted(maps.Keys(locations)) {
		add(city)
	}
	return keys
}

func (s *syncer) syncLocations() error {
	desired := locationKeys(s.meta.Cities, s.meta.Locations)
	remove := locationKeys(nil, s.rm.Locations)
	return s.merge(reconcile.ApplyRefs(s.ctx, s.tx, s.rec, storage.EntryLocations, s.entry.ID, s.mode,
		resolver.Location, reconcile.Keys(desired), reconcile.Keys(remove)))
}

func (s *syncer) syncPeople() error {
	return s.merge(reconcile.ApplyRefs(s.ctx, s.tx, s.rec, storage.EntryPeople, s.entry.ID, s.mode,
		resolver.Person, reconcile.Keys(s.meta.People), reconcile.Keys(s.rm.People)))
}

func (s *syncer) tags() error {
	return s.merge(reconcile.ApplyRefs(s.ctx, s.tx, s.rec, storage.EntryTags, s.entry.ID, s.mode,
		resolver.Tag, reconcile.Keys(s.meta.Tags), reconcile.Keys(s.rm.Tags)))
}

func (s *syncer) arcs() error {
	return s.merge(reconcile.ApplyRefs(s.ctx, s.tx, s.rec, storage.EntryArcs, s.entry.ID, s.mode,
		resolver.Arc, reconcile.Keys(s.meta.Arcs), reconcile.Keys(s.rm.Arcs)))
}

// loadCandidates reads back the entry's resolved people and locations so
// nested references can be matched against them.
func (s *syncer) loadCandidates() error {
	ids, err := s.repos.Links.Members(s.ctx, storage.EntryPeople, s.entry.ID)
	if err != nil {
		return err
	}
	persons, err := s.repos.Persons.ListByIDs(s.ctx, ids)
	if err != nil {
		return err
	}
	s.people = matcher.People(persons)

	ids, err = s.repos.Links.Members(s.ctx, storage.EntryLocations, s.entry.ID)
	if err != nil {
		return err
	}
	locations, err := s.repos.Places.ListLocations(s.ctx, ids)
	if err != nil {
		return err
	}
	s.locations = matcher.Locations(locations)
	return nil
}

// personRefs turns raw person tokens into the names they can be matched by.
// A token that does not follow the name grammar is matched verbatim.
func personRefs(tokens []string) [][]string {
	refs := make([][]string, 0, len(tokens))
	for _, t := range tokens {
		spec, err := document.ParsePersonToken(t)
		if err != nil {
			refs = append(refs, []string{t})
			continue
		}
		refs = append(refs, matcher.PersonNames(spec))
	}
	return refs
}

func plainRefs(names []string) [][]string {
	refs := make([][]string, len(names))
	for i, n := range names {
		refs[i] = []string{n}
	}
	return refs
}

// subset links owner to the members of candidates named by refs. Names with
// no match are skipped, never created.
func (s *syncer) subset(rel storage.Relation, owner int64, refs [][]string, candidates []matcher.Candidate) error {
	ids, missed := matcher.Subset(refs, candidates)
	for _, name := range missed {
		s.logger.WarnContext(s.ctx, "skipping unresolved reference",
			"relation", rel.Table,
			"owner_id", owner,
			"name", name,
		)
	}
	return s.merge(s.rec.Apply(s.ctx, s.tx, rel, owner, s.mode, ids, nil))
}

// scenes upserts the entry's scenes and returns their ids by name for the
// events step.
func (s *syncer) scenes() (map[string]int64, error) {
	if s.overwrite() {
		if err := s.repos.Scenes.DeleteByEntry(s.ctx, s.entry.ID); err != nil {
			return nil, err
		}
	}
	ids := make(map[string]int64, len(s.meta.Scenes))
	for i, spec := range s.meta.Scenes {
		sc := &storage.Scene{
			EntryID:     s.entry.ID,
			Name:        spec.Name,
			Description: spec.Description,
			Dates:       spec.Dates,
		}
		if err := s.repos.Scenes.Upsert(s.ctx, sc, i); err != nil {
			return nil, err
		}
		ids[spec.Name] = sc.ID
		if err := s.subset(storage.ScenePeople, sc.ID, personRefs(spec.People), s.people); err != nil {
			return nil, err
		}
		if err := s.subset(storage.SceneLocations, sc.ID, plainRefs(spec.Locations), s.locations); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// syncEvents links the entry's events, then groups the named scenes under
// each event. Events span entries, so scene grouping only ever adds.
func (s *syncer) syncEvents(sceneIDs map[string]int64) error {
	names := make([]string, len(s.meta.Events))
	for i, ev := range s.meta.Events {
		names[i] = ev.Name
	}
	if err := s.merge(reconcile.ApplyRefs(s.ctx, s.tx, s.rec, storage.EntryEvents, s.entry.ID, s.mode,
		resolver.Event, reconcile.Keys(names), reconcile.Keys(s.rm.Events))); err != nil {
		return err
	}

	for _, ev := range s.meta.Events {
		if len(ev.Scenes) == 0 {
			continue
		}
		eventID, err := resolver.GetOrCreate(s.ctx, s.tx, resolver.Event, ev.Name)
		if err != nil {
			return err
		}
		var ids []int64
		for _, name := range ev.Scenes {
			id, ok := sceneIDs[name]
			if !ok {
				sc, err := s.repos.Scenes.GetByName(s.ctx, s.entry.ID, name)
				switch {
				case err == nil:
					id, ok = sc.ID, true
				case !errors.Is(err, errs.ErrNotFound):
					return err
				}
			}
			if !ok {
				s.logger.WarnContext(s.ctx, "skipping unknown scene in event", "event", ev.Name, "scene", name)
				continue
			}
			ids = append(ids, id)
		}
		if err := s.merge(s.rec.Apply(s.ctx, s.tx, storage.EventScenes, eventID, reconcile.Incremental, ids, nil)); err != nil {
			return err
		}
	}

	ids, err := s.repos.Links.Members(s.ctx, storage.EntryEvents, s.entry.ID)
	if err != nil {
		return err
	}
	s.events = s.events[:0]
	for _, id := range ids {
		ev, err := s.repos.Events.Get(s.ctx, id)
		if err != nil {
			return err
		}
		s.events = append(s.events, matcher.Candidate{ID: id, Names: []string{ev.Name}})
	}
	return nil
}

func (s *syncer) threads() error {
	if s.overwrite() {
		if err := s.repos.Threads.DeleteByEntry(s.ctx, s.entry.ID); err != nil {
			return err
		}
	}
	for i, spec := range s.meta.Threads {
		t := &storage.Thread{
			EntryID:         s.entry.ID,
			Name:            spec.Name,
			From:            spec.From,
			To:              spec.To,
			ReferencedEntry: spec.Entry,
			Content:         spec.Content,
		}
		if err := s.repos.Threads.Upsert(s.ctx, t, i); err != nil {
			return err
		}
		if err := s.subset(storage.ThreadPeople, t.ID, personRefs(spec.People), s.people); err != nil {
			return err
		}
		if err := s.subset(storage.ThreadLocations, t.ID, plainRefs(spec.Locations), s.locations); err != nil {
			return err
		}
	}
	return nil
}

func (s *syncer) moments() error {
	if s.overwrite() {
		if err := s.repos.Moments.DeleteByEntry(s.ctx, s.entry.ID); err != nil {
			return err
		}
	}
	for i, spec := range s.meta.Dates {
		mo := &storage.Moment{EntryID: s.entry.ID, Date: spec.Date, Context: spec.Context}
		if err := s.repos.Moments.Upsert(s.ctx, mo, i); err != nil {
			return err
		}
		if err := s.subset(storage.MomentPeople, mo.ID, personRefs(spec.People), s.people); err != nil {
			return err
		}
		if err := s.subset(storage.MomentLocations, mo.ID, plainRefs(spec.Locations), s.locations); err != nil {
			return err
		}
		if err := s.subset(storage.MomentEvents, mo.ID, plainRefs(spec.Events), s.events); err != nil {
			return err
		}
	}
	return nil
}

func (s *syncer) instances(uses *storage.InstanceRepo, kind resolver.Kind[string], specs []document.InstanceSpec) error {
	if s.overwrite() {
		if err := uses.DeleteByEntry(s.ctx, s.entry.ID); err != nil {
			return err
		}
	}
	for i, spec := range specs {
		id, err := resolver.GetOrCreate(s.ctx, s.tx, kind, spec.Name)
		if err != nil {
			return err
		}
		inst := &storage.Instance{EntryID: s.entry.ID, VocabID: id, Description: spec.Description}
		if err := uses.Upsert(s.ctx, inst, i); err != nil {
			return err
		}
	}
	return nil
}

// references replaces the entry's references in overwrite mode, and appends
// the ones not already attached in incremental mode.
func (s *syncer) references() error {
	offset := 0
	if s.overwrite() {
		if err := s.repos.References.DeleteByEntry(s.ctx, s.entry.ID); err != nil {
			return err
		}
	} else {
		n, err := s.repos.References.Count(s.ctx, s.entry.ID)
		if err != nil {
			return err
		}
		offset = n
	}

	for i, spec := range s.meta.References {
		ref := &storage.Reference{
			EntryID:     s.entry.ID,
			Content:     spec.Content,
			Description: spec.Description,
			Mode:        string(spec.Mode),
			Speaker:     spec.Speaker,
		}
		if spec.Source != nil {
			id, err := resolver.GetOrCreate(s.ctx, s.tx, resolver.Source, *spec.Source)
			if err != nil {
				return err
			}
			ref.SourceID = &id
		}
		if !s.overwrite() {
			exists, err := s.repos.References.Exists(s.ctx, ref)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
		}
		if err := s.repos.References.Create(s.ctx, ref, offset+i); err != nil {
			return err
		}
	}
	return nil
}

// poems resolves each poem by title, deduplicates its version by content and
// links the versions to the entry.
func (s *syncer) poems() error {
	entryID := s.entry.ID
	ids := make([]int64, 0, len(s.meta.Poems))
	for _, spec := range s.meta.Poems {
		poemID, err := resolver.GetOrCreate(s.ctx, s.tx, resolver.Poem, spec.Title)
		if err != nil {
			return err
		}
		v, _, err := s.versions.Resolve(s.ctx, s.tx, dedup.Version{
			PoemID:       poemID,
			Content:      spec.Content,
			RevisionDate: spec.RevisionDate,
			EntryDate:    s.entry.Date,
			EntryID:      &entryID,
			Notes:        spec.Notes,
		})
		if err != nil {
			return err
		}
		ids = append(ids, v.ID)
	}
	return s.merge(s.rec.Apply(s.ctx, s.tx, storage.EntryPoemVersions, s.entry.ID, s.mode, ids, nil))
}

func (s *syncer) manuscript() error {
	ms := s.meta.Manuscript
	if ms == nil {
		if s.overwrite() {
			return s.repos.Manuscripts.Delete(s.ctx, s.entry.ID)
		}
		return nil
	}
	err := s.repos.Manuscripts.Upsert(s.ctx, &storage.Manuscript{
		EntryID: s.entry.ID,
		Status:  string(ms.Status),
		Edited:  ms.Edited,
		Notes:   ms.Notes,
	})
	if err != nil {
		return err
	}
	return s.merge(reconcile.ApplyRefs(s.ctx, s.tx, s.rec, storage.ManuscriptThemes, s.entry.ID, s.mode,
		resolver.Theme, reconcile.Keys(ms.Themes), nil))
}
