package storage

// Repos bundles every repository over one DBTX, typically a transaction.
type Repos struct {
	Entries     *EntryRepo
	Persons     *PersonRepo
	Places      *PlaceRepo
	Events      *VocabRepo
	Tags        *VocabRepo
	Arcs        *VocabRepo
	Themes      *VocabRepo
	Motifs      *VocabRepo
	Sources     *SourceRepo
	Links       *LinkRepo
	Scenes      *SceneRepo
	Threads     *ThreadRepo
	Moments     *MomentRepo
	References  *ReferenceRepo
	Poems       *PoemRepo
	ThemeUses   *InstanceRepo
	MotifUses   *InstanceRepo
	Manuscripts *ManuscriptRepo
	Tombstones  *TombstoneRepo
	Meta        *MetaRepo
}

// NewRepos creates all repositories over db.
func NewRepos(db DBTX) *Repos {
	return &Repos{
		Entries:     NewEntryRepo(db),
		Persons:     NewPersonRepo(db),
		Places:      NewPlaceRepo(db),
		Events:      NewVocabRepo(db, Events),
		Tags:        NewVocabRepo(db, Tags),
		Arcs:        NewVocabRepo(db, Arcs),
		Themes:      NewVocabRepo(db, Themes),
		Motifs:      NewVocabRepo(db, Motifs),
		Sources:     NewSourceRepo(db),
		Links:       NewLinkRepo(db),
		Scenes:      NewSceneRepo(db),
		Threads:     NewThreadRepo(db),
		Moments:     NewMomentRepo(db),
		References:  NewReferenceRepo(db),
		Poems:       NewPoemRepo(db),
		ThemeUses:   NewThemeInstanceRepo(db),
		MotifUses:   NewMotifInstanceRepo(db),
		Manuscripts: NewManuscriptRepo(db),
		Tombstones:  NewTombstoneRepo(db),
		Meta:        NewMetaRepo(db),
	}
}
