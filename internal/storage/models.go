package storage

import "time"

// Deletion holds the soft-delete marker shared by entries, persons and poems.
// All three fields are set together and cleared together.
type Deletion struct {
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
	Reason    string     `json:"deletion_reason,omitempty"`
}

// IsDeleted reports whether the record is soft-deleted.
func (d Deletion) IsDeleted() bool { return d.DeletedAt != nil }

// Entry is the central per-date journal record.
type Entry struct {
	ID                  int64     `json:"id"`
	Date                string    `json:"date"`
	FilePath            string    `json:"file_path"`
	FileHash            string    `json:"file_hash"`
	WordCount           int       `json:"word_count"`
	ReadingTime         float64   `json:"reading_time"`
	Rating              *float64  `json:"rating,omitempty"`
	Epigraph            string    `json:"epigraph,omitempty"`
	EpigraphAttribution string    `json:"epigraph_attribution,omitempty"`
	Notes               string    `json:"notes,omitempty"`
	ExcludeEntryDate    bool      `json:"exclude_entry_date,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	Deletion
}

// Person is a canonical person. Alias is unique among active persons.
type Person struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Lastname      string `json:"lastname,omitempty"`
	Disambiguator string `json:"disambiguator,omitempty"`
	FullName      string `json:"full_name,omitempty"`
	Alias         string `json:"alias,omitempty"`
	Deletion
}

// City is unique by name.
type City struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Location is unique per city.
type Location struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	CityID int64  `json:"city_id"`
	City   string `json:"city,omitempty"`
}

// Named is a row of a controlled vocabulary table (events, tags, arcs,
// themes, motifs).
type Named struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Scene is owned by one entry.
type Scene struct {
	ID          int64    `json:"id"`
	EntryID     int64    `json:"entry_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Dates       []string `json:"dates,omitempty"`
}

// Thread links a proximate moment to a distant one within an entry.
type Thread struct {
	ID              int64  `json:"id"`
	EntryID         int64  `json:"entry_id"`
	Name            string `json:"name"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	ReferencedEntry string `json:"referenced_entry,omitempty"`
	Content         string `json:"content,omitempty"`
}

// Moment is a date mentioned in an entry.
type Moment struct {
	ID      int64  `json:"id"`
	EntryID int64  `json:"entry_id"`
	Date    string `json:"date"`
	Context string `json:"context,omitempty"`
}

// ReferenceSource is a shared work referenced by entries.
type ReferenceSource struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Type   string `json:"type"`
	Author string `json:"author,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Reference is a quotation or allusion in an entry.
type Reference struct {
	ID          int64  `json:"id"`
	EntryID     int64  `json:"entry_id"`
	SourceID    *int64 `json:"source_id,omitempty"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
	Mode        string `json:"mode"`
	Speaker     string `json:"speaker,omitempty"`
}

// Poem is the parent of poem versions. Titles are not unique.
type Poem struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Deletion
}

// PoemVersion is one revision of a poem. ContentHash is unique per poem.
type PoemVersion struct {
	ID           int64     `json:"id"`
	PoemID       int64     `json:"poem_id"`
	Content      string    `json:"content"`
	ContentHash  string    `json:"content_hash"`
	RevisionDate string    `json:"revision_date"`
	Notes        string    `json:"notes,omitempty"`
	EntryID      *int64    `json:"entry_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Instance pairs a theme or motif with an entry-specific description.
type Instance struct {
	ID          int64  `json:"id"`
	EntryID     int64  `json:"entry_id"`
	VocabID     int64  `json:"vocab_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Manuscript is the editorial record of an entry.
type Manuscript struct {
	EntryID int64  `json:"entry_id"`
	Status  string `json:"status"`
	Edited  bool   `json:"edited"`
	Notes   string `json:"notes,omitempty"`
}

// Tombstone records that an association was removed.
type Tombstone struct {
	ID         int64      `json:"id"`
	Table      string     `json:"table_name"`
	LeftID     int64      `json:"left_id"`
	RightID    int64      `json:"right_id"`
	RemovedAt  time.Time  `json:"removed_at"`
	RemovedBy  string     `json:"removed_by"`
	SyncSource string     `json:"sync_source"`
	Reason     string     `json:"reason,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Live reports whether the tombstone has not expired at now.
func (t Tombstone) Live(now time.Time) bool {
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// timestamp normalizes times written to the store so that stored values
// compare correctly as text.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
