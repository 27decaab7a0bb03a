// Package document parses journal documents (YAML front matter followed by a
// free-text body) into typed metadata and serializes them back.
//
// Parse and Serialize obey a round-trip law: for any document d accepted by
// Parse, Parse(Serialize(d)) yields the same date and an equal Metadata value.
// Metadata is canonical after parsing (names trimmed, enums normalized,
// granular dates validated), which is what makes the law hold.
package document

import "time"

// DateLayout is the on-disk layout of calendar dates.
const DateLayout = "2006-01-02"

// Document is a parsed journal document.
type Document struct {
	Date     time.Time
	Metadata Metadata
	Body     []string
}

// Metadata is the normalized header of a document.
type Metadata struct {
	WordCount           *int                `json:"word_count,omitempty"`
	ReadingTime         *float64            `json:"reading_time,omitempty"`
	Rating              *float64            `json:"rating,omitempty"`
	Epigraph            string              `json:"epigraph,omitempty"`
	EpigraphAttribution string              `json:"epigraph_attribution,omitempty"`
	Notes               string              `json:"notes,omitempty"`
	Cities              []string            `json:"cities,omitempty"`
	Locations           map[string][]string `json:"locations,omitempty"`
	People              []PersonSpec        `json:"people,omitempty"`
	Dates               []MomentSpec        `json:"dates,omitempty"`
	ExcludeEntryDate    bool                `json:"exclude_entry_date,omitempty"`
	Events              []EventSpec         `json:"events,omitempty"`
	Scenes              []SceneSpec         `json:"scenes,omitempty"`
	Threads             []ThreadSpec        `json:"threads,omitempty"`
	Tags                []string            `json:"tags,omitempty"`
	Arcs                []string            `json:"arcs,omitempty"`
	Themes              []InstanceSpec      `json:"themes,omitempty"`
	Motifs              []InstanceSpec      `json:"motifs,omitempty"`
	References          []ReferenceSpec     `json:"references,omitempty"`
	Poems               []PoemSpec          `json:"poems,omitempty"`
	Manuscript          *ManuscriptSpec     `json:"manuscript,omitempty"`
}

// PersonSpec identifies a person by natural key plus optional alias.
type PersonSpec struct {
	Name          string `json:"name"`
	Lastname      string `json:"lastname,omitempty"`
	Disambiguator string `json:"disambiguator,omitempty"`
	Alias         string `json:"alias,omitempty"`
	FullName      string `json:"full_name,omitempty"`
}

// MomentSpec is a date mentioned inside an entry.
type MomentSpec struct {
	Date      string   `json:"date"`
	Context   string   `json:"context,omitempty"`
	People    []string `json:"people,omitempty"`
	Locations []string `json:"locations,omitempty"`
	Events    []string `json:"events,omitempty"`
}

// EventSpec groups named scenes of the entry under a shared event.
type EventSpec struct {
	Name   string   `json:"name"`
	Scenes []string `json:"scenes,omitempty"`
}

// SceneSpec is a scene owned by the entry. People and Locations name members
// of the entry's own people and locations.
type SceneSpec struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Dates       []string `json:"dates,omitempty"`
	People      []string `json:"people,omitempty"`
	Locations   []string `json:"locations,omitempty"`
}

// ThreadSpec links a proximate moment to a distant one.
type ThreadSpec struct {
	Name      string   `json:"name"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	Entry     string   `json:"entry,omitempty"`
	Content   string   `json:"content,omitempty"`
	People    []string `json:"people,omitempty"`
	Locations []string `json:"locations,omitempty"`
}

// InstanceSpec pairs a theme or motif with an entry-specific description.
type InstanceSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ReferenceSpec is a quotation or allusion with an optional source.
type ReferenceSpec struct {
	Content     string        `json:"content,omitempty"`
	Description string        `json:"description,omitempty"`
	Mode        ReferenceMode `json:"mode"`
	Speaker     string        `json:"speaker,omitempty"`
	Source      *SourceSpec   `json:"source,omitempty"`
}

// SourceSpec is the shared work a reference points to.
type SourceSpec struct {
	Title  string     `json:"title"`
	Type   SourceType `json:"type"`
	Author string     `json:"author,omitempty"`
	URL    string     `json:"url,omitempty"`
}

// PoemSpec is one revision of a poem as written in an entry.
type PoemSpec struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	RevisionDate string `json:"revision_date,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// ManuscriptSpec is the entry's editorial status.
type ManuscriptSpec struct {
	Status ManuscriptStatus `json:"status"`
	Edited bool             `json:"edited,omitempty"`
	Notes  string           `json:"notes,omitempty"`
	Themes []string         `json:"themes,omitempty"`
}

// DateString returns the document date in DateLayout.
func (d *Document) DateString() string {
	return d.Date.Format(DateLayout)
}
