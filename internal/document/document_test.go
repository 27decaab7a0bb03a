package document

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journal-sync/internal/errs"
)

func TestParse_MinimalDocument(t *testing.T) {
	doc, err := Parse([]byte("---\ndate: 2024-01-15\n---\nHello.\n"))
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", doc.DateString())
	assert.Equal(t, Metadata{}, doc.Metadata)
	assert.Equal(t, []string{"Hello.", ""}, doc.Body)
}

func TestParse_RFC3339DateKeepsDay(t *testing.T) {
	doc, err := Parse([]byte("---\ndate: 2024-01-15T23:10:00-05:00\n---\n"))
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", doc.DateString())
	assert.Nil(t, doc.Body)
}

func TestParse_CRLF(t *testing.T) {
	doc, err := Parse([]byte("---\r\ndate: 2024-01-15\r\ntags: [a]\r\n---\r\nline\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, doc.Metadata.Tags)
	assert.Equal(t, []string{"line", ""}, doc.Body)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantParse bool
		wantField string
	}{
		{name: "no front matter", input: "just text\n", wantField: "date"},
		{name: "unterminated", input: "---\ndate: 2024-01-15\n", wantParse: true},
		{name: "malformed yaml", input: "---\ndate: [2024\n---\n", wantParse: true},
		{name: "not a mapping", input: "---\n- a\n- b\n---\n", wantParse: true},
		{name: "missing date", input: "---\ntags: [a]\n---\n", wantField: "date"},
		{name: "empty header", input: "---\n---\n", wantField: "date"},
		{name: "bad date", input: "---\ndate: someday\n---\n", wantField: "date"},
		{name: "bad word count", input: "---\ndate: 2024-01-15\nword_count: many\n---\n", wantField: "word_count"},
		{name: "rating out of range", input: "---\ndate: 2024-01-15\nrating: 7\n---\n", wantField: "rating"},
		{name: "negative rating", input: "---\ndate: 2024-01-15\nrating: -0.5\n---\n", wantField: "rating"},
		{name: "flat locations without city", input: "---\ndate: 2024-01-15\nlocations: [Park]\n---\n", wantField: "locations"},
		{name: "flat locations with two cities", input: "---\ndate: 2024-01-15\ncity: [A, B]\nlocations: [Park]\n---\n", wantField: "locations"},
		{name: "multiword alias", input: "---\ndate: 2024-01-15\npeople: [\"@big bob\"]\n---\n", wantField: "people"},
		{name: "unknown source type", input: "---\ndate: 2024-01-15\nreferences:\n  - content: x\n    source: {title: T, type: opera}\n---\n", wantField: "source.type"},
		{name: "reference without content", input: "---\ndate: 2024-01-15\nreferences:\n  - speaker: me\n---\n", wantField: "references"},
		{name: "poem without content", input: "---\ndate: 2024-01-15\npoems:\n  - title: X\n---\n", wantField: "poems.content"},
		{name: "bad scene date", input: "---\ndate: 2024-01-15\nscenes:\n  - name: S\n    date: 2024-13\n---\n", wantField: "scenes.date"},
		{name: "duplicate scene", input: "---\ndate: 2024-01-15\nscenes:\n  - name: S\n  - name: S\n---\n", wantField: "scenes.name"},
		{name: "unknown status", input: "---\ndate: 2024-01-15\nmanuscript: {status: lost}\n---\n", wantField: "manuscript.status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			if tt.wantParse {
				assert.True(t, errs.IsParse(err), "want ParseError, got %v", err)
				return
			}
			var ve *errs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestParse_RatingBounds(t *testing.T) {
	for _, v := range []string{"0", "3.5", "5"} {
		doc, err := Parse([]byte("---\ndate: 2024-01-15\nrating: " + v + "\n---\n"))
		require.NoError(t, err, v)
		require.NotNil(t, doc.Metadata.Rating)
	}
	_, err := Parse([]byte("---\ndate: 2024-01-15\nrating: 5.01\n---\n"))
	assert.True(t, errs.IsValidation(err))
}

func TestParse_MalformedYAMLReportsLine(t *testing.T) {
	_, err := ParseNamed("2024/2024-01-15.md", []byte("---\ndate: 2024-01-15\ntags: [a\n---\n"))
	var pe *errs.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "2024/2024-01-15.md", pe.Path)
	assert.Greater(t, pe.Line, 1)
}

func TestParse_LocationsMappingAddsCities(t *testing.T) {
	doc, err := Parse([]byte("---\ndate: 2024-01-15\ncity: Paris\nlocations:\n  Lyon: [Gare]\n  Paris: [Louvre, Louvre]\n---\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris", "Lyon"}, doc.Metadata.Cities)
	assert.Equal(t, map[string][]string{"Lyon": {"Gare"}, "Paris": {"Louvre"}}, doc.Metadata.Locations)
}

func TestParse_Dates(t *testing.T) {
	t.Run("entry date added when dates present", func(t *testing.T) {
		doc, err := Parse([]byte("---\ndate: 2024-01-15\ndates:\n  - 2024-01-10\n---\n"))
		require.NoError(t, err)
		assert.Equal(t, []MomentSpec{{Date: "2024-01-15"}, {Date: "2024-01-10"}}, doc.Metadata.Dates)
		assert.False(t, doc.Metadata.ExcludeEntryDate)
	})

	t.Run("tilde opts out of entry date", func(t *testing.T) {
		doc, err := Parse([]byte("---\ndate: 2024-01-15\ndates:\n  - ~\n  - 2024-01-10 (the call)\n---\n"))
		require.NoError(t, err)
		assert.Equal(t, []MomentSpec{{Date: "2024-01-10", Context: "the call"}}, doc.Metadata.Dates)
		assert.True(t, doc.Metadata.ExcludeEntryDate)
	})

	t.Run("no dates key means no moments", func(t *testing.T) {
		doc, err := Parse([]byte("---\ndate: 2024-01-15\n---\n"))
		require.NoError(t, err)
		assert.Nil(t, doc.Metadata.Dates)
	})

	t.Run("duplicate date rejected", func(t *testing.T) {
		_, err := Parse([]byte("---\ndate: 2024-01-15\ndates: [2024-01-10, 2024-01-10]\n---\n"))
		assert.True(t, errs.IsValidation(err))
	})
}

func TestParsePersonToken(t *testing.T) {
	tests := []struct {
		input   string
		want    PersonSpec
		wantErr bool
	}{
		{input: "Alice", want: PersonSpec{Name: "Alice"}},
		{input: "  María-José ", want: PersonSpec{Name: "María José"}},
		{input: "Robert Smith", want: PersonSpec{Name: "Robert", Lastname: "Smith"}},
		{input: "Mary-Ann van Dyke", want: PersonSpec{Name: "Mary-Ann", Lastname: "van Dyke"}},
		{input: "Bob (Robert Smith)", want: PersonSpec{Name: "Bob", Lastname: "Smith", FullName: "Robert Smith"}},
		{input: "Bob Jones (Robert Jones)", want: PersonSpec{Name: "Bob", Lastname: "Jones", FullName: "Robert Jones"}},
		{input: "@bobby", want: PersonSpec{Name: "bobby", Alias: "bobby"}},
		{input: "@big-al", want: PersonSpec{Name: "big al", Alias: "big-al"}},
		{input: "@bobby (Bob Smith)", want: PersonSpec{Name: "Bob", Lastname: "Smith", Alias: "bobby"}},
		{input: "", wantErr: true},
		{input: "@", wantErr: true},
		{input: "Bob (", wantErr: true},
		{input: "(Robert)", wantErr: true},
		{input: "Bob ((x))", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePersonToken(tt.input)
			if tt.wantErr {
				assert.True(t, errs.IsValidation(err), "want ValidationError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnums(t *testing.T) {
	mode, err := ParseReferenceMode("PARAPHRASE")
	require.NoError(t, err)
	assert.Equal(t, ModeParaphrase, mode)

	mode, err = ParseReferenceMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, mode)

	typ, err := ParseSourceType("TV Show")
	require.NoError(t, err)
	assert.Equal(t, SourceTVShow, typ)

	typ, err = ParseSourceType("movie")
	require.NoError(t, err)
	assert.Equal(t, SourceFilm, typ)

	status, err := ParseManuscriptStatus("Fragmentary")
	require.NoError(t, err)
	assert.Equal(t, StatusFragment, status)

	status, err = ParseManuscriptStatus("")
	require.NoError(t, err)
	assert.Equal(t, StatusUnspecified, status)

	_, err = ParseReferenceMode("telepathic")
	assert.True(t, errs.IsValidation(err))
}

func TestRoundTrip(t *testing.T) {
	fixture, err := os.ReadFile(filepath.Join("testdata", "entry.md"))
	require.NoError(t, err)

	inputs := map[string]string{
		"fixture": string(fixture),
		"minimal": "---\ndate: 2024-02-01\n---\n",
		"people forms": `---
date: 2024-02-01
people:
  - Alice
  - Mary-Jo
  - Robert Smith
  - Bob (Robert Smith)
  - "@bobby"
  - "@al (Alan Turing)"
  - {name: Sam, disambiguator: work}
  - {name: Kim, alias: kk, full_name: Kim Lee}
---
`,
		"dates and threads": `---
date: 2024-02-01
dates:
  - ~
  - 2024-01-01 (new year (again))
  - {date: 2023-06-01, context: "line one: colon", locations: [Park], events: [Trip]}
threads:
  - name: Old flame
    from: 2024-02
    to: "2019"
    entry: 2019-05-04
    content: |
      First line
      second line
    people: [Alice]
---
`,
		"scenes and multi city": `---
date: 2024-02-01
city: [Paris, Lyon]
locations:
  Paris: [Louvre]
  Lyon: [Gare, "Parc: Tête d'Or"]
scenes:
  - name: Museum
    date: [2024-01-30, "2024"]
events: [Trip, {name: Visit, scenes: [Museum]}]
arcs: [travel]
motifs: [trains, {name: rain, description: "it rained \"all day\""}]
---
`,
		"scalars and manuscript": `---
date: 2024-02-01
word_count: 0
reading_time: 3
rating: 0
epigraph: |
  Two roads
  diverged
epigraph_attribution: Frost
notes: "#hashtag: not a comment"
references:
  - description: allusion to Ulysses
    mode: Indirect
    source: {title: Ulysses, type: novel, url: "https://example.org/u?x=1"}
poems:
  - title: Indented
    content: "  leading spaces\nend  "
    revision_date: 2024-01-02
    notes: draft two
manuscript:
  status: Included
  notes: keep
  themes: [loss]
---
body
`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			doc, err := Parse([]byte(input))
			require.NoError(t, err)

			out, err := Serialize(doc)
			require.NoError(t, err)

			again, err := Parse(out)
			require.NoError(t, err, "serialized form:\n%s", out)

			assert.Equal(t, doc.Date, again.Date)
			assert.Equal(t, doc.Metadata, again.Metadata, "serialized form:\n%s", out)
			assert.Equal(t, doc.Body, again.Body)
		})
	}
}

func TestSerialize_CompactForms(t *testing.T) {
	doc, err := Parse([]byte("---\ndate: 2024-01-15\ncity: Montreal\nlocations: [Cafe]\npeople: [Bob (Robert Smith), Mary-Jo]\ntags: [a, b]\n---\n"))
	require.NoError(t, err)

	out, err := Serialize(doc)
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "date: 2024-01-15\n")
	assert.Contains(t, s, "city: Montreal\n")
	assert.Contains(t, s, "locations: [Cafe]\n")
	assert.Contains(t, s, "- Bob (Robert Smith)\n")
	assert.Contains(t, s, "- Mary-Jo\n")
	assert.Contains(t, s, "tags: [a, b]\n")
}

func TestGolden_ParsedFixture(t *testing.T) {
	doc, err := ParseFile(filepath.Join("testdata", "entry.md"))
	require.NoError(t, err)

	snapshot := struct {
		Date     string   `json:"date"`
		Metadata Metadata `json:"metadata"`
		Body     []string `json:"body"`
	}{doc.DateString(), doc.Metadata, doc.Body}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "entry", append(data, '\n'))
}

func TestBodyStats(t *testing.T) {
	body := []string{
		"# Title",
		"",
		"Hello **world**, this is",
		"a test.",
		"",
		"```",
		"code here is skipped",
		"```",
	}

	words, minutes := BodyStats(body, 7)
	assert.Equal(t, 7, words)
	assert.Equal(t, 1.0, minutes)

	words, minutes = BodyStats(nil, 0)
	assert.Zero(t, words)
	assert.Zero(t, minutes)
}
