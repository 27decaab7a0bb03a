package document

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Serialize renders d as front matter plus body. Keys are written in a fixed
// order and compact forms are used only when they parse back unchanged.
func Serialize(d *Document) ([]byte, error) {
	header, err := MarshalHeader(d.Date.Format(DateLayout), &d.Metadata)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(header)
	buf.WriteString(delimiter + "\n")
	buf.WriteString(strings.Join(d.Body, "\n"))
	return buf.Bytes(), nil
}

// MarshalHeader renders the YAML header (without delimiters).
func MarshalHeader(date string, m *Metadata) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value *yaml.Node) {
		if value != nil {
			root.Content = append(root.Content, str(key), value)
		}
	}

	add("date", plain(date))
	if m.WordCount != nil {
		add("word_count", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(*m.WordCount)})
	}
	if m.ReadingTime != nil {
		add("reading_time", floatNode(*m.ReadingTime))
	}
	if m.Rating != nil {
		add("rating", floatNode(*m.Rating))
	}
	add("epigraph", optStr(m.Epigraph))
	add("epigraph_attribution", optStr(m.EpigraphAttribution))
	add("city", citiesNode(m.Cities))
	add("locations", locationsNode(m.Cities, m.Locations))
	add("people", peopleNode(m.People))
	add("dates", datesNode(m.Dates, m.ExcludeEntryDate))
	add("events", eventsNode(m.Events))
	add("scenes", scenesNode(m.Scenes))
	add("threads", threadsNode(m.Threads))
	add("tags", flowList(m.Tags))
	add("arcs", flowList(m.Arcs))
	add("themes", instancesNode(m.Themes))
	add("motifs", instancesNode(m.Motifs))
	add("references", referencesNode(m.References))
	add("poems", poemsNode(m.Poems))
	add("manuscript", manuscriptNode(m.Manuscript))
	add("notes", optStr(m.Notes))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}
	return buf.Bytes(), nil
}

func str(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.Contains(s, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

func optStr(s string) *yaml.Node {
	if s == "" {
		return nil
	}
	return str(s)
}

func plain(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: s}
}

func floatNode(f float64) *yaml.Node {
	v := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(v, ".eE") {
		v += ".0"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: v}
}

func seq(items ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Content: items}
}

func flowList(values []string) *yaml.Node {
	if len(values) == 0 {
		return nil
	}
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range values {
		n.Content = append(n.Content, str(v))
	}
	return n
}

// object builds a mapping from key/value pairs, skipping nil values.
func object(pairs ...any) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for i := 0; i+1 < len(pairs); i += 2 {
		v, _ := pairs[i+1].(*yaml.Node)
		if v == nil {
			continue
		}
		n.Content = append(n.Content, str(pairs[i].(string)), v)
	}
	return n
}

func citiesNode(cities []string) *yaml.Node {
	switch len(cities) {
	case 0:
		return nil
	case 1:
		return str(cities[0])
	}
	return flowList(cities)
}

func locationsNode(cities []string, locs map[string][]string) *yaml.Node {
	if len(locs) == 0 {
		return nil
	}
	if len(cities) == 1 && len(locs) == 1 && len(locs[cities[0]]) > 0 {
		return flowList(locs[cities[0]])
	}

	keys := make([]string, 0, len(locs))
	for _, c := range cities {
		if len(locs[c]) > 0 {
			keys = append(keys, c)
		}
	}
	var extra []string
	for c := range locs {
		if !contains(cities, c) && len(locs[c]) > 0 {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range keys {
		n.Content = append(n.Content, str(c), flowList(locs[c]))
	}
	return n
}

func peopleNode(people []PersonSpec) *yaml.Node {
	if len(people) == 0 {
		return nil
	}
	n := seq()
	for _, p := range people {
		if tok, ok := personToken(p); ok {
			n.Content = append(n.Content, str(tok))
			continue
		}
		n.Content = append(n.Content, object(
			"name", optStr(p.Name),
			"lastname", optStr(p.Lastname),
			"disambiguator", optStr(p.Disambiguator),
			"alias", optStr(p.Alias),
			"full_name", optStr(p.FullName),
		))
	}
	return n
}

func datesNode(moments []MomentSpec, exclude bool) *yaml.Node {
	if len(moments) == 0 && !exclude {
		return nil
	}
	n := seq()
	if exclude {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "~"})
	}
	for _, m := range moments {
		if len(m.People) == 0 && len(m.Locations) == 0 && len(m.Events) == 0 {
			tok := formatDateContext(m.Date, m.Context)
			if m.Context == "" {
				n.Content = append(n.Content, plain(tok))
				continue
			}
			if d, c, ok := splitDateContext(tok); ok && d == m.Date && c == m.Context {
				n.Content = append(n.Content, str(tok))
				continue
			}
		}
		n.Content = append(n.Content, object(
			"date", plain(m.Date),
			"context", optStr(m.Context),
			"people", flowList(m.People),
			"locations", flowList(m.Locations),
			"events", flowList(m.Events),
		))
	}
	return n
}

func eventsNode(events []EventSpec) *yaml.Node {
	if len(events) == 0 {
		return nil
	}
	n := seq()
	for _, ev := range events {
		if len(ev.Scenes) == 0 {
			n.Content = append(n.Content, str(ev.Name))
			continue
		}
		n.Content = append(n.Content, object("name", str(ev.Name), "scenes", flowList(ev.Scenes)))
	}
	return n
}

func scenesNode(scenes []SceneSpec) *yaml.Node {
	if len(scenes) == 0 {
		return nil
	}
	n := seq()
	for _, sc := range scenes {
		var date *yaml.Node
		switch len(sc.Dates) {
		case 0:
		case 1:
			date = plain(sc.Dates[0])
		default:
			date = &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for _, d := range sc.Dates {
				date.Content = append(date.Content, plain(d))
			}
		}
		n.Content = append(n.Content, object(
			"name", str(sc.Name),
			"description", optStr(sc.Description),
			"date", date,
			"people", flowList(sc.People),
			"locations", flowList(sc.Locations),
		))
	}
	return n
}

func threadsNode(threads []ThreadSpec) *yaml.Node {
	if len(threads) == 0 {
		return nil
	}
	n := seq()
	for _, th := range threads {
		n.Content = append(n.Content, object(
			"name", str(th.Name),
			"from", optPlain(th.From),
			"to", optPlain(th.To),
			"entry", optPlain(th.Entry),
			"content", optStr(th.Content),
			"people", flowList(th.People),
			"locations", flowList(th.Locations),
		))
	}
	return n
}

func optPlain(s string) *yaml.Node {
	if s == "" {
		return nil
	}
	return plain(s)
}

func instancesNode(items []InstanceSpec) *yaml.Node {
	if len(items) == 0 {
		return nil
	}
	n := seq()
	for _, it := range items {
		if it.Description == "" {
			n.Content = append(n.Content, str(it.Name))
			continue
		}
		n.Content = append(n.Content, object("name", str(it.Name), "description", str(it.Description)))
	}
	return n
}

func referencesNode(refs []ReferenceSpec) *yaml.Node {
	if len(refs) == 0 {
		return nil
	}
	n := seq()
	for _, r := range refs {
		var mode *yaml.Node
		if r.Mode != "" && r.Mode != ModeDirect {
			mode = str(string(r.Mode))
		}
		var src *yaml.Node
		if r.Source != nil {
			src = object(
				"title", str(r.Source.Title),
				"type", str(string(r.Source.Type)),
				"author", optStr(r.Source.Author),
				"url", optStr(r.Source.URL),
			)
		}
		n.Content = append(n.Content, object(
			"content", optStr(r.Content),
			"description", optStr(r.Description),
			"mode", mode,
			"speaker", optStr(r.Speaker),
			"source", src,
		))
	}
	return n
}

func poemsNode(poems []PoemSpec) *yaml.Node {
	if len(poems) == 0 {
		return nil
	}
	n := seq()
	for _, p := range poems {
		content := str(p.Content)
		content.Style = yaml.LiteralStyle
		n.Content = append(n.Content, object(
			"title", str(p.Title),
			"content", content,
			"revision_date", optPlain(p.RevisionDate),
			"notes", optStr(p.Notes),
		))
	}
	return n
}

func manuscriptNode(ms *ManuscriptSpec) *yaml.Node {
	if ms == nil {
		return nil
	}
	var edited *yaml.Node
	if ms.Edited {
		edited = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"}
	}
	status := ms.Status
	if status == "" {
		status = StatusUnspecified
	}
	return object(
		"status", str(string(status)),
		"edited", edited,
		"notes", optStr(ms.Notes),
		"themes", flowList(ms.Themes),
	)
}
