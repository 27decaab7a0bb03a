package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"journal-sync/internal/errs"
)

const delimiter = "---"

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// Parse parses a document held in memory.
func Parse(data []byte) (*Document, error) {
	return ParseNamed("", data)
}

// ParseFile reads and parses the document at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return ParseNamed(path, data)
}

// ParseNamed parses data, attributing parse errors to path.
func ParseNamed(path string, data []byte) (*Document, error) {
	header, body, err := splitFrontMatter(path, data)
	if err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(header, &root); err != nil {
		return nil, &errs.ParseError{Path: path, Line: yamlErrorLine(err), Err: err}
	}

	fields := map[string]*yaml.Node{}
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		m := root.Content[0]
		if m.Kind != yaml.MappingNode {
			return nil, &errs.ParseError{Path: path, Line: m.Line + 1, Err: errors.New("front matter must be a mapping")}
		}
		for i := 0; i+1 < len(m.Content); i += 2 {
			fields[m.Content[i].Value] = m.Content[i+1]
		}
	}

	dateNode, ok := fields["date"]
	if !ok || isNull(dateNode) {
		return nil, errs.Invalid("date", "is required")
	}
	if dateNode.Kind != yaml.ScalarNode {
		return nil, errs.Invalid("date", "must be a scalar")
	}
	date, err := ParseEntryDate(dateNode.Value)
	if err != nil {
		return nil, err
	}

	doc := &Document{Date: date, Body: body}
	p := &metaParser{fields: fields, meta: &doc.Metadata, entryDate: date.Format(DateLayout)}
	if err := p.run(); err != nil {
		return nil, err
	}
	return doc, nil
}

func splitFrontMatter(path string, data []byte) (header []byte, body []string, err error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t") != delimiter {
		return nil, nil, errs.Invalid("date", "is required (document has no front matter)")
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t") != delimiter {
			continue
		}
		header = []byte(strings.Join(lines[1:i], "\n"))
		body = lines[i+1:]
		if len(body) == 0 || (len(body) == 1 && body[0] == "") {
			body = nil
		}
		return header, body, nil
	}
	return nil, nil, &errs.ParseError{Path: path, Line: 1, Err: errors.New("unterminated front matter")}
}

// yamlErrorLine maps a yaml error line to a document line (offset by the
// opening delimiter).
func yamlErrorLine(err error) int {
	m := yamlLineRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n + 1
}

type metaParser struct {
	fields    map[string]*yaml.Node
	meta      *Metadata
	entryDate string
}

// run processes keys in dependency order: cities before locations.
func (p *metaParser) run() error {
	steps := []struct {
		key string
		fn  func(*yaml.Node) error
	}{
		{"word_count", p.wordCount},
		{"reading_time", p.readingTime},
		{"rating", p.rating},
		{"epigraph", p.text("epigraph", &p.meta.Epigraph)},
		{"epigraph_attribution", p.text("epigraph_attribution", &p.meta.EpigraphAttribution)},
		{"notes", p.text("notes", &p.meta.Notes)},
		{"city", p.cities},
		{"locations", p.locations},
		{"people", p.people},
		{"dates", p.dates},
		{"events", p.events},
		{"scenes", p.scenes},
		{"threads", p.threads},
		{"tags", p.names("tags", &p.meta.Tags)},
		{"arcs", p.names("arcs", &p.meta.Arcs)},
		{"themes", p.instances("themes", &p.meta.Themes)},
		{"motifs", p.instances("motifs", &p.meta.Motifs)},
		{"references", p.references},
		{"poems", p.poems},
		{"manuscript", p.manuscript},
	}
	for _, s := range steps {
		n, ok := p.fields[s.key]
		if !ok || isNull(n) {
			continue
		}
		if err := s.fn(n); err != nil {
			return err
		}
	}
	return nil
}

func (p *metaParser) wordCount(n *yaml.Node) error {
	v, err := scalar("word_count", n)
	if err != nil {
		return err
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return errs.Invalid("word_count", "must be a non-negative integer, got %q", v)
	}
	p.meta.WordCount = &i
	return nil
}

func (p *metaParser) readingTime(n *yaml.Node) error {
	f, err := floatValue("reading_time", n)
	if err != nil {
		return err
	}
	if f < 0 {
		return errs.Invalid("reading_time", "must not be negative")
	}
	p.meta.ReadingTime = &f
	return nil
}

func (p *metaParser) rating(n *yaml.Node) error {
	f, err := floatValue("rating", n)
	if err != nil {
		return err
	}
	if f < 0 || f > 5 {
		return errs.Invalid("rating", "must be between 0 and 5, got %v", f)
	}
	p.meta.Rating = &f
	return nil
}

func (p *metaParser) text(field string, dst *string) func(*yaml.Node) error {
	return func(n *yaml.Node) error {
		v, err := scalar(field, n)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(v)
		return nil
	}
}

func (p *metaParser) names(field string, dst *[]string) func(*yaml.Node) error {
	return func(n *yaml.Node) error {
		list, err := stringList(field, n)
		if err != nil {
			return err
		}
		*dst = list
		return nil
	}
}

func (p *metaParser) cities(n *yaml.Node) error {
	list, err := stringList("city", n)
	if err != nil {
		return err
	}
	p.meta.Cities = list
	return nil
}

func (p *metaParser) locations(n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode, yaml.ScalarNode:
		list, err := stringList("locations", n)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		if len(p.meta.Cities) != 1 {
			return errs.Invalid("locations", "a flat list needs exactly one city, got %d", len(p.meta.Cities))
		}
		p.meta.Locations = map[string][]string{p.meta.Cities[0]: list}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			city := strings.TrimSpace(n.Content[i].Value)
			if city == "" {
				return errs.Invalid("locations", "empty city key")
			}
			list, err := stringList("locations."+city, n.Content[i+1])
			if err != nil {
				return err
			}
			if !contains(p.meta.Cities, city) {
				p.meta.Cities = append(p.meta.Cities, city)
			}
			if len(list) == 0 {
				continue
			}
			if p.meta.Locations == nil {
				p.meta.Locations = map[string][]string{}
			}
			p.meta.Locations[city] = appendUnique(p.meta.Locations[city], list...)
		}
	default:
		return errs.Invalid("locations", "must be a list or a city mapping")
	}
	return nil
}

func (p *metaParser) people(n *yaml.Node) error {
	items, err := sequence("people", n)
	if err != nil {
		return err
	}
	for _, item := range items {
		spec, err := parsePersonNode(item)
		if err != nil {
			return err
		}
		if !containsPerson(p.meta.People, spec) {
			p.meta.People = append(p.meta.People, spec)
		}
	}
	return nil
}

func parsePersonNode(n *yaml.Node) (PersonSpec, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return ParsePersonToken(n.Value)
	case yaml.MappingNode:
		m, err := mapping("people", n)
		if err != nil {
			return PersonSpec{}, err
		}
		spec := PersonSpec{
			Name:          m.str("name"),
			Lastname:      m.str("lastname"),
			Disambiguator: m.str("disambiguator"),
			Alias:         strings.TrimPrefix(m.str("alias"), aliasSigil),
			FullName:      m.str("full_name"),
		}
		if m.err != nil {
			return PersonSpec{}, m.err
		}
		if spec.Alias != "" && len(strings.Fields(spec.Alias)) != 1 {
			return PersonSpec{}, errs.Invalid("people.alias", "alias %q must be a single token", spec.Alias)
		}
		if spec.Name == "" {
			if spec.Alias == "" {
				return PersonSpec{}, errs.Invalid("people.name", "is required")
			}
			spec.Name = hyphensToSpaces(spec.Alias)
		}
		return spec, nil
	}
	return PersonSpec{}, errs.Invalid("people", "entries must be strings or mappings")
}

func (p *metaParser) dates(n *yaml.Node) error {
	items, err := sequence("dates", n)
	if err != nil {
		return err
	}
	var moments []MomentSpec
	for _, item := range items {
		if isNull(item) {
			p.meta.ExcludeEntryDate = true
			continue
		}
		m, err := parseMomentNode(item)
		if err != nil {
			return err
		}
		if containsMoment(moments, m.Date) {
			return errs.Invalid("dates", "date %s listed more than once", m.Date)
		}
		moments = append(moments, m)
	}
	if !p.meta.ExcludeEntryDate && !containsMoment(moments, p.entryDate) {
		moments = append([]MomentSpec{{Date: p.entryDate}}, moments...)
	}
	p.meta.Dates = moments
	return nil
}

func parseMomentNode(n *yaml.Node) (MomentSpec, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if date, context, ok := splitDateContext(n.Value); ok {
			d, err := ParseDay("dates", date)
			return MomentSpec{Date: d, Context: context}, err
		}
		d, err := ParseDay("dates", n.Value)
		return MomentSpec{Date: d}, err
	case yaml.MappingNode:
		m, err := mapping("dates", n)
		if err != nil {
			return MomentSpec{}, err
		}
		spec := MomentSpec{
			Context:   m.str("context"),
			People:    m.list("people"),
			Locations: m.list("locations"),
			Events:    m.list("events"),
		}
		raw := m.str("date")
		if m.err != nil {
			return MomentSpec{}, m.err
		}
		spec.Date, err = ParseDay("dates.date", raw)
		return spec, err
	}
	return MomentSpec{}, errs.Invalid("dates", "entries must be dates or mappings")
}

func (p *metaParser) events(n *yaml.Node) error {
	items, err := sequence("events", n)
	if err != nil {
		return err
	}
	for _, item := range items {
		var ev EventSpec
		switch item.Kind {
		case yaml.ScalarNode:
			ev.Name = strings.TrimSpace(item.Value)
		case yaml.MappingNode:
			m, err := mapping("events", item)
			if err != nil {
				return err
			}
			ev.Name = m.str("name")
			ev.Scenes = m.list("scenes")
			if m.err != nil {
				return m.err
			}
		default:
			return errs.Invalid("events", "entries must be strings or mappings")
		}
		if ev.Name == "" {
			return errs.Invalid("events.name", "is required")
		}
		p.meta.Events = append(p.meta.Events, ev)
	}
	return nil
}

func (p *metaParser) scenes(n *yaml.Node) error {
	items, err := sequence("scenes", n)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, item := range items {
		m, err := mapping("scenes", item)
		if err != nil {
			return err
		}
		sc := SceneSpec{
			Name:        m.str("name"),
			Description: m.str("description"),
			People:      m.list("people"),
			Locations:   m.list("locations"),
		}
		rawDates := append(m.list("date"), m.list("dates")...)
		if m.err != nil {
			return m.err
		}
		if sc.Name == "" {
			return errs.Invalid("scenes.name", "is required")
		}
		if seen[sc.Name] {
			return errs.Invalid("scenes.name", "scene %q listed more than once", sc.Name)
		}
		seen[sc.Name] = true
		for _, raw := range rawDates {
			d, err := ParseFlexibleDate("scenes.date", raw)
			if err != nil {
				return err
			}
			sc.Dates = appendUnique(sc.Dates, d)
		}
		p.meta.Scenes = append(p.meta.Scenes, sc)
	}
	return nil
}

func (p *metaParser) threads(n *yaml.Node) error {
	items, err := sequence("threads", n)
	if err != nil {
		return err
	}
	for _, item := range items {
		m, err := mapping("threads", item)
		if err != nil {
			return err
		}
		th := ThreadSpec{
			Name:      m.str("name"),
			Content:   m.str("content"),
			People:    m.list("people"),
			Locations: m.list("locations"),
		}
		from, to, entry := m.str("from"), m.str("to"), m.str("entry")
		if m.err != nil {
			return m.err
		}
		if th.Name == "" {
			return errs.Invalid("threads.name", "is required")
		}
		if from != "" {
			if th.From, err = ParseFlexibleDate("threads.from", from); err != nil {
				return err
			}
		}
		if to != "" {
			if th.To, err = ParseFlexibleDate("threads.to", to); err != nil {
				return err
			}
		}
		if entry != "" {
			if th.Entry, err = ParseDay("threads.entry", entry); err != nil {
				return err
			}
		}
		p.meta.Threads = append(p.meta.Threads, th)
	}
	return nil
}

func (p *metaParser) instances(field string, dst *[]InstanceSpec) func(*yaml.Node) error {
	return func(n *yaml.Node) error {
		items, err := sequence(field, n)
		if err != nil {
			return err
		}
		for _, item := range items {
			var inst InstanceSpec
			switch item.Kind {
			case yaml.ScalarNode:
				inst.Name = strings.TrimSpace(item.Value)
			case yaml.MappingNode:
				m, err := mapping(field, item)
				if err != nil {
					return err
				}
				inst.Name = m.str("name")
				inst.Description = m.str("description")
				if m.err != nil {
					return m.err
				}
			default:
				return errs.Invalid(field, "entries must be strings or mappings")
			}
			if inst.Name == "" {
				return errs.Invalid(field+".name", "is required")
			}
			*dst = append(*dst, inst)
		}
		return nil
	}
}

func (p *metaParser) references(n *yaml.Node) error {
	items, err := sequence("references", n)
	if err != nil {
		return err
	}
	for _, item := range items {
		m, err := mapping("references", item)
		if err != nil {
			return err
		}
		ref := ReferenceSpec{
			Content:     m.str("content"),
			Description: m.str("description"),
			Speaker:     m.str("speaker"),
		}
		mode := m.str("mode")
		srcNode := m.node("source")
		if m.err != nil {
			return m.err
		}
		if ref.Content == "" && ref.Description == "" {
			return errs.Invalid("references", "content or description is required")
		}
		if ref.Mode, err = ParseReferenceMode(mode); err != nil {
			return err
		}
		if srcNode != nil && !isNull(srcNode) {
			src, err := parseSourceNode(srcNode)
			if err != nil {
				return err
			}
			ref.Source = src
		}
		p.meta.References = append(p.meta.References, ref)
	}
	return nil
}

func parseSourceNode(n *yaml.Node) (*SourceSpec, error) {
	m, err := mapping("references.source", n)
	if err != nil {
		return nil, err
	}
	src := &SourceSpec{
		Title:  m.str("title"),
		Author: m.str("author"),
		URL:    m.str("url"),
	}
	typ := m.str("type")
	if m.err != nil {
		return nil, m.err
	}
	if src.Title == "" {
		return nil, errs.Invalid("references.source.title", "is required")
	}
	if src.Type, err = ParseSourceType(typ); err != nil {
		return nil, err
	}
	return src, nil
}

func (p *metaParser) poems(n *yaml.Node) error {
	items, err := sequence("poems", n)
	if err != nil {
		return err
	}
	for _, item := range items {
		m, err := mapping("poems", item)
		if err != nil {
			return err
		}
		poem := PoemSpec{
			Title:   m.str("title"),
			Content: strings.TrimRight(m.raw("content"), " \t\n"),
			Notes:   m.str("notes"),
		}
		rev := m.str("revision_date")
		if m.err != nil {
			return m.err
		}
		if poem.Title == "" {
			return errs.Invalid("poems.title", "is required")
		}
		if strings.TrimSpace(poem.Content) == "" {
			return errs.Invalid("poems.content", "is required for poem %q", poem.Title)
		}
		if rev != "" {
			if poem.RevisionDate, err = ParseDay("poems.revision_date", rev); err != nil {
				return err
			}
		}
		p.meta.Poems = append(p.meta.Poems, poem)
	}
	return nil
}

func (p *metaParser) manuscript(n *yaml.Node) error {
	m, err := mapping("manuscript", n)
	if err != nil {
		return err
	}
	ms := &ManuscriptSpec{
		Notes:  m.str("notes"),
		Themes: m.list("themes"),
	}
	status := m.str("status")
	edited := m.str("edited")
	if m.err != nil {
		return m.err
	}
	if ms.Status, err = ParseManuscriptStatus(status); err != nil {
		return err
	}
	if edited != "" {
		b, err := strconv.ParseBool(edited)
		if err != nil {
			return errs.Invalid("manuscript.edited", "must be true or false, got %q", edited)
		}
		ms.Edited = b
	}
	p.meta.Manuscript = ms
	return nil
}

// fieldMap gives typed access to a mapping node, remembering the first error.
type fieldMap struct {
	field string
	nodes map[string]*yaml.Node
	err   error
}

func mapping(field string, n *yaml.Node) (*fieldMap, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errs.Invalid(field, "must be a mapping")
	}
	fm := &fieldMap{field: field, nodes: map[string]*yaml.Node{}}
	for i := 0; i+1 < len(n.Content); i += 2 {
		fm.nodes[n.Content[i].Value] = n.Content[i+1]
	}
	return fm, nil
}

func (m *fieldMap) node(key string) *yaml.Node {
	return m.nodes[key]
}

func (m *fieldMap) raw(key string) string {
	n, ok := m.nodes[key]
	if !ok || isNull(n) || m.err != nil {
		return ""
	}
	v, err := scalar(m.field+"."+key, n)
	if err != nil {
		m.err = err
	}
	return v
}

func (m *fieldMap) str(key string) string {
	return strings.TrimSpace(m.raw(key))
}

func (m *fieldMap) list(key string) []string {
	n, ok := m.nodes[key]
	if !ok || isNull(n) || m.err != nil {
		return nil
	}
	l, err := stringList(m.field+"."+key, n)
	if err != nil {
		m.err = err
	}
	return l
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func scalar(field string, n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", errs.Invalid(field, "must be a scalar value")
	}
	if isNull(n) {
		return "", nil
	}
	return n.Value, nil
}

func floatValue(field string, n *yaml.Node) (float64, error) {
	v, err := scalar(field, n)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errs.Invalid(field, "must be a number, got %q", v)
	}
	return f, nil
}

func sequence(field string, n *yaml.Node) ([]*yaml.Node, error) {
	switch n.Kind {
	case yaml.SequenceNode:
		return n.Content, nil
	case yaml.ScalarNode, yaml.MappingNode:
		return []*yaml.Node{n}, nil
	}
	return nil, errs.Invalid(field, "must be a list")
}

// stringList accepts a single string or a list of strings, trimming values,
// dropping blanks and duplicates.
func stringList(field string, n *yaml.Node) ([]string, error) {
	items, err := sequence(field, n)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, item := range items {
		v, err := scalar(field, item)
		if err != nil {
			return nil, err
		}
		out = appendUnique(out, strings.TrimSpace(v))
	}
	return out, nil
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		if v != "" && !contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsPerson(list []PersonSpec, p PersonSpec) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}

func containsMoment(list []MomentSpec, date string) bool {
	for _, m := range list {
		if m.Date == date {
			return true
		}
	}
	return false
}
