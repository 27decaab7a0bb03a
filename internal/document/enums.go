package document

import (
	"strings"

	"journal-sync/internal/errs"
)

// ReferenceMode describes how a reference uses its source.
type ReferenceMode string

const (
	ModeDirect     ReferenceMode = "direct"
	ModeIndirect   ReferenceMode = "indirect"
	ModeParaphrase ReferenceMode = "paraphrase"
	ModeVisual     ReferenceMode = "visual"
)

// SourceType classifies a reference source.
type SourceType string

const (
	SourceBook      SourceType = "book"
	SourcePoem      SourceType = "poem"
	SourceArticle   SourceType = "article"
	SourceFilm      SourceType = "film"
	SourceSong      SourceType = "song"
	SourcePodcast   SourceType = "podcast"
	SourceInterview SourceType = "interview"
	SourceSpeech    SourceType = "speech"
	SourceTVShow    SourceType = "tv_show"
	SourceVideo     SourceType = "video"
	SourceWebsite   SourceType = "website"
	SourceOther     SourceType = "other"
)

// ManuscriptStatus is the editorial state of an entry.
type ManuscriptStatus string

const (
	StatusUnspecified ManuscriptStatus = "unspecified"
	StatusDraft       ManuscriptStatus = "draft"
	StatusReference   ManuscriptStatus = "reference"
	StatusQuote       ManuscriptStatus = "quote"
	StatusFragment    ManuscriptStatus = "fragment"
	StatusSource      ManuscriptStatus = "source"
	StatusIncluded    ManuscriptStatus = "included"
	StatusExcluded    ManuscriptStatus = "excluded"
)

// enumSet is a closed set of canonical values plus the fallback spellings
// accepted for them.
type enumSet struct {
	field   string
	values  []string
	aliases map[string]string
}

var (
	referenceModes = enumSet{
		field:  "mode",
		values: []string{"direct", "indirect", "paraphrase", "visual"},
		aliases: map[string]string{
			"quote":       "direct",
			"quotation":   "direct",
			"allusion":    "indirect",
			"paraphrased": "paraphrase",
			"image":       "visual",
		},
	}
	sourceTypes = enumSet{
		field: "source.type",
		values: []string{
			"book", "poem", "article", "film", "song", "podcast",
			"interview", "speech", "tv_show", "video", "website", "other",
		},
		aliases: map[string]string{
			"movie":   "film",
			"tv":      "tv_show",
			"show":    "tv_show",
			"tvshow":  "tv_show",
			"web":     "website",
			"site":    "website",
			"essay":   "article",
			"novel":   "book",
			"music":   "song",
			"lecture": "speech",
		},
	}
	manuscriptStatuses = enumSet{
		field: "manuscript.status",
		values: []string{
			"unspecified", "draft", "reference", "quote",
			"fragment", "source", "included", "excluded",
		},
		aliases: map[string]string{
			"":            "unspecified",
			"none":        "unspecified",
			"fragmentary": "fragment",
			"wip":         "draft",
			"include":     "included",
			"exclude":     "excluded",
		},
	}
)

func enumKey(raw string) string {
	k := strings.ToLower(strings.TrimSpace(raw))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	return k
}

func (s enumSet) normalize(raw string) (string, error) {
	k := enumKey(raw)
	for _, v := range s.values {
		if v == k {
			return v, nil
		}
	}
	if v, ok := s.aliases[k]; ok {
		return v, nil
	}
	return "", errs.Invalid(s.field, "unknown value %q (want one of %s)", raw, strings.Join(s.values, ", "))
}

// ParseReferenceMode accepts a stored value or symbolic name in any case.
// An empty string yields ModeDirect.
func ParseReferenceMode(raw string) (ReferenceMode, error) {
	if strings.TrimSpace(raw) == "" {
		return ModeDirect, nil
	}
	v, err := referenceModes.normalize(raw)
	return ReferenceMode(v), err
}

// ParseSourceType accepts a stored value or symbolic name in any case.
// An empty string yields SourceOther.
func ParseSourceType(raw string) (SourceType, error) {
	if strings.TrimSpace(raw) == "" {
		return SourceOther, nil
	}
	v, err := sourceTypes.normalize(raw)
	return SourceType(v), err
}

// ParseManuscriptStatus accepts a stored value or symbolic name in any case.
func ParseManuscriptStatus(raw string) (ManuscriptStatus, error) {
	v, err := manuscriptStatuses.normalize(raw)
	return ManuscriptStatus(v), err
}
