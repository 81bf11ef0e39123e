// Package i18n translates the handful of fixed labels that appear on wallet passes.
//
// Lookups are pure: every call names its locale explicitly and nothing switches a
// process-wide active language.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

const (
	Website          = "Website"
	GeneralAdmission = "General admission"
)

var catalog = map[string]map[string]string{
	Website: {
		"de": "Webseite",
		"fr": "Site web",
		"es": "Sitio web",
		"nl": "Website",
		"it": "Sito web",
	},
	GeneralAdmission: {
		"de": "Freie Platzwahl",
		"fr": "Placement libre",
		"es": "Entrada general",
		"nl": "Vrije plaatskeuze",
		"it": "Posto libero",
	},
}

var (
	supported = []language.Tag{
		language.English,
		language.German,
		language.French,
		language.Spanish,
		language.Dutch,
		language.Italian,
	}
	matcher = language.NewMatcher(supported)
)

// Translate returns key in locale, or key itself when locale has no entry.
func Translate(key, locale string) string {
	tag, ok := parse(locale)
	if !ok {
		return key
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return key
	}
	base, _ := supported[idx].Base()
	if v, ok := catalog[key][base.String()]; ok {
		return v
	}
	return key
}

// Translations maps every locale to Translate(key, locale).
func Translations(key string, locales []string) map[string]string {
	out := make(map[string]string, len(locales))
	for _, l := range locales {
		out[l] = Translate(key, l)
	}
	return out
}

// CountryCode infers an ISO 3166 region from a locale ("de" -> "DE", "en" -> "US").
func CountryCode(locale string) string {
	tag, ok := parse(locale)
	if !ok {
		return ""
	}
	region, conf := tag.Region()
	if conf == language.No {
		return ""
	}
	return region.String()
}

// parse tolerates host-specific variants such as "de-informal".
func parse(locale string) (language.Tag, bool) {
	if locale == "" {
		return language.Und, false
	}
	if tag, err := language.Parse(locale); err == nil {
		return tag, true
	}
	base, _, _ := strings.Cut(locale, "-")
	tag, err := language.Parse(base)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}
