package domain

import (
	"sort"
	"strings"
)

// I18n is a host-side translated string keyed by locale code.
type I18n map[string]string

// Localize returns the value for locale, falling back to the language base
// ("de" for "de-informal") and then to any value in a stable order.
func (s I18n) Localize(locale string) string {
	if len(s) == 0 {
		return ""
	}
	if v, ok := s[locale]; ok {
		return v
	}
	if base, _, found := strings.Cut(locale, "-"); found {
		if v, ok := s[base]; ok {
			return v
		}
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return s[keys[0]]
}

// IsEmpty reports whether no locale carries a non-blank value.
func (s I18n) IsEmpty() bool {
	for _, v := range s {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
