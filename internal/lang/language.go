// Package lang provides a validated target language for translation prompts.
package lang

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrInvalid indicates a code that is not a known ISO 639-1 language.
var ErrInvalid = errors.New("invalid language code")

// Language is a validated language code.
// The zero value means "not set"; callers apply their own default.
type Language struct {
	code string // normalized: lowercase, hyphen separated
}

// Default is the translation target when none is configured.
var Default = MustParse("zh")

// displayNames overrides the generic CLDR names for locales where the
// prompt reads better with the common English name.
var displayNames = map[string]string{
	"en":    "English",
	"en-us": "American English",
	"en-gb": "British English",
	"fr":    "French",
	"fr-ca": "Canadian French",
	"es":    "Spanish",
	"pt-br": "Brazilian Portuguese",
	"pt-pt": "European Portuguese",
	"zh":    "Simplified Chinese",
	"zh-cn": "Simplified Chinese",
	"zh-tw": "Traditional Chinese",
	"zh-hk": "Traditional Chinese",
}

// Normalize lowercases a code and uses '-' as separator.
// Accepts: "pt-BR", "pt_BR", "PT-BR" -> "pt-br"
func Normalize(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "_", "-"))
}

// Parse validates a language code such as "fr", "zh-CN" or "pt_BR".
// The base must be a two-letter ISO 639-1 code. Empty input returns the zero
// Language without error.
func Parse(s string) (Language, error) {
	normalized := Normalize(s)
	if normalized == "" {
		return Language{}, nil
	}

	base, _, _ := strings.Cut(normalized, "-")
	if len(base) != 2 {
		return Language{}, fmt.Errorf("invalid language code %q (use ISO 639-1 codes like 'en', 'fr', 'zh-CN'): %w",
			s, ErrInvalid)
	}
	if _, err := language.Parse(normalized); err != nil {
		return Language{}, fmt.Errorf("invalid language code %q: %w", s, ErrInvalid)
	}

	return Language{code: normalized}, nil
}

// MustParse parses a code, panicking if invalid.
// Use only for constants and tests.
func MustParse(s string) Language {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

// String returns the normalized code, or "" for the zero value.
func (l Language) String() string {
	return l.code
}

// IsZero reports whether no language is set.
func (l Language) IsZero() bool {
	return l.code == ""
}

// OrDefault returns l, or Default if l is zero.
func (l Language) OrDefault() Language {
	if l.IsZero() {
		return Default
	}
	return l
}

// Base returns the ISO 639-1 part of the code ("pt-br" -> "pt").
func (l Language) Base() string {
	base, _, _ := strings.Cut(l.code, "-")
	return base
}

// IsEnglish reports whether the language is a variant of English.
func (l Language) IsEnglish() bool {
	return l.Base() == "en"
}

// DisplayName returns the English name used in prompts, e.g. "French".
// Falls back to the code itself when no name is known.
func (l Language) DisplayName() string {
	if l.IsZero() {
		return ""
	}
	if name, ok := displayNames[l.code]; ok {
		return name
	}
	if tag, err := language.Parse(l.code); err == nil {
		if name := display.English.Tags().Name(tag); name != "" {
			return name
		}
	}
	if name, ok := displayNames[l.Base()]; ok {
		return name
	}
	return l.code
}
