package recognizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanOptions controls text post-processing of recognized lines.
type CleanOptions struct {
	NormalizeForm string            // "NFC" (default), "NFKC", "NFD", "NFKD", "none" to disable
	Language      string            // optional language tag (e.g., "en", "de"); selects replacements
	ReplaceMap    map[string]string // overrides the language replacements when set
}

// DefaultCleanOptions returns sensible defaults for OCR text.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{NormalizeForm: "NFC"}
}

var spaceRun = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)

// CleanLine normalizes a single recognized line: unicode normalization,
// zero-width and control character removal, replacements and whitespace
// collapse.
func CleanLine(s string, opts CleanOptions) string {
	if s == "" {
		return s
	}
	s = normalize(s, opts.NormalizeForm)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\u200B', r == '\u200C', r == '\u200D', r == '\uFEFF':
		case r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()

	replacements := opts.ReplaceMap
	if replacements == nil && opts.Language != "" {
		replacements = ReplaceMapForLanguage(opts.Language)
	}
	for _, k := range keysByLength(replacements) {
		s = strings.ReplaceAll(s, k, replacements[k])
	}

	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// CleanText applies CleanLine to every line and drops empty lines.
func CleanText(s string, opts CleanOptions) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if cleaned := CleanLine(line, opts); cleaned != "" {
			lines = append(lines, cleaned)
		}
	}
	return strings.Join(lines, "\n")
}

func normalize(s, form string) string {
	switch strings.ToUpper(form) {
	case "NFC", "":
		return norm.NFC.String(s)
	case "NFKC":
		return norm.NFKC.String(s)
	case "NFD":
		return norm.NFD.String(s)
	case "NFKD":
		return norm.NFKD.String(s)
	}
	return s
}

func keysByLength(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Longer keys first so overlapping sequences are replaced whole.
	for i := range len(keys) - 1 {
		for j := i + 1; j < len(keys); j++ {
			if len(keys[j]) > len(keys[i]) || (len(keys[j]) == len(keys[i]) && keys[j] < keys[i]) {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

// ReplaceMapForLanguage returns typographic replacements for a language.
func ReplaceMapForLanguage(lang string) map[string]string {
	m := map[string]string{
		"\u2018": "'",
		"\u2019": "'",
		"\u201C": "\"",
		"\u201D": "\"",
		"\u2013": "-",
		"\u2014": "-",
		"\u00A0": " ",
		"\u2009": " ",
	}
	switch strings.ToLower(lang) {
	case "de":
		m["\u201E"] = "\""
	case "fr":
		m["\u00AB"] = "\""
		m["\u00BB"] = "\""
	}
	return m
}
