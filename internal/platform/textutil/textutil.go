// Package textutil cleans free text coming out of report payloads and builds
// accent-insensitive keys for artist and entity matching.
//
// The package handles:
//   - Accent and case folding (Fold)
//   - Slug generation (Slugify)
//   - HTML tag stripping and entity decoding (StripTags)
//   - Link sanitization (SafeURL)
package textutil

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tagRegex        = regexp.MustCompile(`<(/?)([a-zA-Z0-9-]+)([^>]*)>`)
	commentRegex    = regexp.MustCompile(`(?s)<!--.*?-->`)
	whitespaceRegex = regexp.MustCompile(`[ \t]+`)
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)
)

// dangerousProtocols lists URL protocols that are never passed through.
var dangerousProtocols = []string{
	"javascript:",
	"vbscript:",
	"data:",
}

// Fold lowercases s, removes combining marks and trims it, so that
// "Beyoncé" and "beyonce" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	return strings.ToLower(strings.TrimSpace(folded))
}

// Slugify folds s and joins its alphanumeric runs with single dashes.
func Slugify(s string) string {
	var sb strings.Builder

	dash := false

	for _, r := range Fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)

			dash = false

			continue
		}

		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')

			dash = true
		}
	}

	return strings.TrimSuffix(sb.String(), "-")
}

// StripTags removes HTML comments and tags, decodes entities and collapses
// horizontal whitespace. Line breaks are kept, runs of blank lines are squeezed.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}

	s = commentRegex.ReplaceAllString(s, "")
	s = tagRegex.ReplaceAllStringFunc(s, func(tag string) string {
		m := tagRegex.FindStringSubmatch(tag)
		if len(m) >= 3 && (strings.EqualFold(m[2], "br") || strings.EqualFold(m[2], "p") && m[1] == "/") {
			return "\n"
		}

		return ""
	})
	s = html.UnescapeString(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	s = blankLinesRegex.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// SafeURL returns the trimmed URL, or "" when it uses a scriptable protocol.
func SafeURL(raw string) string {
	u := strings.TrimSpace(raw)
	lower := strings.ToLower(u)

	for _, proto := range dangerousProtocols {
		if strings.HasPrefix(lower, proto) {
			return ""
		}
	}

	return u
}
