package repo

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	titleMaxWords = 6
	titleMaxRunes = 48
)

// Extract Unicode letters with optional trailing numbers (e.g., "day30").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "your": {}, "you": {},
}

var titleCaser = cases.Title(language.English)

// deriveTitle builds a concise display title from template content: the
// first few significant words, title-cased and clipped. When filtering
// leaves nothing, the leading tokens are used as-is; content with no words
// at all falls back to a fixed label.
func deriveTitle(content string) string {
	content = strings.TrimSpace(content)
	toks := titleWordRE.FindAllString(strings.ToLower(content), -1)
	if len(toks) == 0 {
		return "Nudge"
	}

	out := make([]string, 0, titleMaxWords)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= titleMaxWords {
			break
		}
	}
	if len(out) == 0 {
		// nothing left after filtering; fall back to the leading tokens
		for _, w := range toks {
			out = append(out, titleCaser.String(w))
			if len(out) >= titleMaxWords {
				break
			}
		}
	}
	return clipTitle(strings.Join(out, " "))
}

// clipTitle truncates a derived title to the maximum rune length.
func clipTitle(title string) string {
	if utf8.RuneCountInString(title) > titleMaxRunes {
		return strings.TrimSpace(string([]rune(title)[:titleMaxRunes]))
	}
	return title
}
