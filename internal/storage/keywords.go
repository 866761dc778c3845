package storage

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "can": {}, "could": {}, "will": {},
	"would": {}, "should": {}, "what": {}, "who": {}, "whom": {}, "which": {},
	"when": {}, "where": {}, "why": {}, "how": {}, "i": {}, "you": {},
	"he": {}, "she": {}, "it": {}, "we": {}, "they": {}, "me": {}, "my": {},
	"your": {}, "his": {}, "her": {}, "its": {}, "our": {}, "their": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "at": {}, "for": {}, "with": {}, "about": {},
	"and": {}, "or": {}, "not": {}, "no": {}, "be": {}, "have": {},
	"has": {}, "had": {}, "please": {}, "tell": {},
}

// NormalizeQuestion canonicalizes a question so repeated failures of the
// same intent group together: lowercase, punctuation stripped, runs of
// whitespace collapsed to a single space.
func NormalizeQuestion(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// ExtractKeywords pulls the distinct content words out of a question for
// the dashboard keyword aggregate. Words shorter than two characters and
// common function words are skipped; order of first appearance is kept.
func ExtractKeywords(text string) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, word := range strings.Fields(NormalizeQuestion(text)) {
		if len([]rune(word)) < 2 {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}
