// Package analyze provides the default tokenization and term-processing
// stages of the text analysis pipeline. Both are host-overridable hooks;
// this package only supplies the defaults a newly created index starts
// with (the default field extractor lives in the root package).
package analyze

import (
	"strings"
	"unicode"
)

// Token is a single normalized term and its position in the token
// stream, pre-processing.
type Token struct {
	Term     string
	Position int
}

// Tokenizer splits text into a raw token stream. fieldName is empty
// for query tokenization.
type Tokenizer func(text, fieldName string) []Token

// Processor maps one raw token to zero, one, or several index terms.
// A nil or empty return drops the token.
type Processor func(term, fieldName string) []string

var defaultStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// DefaultTokenizer lower-cases text and splits on runs of non-letter,
// non-digit characters. It does not drop stop-words or stem; that is
// the default Processor's job, so a host can override either stage
// independently.
func DefaultTokenizer(text, _ string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for i, w := range words {
		tokens = append(tokens, Token{Term: w, Position: i})
	}
	return tokens
}

// DefaultProcessor drops short tokens and stop-words, then applies a
// suffix-stripping stemmer. It returns nil to drop a token, matching
// the falsy-return convention described for host processors.
func DefaultProcessor(term, _ string) []string {
	if len(term) < 2 {
		return nil
	}
	if _, stop := defaultStopWords[term]; stop {
		return nil
	}
	stemmed := stem(term)
	if stemmed == "" {
		return nil
	}
	return []string{stemmed}
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

var suffixRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem applies a simple suffix-stripping stemmer, the same one the
// default English processor has used since the engine's early
// revisions. It is intentionally conservative: rules only fire when
// the resulting stem meets a minimum length, to avoid over-stemming
// short words.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}
