package processing

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultMinLength is the shortest token, in runes, kept as a keyword.
const DefaultMinLength = 3

// Anything that is not a letter, digit, underscore or whitespace is noise.
// \p{L} covers the Turkish letters çğıöşü and the circumflexed âêîôû.
var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
)

// KeywordSet is the normalized, stop-word filtered token set of a text.
type KeywordSet map[string]struct{}

// Normalizer turns raw text into keyword sets. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	minLength int
	lang      language.Tag
	stopwords map[string]struct{}
}

// NewNormalizer builds a normalizer for the given BCP 47 language. Unknown or
// empty languages fall back to Turkish.
func NewNormalizer(minLength int, lang string) *Normalizer {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	tag, err := language.Parse(lang)
	if err != nil || lang == "" {
		tag = language.Turkish
	}
	return &Normalizer{minLength: minLength, lang: tag, stopwords: turkishStopwords}
}

// Normalize lower-cases text, strips punctuation and squeezes whitespace.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	// cases.Caser keeps internal state, so each call gets its own.
	lowered := cases.Lower(n.lang).String(norm.NFC.String(text))
	lowered = punctuation.ReplaceAllString(lowered, " ")
	lowered = whitespace.ReplaceAllString(lowered, " ")
	return strings.TrimSpace(lowered)
}

// Keywords extracts the keyword set of text. Empty input yields an empty set.
func (n *Normalizer) Keywords(text string) KeywordSet {
	clean := n.Normalize(text)
	if clean == "" {
		return KeywordSet{}
	}

	tokens := strings.Fields(clean)
	set := make(KeywordSet, len(tokens))
	for _, token := range tokens {
		if utf8.RuneCountInString(token) < n.minLength {
			continue
		}
		if _, skip := n.stopwords[token]; skip {
			continue
		}
		set[token] = struct{}{}
	}
	return set
}

// ExtractKeywords is Keywords with the default Turkish normalizer.
func ExtractKeywords(text string, minLength int) KeywordSet {
	return NewNormalizer(minLength, "tr").Keywords(text)
}
