// Package farewell decides whether a reply ends the conversation.
//
// By default a reply is a farewell when it contains one of the configured
// phrases, compared case-insensitively. Fuzzy matching is opt-in and adds two
// Jaro-Winkler based passes for replies whose wording was garbled by speech
// recognition on the backend:
//
//  1. Every window of the reply's letters that is as long as a phrase is
//     compared with the phrase. Punctuation and spaces are ignored.
//  2. For Latin phrases of four letters or more, any reply word of similar
//     length whose Double Metaphone code overlaps with the phrase's is
//     accepted above a lower phonetic threshold.
package farewell

import (
	"strings"
	"sync"
	"unicode"

	"github.com/antzucaro/matchr"
)

// DefaultPhrases is the built-in goodbye vocabulary.
var DefaultPhrases = []string{"再见", "拜拜", "byebye", "bye", "goodbye"}

// DefaultFuzzyThreshold is the Jaro-Winkler similarity fuzzy matching
// requires unless configured otherwise.
const DefaultFuzzyThreshold = 0.92

const (
	defaultPhoneticThreshold = 0.80

	// Short words such as "by" sound like "bye" too easily.
	minPhoneticLen = 4
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhrases replaces the vocabulary. Empty phrases are ignored.
func WithPhrases(phrases ...string) Option {
	return func(m *Matcher) {
		m.phrases = normalise(phrases)
	}
}

// WithFuzzy enables fuzzy matching with the given Jaro-Winkler threshold. A
// threshold outside (0, 1] keeps the default of 0.92.
func WithFuzzy(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzy = true
		if threshold > 0 && threshold <= 1 {
			m.fuzzyThreshold = threshold
		}
	}
}

// Matcher reports farewell phrases in text. It is safe for concurrent use;
// [Matcher.Update] swaps the vocabulary atomically.
type Matcher struct {
	mu                sync.RWMutex
	phrases           []string
	fuzzy             bool
	fuzzyThreshold    float64
	phoneticThreshold float64
}

// New returns a Matcher using [DefaultPhrases] unless overridden.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phrases:           normalise(DefaultPhrases),
		fuzzyThreshold:    DefaultFuzzyThreshold,
		phoneticThreshold: defaultPhoneticThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Update replaces the vocabulary and fuzzy settings in place. An empty
// phrase list restores [DefaultPhrases]; fuzzyThreshold <= 0 disables fuzzy
// matching.
func (m *Matcher) Update(phrases []string, fuzzyThreshold float64) {
	p := normalise(phrases)
	if len(p) == 0 {
		p = normalise(DefaultPhrases)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phrases = p
	m.fuzzy = fuzzyThreshold > 0
	if m.fuzzy && fuzzyThreshold <= 1 {
		m.fuzzyThreshold = fuzzyThreshold
	}
}

// Phrases returns the current vocabulary, lower-cased.
func (m *Matcher) Phrases() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.phrases...)
}

// Match returns the first phrase found in text.
func (m *Matcher) Match(text string) (phrase string, ok bool) {
	m.mu.RLock()
	phrases, fuzzy := m.phrases, m.fuzzy
	fuzzyT, phoneticT := m.fuzzyThreshold, m.phoneticThreshold
	m.mu.RUnlock()

	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return "", false
	}
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	if !fuzzy {
		return "", false
	}

	letters := lettersOnly(lower)
	for _, p := range phrases {
		if windowScore(letters, lettersOnly(p)) >= fuzzyT {
			return p, true
		}
	}

	words := strings.FieldsFunc(lower, func(r rune) bool { return !isLatin(r) })
	for _, p := range phrases {
		if len(p) < minPhoneticLen || !allLatin(p) {
			continue
		}
		pc := codes(p)
		for _, w := range words {
			if len(w) >= minPhoneticLen && overlap(codes(w), pc) && matchr.JaroWinkler(w, p, false) >= phoneticT {
				return p, true
			}
		}
	}
	return "", false
}

// IsFarewell reports whether text contains a farewell phrase.
func (m *Matcher) IsFarewell(text string) bool {
	_, ok := m.Match(text)
	return ok
}

func normalise(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lettersOnly(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			out = append(out, r)
		}
	}
	return out
}

// windowScore is the best Jaro-Winkler similarity between phrase and any
// equally long window of text.
func windowScore(text, phrase []rune) float64 {
	n := len(phrase)
	if n == 0 || len(text) < n {
		return 0
	}
	p := string(phrase)
	best := 0.0
	for i := 0; i+n <= len(text); i++ {
		if s := matchr.JaroWinkler(string(text[i:i+n]), p, false); s > best {
			best = s
		}
	}
	return best
}

func isLatin(r rune) bool {
	return r < unicode.MaxASCII && unicode.IsLetter(r)
}

func allLatin(s string) bool {
	for _, r := range s {
		if !isLatin(r) {
			return false
		}
	}
	return s != ""
}

func codes(word string) map[string]struct{} {
	p, s := matchr.DoubleMetaphone(word)
	out := make(map[string]struct{}, 2)
	if p != "" {
		out[p] = struct{}{}
	}
	if s != "" {
		out[s] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
