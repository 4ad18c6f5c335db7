// Package phonetic corrects misheard domain vocabulary in call transcripts.
//
// Telephony audio routinely garbles proper nouns: a prospect hears about
// "Toshal" and the transcriber writes "toe shall". The corrector holds the
// deployment's vocabulary (company and product names) and aligns transcript
// tokens against it in two stages:
//
//  1. Double Metaphone codes are computed for the transcript window and every
//     vocabulary term; code overlap makes a term a phonetic candidate.
//  2. Candidates are ranked by Jaro-Winkler similarity on the original
//     strings and accepted above a threshold. When no phonetic candidate
//     exists, a stricter pure Jaro-Winkler fallback is tried.
//
// A Corrector is read-only after construction and safe for concurrent use.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a Corrector.
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for accepting a
// phonetically-matched term. Default 0.70.
func WithPhoneticThreshold(t float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = t }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for the non-phonetic
// fallback. Default 0.85.
func WithFuzzyThreshold(t float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = t }
}

// term is one vocabulary entry with its precomputed phonetic codes.
type term struct {
	canonical string
	lower     string
	tokens    []string
	codes     map[string]struct{}
}

// Corrector aligns transcript text against a fixed vocabulary.
type Corrector struct {
	terms             []term
	maxTermWords      int
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewCorrector precomputes phonetic codes for vocabulary and returns a
// corrector. Blank vocabulary entries are dropped.
func NewCorrector(vocabulary []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, raw := range vocabulary {
		canonical := strings.TrimSpace(raw)
		if canonical == "" {
			continue
		}
		lower := strings.ToLower(canonical)
		tokens := strings.Fields(lower)
		c.terms = append(c.terms, term{
			canonical: canonical,
			lower:     lower,
			tokens:    tokens,
			codes:     codesFor(tokens),
		})
		if len(tokens) > c.maxTermWords {
			c.maxTermWords = len(tokens)
		}
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct rewrites text so that windows phonetically matching a vocabulary
// term are replaced by the term's canonical spelling. Longer windows win over
// shorter ones so multi-word terms are not split. Text without matches is
// returned unchanged.
func (c *Corrector) Correct(text string) string {
	if len(c.terms) == 0 {
		return text
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text
	}

	var out []string
	changed := false
	i := 0
	for i < len(tokens) {
		maxN := c.maxTermWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}
		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			if hit, ok := c.match(window); ok {
				// A window already spelled canonically is not a change.
				if !strings.EqualFold(window, hit) {
					changed = true
				}
				out = append(out, strings.Fields(hit)...)
				i += n
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	if !changed {
		return text
	}
	return strings.Join(out, " ")
}

// match finds the vocabulary term best aligned with window, if any clears the
// thresholds.
func (c *Corrector) match(window string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(window))
	if lower == "" {
		return "", false
	}
	tokens := strings.Fields(lower)
	codes := codesFor(tokens)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range c.terms {
		score := similarity(tokens, t.tokens, lower, t.lower)
		if overlap(codes, t.codes) {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				bestTerm, bestScore, bestPhonetic = t.canonical, score, true
			}
		} else if !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore {
			bestTerm, bestScore = t.canonical, score
		}
	}
	return bestTerm, bestTerm != ""
}

// codesFor unions the Double Metaphone codes of tokens, skipping empties.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score across full strings, space-
// stripped strings and all token pairs, so "toe shall" can still align with
// "toshal".
func similarity(aTokens, bTokens []string, aFull, bFull string) float64 {
	score := matchr.JaroWinkler(aFull, bFull, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}
	for _, at := range aTokens {
		for _, bt := range bTokens {
			if s := matchr.JaroWinkler(at, bt, false); s > score {
				score = s
			}
		}
	}
	return score
}
