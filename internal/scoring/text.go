// Package scoring rates how closely a report's text matches known reference
// news items. Scores are cosine similarities of term-frequency vectors in [0, 1].
package scoring

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "of": true, "to": true, "for": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"it": true, "its": true, "this": true, "that": true, "with": true, "by": true,
	"from": true, "as": true, "has": true, "have": true, "had": true, "there": true,
	"here": true, "we": true, "our": true, "i": true, "my": true, "so": true,
}

// Normalize folds case and strips diacritics so "Évacuation" and "evacuation"
// compare equal.
func Normalize(s string) string {
	// Transformers carry state; build a fresh chain per call.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// Tokenize normalizes s and splits it into words, dropping stop words.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// termVector is a bag-of-words term frequency vector with its Euclidean norm.
type termVector struct {
	tf   map[string]float64
	norm float64
}

func newTermVector(text string) termVector {
	v := termVector{tf: make(map[string]float64)}
	for _, tok := range Tokenize(text) {
		v.tf[tok]++
	}
	var sum float64
	for _, c := range v.tf {
		sum += c * c
	}
	v.norm = math.Sqrt(sum)
	return v
}

func (v termVector) empty() bool { return v.norm == 0 }

func cosine(a, b termVector) float64 {
	if a.empty() || b.empty() {
		return 0
	}
	if len(a.tf) > len(b.tf) {
		a, b = b, a
	}
	var dot float64
	for term, c := range a.tf {
		dot += c * b.tf[term]
	}
	return clamp(dot / (a.norm * b.norm))
}

// Cosine returns the cosine similarity of the term-frequency vectors of a and b.
func Cosine(a, b string) float64 {
	return cosine(newTermVector(a), newTermVector(b))
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
