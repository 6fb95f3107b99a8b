package incident

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/couchcryptid/disaster-incident-service/internal/scoring"
)

const (
	maxSummarySentences = 2
	minSummaryLength    = 15
	minSummaryWords     = 3
	minDistinctChars    = 5
)

var (
	sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)
	hasVowel    = regexp.MustCompile(`[aeiouAEIOU]`)
)

// Summarize returns a short extractive summary of text: the text itself when it
// has at most two sentences, otherwise the two sentences closest to the whole
// text, in their original order. Text that is too short or looks like noise
// yields "".
func Summarize(text string) string {
	text = strings.TrimSpace(text)
	if !meaningful(text) {
		return ""
	}

	sentences := splitSentences(text)
	if len(sentences) <= maxSummarySentences {
		return text
	}

	type ranked struct {
		idx   int
		score float64
	}
	ranks := make([]ranked, len(sentences))
	for i, s := range sentences {
		ranks[i] = ranked{idx: i, score: scoring.Cosine(s, text)}
	}
	sort.SliceStable(ranks, func(a, b int) bool { return ranks[a].score > ranks[b].score })

	top := ranks[:maxSummarySentences]
	sort.Slice(top, func(a, b int) bool { return top[a].idx < top[b].idx })
	parts := make([]string, len(top))
	for i, r := range top {
		parts[i] = sentences[r.idx]
	}
	return strings.Join(parts, " ")
}

func meaningful(text string) bool {
	if utf8.RuneCountInString(text) < minSummaryLength {
		return false
	}
	if !hasVowel.MatchString(text) {
		return false
	}
	distinct := make(map[rune]bool)
	for _, r := range text {
		distinct[r] = true
	}
	if len(distinct) < minDistinctChars {
		return false
	}
	return len(strings.Fields(text)) >= minSummaryWords
}

func splitSentences(text string) []string {
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(locs)+1)
	start := 0
	for _, loc := range locs {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
