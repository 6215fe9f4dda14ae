package local

import (
	"regexp"
	"strings"
)

var (
	tokenPattern    = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
	sentencePattern = regexp.MustCompile(`[^.!?؟\n]+[.!?؟]?`)
	stopwords       = defaultStopwords()
)

// tokens lower-cases text and returns its word tokens without stopwords.
func tokens(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// sentences splits text into trimmed sentences. Markdown heading markers are
// dropped and a short "Label: value" prefix is reduced to its value.
func sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if i := strings.Index(line, ": "); i > 0 && i < 40 && !strings.ContainsAny(line[:i], ".!?") {
			line = strings.TrimSpace(line[i+2:])
		}
		for _, s := range sentencePattern.FindAllString(line, -1) {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "why", "where", "when", "do", "does", "did",
		"في", "من", "على", "إلى", "عن", "مع", "هو", "هي", "ما", "هذا", "هذه", "التي", "الذي",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
