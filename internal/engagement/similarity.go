package engagement

import "strings"

// SimilarityFunc scores how alike two replies are, in [0,1]. Pluggable so
// the word-overlap heuristic can be swapped without touching the threshold
// policy that consumes it.
type SimilarityFunc func(a, b string) float64

// JaccardWords computes intersection-over-union of lowercased word sets.
func JaccardWords(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	intersection := 0
	for w := range wa {
		if wb[w] {
			intersection++
		}
	}
	union := len(wa) + len(wb) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()[]")
		if w != "" {
			set[w] = true
		}
	}
	return set
}
