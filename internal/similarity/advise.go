package similarity

import (
	"strings"

	"SafeMap/internal/domain"
)

// Thresholds for advisory output.
const (
	MergeThreshold = 0.8
	ConflictLow    = 0.5
	ConflictHigh   = 0.7
)

// Advise turns candidate pairs into merge suggestions and conflict flags.
// texts are the raw title+description strings, indexed like the pairs.
func Advise(pairs []Pair, texts []string) ([]domain.MergeSuggestion, []domain.ConflictFlag) {
	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}

	merges := make([]domain.MergeSuggestion, 0)
	conflicts := make([]domain.ConflictFlag, 0)
	for _, p := range pairs {
		switch {
		case p.Score > MergeThreshold:
			merges = append(merges, domain.MergeSuggestion{I: p.I, J: p.J, Score: p.Score})
		case p.Score >= ConflictLow && p.Score <= ConflictHigh:
			if opposed(lowered[p.I], lowered[p.J]) {
				conflicts = append(conflicts, domain.ConflictFlag{I: p.I, J: p.J, Score: p.Score})
			}
		}
	}
	return merges, conflicts
}

// opposed uses plain substring checks, so "unsafe" also satisfies "safe".
func opposed(a, b string) bool {
	return (strings.Contains(a, "safe") && strings.Contains(b, "unsafe")) ||
		(strings.Contains(a, "unsafe") && strings.Contains(b, "safe"))
}
