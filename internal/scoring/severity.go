// Package scoring assigns per-article severity and recency and aggregates them into cluster risk.
package scoring

import (
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// DefaultSeverity applies when no keyword matches.
const DefaultSeverity = 1

// Keyword is one entry of the ordered severity table.
type Keyword struct {
	Term   string
	Weight int
}

// DefaultSeverityTable is checked in order; earlier entries win.
var DefaultSeverityTable = []Keyword{
	{Term: "murder", Weight: 5},
	{Term: "assault", Weight: 3},
	{Term: "violence", Weight: 2},
	{Term: "rape", Weight: 5},
	{Term: "catcalling", Weight: 1},
	{Term: "acid attack", Weight: 4},
	{Term: "dowry", Weight: 3},
}

// SeverityScorer matches all table keywords in one pass and keeps the earliest table entry.
type SeverityScorer struct {
	table   []Keyword
	mu      sync.Mutex // the matcher keeps per-call state
	matcher *ahocorasick.Matcher
}

// NewSeverityScorer builds the automaton for table; a nil table selects DefaultSeverityTable.
func NewSeverityScorer(table []Keyword) *SeverityScorer {
	if table == nil {
		table = DefaultSeverityTable
	}

	terms := make([]string, len(table))
	for i, kw := range table {
		terms[i] = strings.ToLower(kw.Term)
	}

	s := &SeverityScorer{table: table}
	if len(terms) > 0 {
		s.matcher = ahocorasick.NewStringMatcher(terms)
	}
	return s
}

// Score returns the weight of the first table keyword contained in text.
func (s *SeverityScorer) Score(text string) int {
	if s.matcher == nil {
		return DefaultSeverity
	}

	lower := []byte(strings.ToLower(text))
	s.mu.Lock()
	hits := s.matcher.Match(lower)
	s.mu.Unlock()

	best := -1
	for _, idx := range hits {
		if idx >= 0 && idx < len(s.table) && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best < 0 {
		return DefaultSeverity
	}
	return s.table[best].Weight
}
