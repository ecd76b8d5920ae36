package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"SafeMap/internal/domain"
)

// Category describes a concrete endpoint provided by config: a feed URL or a file path.
type Category struct {
	Name string
	URL  string
}

// Request carries all parameters required to execute a scan.
// From and To bound the publication time of returned articles, both inclusive.
type Request struct {
	From       time.Time
	To         time.Time
	SiteName   string
	Categories []Category
	Options    map[string]string
}

// Contains reports whether t falls inside the request window. A zero bound is open.
func (r Request) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Scanner captures a single strategy implementation (NewsAPI, RSS, CSV).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Article, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds a registry holding the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[string]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", name)
}

// Names lists registered scanners in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
