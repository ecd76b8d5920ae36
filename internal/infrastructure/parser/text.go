package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CrimeKeywords is the default post-filter: an article is kept when its title
// or description mentions one of them.
var CrimeKeywords = []string{"murder", "assault", "violence", "rape", "catcalling", "kill"}

// cleanText strips markup that feeds and NewsAPI embed in descriptions and collapses whitespace.
func cleanText(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return collapseSpaces(raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return collapseSpaces(raw)
	}
	doc.Find("script, style").Remove()
	return collapseSpaces(doc.Text())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// keywordFilter keeps texts that contain at least one term. An empty filter keeps everything.
type keywordFilter []string

// newKeywordFilter parses a comma-separated option. "*" disables filtering; an empty option selects def.
func newKeywordFilter(option string, def []string) keywordFilter {
	option = strings.TrimSpace(option)
	switch option {
	case "":
		return keywordFilter(def)
	case "*":
		return nil
	}
	var terms keywordFilter
	for _, term := range strings.Split(option, ",") {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func (f keywordFilter) Match(title, description string) bool {
	if len(f) == 0 {
		return true
	}
	text := strings.ToLower(title + " " + description)
	for _, term := range f {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// siteCoordinates reads "lat"/"lon" site options, falling back to the given defaults.
func siteCoordinates(opts map[string]string, lat, lon *float64) (*float64, *float64) {
	optLat, okLat := parseCoordinate(opts["lat"])
	optLon, okLon := parseCoordinate(opts["lon"])
	if okLat && okLon {
		return &optLat, &optLon
	}
	return lat, lon
}

func parseCoordinate(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
