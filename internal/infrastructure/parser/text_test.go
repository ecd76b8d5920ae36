package parser

import "testing"

func TestCleanText(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"plain   text\n here":                            "plain text here",
		"<p>Knife <b>attack</b></p><script>x()</script>": "Knife attack",
		"Tom &amp; Jerry":                                "Tom & Jerry",
		"":                                               "",
	}
	for in, want := range cases {
		if got := cleanText(in); got != want {
			t.Fatalf("cleanText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKeywordFilter(t *testing.T) {
	t.Parallel()

	def := newKeywordFilter("", CrimeKeywords)
	if !def.Match("Man KILLED", "") || def.Match("Weather", "sunny") {
		t.Fatal("default crime keywords misbehave")
	}
	if !newKeywordFilter("*", CrimeKeywords).Match("Weather", "sunny") {
		t.Fatal("wildcard must keep everything")
	}
	custom := newKeywordFilter(" Theft, ,robbery ", CrimeKeywords)
	if len(custom) != 2 || !custom.Match("", "armed robbery") || custom.Match("murder", "") {
		t.Fatalf("custom filter misbehaves: %v", custom)
	}
}

func TestSiteCoordinates(t *testing.T) {
	t.Parallel()

	lat, lon := 1.0, 2.0
	gotLat, gotLon := siteCoordinates(map[string]string{"lat": "10.5", "lon": "20.25"}, &lat, &lon)
	if *gotLat != 10.5 || *gotLon != 20.25 {
		t.Fatalf("options must win: %v %v", *gotLat, *gotLon)
	}
	gotLat, gotLon = siteCoordinates(map[string]string{"lat": "10.5"}, &lat, &lon)
	if gotLat != &lat || gotLon != &lon {
		t.Fatal("partial options must fall back to defaults")
	}
	if gotLat, _ := siteCoordinates(nil, nil, nil); gotLat != nil {
		t.Fatal("expected nil without options or defaults")
	}
}
