package lookup_test

import (
	"strings"
	"testing"

	"github.com/royalcat/hgeoroute/lookup"
)

func TestDefaultTables(t *testing.T) {
	tables := lookup.Default()

	cases := []struct {
		country, continent, bloc string
	}{
		{"Portugal", "EU", "EU"},
		{"Brazil", "SA", "MERCOSUL"},
		{"United Kingdom", "EU", lookup.OtherBloc},
		{"Turkey", "AS", "MIDDLE_EAST"},
		{"Saudi Arabia", lookup.UnknownContinent, "MIDDLE_EAST"},
		{"Atlantis", lookup.UnknownContinent, lookup.OtherBloc},
	}
	for _, c := range cases {
		if got := tables.Continent(c.country); got != c.continent {
			t.Errorf("%s: expected continent %s, got %s", c.country, c.continent, got)
		}
		if got := tables.TradeBloc(c.country); got != c.bloc {
			t.Errorf("%s: expected bloc %s, got %s", c.country, c.bloc, got)
		}
	}

	if tables.ContinentName("OC") != "Oceania" {
		t.Fatalf("unexpected name %q", tables.ContinentName("OC"))
	}
	if tables.ContinentName(lookup.UnknownContinent) != "Unknown" {
		t.Fatalf("unexpected name %q", tables.ContinentName(lookup.UnknownContinent))
	}
}

func TestInjectedTablesFirstBlocWins(t *testing.T) {
	tables, err := lookup.Load(strings.NewReader(`
continents:
  Narnia: EU
blocs:
  - name: FIRST
    countries: [Narnia]
  - name: SECOND
    countries: [Narnia, Gondor]
`))
	if err != nil {
		t.Fatal(err)
	}

	if tables.TradeBloc("Narnia") != "FIRST" {
		t.Fatalf("expected FIRST, got %s", tables.TradeBloc("Narnia"))
	}
	if tables.TradeBloc("Gondor") != "SECOND" {
		t.Fatalf("expected SECOND, got %s", tables.TradeBloc("Gondor"))
	}
	if tables.Continent("Portugal") != lookup.UnknownContinent {
		t.Fatal("injected tables must not fall back to the embedded ones")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := lookup.Parse([]byte("continents: [1, 2")); err == nil {
		t.Fatal("expected parse error")
	}
}
