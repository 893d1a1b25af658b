// Package lookup resolves countries to continents and trade blocs from
// tables that can be replaced without rebuilding the binary.
package lookup

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

const (
	UnknownContinent = "UN"
	OtherBloc        = "OTHER"
	unknownName      = "Unknown"
)

//go:embed tables.yaml
var defaultTables []byte

type Bloc struct {
	Name      string   `yaml:"name"`
	Countries []string `yaml:"countries"`
}

type file struct {
	Continents     map[string]string `yaml:"continents"`
	Blocs          []Bloc            `yaml:"blocs"`
	ContinentNames map[string]string `yaml:"continent_names"`
}

// Tables is immutable after loading and safe for concurrent use.
type Tables struct {
	continents     map[string]string
	blocs          map[string]string
	continentNames map[string]string
}

// Default returns the embedded tables.
func Default() *Tables {
	t, err := Parse(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("embedded lookup tables: %s", err))
	}
	return t
}

func Parse(data []byte) (*Tables, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lookup tables: %w", err)
	}
	return newTables(f), nil
}

func Load(r io.Reader) (*Tables, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read lookup tables: %w", err)
	}
	return Parse(data)
}

func LoadFile(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func newTables(f file) *Tables {
	t := &Tables{
		continents:     f.Continents,
		blocs:          map[string]string{},
		continentNames: f.ContinentNames,
	}
	for _, b := range f.Blocs {
		for _, c := range b.Countries {
			if _, ok := t.blocs[c]; !ok {
				t.blocs[c] = b.Name
			}
		}
	}
	return t
}

// Continent returns the continent code of a country, UnknownContinent if unmapped.
func (t *Tables) Continent(country string) string {
	if code, ok := t.continents[country]; ok {
		return code
	}
	return UnknownContinent
}

// TradeBloc returns the bloc of a country, OtherBloc if it belongs to none.
func (t *Tables) TradeBloc(country string) string {
	if bloc, ok := t.blocs[country]; ok {
		return bloc
	}
	return OtherBloc
}

func (t *Tables) ContinentName(code string) string {
	if name, ok := t.continentNames[code]; ok {
		return name
	}
	return unknownName
}
