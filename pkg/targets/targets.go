// Package targets provides the country and pollutant catalog used to
// resolve sync scopes. A built-in catalog covers the standard vocabulary;
// a YAML file can extend or override it.
package targets

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pollutant maps a pollutant name to its source vocabulary code.
type Pollutant struct {
	Code  int    `yaml:"code"`
	Name  string `yaml:"name"`
	Label string `yaml:"label,omitempty"`
	Unit  string `yaml:"unit,omitempty"`
}

// Catalog holds the resolvable sync targets.
type Catalog struct {
	Countries  []string    `yaml:"countries"`
	Pollutants []Pollutant `yaml:"pollutants"`
}

// Default returns the built-in catalog with the standard vocabulary codes.
func Default() *Catalog {
	return &Catalog{
		Countries: []string{
			"AT", "BE", "BG", "CH", "CZ", "DE", "DK", "EE", "ES", "FI",
			"FR", "GR", "HR", "HU", "IE", "IT", "LT", "LU", "LV", "NL",
			"NO", "PL", "PT", "RO", "SE", "SI", "SK",
		},
		Pollutants: []Pollutant{
			{Code: 1, Name: "SO2", Label: "Sulphur dioxide", Unit: "µg/m³"},
			{Code: 5, Name: "PM10", Label: "Particulate matter < 10 µm", Unit: "µg/m³"},
			{Code: 7, Name: "O3", Label: "Ozone", Unit: "µg/m³"},
			{Code: 8, Name: "NO2", Label: "Nitrogen dioxide", Unit: "µg/m³"},
			{Code: 9, Name: "NOx", Label: "Nitrogen oxides", Unit: "µg/m³"},
			{Code: 10, Name: "CO", Label: "Carbon monoxide", Unit: "mg/m³"},
			{Code: 20, Name: "C6H6", Label: "Benzene", Unit: "µg/m³"},
			{Code: 38, Name: "NO", Label: "Nitrogen monoxide", Unit: "µg/m³"},
			{Code: 6001, Name: "PM2.5", Label: "Particulate matter < 2.5 µm", Unit: "µg/m³"},
		},
	}
}

// Load reads a catalog YAML file and merges it over the defaults.
// Pollutants with a known name replace the built-in entry; new names are
// appended. A non-empty countries list replaces the default list.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse targets file: %w", err)
	}

	cat := Default()
	if len(override.Countries) > 0 {
		cat.Countries = override.Countries
	}
	for _, p := range override.Pollutants {
		replaced := false
		for i := range cat.Pollutants {
			if strings.EqualFold(cat.Pollutants[i].Name, p.Name) {
				cat.Pollutants[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			cat.Pollutants = append(cat.Pollutants, p)
		}
	}
	return cat, nil
}

// CodeFor resolves a pollutant name (case-insensitive) to its code.
func (c *Catalog) CodeFor(name string) (int, bool) {
	for _, p := range c.Pollutants {
		if strings.EqualFold(p.Name, name) {
			return p.Code, true
		}
	}
	return 0, false
}

// NameFor resolves a pollutant code to its name.
func (c *Catalog) NameFor(code int) (string, bool) {
	for _, p := range c.Pollutants {
		if p.Code == code {
			return p.Name, true
		}
	}
	return "", false
}

// HasCountry reports whether the country code is a known target.
func (c *Catalog) HasCountry(code string) bool {
	for _, cc := range c.Countries {
		if strings.EqualFold(cc, code) {
			return true
		}
	}
	return false
}

// countryNames maps the default country codes to English short names.
var countryNames = map[string]string{
	"AT": "Austria", "BE": "Belgium", "BG": "Bulgaria", "CH": "Switzerland",
	"CZ": "Czechia", "DE": "Germany", "DK": "Denmark", "EE": "Estonia",
	"ES": "Spain", "FI": "Finland", "FR": "France", "GR": "Greece",
	"HR": "Croatia", "HU": "Hungary", "IE": "Ireland", "IT": "Italy",
	"LT": "Lithuania", "LU": "Luxembourg", "LV": "Latvia",
	"NL": "Netherlands", "NO": "Norway", "PL": "Poland", "PT": "Portugal",
	"RO": "Romania", "SE": "Sweden", "SI": "Slovenia", "SK": "Slovakia",
}

// CountryName resolves a country code to its short name. Unknown codes
// fall back to the code itself.
func CountryName(code string) string {
	if name, ok := countryNames[strings.ToUpper(code)]; ok {
		return name
	}
	return strings.ToUpper(code)
}
