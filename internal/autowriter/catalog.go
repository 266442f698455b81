package autowriter

import (
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/autowriter/configs"
)

// Catalog recognizes vehicle makes and models.
type Catalog struct {
	makes []catalogMake
}

type catalogMake struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Models  []string `yaml:"models"`
}

// ParseCatalog decodes a vehicle catalog YAML document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f struct {
		Makes []catalogMake `yaml:"makes"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse vehicle catalog: %w", err)
	}
	return &Catalog{makes: f.Makes}, nil
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded vehicle catalog.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(configs.Vehicles)
	})
	return defaultCatalog, defaultCatalogErr
}

// normalizeName lowercases s and treats '-' and '_' as spaces.
func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// MatchMake returns the canonical make for a path segment or name.
func (c *Catalog) MatchMake(s string) (string, bool) {
	n := normalizeName(s)
	for _, m := range c.makes {
		if normalizeName(m.Name) == n {
			return m.Name, true
		}
		for _, a := range m.Aliases {
			if normalizeName(a) == n {
				return m.Name, true
			}
		}
	}
	return "", false
}

// MatchModel returns the canonical model for s. When make is non-empty only
// that make's models are considered.
func (c *Catalog) MatchModel(makeName, s string) (string, bool) {
	n := normalizeName(s)
	for _, m := range c.makes {
		if makeName != "" && m.Name != makeName {
			continue
		}
		for _, model := range m.Models {
			if normalizeName(model) == n {
				return model, true
			}
		}
	}
	return "", false
}

// MakeOf returns the make that lists model.
func (c *Catalog) MakeOf(model string) (string, bool) {
	for _, m := range c.makes {
		for _, candidate := range m.Models {
			if candidate == model {
				return m.Name, true
			}
		}
	}
	return "", false
}

// Detect finds the first make and model mentioned in free text. Either may
// be empty. Without a make, models shorter than three characters are
// ignored since they collide with ordinary words.
func (c *Catalog) Detect(text string) (makeName, model string) {
	n := normalizeName(text)
	bestMake := -1
	for _, m := range c.makes {
		for _, name := range append([]string{m.Name}, m.Aliases...) {
			if i := findTerm(n, normalizeName(name)); i >= 0 && (bestMake < 0 || i < bestMake) {
				bestMake, makeName = i, m.Name
			}
		}
	}

	bestModel, bestLen := -1, 0
	for _, m := range c.makes {
		if makeName != "" && m.Name != makeName {
			continue
		}
		for _, candidate := range m.Models {
			name := normalizeName(candidate)
			if makeName == "" && len([]rune(name)) < 3 {
				continue
			}
			i := findTerm(n, name)
			if i < 0 {
				continue
			}
			// Prefer the earliest mention, then the longest name
			// ("Range Rover Sport" over "Range Rover").
			if bestModel < 0 || i < bestModel || (i == bestModel && len(name) > bestLen) {
				bestModel, bestLen, model = i, len(name), candidate
			}
		}
	}
	if makeName == "" && model != "" {
		makeName, _ = c.MakeOf(model)
	}
	return makeName, model
}
