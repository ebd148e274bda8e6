// Package catalog loads the achievement catalog seed from YAML.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/progress-engine/internal/domain/achievement"
)

//go:embed achievements.yaml
var defaultCatalog []byte

// gradePlaceholder is replaced with the grade in expanded titles.
const gradePlaceholder = "{N}"

// File is the YAML document.
type File struct {
	Version      int     `yaml:"version"`
	Achievements []Entry `yaml:"achievements"`
}

// Entry is one catalog entry. Grades expands a grade-parametrized rule into
// one definition per grade.
type Entry struct {
	RuleKey     string `yaml:"rule_key"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Grades      []int  `yaml:"grades,omitempty"`
}

// Default returns the embedded catalog.
func Default(registry *achievement.Registry) ([]achievement.Definition, error) {
	return Parse(defaultCatalog, registry)
}

// LoadFile reads a catalog from path. An empty path means the embedded catalog.
func LoadFile(path string, registry *achievement.Registry) ([]achievement.Definition, error) {
	if path == "" {
		return Default(registry)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data, registry)
}

// Parse decodes and validates a catalog and expands it into definitions.
// Definitions carry no IDs; the store assigns them on upsert.
func Parse(data []byte, registry *achievement.Registry) ([]achievement.Definition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if registry == nil {
		registry = achievement.DefaultRegistry()
	}
	if err := f.Validate(registry); err != nil {
		return nil, fmt.Errorf("catalog validation failed: %w", err)
	}
	return f.Definitions(), nil
}

// Validate checks every entry against the registry and collects all problems.
func (f File) Validate(registry *achievement.Registry) error {
	var errs []error
	if len(f.Achievements) == 0 {
		errs = append(errs, errors.New("catalog has no achievements"))
	}

	seen := make(map[string]bool)
	for i, e := range f.Achievements {
		key := achievement.RuleKey(e.RuleKey)
		where := fmt.Sprintf("achievements[%d] (%s)", i, e.RuleKey)

		switch {
		case e.RuleKey == "":
			errs = append(errs, fmt.Errorf("achievements[%d]: rule_key is required", i))
			continue
		case !registry.Has(key):
			errs = append(errs, fmt.Errorf("%s: unknown rule key", where))
		}
		if strings.TrimSpace(e.Title) == "" {
			errs = append(errs, fmt.Errorf("%s: title is required", where))
		}

		if key == achievement.KeyGradeGraduate {
			if len(e.Grades) == 0 {
				errs = append(errs, fmt.Errorf("%s: grades are required", where))
			}
			for _, g := range e.Grades {
				if g <= 0 {
					errs = append(errs, fmt.Errorf("%s: grade %d must be positive", where, g))
				}
				id := e.RuleKey + "/" + strconv.Itoa(g)
				if seen[id] {
					errs = append(errs, fmt.Errorf("%s: duplicate grade %d", where, g))
				}
				seen[id] = true
			}
			continue
		}

		if len(e.Grades) > 0 {
			errs = append(errs, fmt.Errorf("%s: grades are only allowed for %s", where, achievement.KeyGradeGraduate))
		}
		if seen[e.RuleKey] {
			errs = append(errs, fmt.Errorf("%s: duplicate rule key", where))
		}
		seen[e.RuleKey] = true
	}
	return errors.Join(errs...)
}

// Definitions expands entries into definitions in file order.
func (f File) Definitions() []achievement.Definition {
	var defs []achievement.Definition
	for _, e := range f.Achievements {
		if len(e.Grades) == 0 {
			defs = append(defs, achievement.Definition{
				RuleKey:     achievement.RuleKey(e.RuleKey),
				Title:       e.Title,
				Description: e.Description,
				Position:    len(defs),
			})
			continue
		}
		for _, g := range e.Grades {
			grade := g
			n := strconv.Itoa(g)
			defs = append(defs, achievement.Definition{
				RuleKey:     achievement.RuleKey(e.RuleKey),
				Title:       strings.ReplaceAll(e.Title, gradePlaceholder, n),
				Description: strings.ReplaceAll(e.Description, gradePlaceholder, n),
				Grade:       &grade,
				Position:    len(defs),
			})
		}
	}
	return defs
}
