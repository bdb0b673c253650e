package catalog

import (
	"fmt"
	"os"

	"github.com/ibarani/fitforge/internal/models"
	"gopkg.in/yaml.v3"
)

// Catalog is the read-only registry of workout templates, passed explicitly
// to every component that needs template data.
type Catalog struct {
	templates []models.WorkoutTemplate
	byKey     map[string]int
}

// New validates the templates and builds a catalog preserving their order.
func New(templates []models.WorkoutTemplate) (*Catalog, error) {
	c := &Catalog{
		templates: make([]models.WorkoutTemplate, 0, len(templates)),
		byKey:     make(map[string]int, len(templates)),
	}
	for _, t := range templates {
		if t.Key == "" {
			return nil, fmt.Errorf("template %q: key is required", t.Title)
		}
		if _, dup := c.byKey[t.Key]; dup {
			return nil, fmt.Errorf("template %q: duplicate key", t.Key)
		}
		seen := make(map[string]bool, len(t.Exercises))
		for _, ex := range t.Exercises {
			if ex.Name == "" {
				return nil, fmt.Errorf("template %q: exercise name is required", t.Key)
			}
			if seen[ex.Name] {
				return nil, fmt.Errorf("template %q: duplicate exercise %q", t.Key, ex.Name)
			}
			seen[ex.Name] = true
			if ex.TargetSets < 0 {
				return nil, fmt.Errorf("template %q exercise %q: target_sets must be >= 0", t.Key, ex.Name)
			}
			if ex.RestSeconds < 0 {
				return nil, fmt.Errorf("template %q exercise %q: rest_seconds must be >= 0", t.Key, ex.Name)
			}
		}
		c.byKey[t.Key] = len(c.templates)
		c.templates = append(c.templates, copyTemplate(t))
	}
	return c, nil
}

// Load reads templates from a YAML file of the form `templates: [...]`.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var doc struct {
		Templates []models.WorkoutTemplate `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	if len(doc.Templates) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no templates", path)
	}
	return New(doc.Templates)
}

// Get returns a copy of the template with the given key.
func (c *Catalog) Get(key string) (models.WorkoutTemplate, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return models.WorkoutTemplate{}, false
	}
	return copyTemplate(c.templates[i]), true
}

// All returns copies of every template in declaration order.
func (c *Catalog) All() []models.WorkoutTemplate {
	out := make([]models.WorkoutTemplate, len(c.templates))
	for i, t := range c.templates {
		out[i] = copyTemplate(t)
	}
	return out
}

// Has reports whether key names a template.
func (c *Catalog) Has(key string) bool {
	_, ok := c.byKey[key]
	return ok
}

// MandatoryKeys returns the keys of mandatory templates in catalog order.
func (c *Catalog) MandatoryKeys() []string {
	var keys []string
	for _, t := range c.templates {
		if t.Mandatory {
			keys = append(keys, t.Key)
		}
	}
	return keys
}

// Select resolves which templates count toward a cycle. Mandatory templates
// are in unless excluded; optional ones are out unless included. Unknown keys
// are rejected. The result follows catalog order.
func (c *Catalog) Select(include, exclude []string) ([]string, error) {
	inc := make(map[string]bool, len(include))
	for _, k := range include {
		if !c.Has(k) {
			return nil, models.Invalid("include", "unknown template %q", k)
		}
		inc[k] = true
	}
	exc := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		if !c.Has(k) {
			return nil, models.Invalid("exclude", "unknown template %q", k)
		}
		exc[k] = true
	}

	keys := []string{}
	for _, t := range c.templates {
		switch {
		case exc[t.Key]:
		case t.Mandatory, inc[t.Key]:
			keys = append(keys, t.Key)
		}
	}
	return keys, nil
}

func copyTemplate(t models.WorkoutTemplate) models.WorkoutTemplate {
	t.Exercises = append([]models.ExerciseSpec(nil), t.Exercises...)
	return t
}
