// Package schema validates candidate objects against a YAML ontology before
// they reach the governance pipeline. Field shapes are checked once here;
// downstream components treat the normalized field map as opaque.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aegis-kb/aegis/internal/store"
)

// Property describes one field of an object type.
type Property struct {
	Type     string   `yaml:"type"` // String, Number, Integer, Float, Boolean, Date, DateTime
	Required bool     `yaml:"required"`
	Enum     []string `yaml:"enum"`
}

// ObjectSchema describes one object type. Inherits names a parent type whose
// required properties are folded in.
type ObjectSchema struct {
	Inherits   string              `yaml:"inherits"`
	Properties map[string]Property `yaml:"properties"`
}

type ontologyFile struct {
	Objects map[string]ObjectSchema `yaml:"objects"`
}

// Ontology is a merged set of object type schemas.
type Ontology struct {
	objects map[string]ObjectSchema
}

// defaultOntology covers the built-in object types. A directory of YAML
// files extends or overrides it (see LoadDir).
const defaultOntology = `
objects:
  Note:
    properties:
      title:
        type: String
        required: true
      data:
        type: String
  Document:
    properties:
      title:
        type: String
        required: true
      content:
        type: String
      source_uri:
        type: String
  Concept:
    properties:
      name:
        type: String
        required: true
      description:
        type: String
  Account:
    properties:
      name:
        type: String
        required: true
      currency:
        type: String
  Transaction:
    inherits: Account
    properties:
      amount:
        type: Number
        required: true
      date:
        type: Date
  Forecast:
    properties:
      horizon_days:
        type: Integer
        required: true
      confidence:
        type: Float
`

// Default returns the built-in ontology.
func Default() *Ontology {
	o, err := parse([]byte(defaultOntology))
	if err != nil {
		// The built-in document is a compile-time constant; a parse failure
		// is a programming error.
		panic(fmt.Sprintf("schema: default ontology: %v", err))
	}
	return o
}

// LoadDir loads every .yaml/.yml file in dir and merges it over the built-in
// ontology, later files overriding earlier ones by type name.
func LoadDir(dir string) (*Ontology, error) {
	o := Default()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read ontology dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read ontology %s: %w", name, err)
		}
		ext, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse ontology %s: %w", name, err)
		}
		for t, s := range ext.objects {
			o.objects[t] = s
		}
	}
	return o, nil
}

func parse(data []byte) (*Ontology, error) {
	var f ontologyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal ontology: %w", err)
	}
	if f.Objects == nil {
		f.Objects = map[string]ObjectSchema{}
	}
	return &Ontology{objects: f.Objects}, nil
}

// ListTypes returns all known object types, sorted.
func (o *Ontology) ListTypes() []string {
	types := make([]string, 0, len(o.objects))
	for t := range o.objects {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Schema returns the schema for a type, or nil if unknown.
func (o *Ontology) Schema(objectType string) *ObjectSchema {
	s, ok := o.objects[objectType]
	if !ok {
		return nil
	}
	return &s
}

// RequiredFields returns the required property names for a type, including
// inherited ones.
func (o *Ontology) RequiredFields(objectType string) []string {
	var required []string
	seen := map[string]bool{}

	for objectType != "" && !seen[objectType] {
		seen[objectType] = true
		s, ok := o.objects[objectType]
		if !ok {
			break
		}
		for name, p := range s.Properties {
			if p.Required {
				required = append(required, name)
			}
		}
		objectType = s.Inherits
	}
	sort.Strings(required)
	return required
}

// ValidateAndNormalize checks fields against the schema for objectType.
// On success it returns a normalized copy (strings trimmed, object_type
// injected) and a nil error list. Every field error is collected; the first
// error does not stop validation.
func (o *Ontology) ValidateAndNormalize(objectType string, fields map[string]any) (map[string]any, []string) {
	var errs []string

	if _, ok := o.objects[objectType]; !ok {
		return nil, []string{fmt.Sprintf("unknown object type: %s", objectType)}
	}

	for _, name := range o.RequiredFields(objectType) {
		if _, present := fields[name]; !present {
			errs = append(errs, fmt.Sprintf("missing required property: %s", name))
		}
	}

	normalized := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if str, ok := v.(string); ok {
			v = strings.TrimSpace(str)
		}
		normalized[k] = v
	}

	for name, prop := range collectProperties(o, objectType) {
		v, present := normalized[name]
		if !present {
			continue
		}
		if msg := validateProperty(v, prop); msg != "" {
			errs = append(errs, fmt.Sprintf("property %q: %s", name, msg))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, errs
	}

	normalized["object_type"] = objectType
	return normalized, nil
}

// collectProperties folds inherited properties into one map. The child's
// definition wins on name collision.
func collectProperties(o *Ontology, objectType string) map[string]Property {
	props := map[string]Property{}
	seen := map[string]bool{}

	// Walk to the root first so children override parents.
	var chain []string
	for objectType != "" && !seen[objectType] {
		seen[objectType] = true
		s, ok := o.objects[objectType]
		if !ok {
			break
		}
		chain = append(chain, objectType)
		objectType = s.Inherits
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for name, p := range o.objects[chain[i]].Properties {
			props[name] = p
		}
	}
	return props
}

func validateProperty(v any, prop Property) string {
	switch prop.Type {
	case "", "String":
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("expected String, got %T", v)
		}
	case "Number", "Float":
		if !isNumeric(v) {
			return fmt.Sprintf("expected %s, got %T", prop.Type, v)
		}
	case "Integer":
		switch n := v.(type) {
		case int, int64:
		case float64:
			if n != float64(int64(n)) {
				return "expected Integer, got fractional number"
			}
		default:
			return fmt.Sprintf("expected Integer, got %T", v)
		}
	case "Boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("expected Boolean, got %T", v)
		}
	case "Date", "DateTime":
		str, ok := v.(string)
		if !ok {
			return fmt.Sprintf("expected %s string, got %T", prop.Type, v)
		}
		if _, err := parseDateish(str, prop.Type == "Date"); err != nil {
			return fmt.Sprintf("invalid %s: %v", prop.Type, err)
		}
	}

	if len(prop.Enum) > 0 {
		str, ok := v.(string)
		if !ok || !contains(prop.Enum, str) {
			return fmt.Sprintf("value must be one of %v", prop.Enum)
		}
	}
	return ""
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int64, float32, float64:
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func parseDateish(s string, dateOnly bool) (any, error) {
	if dateOnly {
		if len(s) == 10 {
			return store.ParseTime(s + "T00:00:00Z")
		}
		return nil, fmt.Errorf("expected YYYY-MM-DD")
	}
	return store.ParseTime(s)
}
