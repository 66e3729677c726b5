package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mythos-linux/mythos/pkg/engine"
)

// Document keys.
const (
	keyName        = "name"
	keyDescription = "description"
	keyTraits      = "traits"
)

// field is one key of a decoded mapping.
type field struct {
	Key   string
	Value interface{}
}

// orderedMap is a decoded mapping that keeps the source key order.
// Values are nil, bool, int64, float64, string, []interface{} or orderedMap.
type orderedMap []field

func (m orderedMap) get(key string) (interface{}, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// document is a decoded profile or trait before it becomes an engine type.
type document struct {
	Name        string
	Description string
	Settings    engine.Settings
	Traits      []string
}

// buildDocument converts a decoded mapping into typed settings.
// allowTraits is false for trait documents, which ignore a traits key.
func buildDocument(name string, tree orderedMap, allowTraits bool) (*document, error) {
	doc := &document{Name: name}

	for _, f := range tree {
		switch f.Key {
		case keyName:
			s, ok := f.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%s: expected string, got %s", f.Key, typeName(f.Value))
			}
			if s != name {
				return nil, fmt.Errorf("%s: %q does not match file name %q", f.Key, s, name)
			}

		case keyDescription:
			s, ok := f.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%s: expected string, got %s", f.Key, typeName(f.Value))
			}
			doc.Description = s

		case engine.KeyBootstrap:
			b, ok := f.Value.(bool)
			if !ok {
				return nil, fmt.Errorf("%s: expected bool, got %s", f.Key, typeName(f.Value))
			}
			doc.Settings.Bootstrap = &b

		case engine.KeyTheme:
			s, ok := f.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%s: expected string, got %s", f.Key, typeName(f.Value))
			}
			doc.Settings.Theme = &s

		case engine.KeyPillars:
			list, err := decodePillars(f.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Key, err)
			}
			doc.Settings.Pillars = list

		case keyTraits:
			if !allowTraits {
				continue
			}
			names, err := stringList(f.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Key, err)
			}
			doc.Traits = names

		default:
			return nil, fmt.Errorf("unknown key %q", f.Key)
		}
	}

	return doc, nil
}

// decodePillars accepts a mapping of pillar name to an optional step list,
// or a list of pillar names.
func decodePillars(v interface{}) (engine.PillarList, error) {
	switch val := v.(type) {
	case nil:
		return engine.PillarList{}, nil
	case orderedMap:
		list := make(engine.PillarList, 0, len(val))
		for _, f := range val {
			steps, err := stringList(f.Value)
			if err != nil {
				return nil, fmt.Errorf("pillar %q: %w", f.Key, err)
			}
			list = append(list, engine.PillarSpec{Name: f.Key, Steps: steps})
		}
		return list, nil
	case []interface{}:
		names, err := stringList(val)
		if err != nil {
			return nil, err
		}
		list := make(engine.PillarList, 0, len(names))
		for _, n := range names {
			list = append(list, engine.PillarSpec{Name: n})
		}
		return list, nil
	default:
		return nil, fmt.Errorf("expected mapping or list, got %s", typeName(v))
	}
}

// stringList accepts nil (empty) or a list of strings.
func stringList(v interface{}) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: expected string, got %s", i, typeName(item))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list, got %s", typeName(v))
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case []interface{}:
		return "list"
	case orderedMap:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// fromMap converts an unordered map, ordering keys with rank (lower first)
// and falling back to lexical order.
func fromMap(m map[string]interface{}, rank func(key string) int) orderedMap {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	out := make(orderedMap, 0, len(keys))
	for _, k := range keys {
		out = append(out, field{Key: k, Value: m[k]})
	}
	return out
}

// documentValidator checks decoded profiles and traits.
type documentValidator struct {
	v *validator.Validate
}

func newDocumentValidator() *documentValidator {
	return &documentValidator{v: validator.New()}
}

func (dv *documentValidator) profile(p *engine.Profile) error {
	if err := dv.v.Struct(p); err != nil {
		return formatValidationErrors(err)
	}
	return checkDuplicatePillars(p.Settings.Pillars)
}

func (dv *documentValidator) trait(t *engine.Trait) error {
	if err := dv.v.Struct(t); err != nil {
		return formatValidationErrors(err)
	}
	return checkDuplicatePillars(t.Settings.Pillars)
}

func checkDuplicatePillars(list engine.PillarList) error {
	seen := make(map[string]bool, len(list))
	for _, p := range list {
		if seen[p.Name] {
			return fmt.Errorf("pillar %q declared twice", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// formatValidationErrors turns validator errors into one readable error.
func formatValidationErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Namespace()))
		case "excludesall":
			msgs = append(msgs, fmt.Sprintf("%s %q must not contain path separators", fe.Namespace(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
