package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies a document encoding.
type Format string

const (
	FormatYAML     Format = "yaml"
	FormatTOML     Format = "toml"
	FormatCUE      Format = "cue"
	FormatStarlark Format = "starlark"
)

// extensions lists probed file extensions in priority order.
var extensions = []struct {
	ext    string
	format Format
}{
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
	{".toml", FormatTOML},
	{".cue", FormatCUE},
	{".star", FormatStarlark},
}

// formatFor returns the format of a path by extension.
func formatFor(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if e.ext == ext {
			return e.format, true
		}
	}
	return "", false
}

// decoder turns file contents into an ordered mapping.
type decoder interface {
	decode(ctx context.Context, filename string, src []byte) (orderedMap, error)
}

func decoderFor(format Format, evalTimeout time.Duration) (decoder, error) {
	switch format {
	case FormatYAML:
		return yamlDecoder{}, nil
	case FormatTOML:
		return tomlDecoder{}, nil
	case FormatCUE:
		return newCUEDecoder(), nil
	case FormatStarlark:
		return NewStarlarkEvaluator(evalTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// yamlDecoder walks the yaml.v3 node tree so mapping order is kept.
type yamlDecoder struct{}

func (yamlDecoder) decode(_ context.Context, _ string, src []byte) (orderedMap, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 {
		return orderedMap{}, nil
	}
	v, err := fromYAMLNode(&root)
	if err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case nil:
		return orderedMap{}, nil
	case orderedMap:
		return m, nil
	default:
		return nil, fmt.Errorf("top level must be a mapping, got %s", typeName(v))
	}
}

func fromYAMLNode(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromYAMLNode(n.Content[0])
	case yaml.AliasNode:
		return fromYAMLNode(n.Alias)
	case yaml.MappingNode:
		m := make(orderedMap, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			val, err := fromYAMLNode(v)
			if err != nil {
				return nil, err
			}
			m = append(m, field{Key: k.Value, Value: val})
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]interface{}, 0, len(n.Content))
		for _, item := range n.Content {
			val, err := fromYAMLNode(item)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil
	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return normalizeScalar(v), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
	}
}

// normalizeScalar maps decoder-specific scalar types onto the orderedMap set.
func normalizeScalar(v interface{}) interface{} {
	switch val := v.(type) {
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}

// tomlDecoder uses the metadata key order to rebuild table order.
type tomlDecoder struct{}

func (tomlDecoder) decode(_ context.Context, _ string, src []byte) (orderedMap, error) {
	var raw map[string]interface{}
	md, err := toml.Decode(string(src), &raw)
	if err != nil {
		return nil, err
	}

	order := make(map[string]int)
	for i, key := range md.Keys() {
		path := key.String()
		if _, ok := order[path]; !ok {
			order[path] = i
		}
	}

	return fromTOMLTable(raw, "", order), nil
}

func fromTOMLTable(m map[string]interface{}, prefix string, order map[string]int) orderedMap {
	rank := func(k string) int {
		if r, ok := order[joinTOMLKey(prefix, k)]; ok {
			return r
		}
		return len(order)
	}
	out := fromMap(m, rank)
	for i := range out {
		out[i].Value = fromTOMLValue(out[i].Value, joinTOMLKey(prefix, out[i].Key), order)
	}
	return out
}

func fromTOMLValue(v interface{}, path string, order map[string]int) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return fromTOMLTable(val, path, order)
	case []map[string]interface{}:
		list := make([]interface{}, 0, len(val))
		for _, t := range val {
			list = append(list, fromTOMLTable(t, path, order))
		}
		return list
	case []interface{}:
		list := make([]interface{}, 0, len(val))
		for _, item := range val {
			list = append(list, fromTOMLValue(item, path, order))
		}
		return list
	default:
		return normalizeScalar(v)
	}
}

// joinTOMLKey matches toml.Key.String quoting for simple keys.
func joinTOMLKey(prefix, key string) string {
	k := toml.Key{key}.String()
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}
