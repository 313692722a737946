package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// tomlTableType is the metadata type name BurntSushi/toml reports for tables.
const tomlTableType = "Hash"

// LoadStore reads a config file and returns its sections. The format is
// chosen by extension: .yaml/.yml are YAML, everything else is TOML.
func LoadStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var store *Store

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		store, err = ParseYAML(data)
	default:
		store, err = ParseTOML(data)
	}

	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return store, nil
}

// LoadStoreOrEmpty reads the config file if it exists, otherwise returns an
// empty store. A missing file is the normal state for CLI-only usage.
func LoadStoreOrEmpty(path string) (*Store, error) {
	if path == "" || !exists(path) {
		return NewStore(), nil
	}

	return LoadStore(path)
}

// ResolveConfigPath applies the override chain for the config file path:
// CLI > environment > default.
func ResolveConfigPath(env EnvOverrides, cliPath string) string {
	if cliPath != "" {
		return cliPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// ParseTOML decodes a TOML document. Top-level tables are sections, in
// document order; top-level scalars belong to the default section.
func ParseTOML(data []byte) (*Store, error) {
	var raw map[string]any

	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	store := NewStore()
	topLevel := make(map[string]string)

	var sectionOrder []string

	for _, key := range md.Keys() {
		if len(key) != 1 {
			continue
		}

		name := key[0]
		if md.Type(name) == tomlTableType {
			sectionOrder = append(sectionOrder, name)
			continue
		}

		val, err := stringify(name, raw[name])
		if err != nil {
			return nil, err
		}

		topLevel[name] = val
	}

	if len(topLevel) > 0 {
		store.mergeDefault(topLevel)
	}

	for _, name := range sectionOrder {
		table, ok := raw[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: section %q is not a table", ErrConfiguration, name)
		}

		values, err := stringifyTable(name, table)
		if err != nil {
			return nil, err
		}

		store.addSection(name, values)
	}

	return store, nil
}

// ParseYAML decodes a YAML document with the same layout as ParseTOML:
// top-level mappings are sections, top-level scalars are defaults.
func ParseYAML(data []byte) (*Store, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	store := NewStore()
	if len(doc.Content) == 0 {
		return store, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrConfiguration)
	}

	topLevel := make(map[string]string)

	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		node := root.Content[i+1]

		switch node.Kind {
		case yaml.MappingNode:
			values, err := yamlSection(name, node)
			if err != nil {
				return nil, err
			}

			store.addSection(name, values)
		case yaml.ScalarNode:
			val, err := yamlScalar(name, node)
			if err != nil {
				return nil, err
			}

			topLevel[name] = val
		default:
			return nil, fmt.Errorf("%w: key %q: lists are not supported", ErrConfiguration, name)
		}
	}

	if len(topLevel) > 0 {
		store.mergeDefault(topLevel)
	}

	return store, nil
}

func yamlSection(name string, node *yaml.Node) (map[string]string, error) {
	values := make(map[string]string, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		valNode := node.Content[i+1]

		if valNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: section %q key %q: only scalar values are supported",
				ErrConfiguration, name, key)
		}

		val, err := yamlScalar(key, valNode)
		if err != nil {
			return nil, err
		}

		values[key] = val
	}

	return values, nil
}

func yamlScalar(key string, node *yaml.Node) (string, error) {
	var v any
	if err := node.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: key %q: %w", ErrConfiguration, key, err)
	}

	return stringify(key, v)
}

func stringifyTable(section string, table map[string]any) (map[string]string, error) {
	values := make(map[string]string, len(table))

	var errs []error

	for k, v := range table {
		s, err := stringify(k, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("section %q: %w", section, err))
			continue
		}

		values[k] = s
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return values, nil
}
