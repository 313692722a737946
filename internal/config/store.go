package config

import (
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Section is one named group of string values from the config file.
type Section struct {
	Name   string
	Values map[string]string
}

// Get returns the value for key and whether it was present.
func (s *Section) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}

	v, ok := s.Values[key]

	return v, ok
}

// Store is the hierarchical key-value collaborator: one optional default
// section plus one section per instance, in file order.
type Store struct {
	Default   *Section
	Instances []Section
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// addSection files a parsed section as either the default section or an
// instance section. Keys at the top level of a file land in the default
// section too, so a later [config] table merges into them.
func (s *Store) addSection(name string, values map[string]string) {
	if isDefaultSection(name) {
		s.mergeDefault(values)
		return
	}

	s.Instances = append(s.Instances, Section{Name: name, Values: values})
}

func (s *Store) mergeDefault(values map[string]string) {
	if len(values) == 0 && s.Default != nil {
		return
	}

	if s.Default == nil {
		s.Default = &Section{Name: DefaultSectionNames[0], Values: make(map[string]string)}
	}

	for k, v := range values {
		s.Default.Values[k] = v
	}
}

func isDefaultSection(name string) bool {
	return slices.Contains(DefaultSectionNames, name)
}

// stringify renders a decoded scalar as the string the resolver expects.
// Integers and floats keep their literal form; booleans become true/false.
func stringify(key string, v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case time.Time:
		return val.Format(time.RFC3339), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("%w: key %q: unsupported value type %T", ErrConfiguration, key, v)
	}
}
