package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

// Section is the read-only view of one task's parameters (`tasks.<name>`).
// The string "None" and empty strings count as unset.
type Section struct {
	name   string
	values map[string]any
}

// Section returns the parameter section for a task. Unknown sections are empty.
func (c *Config) Section(name string) Section {
	return Section{name: name, values: c.Tasks[name]}
}

// NewSection builds a section from literal values.
func NewSection(name string, values map[string]any) Section {
	return Section{name: name, values: values}
}

// Name returns the section name.
func (s Section) Name() string { return s.name }

// Keys returns the configured keys in sorted order.
func (s Section) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is set to a meaningful value.
func (s Section) Has(key string) bool {
	_, ok := s.lookup(key)
	return ok
}

func (s Section) lookup(key string) (any, bool) {
	v, ok := s.values[key]
	if !ok || v == nil {
		return nil, false
	}
	if str, isStr := v.(string); isStr {
		trimmed := strings.TrimSpace(str)
		if trimmed == "" || trimmed == "None" {
			return nil, false
		}
	}
	return v, true
}

func (s Section) missing(key string) error {
	return ferrors.ConfigError(fmt.Sprintf("missing configuration key %s.%s", s.name, key)).
		WithContext("section", s.name).
		WithContext("key", key).Build()
}

func (s Section) invalid(key string, v any, want string) error {
	return ferrors.ConfigError(fmt.Sprintf("configuration key %s.%s must be %s", s.name, key, want)).
		WithContext("section", s.name).
		WithContext("key", key).
		WithContext("value", fmt.Sprint(v)).Build()
}

// String returns the value for key or a configuration error when absent.
func (s Section) String(key string) (string, error) {
	v, ok := s.lookup(key)
	if !ok {
		return "", s.missing(key)
	}
	if str, isStr := v.(string); isStr {
		return strings.TrimSpace(str), nil
	}
	return fmt.Sprint(v), nil
}

// StringOr returns the value for key or def.
func (s Section) StringOr(key, def string) string {
	if v, err := s.String(key); err == nil {
		return v
	}
	return def
}

// Bool returns the boolean value for key. Strings such as "yes", "True" and "0" are accepted.
func (s Section) Bool(key string) (bool, error) {
	v, ok := s.lookup(key)
	if !ok {
		return false, s.missing(key)
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
	}
	return false, s.invalid(key, v, "a boolean")
}

// BoolOr returns the boolean value for key or def when absent or malformed.
func (s Section) BoolOr(key string, def bool) bool {
	if v, err := s.Bool(key); err == nil {
		return v
	}
	return def
}

// Int returns the integer value for key.
func (s Section) Int(key string) (int, error) {
	v, ok := s.lookup(key)
	if !ok {
		return 0, s.missing(key)
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t == float64(int(t)) {
			return int(t), nil
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, nil
		}
	}
	return 0, s.invalid(key, v, "an integer")
}

// IntOr returns the integer value for key or def.
func (s Section) IntOr(key string, def int) int {
	if v, err := s.Int(key); err == nil {
		return v
	}
	return def
}

// Float returns the numeric value for key.
func (s Section) Float(key string) (float64, error) {
	v, ok := s.lookup(key)
	if !ok {
		return 0, s.missing(key)
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, nil
		}
	}
	return 0, s.invalid(key, v, "a number")
}

// FloatOr returns the numeric value for key or def.
func (s Section) FloatOr(key string, def float64) float64 {
	if v, err := s.Float(key); err == nil {
		return v
	}
	return def
}

// Require returns a configuration error naming the first absent key.
func (s Section) Require(keys ...string) error {
	for _, key := range keys {
		if !s.Has(key) {
			return s.missing(key)
		}
	}
	return nil
}
