package config

import (
	"errors"
	"fmt"
	"strings"
)

// Lookup failure sentinels. A missing key is not an error of the provider:
// callers either supply a default or fail their own initialization.
var (
	ErrKeyNotFound  = errors.New("config: key not found")
	ErrTypeMismatch = errors.New("config: value has wrong type")
)

// get walks the raw document along a dotted key path ("perception.runtime").
func (c *Config) get(key string) (any, error) {
	if c.raw == nil {
		return nil, fmt.Errorf("%w: %s (no raw document)", ErrKeyNotFound, key)
	}

	var cur any = c.raw
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		cur, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
	}
	return cur, nil
}

// GetString returns the string at the dotted key path.
func (c *Config) GetString(key string) (string, error) {
	v, err := c.get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrTypeMismatch, key, v)
	}
	return s, nil
}

// GetInt returns the integer at the dotted key path.
func (c *Config) GetInt(key string) (int64, error) {
	v, err := c.get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s is %T, want integer", ErrTypeMismatch, key, v)
	}
}

// GetFloat returns the float at the dotted key path. Integer values are
// widened; YAML does not distinguish "2" from "2.0" reliably.
func (c *Config) GetFloat(key string) (float64, error) {
	v, err := c.get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s is %T, want float", ErrTypeMismatch, key, v)
	}
}

// GetBool returns the boolean at the dotted key path.
func (c *Config) GetBool(key string) (bool, error) {
	v, err := c.get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, want bool", ErrTypeMismatch, key, v)
	}
	return b, nil
}
