package registry

import (
	"maps"
	"slices"
	"time"

	"github.com/spf13/cast"
)

// Config is the merged configuration of one contract. It is immutable; every
// accessor returns copies.
type Config struct {
	values  map[string]any
	origins map[string][]string
}

// Get returns a copy of the raw value for key.
func (c Config) Get(key string) (any, bool) {
	v, ok := c.values[key]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Has reports whether key is set.
func (c Config) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Keys returns all keys in sorted order.
func (c Config) Keys() []string {
	return slices.Sorted(maps.Keys(c.values))
}

// Len returns the number of keys.
func (c Config) Len() int { return len(c.values) }

// Origins returns the origins that contributed to key, in scan order.
func (c Config) Origins(key string) []string {
	return slices.Clone(c.origins[key])
}

// Map returns a deep copy of all values.
func (c Config) Map() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns key as a string. Missing keys and failed conversions yield "".
func (c Config) String(key string) string {
	return cast.ToString(c.values[key])
}

// Int returns key as an int.
func (c Config) Int(key string) int {
	return cast.ToInt(c.values[key])
}

// Bool returns key as a bool.
func (c Config) Bool(key string) bool {
	return cast.ToBool(c.values[key])
}

// Float returns key as a float64.
func (c Config) Float(key string) float64 {
	return cast.ToFloat64(c.values[key])
}

// Strings returns key as a string slice.
func (c Config) Strings(key string) []string {
	return cast.ToStringSlice(c.values[key])
}

// Duration returns key as a time.Duration. Strings are parsed ("5s"), numbers
// are taken as nanoseconds.
func (c Config) Duration(key string) time.Duration {
	return cast.ToDuration(c.values[key])
}

// StringE returns key as a string or a conversion error.
func (c Config) StringE(key string) (string, error) {
	return cast.ToStringE(c.values[key])
}

// IntE returns key as an int or a conversion error.
func (c Config) IntE(key string) (int, error) {
	return cast.ToIntE(c.values[key])
}

// DurationE returns key as a time.Duration or a conversion error.
func (c Config) DurationE(key string) (time.Duration, error) {
	return cast.ToDurationE(c.values[key])
}

// ConfigFromFragment builds a Config holding exactly one fragment's values.
// Factories receive their binding's own fragment this way.
func ConfigFromFragment(f Fragment) Config {
	cfg := Config{
		values:  f.Values(),
		origins: make(map[string][]string, f.Len()),
	}
	for k := range cfg.values {
		cfg.origins[k] = []string{f.Origin()}
	}
	return cfg
}
