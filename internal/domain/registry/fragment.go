package registry

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
)

// Strategy decides how a fragment's values merge with earlier ones.
type Strategy string

const (
	// StrategyOverride replaces earlier values for the same key.
	StrategyOverride Strategy = "override"
	// StrategyAppend concatenates sequences in scan order.
	StrategyAppend Strategy = "append"
	// StrategyErrorOnConflict fails resolution when another origin supplies a different value.
	StrategyErrorOnConflict Strategy = "error-on-conflict"
)

// ParseStrategy maps a manifest value to a Strategy. Empty means override.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyOverride:
		return StrategyOverride, nil
	case StrategyAppend:
		return StrategyAppend, nil
	case StrategyErrorOnConflict:
		return StrategyErrorOnConflict, nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q", s)
	}
}

// Fragment is a set of configuration values from one origin for one contract.
// Values are normalized on construction: integers become int64, integral
// floats become int64, sequences become []any and maps become map[string]any.
type Fragment struct {
	contract string
	origin   string
	strategy Strategy
	values   map[string]any
}

// NewFragment validates and creates a fragment.
func NewFragment(contract, origin string, strategy Strategy, values map[string]any) (Fragment, error) {
	descriptor := "config " + contract
	if !validName(contract) {
		return Fragment{}, &MalformedDescriptorError{Origin: origin, Descriptor: "config", Reason: "contract identifier is required"}
	}
	if !validName(origin) {
		return Fragment{}, &MalformedDescriptorError{Origin: origin, Descriptor: descriptor, Reason: "origin is required"}
	}
	if strategy == "" {
		strategy = StrategyOverride
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return Fragment{}, &MalformedDescriptorError{Origin: origin, Descriptor: descriptor, Err: err}
	}

	normalized := make(map[string]any, len(values))
	for k, v := range values {
		if k == "" {
			return Fragment{}, &MalformedDescriptorError{Origin: origin, Descriptor: descriptor, Reason: "config key cannot be empty"}
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return Fragment{}, &MalformedDescriptorError{Origin: origin, Descriptor: descriptor, Reason: fmt.Sprintf("key %q: %v", k, err)}
		}
		normalized[k] = nv
	}

	return Fragment{contract: contract, origin: origin, strategy: strategy, values: normalized}, nil
}

// Contract returns the target contract identifier.
func (f Fragment) Contract() string { return f.contract }

// Origin returns the contributing origin.
func (f Fragment) Origin() string { return f.origin }

// Strategy returns the merge strategy.
func (f Fragment) Strategy() Strategy { return f.strategy }

// Keys returns the fragment keys in sorted order.
func (f Fragment) Keys() []string {
	return slices.Sorted(maps.Keys(f.values))
}

// Value returns a copy of the value for key.
func (f Fragment) Value(key string) (any, bool) {
	v, ok := f.values[key]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Values returns a deep copy of all values.
func (f Fragment) Values() map[string]any {
	out := make(map[string]any, len(f.values))
	for k, v := range f.values {
		out[k] = cloneValue(v)
	}
	return out
}

// Len returns the number of keys.
func (f Fragment) Len() int { return len(f.values) }

func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int64:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint:
		if uint64(t) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", t)
		}
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", t)
		}
		return int64(t), nil
	case float32:
		return normalizeFloat(float64(t)), nil
	case float64:
		return normalizeFloat(t), nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = ne
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ne, err := normalizeValue(e)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = ne
		}
		return out, nil
	}

	// Typed slices and maps ([]string, map[string]int, ...) from programmatic sources.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			ne, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = ne
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map keys must be strings, got %s", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ne, err := normalizeValue(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = ne
		}
		return out, nil
	case reflect.String:
		return rv.String(), nil
	}

	return nil, fmt.Errorf("unsupported value type %T", v)
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
