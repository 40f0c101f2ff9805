package registry

import (
	"reflect"
	"slices"
	"sort"
)

type supplied struct {
	origin string
	value  any
}

// mergeFragments applies fragments in scan order. The result depends on that
// order for override keys: the last fragment wins.
func mergeFragments(contract string, fragments []Fragment) (Config, []*ResolutionConflictError) {
	cfg := Config{
		values:  make(map[string]any),
		origins: make(map[string][]string),
	}
	strict := make(map[string]bool)
	history := make(map[string][]supplied)

	for _, f := range fragments {
		for _, key := range f.Keys() {
			v := f.values[key]
			history[key] = append(history[key], supplied{origin: f.origin, value: v})
			if !slices.Contains(cfg.origins[key], f.origin) {
				cfg.origins[key] = append(cfg.origins[key], f.origin)
			}

			switch f.strategy {
			case StrategyAppend:
				cfg.values[key] = appendValues(cfg.values[key], v)
			case StrategyErrorOnConflict:
				strict[key] = true
				cfg.values[key] = cloneValue(v)
			default:
				cfg.values[key] = cloneValue(v)
			}
		}
	}

	var conflicts []*ResolutionConflictError
	keys := make([]string, 0, len(strict))
	for k := range strict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if origins := contending(history[key]); origins != nil {
			conflicts = append(conflicts, &ResolutionConflictError{
				Contract: contract,
				Kind:     ConflictConfigKey,
				Key:      key,
				Origins:  origins,
			})
		}
	}

	return cfg, conflicts
}

// appendValues concatenates b onto a. Scalars on either side are promoted to
// one-element sequences so nothing is dropped.
func appendValues(a, b any) []any {
	out := slices.Clone(asSequence(a))
	for _, v := range asSequence(b) {
		out = append(out, cloneValue(v))
	}
	return out
}

func asSequence(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

// contending returns every origin that supplied a value for the key when at
// least two origins disagree, or nil when all origins agree.
func contending(history []supplied) []string {
	disagree := false
	for i := 1; i < len(history) && !disagree; i++ {
		for j := 0; j < i; j++ {
			if history[i].origin != history[j].origin && !reflect.DeepEqual(history[i].value, history[j].value) {
				disagree = true
				break
			}
		}
	}
	if !disagree {
		return nil
	}

	var origins []string
	for _, h := range history {
		if !slices.Contains(origins, h.origin) {
			origins = append(origins, h.origin)
		}
	}
	sort.Strings(origins)
	return origins
}
