// Package flags provides feature flag support for controlled feature rollout.
// Flags are read-only after initialization and provide safe defaults for unknown flags.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/propane/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagUserManifests adds the user's manifest directory
	// (~/.config/propane/manifests) as the last source.
	FlagUserManifests = "user-manifests"

	// FlagWatchStore makes registry:watch also reload when the manifest
	// store file changes.
	FlagWatchStore = "watch-store"
)

// Known returns the flags propane understands, sorted.
func Known() []string {
	return []string{FlagUserManifests, FlagWatchStore}
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. A nil map disables every flag.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	maps.Copy(r.flags, flags)
	for name := range r.flags {
		if !slices.Contains(Known(), name) {
			log.Warn(log.CatConfig, "unknown feature flag in config", "flag", name)
		}
	}
	log.Debug(log.CatConfig, "feature flags initialized", "count", len(r.flags))
	return r
}

// Enabled reports whether the named flag is on. Unknown flags and a nil
// registry report false.
func (r *Registry) Enabled(name string) bool {
	return r.EnabledOr(name, false)
}

// EnabledOr is Enabled with an explicit default for unset flags.
func (r *Registry) EnabledOr(name string, def bool) bool {
	if r == nil {
		return def
	}
	value, ok := r.flags[name]
	if !ok {
		return def
	}
	return value
}

// All returns a copy of all flags. Returns an empty map if the registry is nil.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return make(map[string]bool)
	}
	return maps.Clone(r.flags)
}
