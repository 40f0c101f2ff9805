package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		expected bool
	}{
		{
			name:     "known flag set to true returns true",
			registry: New(map[string]bool{FlagUserManifests: true}),
			flag:     FlagUserManifests,
			expected: true,
		},
		{
			name:     "known flag set to false returns false",
			registry: New(map[string]bool{FlagWatchStore: false}),
			flag:     FlagWatchStore,
			expected: false,
		},
		{
			name:     "unset flag returns false",
			registry: New(map[string]bool{FlagUserManifests: true}),
			flag:     FlagWatchStore,
			expected: false,
		},
		{
			name:     "nil registry returns false",
			registry: nil,
			flag:     FlagUserManifests,
			expected: false,
		},
		{
			name:     "nil flags map returns false",
			registry: New(nil),
			flag:     FlagUserManifests,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.registry.Enabled(tt.flag))
		})
	}
}

func TestRegistry_EnabledOr(t *testing.T) {
	r := New(map[string]bool{FlagWatchStore: false})
	require.False(t, r.EnabledOr(FlagWatchStore, true), "explicit value wins")
	require.True(t, r.EnabledOr(FlagUserManifests, true), "default for unset flags")

	var nilRegistry *Registry
	require.True(t, nilRegistry.EnabledOr(FlagUserManifests, true))
}

func TestRegistry_AllIsACopy(t *testing.T) {
	src := map[string]bool{FlagUserManifests: true}
	r := New(src)
	src[FlagUserManifests] = false

	all := r.All()
	require.True(t, all[FlagUserManifests], "registry does not alias the config map")
	all[FlagUserManifests] = false
	require.True(t, r.Enabled(FlagUserManifests))

	var nilRegistry *Registry
	require.Empty(t, nilRegistry.All())
}

func TestKnown(t *testing.T) {
	require.Equal(t, []string{"user-manifests", "watch-store"}, Known())
}
