package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/propane/internal/domain/registry"
)

func TestToContributions_ScanOrder(t *testing.T) {
	m := Manifest{
		Origin: "acme",
		Contracts: []ContractRecord{
			{ID: "logging.Sink", Cardinality: "multiple", Capability: "io.Writer", InitOrder: 2},
		},
		Bindings: []BindingRecord{
			{Contract: "logging.Sink", Implementation: "acme.Stdout", Priority: 10, Config: map[string]any{"level": "info"}},
			{Contract: "logging.Sink", Implementation: "acme.File", Priority: 5},
		},
		Config: []ConfigRecord{
			{Contract: "logging.Sink", Strategy: "append", Values: map[string]any{"tags": []any{"a"}}},
		},
	}

	c, errs := ToContributions(m)
	require.Empty(t, errs)
	require.Len(t, c.Contracts, 1)
	require.Equal(t, "io.Writer", c.Contracts[0].Capability())
	require.Equal(t, 2, c.Contracts[0].InitOrder())

	require.Len(t, c.Bindings, 2)
	require.Equal(t, "acme", c.Bindings[0].Origin())
	require.Equal(t, 10, c.Bindings[0].Priority())

	// Binding fragment first, then the standalone config record.
	require.Len(t, c.Fragments, 2)
	require.Equal(t, registry.StrategyOverride, c.Fragments[0].Strategy())
	require.Equal(t, registry.StrategyAppend, c.Fragments[1].Strategy())
}

func TestToContributions_InvalidRecordsAreSkipped(t *testing.T) {
	m := Manifest{
		Origin:    "acme",
		Location:  "manifests/acme.yaml",
		Contracts: []ContractRecord{{ID: ""}, {ID: "ok.Contract", Cardinality: "several"}},
		Bindings: []BindingRecord{
			{Contract: "ok.Contract", Implementation: ""},
			{Contract: "ok.Contract", Implementation: "Impl", Priority: -3},
			{Contract: "ok.Contract", Implementation: "Good", Priority: 1},
		},
		Config: []ConfigRecord{{Contract: "ok.Contract", Strategy: "merge", Values: map[string]any{"a": 1}}},
	}

	c, errs := ToContributions(m)
	require.Len(t, errs, 5)
	for _, err := range errs {
		require.ErrorIs(t, err, registry.ErrMalformedDescriptor)
		var merr *registry.MalformedDescriptorError
		require.ErrorAs(t, err, &merr)
		require.Equal(t, "acme", merr.Origin)
	}
	require.Contains(t, errs[1].Error(), "cardinality: oneof")
	require.Contains(t, errs[3].Error(), "priority: gte=0")

	require.Empty(t, c.Contracts)
	require.Len(t, c.Bindings, 1)
	require.Equal(t, "Good", c.Bindings[0].Implementation())
	require.Empty(t, c.Fragments)
}

func TestToContributions_MissingOrigin(t *testing.T) {
	m := Manifest{
		Location: "manifests/broken.yaml",
		Bindings: []BindingRecord{{Contract: "a", Implementation: "b"}},
	}

	c, errs := ToContributions(m)
	require.Len(t, errs, 1)
	require.True(t, c.Empty())

	var merr *registry.MalformedDescriptorError
	require.ErrorAs(t, errs[0], &merr)
	require.Equal(t, "manifests/broken.yaml", merr.Origin)
}

func TestManifest_Empty(t *testing.T) {
	require.True(t, Manifest{Origin: "x"}.Empty())
	require.False(t, Manifest{Origin: "x", Config: []ConfigRecord{{Contract: "c"}}}.Empty())
}
