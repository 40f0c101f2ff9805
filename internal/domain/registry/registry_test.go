package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_LookupAbsent(t *testing.T) {
	reg, err := Resolve(context.Background(), Contributions{})
	require.NoError(t, err)

	entry, ok := reg.Lookup("does.not.Exist")
	require.False(t, ok)
	require.Nil(t, entry)
}

func TestRegistry_ContractsSortedByID(t *testing.T) {
	c := Contributions{}
	for _, id := range []string{"zeta.Z", "alpha.A", "mid.M"} {
		c.AddContract(mkContract(t, id, "A", CardinalityMultiple))
	}

	reg, err := Resolve(context.Background(), c)
	require.NoError(t, err)

	var ids []string
	for _, ct := range reg.Contracts() {
		ids = append(ids, ct.ID())
	}
	require.Equal(t, []string{"alpha.A", "mid.M", "zeta.Z"}, ids)
	require.Equal(t, 3, reg.Len())
}

func TestRegistry_ReturnedSlicesAreCopies(t *testing.T) {
	c := Contributions{}
	c.AddContract(mkContract(t, "Foo", "A", CardinalityMultiple))
	c.AddBinding(mkBinding(t, "Foo", "Impl1", "A", 10))
	c.AddBinding(mkBinding(t, "Foo", "Impl2", "B", 5))

	reg, err := Resolve(context.Background(), c)
	require.NoError(t, err)

	entry, _ := reg.Lookup("Foo")
	bindings := entry.Bindings()
	bindings[0], bindings[1] = bindings[1], bindings[0]
	require.Equal(t, []string{"Impl1", "Impl2"}, entry.Implementations())
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	c := Contributions{}
	c.AddContract(mkContract(t, "Foo", "A", CardinalityMultiple))
	c.AddBinding(mkBinding(t, "Foo", "Impl1", "A", 10))

	reg, err := Resolve(context.Background(), c)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				e, ok := reg.Lookup("Foo")
				if !ok || len(e.Bindings()) != 1 {
					t.Error("unexpected lookup result")
					return
				}
				_ = reg.Contracts()
			}
		}()
	}
	wg.Wait()
}

func TestRegistry_ChildFallsBackToParent(t *testing.T) {
	pc := Contributions{}
	pc.AddContract(mkContract(t, "Logger", "base", CardinalitySingle))
	pc.AddContract(mkContract(t, "Store", "base", CardinalityMultiple))
	pc.AddBinding(mkBinding(t, "Logger", "StdLogger", "base", 0))
	pc.AddBinding(mkBinding(t, "Store", "MemStore", "base", 0))

	parent, err := Resolve(context.Background(), pc)
	require.NoError(t, err)

	cc := Contributions{}
	cc.AddBinding(mkBinding(t, "Logger", "TestLogger", "test", 5))
	child, err := Resolve(context.Background(), cc, WithParent(parent))
	require.NoError(t, err)

	require.Same(t, parent, child.Parent())
	require.True(t, child.Owns("Logger"))
	require.False(t, child.Owns("Store"))

	logger, ok := child.Lookup("Logger")
	require.True(t, ok)
	require.Equal(t, []string{"TestLogger"}, logger.Implementations())
	// Declaration inherited from the parent, not an implicit contract.
	require.True(t, logger.Contract().SingleWinner())
	require.False(t, logger.Contract().Implicit())

	store, ok := child.Lookup("Store")
	require.True(t, ok)
	require.Equal(t, []string{"MemStore"}, store.Implementations())

	require.Equal(t, []string{"Logger", "Store"}, child.ContractIDs())
	require.Equal(t, 2, child.Len())
	require.Equal(t, 2, child.BindingCount())
}

func TestBindingBuilder_Validation(t *testing.T) {
	tests := []struct {
		name  string
		build func() (Binding, error)
		cause error
	}{
		{
			name:  "empty implementation",
			build: NewBindingBuilder("Foo").Origin("A").Build,
			cause: ErrEmptyImplementation,
		},
		{
			name:  "empty contract",
			build: NewBindingBuilder("").Implementation("Impl").Origin("A").Build,
			cause: ErrEmptyContract,
		},
		{
			name:  "empty origin",
			build: NewBindingBuilder("Foo").Implementation("Impl").Build,
			cause: ErrEmptyOrigin,
		},
		{
			name:  "negative priority",
			build: NewBindingBuilder("Foo").Implementation("Impl").Origin("A").Priority(-1).Build,
			cause: ErrNegativePriority,
		},
		{
			name:  "reserved separator",
			build: NewBindingBuilder("Foo").Implementation("a::b").Origin("A").Build,
			cause: ErrEmptyImplementation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.ErrorIs(t, err, ErrMalformedDescriptor)
			require.ErrorIs(t, err, tt.cause)

			var merr *MalformedDescriptorError
			require.ErrorAs(t, err, &merr)
		})
	}
}

func TestBindingBuilder_PriorityBounds(t *testing.T) {
	b, err := NewBindingBuilder("Foo").Implementation("Impl").Origin("app").Priority(PriorityBuilder).Build()
	require.NoError(t, err)
	require.Equal(t, PriorityBuilder, b.Priority())

	b, err = NewBindingBuilder("Foo").Implementation("Impl").Origin("lib").Build()
	require.NoError(t, err)
	require.Equal(t, PriorityFallback, b.Priority())
}

func TestBindingBuilder_FragmentTakesBindingIdentity(t *testing.T) {
	f := mkFragment(t, "Other", "elsewhere", StrategyAppend, map[string]any{"k": "v"})
	b, err := NewBindingBuilder("Foo").Implementation("Impl").Origin("A").Fragment(f).Build()
	require.NoError(t, err)

	got, ok := b.Fragment()
	require.True(t, ok)
	require.Equal(t, "Foo", got.Contract())
	require.Equal(t, "A", got.Origin())
	require.Equal(t, StrategyAppend, got.Strategy())
}

func TestParseBindingID(t *testing.T) {
	id := BindingID{Contract: "logging.Sink", Implementation: "acme.Stdout", Origin: "acme"}
	require.Equal(t, "logging.Sink::acme.Stdout::acme", id.String())

	parsed, err := ParseBindingID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	for _, bad := range []string{"", "a::b", "a::::c", "a::b::c::d"} {
		_, err := ParseBindingID(bad)
		require.ErrorIs(t, err, ErrInvalidIdentifier, "input %q", bad)
	}
}

func TestParseCardinalityAndStrategy(t *testing.T) {
	c, err := ParseCardinality("")
	require.NoError(t, err)
	require.Equal(t, CardinalityMultiple, c)

	_, err = ParseCardinality("many")
	require.Error(t, err)

	s, err := ParseStrategy("error-on-conflict")
	require.NoError(t, err)
	require.Equal(t, StrategyErrorOnConflict, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	require.Equal(t, StrategyOverride, s)
}
