package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"testing"

	"pgregory.net/rapid"
)

var propOrigins = []string{"alpha", "bravo", "charlie", "delta"}

// genBindings draws bindings for contract Foo with unique priorities per origin.
func genBindings(t *rapid.T) []Binding {
	var out []Binding
	for _, origin := range propOrigins {
		priorities := rapid.SliceOfNDistinct(rapid.IntRange(0, 20), 0, 4, rapid.ID[int]).Draw(t, "priorities-"+origin)
		for _, p := range priorities {
			b, err := NewBindingBuilder("Foo").
				Implementation(fmt.Sprintf("%s-impl-%d", origin, p)).
				Origin(origin).
				Priority(p).
				Build()
			if err != nil {
				t.Fatalf("build binding: %v", err)
			}
			out = append(out, b)
		}
	}
	return out
}

func contributionsOf(t *rapid.T, card Cardinality, bindings []Binding) Contributions {
	ct, err := NewContract("Foo", "alpha", card)
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	c := Contributions{}
	c.AddContract(ct)
	for _, b := range bindings {
		c.AddBinding(b)
	}
	return c
}

func TestProperty_OrderingIsPriorityDescOriginAsc(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bindings := genBindings(t)
		shuffled := rapid.Permutation(bindings).Draw(t, "scan-order")

		reg, err := Resolve(context.Background(), contributionsOf(t, CardinalityMultiple, shuffled))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		entry, ok := reg.Lookup("Foo")
		if !ok {
			t.Fatalf("Foo missing")
		}

		got := entry.Bindings()
		if len(got) != len(bindings) {
			t.Fatalf("got %d bindings, want %d", len(got), len(bindings))
		}
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			if prev.Priority() < cur.Priority() {
				t.Fatalf("priority not descending at %d: %d < %d", i, prev.Priority(), cur.Priority())
			}
			if prev.Priority() == cur.Priority() && prev.Origin() > cur.Origin() {
				t.Fatalf("origin tiebreak violated at %d: %s > %s", i, prev.Origin(), cur.Origin())
			}
		}
	})
}

func TestProperty_SingleWinnerTieNamesBothOrigins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pair := rapid.SliceOfNDistinct(rapid.SampledFrom(propOrigins), 2, 2, rapid.ID[string]).Draw(t, "origins")
		tied := rapid.IntRange(0, 100).Draw(t, "priority")

		var bindings []Binding
		for _, origin := range pair {
			b, _ := NewBindingBuilder("Foo").Implementation("impl-" + origin).Origin(origin).Priority(tied).Build()
			bindings = append(bindings, b)
		}
		// Extra bindings from a third origin never share a priority with anything.
		extras := rapid.SliceOfNDistinct(rapid.IntRange(101, 200), 0, 3, rapid.ID[int]).Draw(t, "extras")
		for _, p := range extras {
			b, _ := NewBindingBuilder("Foo").Implementation(fmt.Sprintf("extra-%d", p)).Origin("zulu").Priority(p).Build()
			bindings = append(bindings, b)
		}
		bindings = rapid.Permutation(bindings).Draw(t, "scan-order")

		reg, err := Resolve(context.Background(), contributionsOf(t, CardinalitySingle, bindings))
		if reg != nil {
			t.Fatalf("registry returned despite conflict")
		}
		var rerr *ResolutionErrors
		if !errors.As(err, &rerr) {
			t.Fatalf("expected *ResolutionErrors, got %v", err)
		}
		if len(rerr.Conflicts) != 1 {
			t.Fatalf("expected exactly one conflict, got %d: %v", len(rerr.Conflicts), err)
		}
		want := slices.Clone(pair)
		sort.Strings(want)
		if !slices.Equal(rerr.Conflicts[0].Origins, want) {
			t.Fatalf("origins = %v, want %v", rerr.Conflicts[0].Origins, want)
		}
	})
}

func TestProperty_ResolutionIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := contributionsOf(t, CardinalityMultiple, genBindings(t))

		first, err := Resolve(context.Background(), c)
		if err != nil {
			t.Fatalf("first resolve: %v", err)
		}
		second, err := Resolve(context.Background(), c)
		if err != nil {
			t.Fatalf("second resolve: %v", err)
		}

		if !slices.Equal(first.ContractIDs(), second.ContractIDs()) {
			t.Fatalf("contract sets differ")
		}
		for _, id := range first.ContractIDs() {
			a, _ := first.Lookup(id)
			b, _ := second.Lookup(id)
			if !slices.Equal(a.Bindings(), b.Bindings()) {
				t.Fatalf("binding order differs for %s", id)
			}
		}
	})
}

func TestProperty_AppendNeverDropsEntries(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "fragments")
		var want []string
		c := Contributions{}
		ct, _ := NewContract("Foo", "alpha", CardinalityMultiple)
		c.AddContract(ct)
		for i := range n {
			origin := rapid.SampledFrom(propOrigins).Draw(t, fmt.Sprintf("origin-%d", i))
			items := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}`), 0, 4).Draw(t, fmt.Sprintf("items-%d", i))
			want = append(want, items...)
			f, err := NewFragment("Foo", origin, StrategyAppend, map[string]any{"list": items})
			if err != nil {
				t.Fatalf("fragment: %v", err)
			}
			c.AddFragment(f)
		}

		reg, err := Resolve(context.Background(), c)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		entry, _ := reg.Lookup("Foo")
		got := entry.Config().Strings("list")
		if len(want) == 0 {
			want = []string{}
		}
		if len(got) == 0 {
			got = []string{}
		}
		if !slices.Equal(got, want) {
			t.Fatalf("append = %v, want %v", got, want)
		}
	})
}

func TestProperty_OverrideFollowsScanOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfNDistinct(rapid.IntRange(0, 1000), 2, 5, rapid.ID[int]).Draw(t, "values")
		order := rapid.Permutation(values).Draw(t, "scan-order")

		c := Contributions{}
		ct, _ := NewContract("Foo", "alpha", CardinalityMultiple)
		c.AddContract(ct)
		for i, v := range order {
			f, _ := NewFragment("Foo", propOrigins[i%len(propOrigins)], StrategyOverride, map[string]any{"v": v})
			c.AddFragment(f)
		}

		reg, err := Resolve(context.Background(), c)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		entry, _ := reg.Lookup("Foo")
		if got := entry.Config().Int("v"); got != order[len(order)-1] {
			t.Fatalf("override winner = %d, want last scanned %d", got, order[len(order)-1])
		}
	})
}
