package presentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/propane/internal/domain/registry"
	"github.com/zjrosen/propane/internal/engine"
	"github.com/zjrosen/propane/internal/testutil"
)

func standardRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := engine.BuildRegistry(context.Background(), testutil.NewBuilder(t).WithStandardTestData().Source("s"))
	require.NoError(t, err)
	return reg
}

func TestFromRegistry(t *testing.T) {
	dto := FromRegistry(standardRegistry(t))

	require.Len(t, dto.Contracts, 3)
	require.Equal(t, "http.Server", dto.Contracts[0].ID)
	require.Empty(t, dto.Contracts[0].Bindings)
	require.NotNil(t, dto.Contracts[0].Bindings, "bindings always encode as a list")
	require.Equal(t, []ConfigValueDTO{
		{Key: "port", Value: int64(9090), Origins: []string{"acme", "beta"}},
		{Key: "tags", Value: []any{"acme"}, Origins: []string{"acme"}},
	}, dto.Contracts[0].Config)

	exporter := dto.Contracts[2]
	require.Equal(t, "single", exporter.Cardinality)
	require.True(t, exporter.Bindings[0].Winner)
	require.False(t, exporter.Bindings[1].Winner)
	require.Equal(t, "/metrics", exporter.Bindings[0].Config["path"])

	sinks := dto.Contracts[1]
	require.Equal(t, "io.Writer", sinks.Capability)
	for _, b := range sinks.Bindings {
		require.False(t, b.Winner, "multiple contracts have no winner")
	}
}

func TestFromErrors(t *testing.T) {
	conflict := &registry.ResolutionConflictError{
		Contract: "Foo", Kind: registry.ConflictPriorityTie, Origins: []string{"a", "b"},
	}
	build := &engine.BuildError{
		Scan:       []error{&registry.SourceUnreadableError{Origin: "dir:x", Err: errors.New("boom")}},
		Resolution: &registry.ResolutionErrors{Conflicts: []*registry.ResolutionConflictError{conflict}},
	}

	problems := FromErrors(build, nil, errors.New("plain"))
	require.Len(t, problems, 3)
	require.Equal(t, "unreadable", problems[0].Kind)
	require.Equal(t, []string{"dir:x"}, problems[0].Origins)
	require.Equal(t, "conflict:priority-tie", problems[1].Kind)
	require.Equal(t, "Foo", problems[1].Contract)
	require.Equal(t, []string{"a", "b"}, problems[1].Origins)
	require.Equal(t, "error", problems[2].Kind)
}

func TestFormatter_RegistryText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText).FormatRegistry(FromRegistry(standardRegistry(t))))

	out := buf.String()
	require.Contains(t, out, "CONTRACT")
	require.Contains(t, out, "acme.Prometheus")
	require.Contains(t, out, "beta.File")
	require.Contains(t, out, "port,tags")
	require.Contains(t, out, ": 3 contracts")
}

func TestFormatter_RegistryJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatJSON).FormatRegistry(FromRegistry(standardRegistry(t))))

	var decoded RegistryDTO
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Contracts, 3)
	require.Equal(t, "metrics.Exporter", decoded.Contracts[2].ID)
}

func TestFormatter_Contract(t *testing.T) {
	entry, ok := standardRegistry(t).Lookup("metrics.Exporter")
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf, FormatText).FormatContract(FromEntry(entry, false)))
	require.Contains(t, buf.String(), "* acme.Prometheus")
	require.Contains(t, buf.String(), "priority=1 origin=beta")
}

func TestFormatter_Check(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf, FormatText)

	require.NoError(t, f.FormatCheck(CheckReport{OK: true, Contracts: 3, Bindings: 4}))
	require.Equal(t, "ok: 3 contracts, 4 bindings\n", buf.String())

	buf.Reset()
	require.NoError(t, f.FormatCheck(CheckReport{Problems: []ProblemDTO{{Kind: "malformed", Message: "bad"}}}))
	require.Contains(t, buf.String(), "1 problems:")
	require.Contains(t, buf.String(), "bad")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
