package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/propane/internal/infrastructure/sqlite"
)

// NewTestStore opens a manifest store in a temp directory. It is closed when
// the test ends.
func NewTestStore(t testing.TB) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "manifests.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Import writes the accumulated manifests into db.
func (b *Builder) Import(db *sqlite.DB) *sqlite.DB {
	b.t.Helper()
	require.NoError(b.t, db.Store().Import(context.Background(), b.Manifests()...))
	return db
}
