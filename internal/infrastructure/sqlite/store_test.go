package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/propane/internal/domain/registry"
	"github.com/zjrosen/propane/internal/manifest"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "store", "manifests.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleManifest() manifest.Manifest {
	return manifest.Manifest{
		Origin:   "acme",
		Location: "build:acme",
		Contracts: []manifest.ContractRecord{
			{ID: "logging.Sink", Capability: "io.Writer", Cardinality: "multiple", InitOrder: 2},
			{ID: "metrics.Exporter", Cardinality: "single"},
		},
		Bindings: []manifest.BindingRecord{
			{Contract: "logging.Sink", Implementation: "acme.Stdout", Priority: 10, Config: map[string]any{"level": "info"}},
			{Contract: "logging.Sink", Implementation: "acme.File", Priority: 20},
		},
		Config: []manifest.ConfigRecord{
			{Contract: "logging.Sink", Strategy: "append", Values: map[string]any{"tags": []any{"acme"}}},
		},
	}
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	var versions []int
	require.NoError(t, db.conn.Select(&versions, `SELECT version FROM schema_migrations ORDER BY version`))
	require.Equal(t, []int{1, 2}, versions)
}

func TestNewDB_ReopenIsIdempotentAndBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifests.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Store().Import(context.Background(), sampleManifest()))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = os.Stat(path + ".bak")
	require.NoError(t, err)

	manifests, err := db.Store().Load(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 1)
}

func TestStore_ImportLoadRoundTrip(t *testing.T) {
	store := openTestDB(t).Store()
	ctx := context.Background()

	require.NoError(t, store.Import(ctx, sampleManifest(), manifest.Manifest{Origin: "zeta"}))

	manifests, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 2)

	acme := manifests[0]
	require.Equal(t, "acme", acme.Origin)
	require.Equal(t, "build:acme", acme.Location)
	require.Equal(t, []string{"logging.Sink", "metrics.Exporter"}, []string{acme.Contracts[0].ID, acme.Contracts[1].ID})
	require.Equal(t, 2, acme.Contracts[0].InitOrder)
	require.Equal(t, "acme.Stdout", acme.Bindings[0].Implementation, "import order is kept")
	require.Equal(t, "info", acme.Bindings[0].Config["level"])
	require.Nil(t, acme.Bindings[1].Config)
	require.Equal(t, []any{"acme"}, acme.Config[0].Values["tags"])

	require.Equal(t, "zeta", manifests[1].Origin)
	require.True(t, manifests[1].Empty())
}

func TestStore_ReimportReplacesOrigin(t *testing.T) {
	store := openTestDB(t).Store()
	ctx := context.Background()

	require.NoError(t, store.Import(ctx, sampleManifest()))
	require.NoError(t, store.Import(ctx, manifest.Manifest{
		Origin:   "acme",
		Bindings: []manifest.BindingRecord{{Contract: "logging.Sink", Implementation: "acme.Syslog"}},
	}))

	manifests, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	require.Empty(t, manifests[0].Contracts)
	require.Len(t, manifests[0].Bindings, 1)
	require.Equal(t, "acme.Syslog", manifests[0].Bindings[0].Implementation)
	require.Equal(t, store.Name()+":acme", manifests[0].Location, "empty location falls back to the store name")
}

func TestStore_ImportRejectsEmptyOrigin(t *testing.T) {
	store := openTestDB(t).Store()
	err := store.Import(context.Background(), manifest.Manifest{})
	require.ErrorIs(t, err, registry.ErrEmptyOrigin)
}

func TestStore_OriginsAndDelete(t *testing.T) {
	store := openTestDB(t).Store()
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	require.NoError(t, store.Import(ctx, sampleManifest(), manifest.Manifest{Origin: "beta"}))

	origins, err := store.Origins(ctx)
	require.NoError(t, err)
	require.Len(t, origins, 2)
	require.Equal(t, "acme", origins[0].Name)
	require.True(t, fixed.Equal(origins[0].ImportedAt))

	require.NoError(t, store.Delete(ctx, "acme"))
	require.ErrorIs(t, store.Delete(ctx, "acme"), ErrOriginNotFound)

	bindings, err := store.BindingsFor(ctx, "logging.Sink")
	require.NoError(t, err)
	require.Empty(t, bindings, "bindings cascade with their origin")
}

func TestStore_BindingsForOrdersByPriority(t *testing.T) {
	store := openTestDB(t).Store()
	ctx := context.Background()
	require.NoError(t, store.Import(ctx, sampleManifest()))

	bindings, err := store.BindingsFor(ctx, "logging.Sink")
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	require.Equal(t, "acme.File", bindings[0].Implementation)
	require.Equal(t, "acme.Stdout", bindings[1].Implementation)
}

func TestStore_ReadFailureIsSourceUnreadable(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name, location, imported_at FROM origins").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	store := NewStore(sqlx.NewDb(conn, "sqlmock"), "sqlite:broken.db")
	_, err = store.Read(context.Background())
	require.ErrorIs(t, err, registry.ErrSourceUnreadable)

	var unreadable *registry.SourceUnreadableError
	require.ErrorAs(t, err, &unreadable)
	require.Equal(t, "sqlite:broken.db", unreadable.Origin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ImportRollsBackOnFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM origins").WithArgs("acme").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO origins").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	store := NewStore(sqlx.NewDb(conn, "sqlmock"), "sqlite:mock")
	err = store.Import(context.Background(), manifest.Manifest{Origin: "acme"})
	require.ErrorContains(t, err, "constraint failed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadReadsInOneTransaction(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name, location, imported_at FROM origins").
		WillReturnRows(sqlmock.NewRows([]string{"name", "location", "imported_at"}).
			AddRow("acme", "", int64(1772323200)))
	mock.ExpectQuery("FROM contracts").
		WillReturnRows(sqlmock.NewRows([]string{"origin", "seq", "contract", "capability", "cardinality", "init_order", "description"}).
			AddRow("acme", 0, "logging.Sink", "", "multiple", 0, ""))
	mock.ExpectQuery("FROM bindings").
		WillReturnRows(sqlmock.NewRows([]string{"origin", "seq", "contract", "implementation", "priority", "strategy", "config"}))
	mock.ExpectQuery("FROM config_fragments").
		WillReturnRows(sqlmock.NewRows([]string{"origin", "seq", "contract", "strategy", "payload"}))
	mock.ExpectRollback()

	store := NewStore(sqlx.NewDb(conn, "sqlmock"), "sqlite:mock")
	manifests, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	require.Equal(t, "sqlite:mock:acme", manifests[0].Location)
	require.Equal(t, "logging.Sink", manifests[0].Contracts[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
