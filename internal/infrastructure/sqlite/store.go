package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zjrosen/propane/internal/domain/registry"
	"github.com/zjrosen/propane/internal/log"
	"github.com/zjrosen/propane/internal/manifest"
	"github.com/zjrosen/propane/internal/source"
)

// ErrOriginNotFound is returned by Delete for an origin that was never imported.
var ErrOriginNotFound = errors.New("origin not found")

// Store persists manifests keyed by origin. Importing an origin replaces
// everything previously stored for it.
type Store struct {
	db   *sqlx.DB
	name string
	now  func() time.Time
}

var _ source.Source = (*Store)(nil)

// NewStore creates a store over an open connection. name is used as the
// source name and error origin.
func NewStore(db *sqlx.DB, name string) *Store {
	return &Store{db: db, name: name, now: time.Now}
}

// Name returns the source name.
func (s *Store) Name() string { return s.name }

// Origin summarizes one imported origin.
type Origin struct {
	Name       string
	Location   string
	ImportedAt time.Time
}

// Import writes the manifests, one transaction per origin.
func (s *Store) Import(ctx context.Context, manifests ...manifest.Manifest) error {
	for _, m := range manifests {
		if m.Origin == "" {
			return fmt.Errorf("import %s: %w", m.Describe(), registry.ErrEmptyOrigin)
		}
		if err := s.importOne(ctx, m); err != nil {
			return fmt.Errorf("import origin %s: %w", m.Origin, err)
		}
		log.Info(log.CatStore, "origin imported", "origin", m.Origin,
			"contracts", len(m.Contracts), "bindings", len(m.Bindings), "config", len(m.Config))
	}
	return nil
}

func (s *Store) importOne(ctx context.Context, m manifest.Manifest) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Children cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM origins WHERE name = ?`, m.Origin); err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO origins (name, location, imported_at) VALUES (:name, :location, :imported_at)`,
		originRow{Name: m.Origin, Location: m.Location, ImportedAt: s.now().Unix()}); err != nil {
		return err
	}

	for i, c := range m.Contracts {
		row := contractRow{
			Origin: m.Origin, Seq: i, Contract: c.ID, Capability: c.Capability,
			Cardinality: c.Cardinality, InitOrder: c.InitOrder, Description: c.Description,
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO contracts
			(origin, seq, contract, capability, cardinality, init_order, description)
			VALUES (:origin, :seq, :contract, :capability, :cardinality, :init_order, :description)`, row); err != nil {
			return fmt.Errorf("contract %s: %w", c.ID, err)
		}
	}

	for i, b := range m.Bindings {
		cfg, err := encodeConfig(b.Config)
		if err != nil {
			return fmt.Errorf("binding %s/%s config: %w", b.Contract, b.Implementation, err)
		}
		row := bindingRow{
			Origin: m.Origin, Seq: i, Contract: b.Contract, Implementation: b.Implementation,
			Priority: b.Priority, Strategy: b.Strategy, Config: cfg,
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO bindings
			(origin, seq, contract, implementation, priority, strategy, config)
			VALUES (:origin, :seq, :contract, :implementation, :priority, :strategy, :config)`, row); err != nil {
			return fmt.Errorf("binding %s/%s: %w", b.Contract, b.Implementation, err)
		}
	}

	for i, c := range m.Config {
		payload, err := encodeConfig(c.Values)
		if err != nil {
			return fmt.Errorf("config %s: %w", c.Contract, err)
		}
		if !payload.Valid {
			payload.String, payload.Valid = "{}", true
		}
		row := fragmentRow{Origin: m.Origin, Seq: i, Contract: c.Contract, Strategy: c.Strategy, Payload: payload.String}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO config_fragments
			(origin, seq, contract, strategy, payload)
			VALUES (:origin, :seq, :contract, :strategy, :payload)`, row); err != nil {
			return fmt.Errorf("config %s: %w", c.Contract, err)
		}
	}

	return tx.Commit()
}

// Load returns every stored manifest ordered by origin name. Records keep the
// order they were imported in.
func (s *Store) Load(ctx context.Context) ([]manifest.Manifest, error) {
	// One transaction so a concurrent import is seen entirely or not at all.
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var origins []originRow
	if err := tx.SelectContext(ctx, &origins, `SELECT name, location, imported_at FROM origins ORDER BY name`); err != nil {
		return nil, fmt.Errorf("select origins: %w", err)
	}

	var contracts []contractRow
	if err := tx.SelectContext(ctx, &contracts, `SELECT origin, seq, contract, capability, cardinality, init_order, description
		FROM contracts ORDER BY origin, seq`); err != nil {
		return nil, fmt.Errorf("select contracts: %w", err)
	}
	var bindings []bindingRow
	if err := tx.SelectContext(ctx, &bindings, `SELECT origin, seq, contract, implementation, priority, strategy, config
		FROM bindings ORDER BY origin, seq`); err != nil {
		return nil, fmt.Errorf("select bindings: %w", err)
	}
	var fragments []fragmentRow
	if err := tx.SelectContext(ctx, &fragments, `SELECT origin, seq, contract, strategy, payload
		FROM config_fragments ORDER BY origin, seq`); err != nil {
		return nil, fmt.Errorf("select config fragments: %w", err)
	}

	out := make([]manifest.Manifest, len(origins))
	index := make(map[string]*manifest.Manifest, len(origins))
	for i, o := range origins {
		location := o.Location
		if location == "" {
			location = s.name + ":" + o.Name
		}
		out[i] = manifest.Manifest{Origin: o.Name, Location: location}
		index[o.Name] = &out[i]
	}

	for _, r := range contracts {
		if m := index[r.Origin]; m != nil {
			m.Contracts = append(m.Contracts, r.toRecord())
		}
	}
	for _, r := range bindings {
		m := index[r.Origin]
		if m == nil {
			continue
		}
		rec, err := r.toRecord()
		if err != nil {
			return nil, fmt.Errorf("origin %s: %w", r.Origin, err)
		}
		m.Bindings = append(m.Bindings, rec)
	}
	for _, r := range fragments {
		m := index[r.Origin]
		if m == nil {
			continue
		}
		rec, err := r.toRecord()
		if err != nil {
			return nil, fmt.Errorf("origin %s: %w", r.Origin, err)
		}
		m.Config = append(m.Config, rec)
	}
	return out, nil
}

// Read implements source.Source. Any failure makes the whole store
// unreadable.
func (s *Store) Read(ctx context.Context) ([]manifest.Manifest, error) {
	manifests, err := s.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn(log.CatStore, "manifest store unreadable", "store", s.name, "error", err)
		return nil, &registry.SourceUnreadableError{Origin: s.name, Err: err}
	}
	return manifests, nil
}

// Origins lists imported origins ordered by name.
func (s *Store) Origins(ctx context.Context) ([]Origin, error) {
	var rows []originRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT name, location, imported_at FROM origins ORDER BY name`); err != nil {
		return nil, fmt.Errorf("select origins: %w", err)
	}
	out := make([]Origin, len(rows))
	for i, r := range rows {
		out[i] = Origin{Name: r.Name, Location: r.Location, ImportedAt: time.Unix(r.ImportedAt, 0)}
	}
	return out, nil
}

// BindingsFor returns the stored bindings for a contract, highest priority
// first. Useful for inspecting the store without resolving it.
func (s *Store) BindingsFor(ctx context.Context, contract string) ([]manifest.BindingRecord, error) {
	var rows []bindingRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT origin, seq, contract, implementation, priority, strategy, config
		FROM bindings WHERE contract = ? ORDER BY priority DESC, origin, seq`, contract); err != nil {
		return nil, fmt.Errorf("select bindings for %s: %w", contract, err)
	}
	out := make([]manifest.BindingRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes an origin and everything it contributed.
func (s *Store) Delete(ctx context.Context, origin string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM origins WHERE name = ?`, origin)
	if err != nil {
		return fmt.Errorf("delete origin %s: %w", origin, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrOriginNotFound, origin)
	}
	log.Info(log.CatStore, "origin deleted", "origin", origin)
	return nil
}
