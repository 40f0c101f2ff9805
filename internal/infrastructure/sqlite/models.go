package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/zjrosen/propane/internal/manifest"
)

type originRow struct {
	Name       string `db:"name"`
	Location   string `db:"location"`
	ImportedAt int64  `db:"imported_at"`
}

type contractRow struct {
	Origin      string `db:"origin"`
	Seq         int    `db:"seq"`
	Contract    string `db:"contract"`
	Capability  string `db:"capability"`
	Cardinality string `db:"cardinality"`
	InitOrder   int    `db:"init_order"`
	Description string `db:"description"`
}

type bindingRow struct {
	Origin         string         `db:"origin"`
	Seq            int            `db:"seq"`
	Contract       string         `db:"contract"`
	Implementation string         `db:"implementation"`
	Priority       int            `db:"priority"`
	Strategy       string         `db:"strategy"`
	Config         sql.NullString `db:"config"`
}

type fragmentRow struct {
	Origin   string `db:"origin"`
	Seq      int    `db:"seq"`
	Contract string `db:"contract"`
	Strategy string `db:"strategy"`
	Payload  string `db:"payload"`
}

func (r contractRow) toRecord() manifest.ContractRecord {
	return manifest.ContractRecord{
		ID:          r.Contract,
		Capability:  r.Capability,
		Cardinality: r.Cardinality,
		InitOrder:   r.InitOrder,
		Description: r.Description,
	}
}

func (r bindingRow) toRecord() (manifest.BindingRecord, error) {
	rec := manifest.BindingRecord{
		Contract:       r.Contract,
		Implementation: r.Implementation,
		Priority:       r.Priority,
		Strategy:       r.Strategy,
	}
	if r.Config.Valid && r.Config.String != "" {
		if err := json.Unmarshal([]byte(r.Config.String), &rec.Config); err != nil {
			return rec, fmt.Errorf("binding %s/%s config: %w", r.Contract, r.Implementation, err)
		}
	}
	return rec, nil
}

func (r fragmentRow) toRecord() (manifest.ConfigRecord, error) {
	rec := manifest.ConfigRecord{Contract: r.Contract, Strategy: r.Strategy}
	if err := json.Unmarshal([]byte(r.Payload), &rec.Values); err != nil {
		return rec, fmt.Errorf("config %s payload: %w", r.Contract, err)
	}
	return rec, nil
}

func encodeConfig(values map[string]any) (sql.NullString, error) {
	if values == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
