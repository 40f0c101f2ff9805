package source

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/zjrosen/propane/internal/manifest"
)

// hclFile is the HCL form of a manifest:
//
//	origin = "acme-logging"
//
//	contract "logging.Sink" {
//	  cardinality = "multiple"
//	}
//
//	binding "logging.Sink" "acme.Stdout" {
//	  priority = 10
//	  config   = { level = "info" }
//	}
//
//	config "logging.Sink" {
//	  strategy = "append"
//	  values   = { tags = ["stdout"] }
//	}
type hclFile struct {
	Origin    string        `hcl:"origin,optional"`
	Contracts []hclContract `hcl:"contract,block"`
	Bindings  []hclBinding  `hcl:"binding,block"`
	Config    []hclConfig   `hcl:"config,block"`
}

type hclContract struct {
	ID          string `hcl:"id,label"`
	Capability  string `hcl:"capability,optional"`
	Cardinality string `hcl:"cardinality,optional"`
	InitOrder   int    `hcl:"init_order,optional"`
	Description string `hcl:"description,optional"`
}

type hclBinding struct {
	Contract       string    `hcl:"contract,label"`
	Implementation string    `hcl:"implementation,label"`
	Priority       int       `hcl:"priority,optional"`
	Strategy       string    `hcl:"strategy,optional"`
	Config         cty.Value `hcl:"config,optional"`
}

type hclConfig struct {
	Contract string    `hcl:"contract,label"`
	Strategy string    `hcl:"strategy,optional"`
	Values   cty.Value `hcl:"values"`
}

// parseHCL decodes one HCL manifest file.
func parseHCL(path string, data []byte) ([]manifest.Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", path, diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", path, diags)
	}

	m := manifest.Manifest{Origin: raw.Origin}
	for _, c := range raw.Contracts {
		m.Contracts = append(m.Contracts, manifest.ContractRecord{
			ID:          c.ID,
			Capability:  c.Capability,
			Cardinality: c.Cardinality,
			InitOrder:   c.InitOrder,
			Description: c.Description,
		})
	}
	for _, b := range raw.Bindings {
		cfg, err := ctyObject(b.Config)
		if err != nil {
			return nil, fmt.Errorf("%s: binding %q %q config: %w", path, b.Contract, b.Implementation, err)
		}
		m.Bindings = append(m.Bindings, manifest.BindingRecord{
			Contract:       b.Contract,
			Implementation: b.Implementation,
			Priority:       b.Priority,
			Strategy:       b.Strategy,
			Config:         cfg,
		})
	}
	for _, c := range raw.Config {
		values, err := ctyObject(c.Values)
		if err != nil {
			return nil, fmt.Errorf("%s: config %q values: %w", path, c.Contract, err)
		}
		if values == nil {
			values = map[string]any{}
		}
		m.Config = append(m.Config, manifest.ConfigRecord{
			Contract: c.Contract,
			Strategy: c.Strategy,
			Values:   values,
		})
	}
	return []manifest.Manifest{m}, nil
}

// ctyObject converts an object or map value into a Go map. Null means absent.
func ctyObject(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	native, err := ctyToNative(v)
	if err != nil {
		return nil, err
	}
	obj, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", v.Type().FriendlyName())
	}
	return obj, nil
}

// ctyToNative converts a cty value into strings, bools, int64/float64,
// []any and map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			nv, err := ctyToNative(ev)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", k.AsString(), err)
			}
			out[k.AsString()] = nv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
	}
}
