package feeders

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// ErrHCLUnknownValue is returned for attributes whose value cannot be
// evaluated without variables or functions.
var ErrHCLUnknownValue = errors.New("hcl: attribute value is not known")

// HCLFeeder reads top-level attributes of an HCL file using the struct's hcl tags:
//
//	root_namespace = "CoreXT"
//	root_aliases   = ["System"]
//	fetch_timeout  = "30s"
type HCLFeeder struct {
	Path string
}

// NewHCLFeeder creates an HCLFeeder for filePath.
func NewHCLFeeder(filePath string) HCLFeeder {
	return HCLFeeder{Path: filePath}
}

func (h HCLFeeder) Feed(structure any) error {
	if err := checkStructure(structure); err != nil {
		return err
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(h.Path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", h.Path, diags)
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return fmt.Errorf("failed to read HCL attributes in %s: %w", h.Path, diags)
	}

	data := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("failed to evaluate %s in %s: %w", name, h.Path, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		data[name] = native
	}
	return fillFromMap(structure, data, "hcl")
}

// ctyToNative converts a cty value into the shapes produced by encoding/json:
// string, bool, int64 or float64, []any and map[string]any.
func ctyToNative(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsKnown() {
		return nil, ErrHCLUnknownValue
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == 0 {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsListType(), ty.IsTupleType(), ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			v, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case ty.IsMapType(), ty.IsObjectType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			v, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out[key.AsString()] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFieldType, ty.FriendlyName())
	}
}
