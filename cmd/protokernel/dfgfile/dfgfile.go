// Package dfgfile loads a typed dataflow graph from a JSON interchange
// file into emitter/ir types. Building the typed DFG from source is the
// analyzer's job (explicitly out of scope — non-goals);
// this package is pure boundary plumbing, the moral equivalent of
// internal/buildutil's BytecodeFile magic-number/version file format,
// just on the way in rather than the way out.
package dfgfile

import (
	"encoding/json"
	"fmt"
	"os"

	"protokernel/emitter/ir"
)

// Doc is the on-disk shape: a flat table of amorphous media and fields,
// cross-referenced by string ID so the JSON can describe arbitrary
// producer/consumer graphs without native pointer syntax.
type Doc struct {
	Media  []mediumDoc `json:"media"`
	Output string      `json:"output"` // field ID whose domain is the main AM
}

type mediumDoc struct {
	ID       string      `json:"id"`
	BodyOf   string      `json:"body_of,omitempty"` // compound op name, if this AM is a function body
	Branchfn bool        `json:"branch_fn,omitempty"`
	Fields   []fieldDoc  `json:"fields"`
}

type fieldDoc struct {
	ID          string      `json:"id"`
	Type        typeDoc     `json:"type"`
	Op          opDoc       `json:"op"`
	Inputs      []string    `json:"inputs,omitempty"`
	Persistent  bool        `json:"persistent,omitempty"`
	ExportWidth int         `json:"export_width,omitempty"`
}

type typeDoc struct {
	Kind    string    `json:"kind"` // scalar, symbol, tuple, lambda
	Bounded bool      `json:"bounded,omitempty"`
	Elems   []typeDoc `json:"elems,omitempty"`
}

type opDoc struct {
	Kind      string  `json:"kind"` // primitive, literal, parameter, call
	Name      string  `json:"name,omitempty"`      // primitive name / parameter name / called compound op
	Index     int     `json:"index,omitempty"`     // parameter index
	Scalar    float64 `json:"scalar,omitempty"`     // literal scalar value
	LambdaRef string  `json:"lambda_ref,omitempty"` // literal: name of the primitive/compound op it wraps
}

// Load reads and resolves a DFG interchange file into emitter/ir types.
func Load(path string) (*ir.DFG, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dfgfile: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("dfgfile: invalid JSON in %s: %w", path, err)
	}
	return build(&doc)
}

// resolver holds the in-progress cross-reference tables while fields
// are being linked; named types keep the many string-keyed maps
// self-documenting through the build.
type resolver struct {
	media     map[string]*ir.AmorphousMedium
	fields    map[string]*ir.Field
	ois       map[string]*ir.OperatorInstance
	compounds map[string]*ir.CompoundOp
	dfg       *ir.DFG
}

func build(doc *Doc) (*ir.DFG, error) {
	r := &resolver{
		media:     map[string]*ir.AmorphousMedium{},
		fields:    map[string]*ir.Field{},
		ois:       map[string]*ir.OperatorInstance{},
		compounds: map[string]*ir.CompoundOp{},
		dfg:       &ir.DFG{Funcalls: map[*ir.CompoundOp][]*ir.OperatorInstance{}},
	}

	for _, m := range doc.Media {
		am := ir.NewAmorphousMedium()
		if m.Branchfn {
			am.Mark("branch-fn")
		}
		r.media[m.ID] = am
		r.dfg.Relevant = append(r.dfg.Relevant, am)
	}

	// Compound ops need a stub before any field references them as a
	// call target, so body-of AMs are bound in a first pass.
	for _, m := range doc.Media {
		if m.BodyOf == "" {
			continue
		}
		comp := r.compoundOp(m.BodyOf)
		comp.Body = r.media[m.ID]
		r.media[m.ID].BodyOf = comp
	}

	for _, m := range doc.Media {
		am := r.media[m.ID]
		for _, fd := range m.Fields {
			f := &ir.Field{Domain: am, Persistent: fd.Persistent, ExportWidth: fd.ExportWidth}
			r.fields[fd.ID] = f
			am.Fields = append(am.Fields, f)
		}
	}

	for _, m := range doc.Media {
		for _, fd := range m.Fields {
			f := r.fields[fd.ID]
			t, err := buildType(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("dfgfile: field %q: %w", fd.ID, err)
			}
			f.Range = t

			var inputs []*ir.Field
			for _, inID := range fd.Inputs {
				in, ok := r.fields[inID]
				if !ok {
					return nil, fmt.Errorf("dfgfile: field %q references unknown input %q", fd.ID, inID)
				}
				inputs = append(inputs, in)
			}

			op, err := r.buildOp(fd.Op)
			if err != nil {
				return nil, fmt.Errorf("dfgfile: field %q: %w", fd.ID, err)
			}
			oi := &ir.OperatorInstance{Op: op, Inputs: inputs, Output: f}
			f.Producer = oi
			r.ois[fd.ID] = oi

			for i, in := range inputs {
				in.Consumers = append(in.Consumers, ir.Consumer{OI: oi, Input: i})
			}
			if comp, ok := op.(*ir.CompoundOp); ok {
				r.dfg.Funcalls[comp] = append(r.dfg.Funcalls[comp], oi)
			}
		}
	}

	out, ok := r.fields[doc.Output]
	if !ok {
		return nil, fmt.Errorf("dfgfile: output field %q not found", doc.Output)
	}
	r.dfg.Output = out
	return r.dfg, nil
}

func (r *resolver) compoundOp(name string) *ir.CompoundOp {
	if c, ok := r.compounds[name]; ok {
		return c
	}
	c := &ir.CompoundOp{Name: name, Signature: &ir.Signature{}}
	r.compounds[name] = c
	return c
}

func (r *resolver) buildOp(od opDoc) (ir.Operator, error) {
	switch od.Kind {
	case "primitive":
		return &ir.Primitive{Name: od.Name, Signature: &ir.Signature{}}, nil
	case "parameter":
		return &ir.Parameter{Name: od.Name, Index: od.Index}, nil
	case "call":
		return r.compoundOp(od.Name), nil
	case "literal":
		lit := &ir.Literal{Scalar: od.Scalar, Range: &ir.ProtoScalar{}}
		if od.LambdaRef != "" {
			lit.Range = &ir.ProtoLambda{}
			if comp, ok := r.compounds[od.LambdaRef]; ok {
				lit.Lambda = comp
			} else {
				lit.Lambda = &ir.Primitive{Name: od.LambdaRef, Signature: &ir.Signature{}}
			}
		}
		return lit, nil
	default:
		return nil, fmt.Errorf("unknown op kind %q", od.Kind)
	}
}

func buildType(t typeDoc) (ir.ProtoType, error) {
	switch t.Kind {
	case "scalar":
		return &ir.ProtoScalar{}, nil
	case "symbol":
		return &ir.ProtoSymbol{}, nil
	case "lambda":
		return &ir.ProtoLambda{}, nil
	case "tuple":
		elems := make([]ir.ProtoType, len(t.Elems))
		for i, e := range t.Elems {
			et, err := buildType(e)
			if err != nil {
				return nil, err
			}
			elems[i] = et
		}
		return &ir.ProtoTuple{Bounded: t.Bounded, Types: elems}, nil
	default:
		return nil, fmt.Errorf("unknown type kind %q", t.Kind)
	}
}
