// Package ir declares the dataflow-graph types the emitter consumes.
//
// These types are produced by an external parser/analyzer (out of scope
// for this package, per the emitter's non-goals) and are read-only from
// the emitter's point of view: it never mutates a Field's range or a
// CompoundOp's signature except during the two pre-linearization
// rewrites in package rewrite, which operate on exactly these types.
package ir

// ProtoType is the type of a value flowing along a Field. The emitter
// only needs to tell scalars, tuples, lambdas and symbols apart and to
// check that a type is "local and concrete" (Emittable, see emittable.go).
type ProtoType interface {
	isProtoType()
}

// ProtoScalar is a single numeric value (also covers booleans).
type ProtoScalar struct{}

func (*ProtoScalar) isProtoType() {}

// ProtoSymbol is an opaque named value, e.g. a device or region tag.
type ProtoSymbol struct{}

func (*ProtoSymbol) isProtoType() {}

// ProtoTuple is a fixed- or variable-length vector of ProtoTypes.
// Bounded=false means unbounded length, which fails the emittability
// check in package emitter.
type ProtoTuple struct {
	Bounded bool
	Types   []ProtoType
}

func (*ProtoTuple) isProtoType() {}

// ProtoLambda wraps an Operator as a first-class value (used for
// passing branch arms and compound-op references around the DFG).
type ProtoLambda struct {
	Op Operator
}

func (*ProtoLambda) isProtoType() {}

// Operator is the thing an OperatorInstance instantiates: a Primitive,
// a Literal, a Parameter or a CompoundOp.
type Operator interface {
	isOperator()
	OpName() string
}

// Signature describes a compound op or primitive's formal parameters.
type Signature struct {
	RequiredInputs []ProtoType
	RestInput      ProtoType // nil if the operator takes no rest input
	Output         ProtoType
}

// NFixed returns the number of required (non-rest) inputs.
func (s *Signature) NFixed() int {
	if s == nil {
		return 0
	}
	return len(s.RequiredInputs)
}

// Primitive is a built-in operator with a known opcode or opcode family,
// resolved by name against the tables in package serialize.
type Primitive struct {
	Name      string
	Signature *Signature
}

func (*Primitive) isOperator()     {}
func (p *Primitive) OpName() string { return p.Name }

// IsCore reports whether this primitive is one of the two core ops the
// emitter treats specially: "reference" and "branch".
func (p *Primitive) IsCore(name string) bool { return p.Name == name }

// Literal is a constant value baked into the program. Exactly one of
// Scalar, Tuple, or Lambda holds the payload, selected by Range's
// concrete type (*ProtoScalar, *ProtoTuple, or *ProtoLambda).
type Literal struct {
	Range  ProtoType
	Scalar float64
	Tuple  []*Literal
	Lambda Operator // the wrapped *Primitive or *CompoundOp, when Range is *ProtoLambda
}

func (*Literal) isOperator()    {}
func (*Literal) OpName() string { return "literal" }

// Parameter is a formal parameter of a CompoundOp, referenced inside its
// body by index.
type Parameter struct {
	Name  string
	Index int
}

func (*Parameter) isOperator()     {}
func (p *Parameter) OpName() string { return p.Name }

// CompoundOp is a user-defined operator whose body is an AmorphousMedium.
type CompoundOp struct {
	Name      string
	Signature *Signature
	Body      *AmorphousMedium
	// Params lists this op's formal parameters in index order. Kept
	// explicitly (rather than discovered by graph traversal) because
	// rewrite.ReferenceToParameter needs to renumber every existing
	// parameter's Index when it prepends a new one.
	Params []*Parameter
}

func (*CompoundOp) isOperator()      {}
func (c *CompoundOp) OpName() string { return c.Name }

// AmorphousMedium (AM) is a region of the DFG: one function body or
// branch arm.
type AmorphousMedium struct {
	// BodyOf is the CompoundOp whose body this AM is, or nil for the
	// top-level/main AM and anonymous branch arms.
	BodyOf *CompoundOp
	// Marks holds named boolean attributes, e.g. "branch-fn".
	Marks map[string]bool
	// Fields lists every field whose Domain is this AM, in the order
	// the analyzer produced them. The linearizer derives this AM's
	// minima (fields with no relevant consumer) by filtering Fields,
	// rather than the emitter maintaining a separate index.
	Fields []*Field
}

func NewAmorphousMedium() *AmorphousMedium {
	return &AmorphousMedium{Marks: map[string]bool{}}
}

func (am *AmorphousMedium) Marked(name string) bool {
	if am == nil || am.Marks == nil {
		return false
	}
	return am.Marks[name]
}

func (am *AmorphousMedium) Mark(name string) {
	if am.Marks == nil {
		am.Marks = map[string]bool{}
	}
	am.Marks[name] = true
}

// Consumer is one use of a Field as an input: the consuming
// OperatorInstance and which input slot it occupies.
type Consumer struct {
	OI    *OperatorInstance
	Input int
}

// Field is a single value-producing edge in the DFG.
type Field struct {
	Range     ProtoType
	Producer  *OperatorInstance
	Consumers []Consumer
	Domain    *AmorphousMedium

	// Persistent and ExportWidth resolve open question 9.2: the analyzer
	// marks a field
	// Persistent when it holds a cell that must survive across
	// invocations of the program (a device's amorphous-media-local
	// state), and sets ExportWidth > 0 when the field's value is
	// reported to the simulator each round (1 for a scalar export, the
	// element count for a tuple export). The linearizer copies these
	// onto the iLET it allocates for the field (package instr's
	// AttrPersistentState / AttrExportWidth), since ResolveState counts
	// off the instruction chain, not the IR.
	Persistent  bool
	ExportWidth int
}

// HasConsumerIn reports whether any consumer lives in the given domain.
func (f *Field) HasConsumerIn(dom *AmorphousMedium) bool {
	for _, c := range f.Consumers {
		if c.OI.Output.Domain == dom {
			return true
		}
	}
	return false
}

// OperatorInstance (OI) is one use of an operator in the DFG.
type OperatorInstance struct {
	Op     Operator
	Inputs []*Field
	Output *Field
}

// NthInput is a convenience accessor for Inputs[n], returning nil if n
// is out of range.
func (oi *OperatorInstance) NthInput(n int) *Field {
	if n < 0 || n >= len(oi.Inputs) {
		return nil
	}
	return oi.Inputs[n]
}

// DFG is the whole program: every relevant AM plus the main output.
type DFG struct {
	// Relevant is the set of AMs that contribute bytecode.
	Relevant []*AmorphousMedium
	// Output is the field whose domain is the main amorphous medium.
	Output *Field
	// Funcalls maps a CompoundOp to every OI that calls it, needed by
	// ReferenceToParameter to thread a new argument through every call
	// site.
	Funcalls map[*CompoundOp][]*OperatorInstance
}
