package ir

import "testing"

func TestEmittableScalarAndSymbol(t *testing.T) {
	if !Emittable(&ProtoScalar{}) {
		t.Error("ProtoScalar should be emittable")
	}
	if !Emittable(&ProtoSymbol{}) {
		t.Error("ProtoSymbol should be emittable")
	}
}

func TestEmittableTupleRequiresBoundedAndEmittableElements(t *testing.T) {
	bounded := &ProtoTuple{Bounded: true, Types: []ProtoType{&ProtoScalar{}, &ProtoScalar{}}}
	if !Emittable(bounded) {
		t.Error("a bounded tuple of emittable elements should be emittable")
	}

	unbounded := &ProtoTuple{Bounded: false, Types: []ProtoType{&ProtoScalar{}}}
	if Emittable(unbounded) {
		t.Error("an unbounded tuple must not be emittable")
	}

	nested := &ProtoTuple{Bounded: true, Types: []ProtoType{
		&ProtoTuple{Bounded: false, Types: []ProtoType{&ProtoScalar{}}},
	}}
	if Emittable(nested) {
		t.Error("a tuple containing a non-emittable element must not be emittable")
	}
}

func TestEmittableLambdaDependsOnWrappedOperator(t *testing.T) {
	prim := &ProtoLambda{Op: &Primitive{Name: "+"}}
	if !Emittable(prim) {
		t.Error("a lambda wrapping a Primitive should be emittable")
	}

	badOp := &ProtoLambda{Op: fakeOperator{}}
	if Emittable(badOp) {
		t.Error("a lambda wrapping an unknown operator kind must not be emittable")
	}
}

func TestEmittableFieldDelegatesToRange(t *testing.T) {
	f := &Field{Range: &ProtoScalar{}}
	if !EmittableField(f) {
		t.Error("EmittableField should follow Field.Range")
	}
}

type fakeOperator struct{}

func (fakeOperator) isOperator()     {}
func (fakeOperator) OpName() string  { return "fake" }
