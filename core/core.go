// Package core defines the Core IR splisp programs are lowered into and
// the Lowerer that produces it from a scope-resolved s-expression tree.
//
// Expr is a tagged union of five node kinds ([Const], [Var], [Apply],
// [Lambda], [Cond]); Top is either a [Define] or a bare Expr. As with
// package sexp, the tag is a small marker-method interface rather than a
// hand-rolled enum, following the teacher's ast.Node idiom.
//
// Grounded directly on original source's core.hpp (field-for-field: this
// is the module the expanded spec names).
package core

import (
	"errors"

	"splisp/sexp"
)

// ErrUnboundBinding reports an internal invariant violation: a Var
// references a binding id that the scoper never installed.
var ErrUnboundBinding = errors.New("unbound binding id")

// Expr is implemented by every Core IR expression node.
type Expr interface {
	Top
	isExpr()
}

// Top is implemented by every top-level item: [Define], or any [Expr].
type Top interface {
	isTop()
}

// Const is a literal 64-bit unsigned value.
type Const struct {
	Value uint64
}

func (*Const) isExpr() {}
func (*Const) isTop()  {}

// Var refers to a binding by id.
type Var struct {
	ID uint64
}

func (*Var) isExpr() {}
func (*Var) isTop()  {}

// Apply calls callee with args, evaluated left to right.
type Apply struct {
	Callee Expr
	Args   []Expr
}

func (*Apply) isExpr() {}
func (*Apply) isTop()  {}

// Lambda introduces a function value over the given formal binding ids.
type Lambda struct {
	Formals []uint64
	Body    []Expr
}

func (*Lambda) isExpr() {}
func (*Lambda) isTop()  {}

// Cond is the three-armed conditional.
type Cond struct {
	Condition Expr
	Then      Expr
	Otherwise Expr
}

func (*Cond) isExpr() {}
func (*Cond) isTop()  {}

// Define binds the value of Rhs to Name at the top level.
type Define struct {
	Name uint64
	Rhs  Expr
}

func (*Define) isTop() {}

// Program is an ordered sequence of top-level items.
type Program []Top

// CheckBindings walks prog and reports ErrUnboundBinding for any Var
// whose id is not present in known. known is normally the set of binding
// ids the scoper installed; this is a cheap internal-invariant check, not
// part of the required lowering contract.
func CheckBindings(prog Program, known map[uint64]bool) error {
	var walk func(e Expr) error
	walk = func(e Expr) error {
		switch n := e.(type) {
		case *Const:
			return nil
		case *Var:
			if _, isPrimitive := sexp.PrimitiveName(n.ID); isPrimitive {
				return nil
			}
			if !known[n.ID] {
				return ErrUnboundBinding
			}
			return nil
		case *Apply:
			if err := walk(n.Callee); err != nil {
				return err
			}
			for _, a := range n.Args {
				if err := walk(a); err != nil {
					return err
				}
			}
			return nil
		case *Lambda:
			for _, id := range n.Formals {
				known[id] = true
			}
			for _, b := range n.Body {
				if err := walk(b); err != nil {
					return err
				}
			}
			return nil
		case *Cond:
			if err := walk(n.Condition); err != nil {
				return err
			}
			if err := walk(n.Then); err != nil {
				return err
			}
			return walk(n.Otherwise)
		}
		return nil
	}

	for _, top := range prog {
		switch t := top.(type) {
		case *Define:
			if err := walk(t.Rhs); err != nil {
				return err
			}
		case Expr:
			if err := walk(t); err != nil {
				return err
			}
		}
	}
	return nil
}
