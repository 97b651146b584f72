package core_test

import (
	"errors"
	"testing"

	"splisp/core"
	"splisp/scope"
	"splisp/sexp"
)

func resolveAndLower(t *testing.T, src string) core.Program {
	t.Helper()
	nodes, err := sexp.Read(src)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := scope.Resolve(nodes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	prog, err := core.Lower(nodes)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	return prog
}

func TestLowerSimpleApply(t *testing.T) {
	prog := resolveAndLower(t, "(+ 1 2)")
	if len(prog) != 1 {
		t.Fatalf("expected 1 top-level item, got %d", len(prog))
	}
	apply, ok := prog[0].(*core.Apply)
	if !ok {
		t.Fatalf("expected *core.Apply, got %T", prog[0])
	}
	callee, ok := apply.Callee.(*core.Var)
	if !ok {
		t.Fatalf("expected callee to be a Var, got %T", apply.Callee)
	}
	if name, isPrimitive := sexp.PrimitiveName(callee.ID); !isPrimitive || name != "+" {
		t.Fatalf("expected callee Var to resolve to the \"+\" primitive, got id %d", callee.ID)
	}
	if len(apply.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(apply.Args))
	}
	c0, ok := apply.Args[0].(*core.Const)
	if !ok || c0.Value != 1 {
		t.Fatalf("expected first arg Const{1}, got %#v", apply.Args[0])
	}
}

func TestLowerLambdaFormalsAndBody(t *testing.T) {
	prog := resolveAndLower(t, "(lambda (x) x)")
	lambda, ok := prog[0].(*core.Lambda)
	if !ok {
		t.Fatalf("expected *core.Lambda, got %T", prog[0])
	}
	if len(lambda.Formals) != 1 || lambda.Formals[0] != 0 {
		t.Fatalf("expected formals=[0], got %v", lambda.Formals)
	}
	if len(lambda.Body) != 1 {
		t.Fatalf("expected 1 body expression, got %d", len(lambda.Body))
	}
	v, ok := lambda.Body[0].(*core.Var)
	if !ok || v.ID != 0 {
		t.Fatalf("expected body Var{0}, got %#v", lambda.Body[0])
	}
}

func TestLowerCond(t *testing.T) {
	prog := resolveAndLower(t, "(if #t 42 99)")
	cond, ok := prog[0].(*core.Cond)
	if !ok {
		t.Fatalf("expected *core.Cond, got %T", prog[0])
	}
	c, ok := cond.Condition.(*core.Const)
	if !ok || c.Value != 1 {
		t.Fatalf("expected condition Const{1} for #t, got %#v", cond.Condition)
	}
	then, ok := cond.Then.(*core.Const)
	if !ok || then.Value != 42 {
		t.Fatalf("expected then Const{42}, got %#v", cond.Then)
	}
	otherwise, ok := cond.Otherwise.(*core.Const)
	if !ok || otherwise.Value != 99 {
		t.Fatalf("expected otherwise Const{99}, got %#v", cond.Otherwise)
	}
}

func TestLowerDefine(t *testing.T) {
	prog := resolveAndLower(t, "(define x 5)")
	def, ok := prog[0].(*core.Define)
	if !ok {
		t.Fatalf("expected *core.Define, got %T", prog[0])
	}
	if def.Name != 0 {
		t.Fatalf("expected name binding id 0, got %d", def.Name)
	}
	c, ok := def.Rhs.(*core.Const)
	if !ok || c.Value != 5 {
		t.Fatalf("expected rhs Const{5}, got %#v", def.Rhs)
	}
}

func TestLowerNestedDefineIsIllFormed(t *testing.T) {
	nodes, err := sexp.Read("(lambda (x) (define y x) y)")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := scope.Resolve(nodes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	_, err = core.Lower(nodes)
	if !errors.Is(err, sexp.ErrIllFormed) {
		t.Fatalf("expected ErrIllFormed for nested define, got %v", err)
	}
}

func TestCheckBindingsDetectsUnbound(t *testing.T) {
	prog := core.Program{&core.Var{ID: 99}}
	if err := core.CheckBindings(prog, map[uint64]bool{}); !errors.Is(err, core.ErrUnboundBinding) {
		t.Fatalf("expected ErrUnboundBinding, got %v", err)
	}
}
