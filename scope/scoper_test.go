package scope_test

import (
	"errors"
	"testing"

	"splisp/scope"
	"splisp/sexp"
)

func mustRead(t *testing.T, src string) []sexp.Node {
	t.Helper()
	nodes, err := sexp.Read(src)
	if err != nil {
		t.Fatalf("Read(%q): %v", src, err)
	}
	return nodes
}

func firstSymbolBindingID(t *testing.T, n sexp.Node) uint64 {
	t.Helper()
	sym, ok := n.(*sexp.Symbol)
	if !ok {
		t.Fatalf("expected *Symbol, got %T", n)
	}
	id, ok := sym.Value.(sexp.BindingID)
	if !ok {
		t.Fatalf("expected resolved BindingID, got %T (%v)", sym.Value, sym.Value)
	}
	return uint64(id)
}

func TestResolveSimpleLambda(t *testing.T) {
	nodes := mustRead(t, "(lambda (x) x)")
	if _, err := scope.Resolve(nodes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	lambda := nodes[0].(*sexp.List)
	formals := lambda.Children[1].(*sexp.List)
	formalID := firstSymbolBindingID(t, formals.Children[0])
	bodyID := firstSymbolBindingID(t, lambda.Children[2])

	if formalID != 0 {
		t.Fatalf("expected formal binding id 0, got %d", formalID)
	}
	if bodyID != formalID {
		t.Fatalf("expected body reference to resolve to the same binding id, got %d vs %d", bodyID, formalID)
	}
}

func TestResolveNestedLambdaAssignsIDsInOrder(t *testing.T) {
	nodes := mustRead(t, "(lambda (x) (lambda (y z) (+ x y z)))")
	s, err := scope.Resolve(nodes)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	outer := nodes[0].(*sexp.List)
	outerFormals := outer.Children[1].(*sexp.List)
	xID := firstSymbolBindingID(t, outerFormals.Children[0])

	inner := outer.Children[2].(*sexp.List)
	innerFormals := inner.Children[1].(*sexp.List)
	yID := firstSymbolBindingID(t, innerFormals.Children[0])
	zID := firstSymbolBindingID(t, innerFormals.Children[1])

	if xID != 0 || yID != 1 || zID != 2 {
		t.Fatalf("expected binding ids 0,1,2 for x,y,z; got %d,%d,%d", xID, yID, zID)
	}

	if inner.ScopeID == nil || outer.ScopeID == nil {
		t.Fatal("expected both lambdas to have an assigned scope id")
	}
	innerTable, ok := s.Table(*inner.ScopeID)
	if !ok {
		t.Fatal("expected inner scope table to exist")
	}
	if !innerTable.HasParent || innerTable.ParentID != *outer.ScopeID {
		t.Fatalf("expected inner scope's parent to be the outer scope")
	}
	outerTable, _ := s.Table(*outer.ScopeID)
	if len(outerTable.Children) != 1 || outerTable.Children[0] != *inner.ScopeID {
		t.Fatalf("expected outer scope to have exactly the inner scope as its child")
	}
}

func TestResolveUnresolvedNameIsError(t *testing.T) {
	nodes := mustRead(t, "(+ x 1)")
	_, err := scope.Resolve(nodes)
	if !errors.Is(err, scope.ErrUnresolvedName) {
		t.Fatalf("expected ErrUnresolvedName, got %v", err)
	}
}

func TestResolveDefineEnablesSelfRecursion(t *testing.T) {
	nodes := mustRead(t, "(define f (lambda (n) (f n)))")
	if _, err := scope.Resolve(nodes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	define := nodes[0].(*sexp.List)
	defNameID := firstSymbolBindingID(t, define.Children[1])

	lambda := define.Children[2].(*sexp.List)
	callExpr := lambda.Children[2].(*sexp.List)
	calleeID := firstSymbolBindingID(t, callExpr.Children[0])

	if calleeID != defNameID {
		t.Fatalf("expected recursive call to resolve to the define's own binding id %d, got %d", defNameID, calleeID)
	}
}

func TestResolveShadowingByScope(t *testing.T) {
	nodes := mustRead(t, "(define x (lambda (x) x))")
	if _, err := scope.Resolve(nodes); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	define := nodes[0].(*sexp.List)
	defID := firstSymbolBindingID(t, define.Children[1])

	lambda := define.Children[2].(*sexp.List)
	formals := lambda.Children[1].(*sexp.List)
	formalID := firstSymbolBindingID(t, formals.Children[0])
	bodyID := firstSymbolBindingID(t, lambda.Children[2])

	if bodyID != formalID {
		t.Fatalf("expected lambda formal to shadow the outer define; body resolved to %d, formal is %d", bodyID, formalID)
	}
	if bodyID == defID {
		t.Fatalf("shadowing failed: body resolved to the outer define's binding id")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	nodes := mustRead(t, "(lambda (x) x)")
	s := scope.New()
	if err := s.Run(nodes); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := s.Resolve(nodes); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	before := firstSymbolBindingID(t, nodes[0].(*sexp.List).Children[2])

	if err := s.Resolve(nodes); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	after := firstSymbolBindingID(t, nodes[0].(*sexp.List).Children[2])

	if before != after {
		t.Fatalf("resolving twice changed the binding id: %d vs %d", before, after)
	}
}
