package core

import (
	"fmt"

	"splisp/sexp"
)

// Lower reshapes a scope-resolved s-expression tree into a Core IR
// Program. Every node must already have had its Name symbols rewritten
// to BindingID by package scope; a leftover Name in expression position
// is a structural error.
func Lower(nodes []sexp.Node) (Program, error) {
	prog := make(Program, 0, len(nodes))
	for _, n := range nodes {
		top, err := lowerTop(n)
		if err != nil {
			return nil, err
		}
		prog = append(prog, top)
	}
	return prog, nil
}

func lowerTop(n sexp.Node) (Top, error) {
	if list, ok := n.(*sexp.List); ok {
		if kw, ok := headKeyword(list); ok && kw == sexp.Define {
			return lowerDefinition(list)
		}
	}
	return lowerExpr(n)
}

func lowerExpr(n sexp.Node) (Expr, error) {
	switch node := n.(type) {
	case *sexp.Symbol:
		switch v := node.Value.(type) {
		case sexp.Integer:
			return &Const{Value: uint64(v)}, nil
		case sexp.Bool:
			if v {
				return &Const{Value: 1}, nil
			}
			return &Const{Value: 0}, nil
		case sexp.BindingID:
			return &Var{ID: uint64(v)}, nil
		default:
			return nil, fmt.Errorf("symbol in expression position must be a literal or resolved binding: %w", sexp.ErrIllFormed)
		}
	case *sexp.List:
		if len(node.Children) == 0 {
			return nil, fmt.Errorf("empty list in expression position: %w", sexp.ErrIllFormed)
		}
		if kw, ok := headKeyword(node); ok {
			switch kw {
			case sexp.If:
				return lowerCond(node)
			case sexp.Lambda:
				return lowerLambda(node)
			case sexp.Define:
				// Resolves open question #4 (nested define): define is only
				// valid as a top-level item, never in expression position.
				return nil, fmt.Errorf("nested define is not a valid expression: %w", sexp.ErrIllFormed)
			case sexp.Let:
				return nil, fmt.Errorf("let should have been desugared by the reader: %w", sexp.ErrIllFormed)
			}
		}
		return lowerApply(node)
	default:
		return nil, fmt.Errorf("unknown node kind %T: %w", n, sexp.ErrIllFormed)
	}
}

func lowerCond(list *sexp.List) (Expr, error) {
	if len(list.Children) != 4 {
		return nil, fmt.Errorf("if requires a condition, a then-branch, and an else-branch: %w", sexp.ErrIllFormed)
	}
	cond, err := lowerExpr(list.Children[1])
	if err != nil {
		return nil, err
	}
	then, err := lowerExpr(list.Children[2])
	if err != nil {
		return nil, err
	}
	otherwise, err := lowerExpr(list.Children[3])
	if err != nil {
		return nil, err
	}
	return &Cond{Condition: cond, Then: then, Otherwise: otherwise}, nil
}

func lowerLambda(list *sexp.List) (Expr, error) {
	if len(list.Children) < 3 {
		return nil, fmt.Errorf("lambda requires formals and at least one body expression: %w", sexp.ErrIllFormed)
	}
	formalsList, ok := list.Children[1].(*sexp.List)
	if !ok {
		return nil, fmt.Errorf("lambda formals must be a list: %w", sexp.ErrIllFormed)
	}

	formals := make([]uint64, 0, len(formalsList.Children))
	for _, f := range formalsList.Children {
		sym, ok := f.(*sexp.Symbol)
		if !ok {
			return nil, fmt.Errorf("lambda formal must be a symbol: %w", sexp.ErrIllFormed)
		}
		id, ok := sym.Value.(sexp.BindingID)
		if !ok {
			return nil, fmt.Errorf("lambda formal must be a resolved binding: %w", sexp.ErrIllFormed)
		}
		formals = append(formals, uint64(id))
	}

	body := make([]Expr, 0, len(list.Children)-2)
	for _, b := range list.Children[2:] {
		e, err := lowerExpr(b)
		if err != nil {
			return nil, err
		}
		body = append(body, e)
	}
	return &Lambda{Formals: formals, Body: body}, nil
}

func lowerDefinition(list *sexp.List) (Top, error) {
	if len(list.Children) != 3 {
		return nil, fmt.Errorf("define requires exactly a name and a value: %w", sexp.ErrIllFormed)
	}
	nameSym, ok := list.Children[1].(*sexp.Symbol)
	if !ok {
		return nil, fmt.Errorf("define name must be a symbol: %w", sexp.ErrIllFormed)
	}
	id, ok := nameSym.Value.(sexp.BindingID)
	if !ok {
		return nil, fmt.Errorf("define name must be a resolved binding: %w", sexp.ErrIllFormed)
	}
	rhs, err := lowerExpr(list.Children[2])
	if err != nil {
		return nil, err
	}
	return &Define{Name: uint64(id), Rhs: rhs}, nil
}

func lowerApply(list *sexp.List) (Expr, error) {
	callee, err := lowerExpr(list.Children[0])
	if err != nil {
		return nil, err
	}
	args := make([]Expr, 0, len(list.Children)-1)
	for _, a := range list.Children[1:] {
		e, err := lowerExpr(a)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return &Apply{Callee: callee, Args: args}, nil
}

func headKeyword(l *sexp.List) (sexp.Keyword, bool) {
	if len(l.Children) == 0 {
		return "", false
	}
	sym, ok := l.Children[0].(*sexp.Symbol)
	if !ok {
		return "", false
	}
	kw, ok := sym.Value.(sexp.Keyword)
	return kw, ok
}
