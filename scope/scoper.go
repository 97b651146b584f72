package scope

import (
	"errors"
	"fmt"

	"splisp/sexp"
)

// ErrUnresolvedName reports a name used in expression position that has
// no enclosing binding.
var ErrUnresolvedName = errors.New("unresolved name")

// Scoper performs the two-pass static resolution described in the
// expanded spec: Run introduces scopes and bindings, Resolve rewrites
// every name occurrence into its binding id.
type Scoper struct {
	arena         map[uint64]*Table
	nextScopeID   uint64
	nextBindingID uint64
}

// New creates a Scoper with a fresh root table at scope id 0, seeded
// with one PrimitiveBinding per built-in operator name so ordinary
// scope search resolves them like any other global.
func New() *Scoper {
	s := &Scoper{
		arena:       make(map[uint64]*Table),
		nextScopeID: 1,
	}
	root := newTable(0, 0, false)
	for _, name := range sexp.PrimitiveNames {
		id, _ := sexp.PrimitiveID(name)
		root.Bindings[name] = Binding{Kind: PrimitiveBinding, ID: id}
	}
	s.arena[0] = root
	return s
}

// Resolve runs both passes over the given top-level forms, mutating them
// in place, and returns the Scoper so callers/tests can inspect the
// resulting scope tree.
func Resolve(nodes []sexp.Node) (*Scoper, error) {
	s := New()
	if err := s.Run(nodes); err != nil {
		return nil, err
	}
	if err := s.Resolve(nodes); err != nil {
		return nil, err
	}
	return s, nil
}

// Table returns the scope table for the given scope id, if any.
func (s *Scoper) Table(scopeID uint64) (*Table, bool) {
	t, ok := s.arena[scopeID]
	return t, ok
}

// Run is the first pass: it walks the tree, creates a child scope for
// every lambda formal list, and installs a binding for every lambda
// formal and every define name.
func (s *Scoper) Run(nodes []sexp.Node) error {
	for _, n := range nodes {
		if err := s.run(n, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scoper) run(n sexp.Node, parentScopeID uint64) error {
	list, ok := n.(*sexp.List)
	if !ok {
		return nil // Symbols do no work in this pass.
	}

	kw, hasKeyword := headKeyword(list)
	switch {
	case hasKeyword && kw == sexp.Lambda:
		return s.runLambda(list, parentScopeID)
	case hasKeyword && kw == sexp.Define:
		return s.runDefine(list, parentScopeID)
	default:
		for _, child := range list.Children {
			if err := s.run(child, parentScopeID); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *Scoper) runLambda(list *sexp.List, parentScopeID uint64) error {
	if len(list.Children) < 3 {
		return fmt.Errorf("lambda requires formals and at least one body expression: %w", sexp.ErrIllFormed)
	}
	formalsList, ok := list.Children[1].(*sexp.List)
	if !ok {
		return fmt.Errorf("lambda formals must be a list: %w", sexp.ErrIllFormed)
	}

	scopeID := s.nextScopeID
	s.nextScopeID++
	table := newTable(scopeID, parentScopeID, true)
	s.arena[scopeID] = table
	if parent, ok := s.arena[parentScopeID]; ok {
		parent.Children = append(parent.Children, scopeID)
	}

	for _, f := range formalsList.Children {
		sym, ok := f.(*sexp.Symbol)
		if !ok {
			return fmt.Errorf("lambda formal must be a symbol: %w", sexp.ErrIllFormed)
		}
		name, ok := sym.Value.(sexp.Name)
		if !ok {
			return fmt.Errorf("lambda formal must be an unresolved name: %w", sexp.ErrIllFormed)
		}
		id := s.nextBindingID
		s.nextBindingID++
		table.Bindings[string(name)] = Binding{Kind: ValueBinding, ID: id}
	}

	list.ScopeID = &scopeID
	for _, child := range list.Children {
		if err := s.run(child, scopeID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scoper) runDefine(list *sexp.List, parentScopeID uint64) error {
	if len(list.Children) != 3 {
		return fmt.Errorf("define requires exactly a name and a value: %w", sexp.ErrIllFormed)
	}
	nameSym, ok := list.Children[1].(*sexp.Symbol)
	if !ok {
		return fmt.Errorf("define name must be a symbol: %w", sexp.ErrIllFormed)
	}
	name, ok := nameSym.Value.(sexp.Name)
	if !ok {
		return fmt.Errorf("define name must be an unresolved name: %w", sexp.ErrIllFormed)
	}

	parent, ok := s.arena[parentScopeID]
	if !ok {
		return fmt.Errorf("internal error: unknown scope %d", parentScopeID)
	}
	id := s.nextBindingID
	s.nextBindingID++
	parent.Bindings[string(name)] = Binding{Kind: FuncBinding, ID: id}

	for _, child := range list.Children {
		if err := s.run(child, parentScopeID); err != nil {
			return err
		}
	}
	return nil
}

// Resolve is the second pass: it rewrites every Name symbol into the
// BindingID found by searching the scope chain starting at the nearest
// enclosing scope.
func (s *Scoper) Resolve(nodes []sexp.Node) error {
	for _, n := range nodes {
		if err := s.resolve(n, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scoper) resolve(n sexp.Node, currentScopeID uint64) error {
	switch node := n.(type) {
	case *sexp.List:
		scopeID := currentScopeID
		if node.ScopeID != nil {
			scopeID = *node.ScopeID
		}
		for _, child := range node.Children {
			if err := s.resolve(child, scopeID); err != nil {
				return err
			}
		}
	case *sexp.Symbol:
		if name, ok := node.Value.(sexp.Name); ok {
			binding, err := s.search(string(name), currentScopeID)
			if err != nil {
				return err
			}
			node.Value = sexp.BindingID(binding.ID)
		}
	}
	return nil
}

// search ascends the scope chain from scopeID looking for name.
func (s *Scoper) search(name string, scopeID uint64) (Binding, error) {
	table, ok := s.arena[scopeID]
	if !ok {
		return Binding{}, fmt.Errorf("internal error: unknown scope %d", scopeID)
	}
	for {
		if b, ok := table.Bindings[name]; ok {
			return b, nil
		}
		if !table.HasParent {
			return Binding{}, fmt.Errorf("%s: %w", name, ErrUnresolvedName)
		}
		table = s.arena[table.ParentID]
	}
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
