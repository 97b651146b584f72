// Package scope performs static name resolution over an s-expression
// tree: it introduces a lexical scope at each `lambda` (a `define` binds
// its name in the enclosing scope and opens no scope of its own), assigns
// each introduced name a globally unique binding id, and rewrites every
// use of a name into that binding id so later stages need no string
// comparisons.
//
// Grounded directly on original source's scoper.hpp/scoper.cpp, which is
// the module this package implements; the scope-chain-lookup idiom is
// adapted from the teacher's compiler/symbol_table.go (Outer-pointer
// chain), generalized into an explicit tree of tables keyed by scope id
// per §9's "do not use raw owning back-pointers" note.
package scope

// Kind distinguishes how a name was introduced.
type Kind int

const (
	// ValueBinding marks a name introduced by a lambda formal.
	ValueBinding Kind = iota
	// FuncBinding marks a name introduced by a top-level define.
	FuncBinding
	// PrimitiveBinding marks one of the built-in operator names
	// pre-installed in the root table by New.
	PrimitiveBinding
)

// Binding represents one lexical introduction of a name.
type Binding struct {
	Kind Kind
	ID   uint64
}

// Table is one node of the scope tree: a scope id, its own bindings, and
// a (non-owning) link to its parent. The tree is stored as an arena
// indexed by scope id rather than as owning pointers, so the parent
// link is just another index into the arena.
type Table struct {
	ScopeID   uint64
	Bindings  map[string]Binding
	Children  []uint64
	ParentID  uint64
	HasParent bool
}

func newTable(scopeID uint64, parentID uint64, hasParent bool) *Table {
	return &Table{
		ScopeID:   scopeID,
		Bindings:  make(map[string]Binding),
		ParentID:  parentID,
		HasParent: hasParent,
	}
}
