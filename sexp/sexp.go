// Package sexp defines the s-expression tree splisp programs are parsed
// into, plus the reader that builds one from a token stream and a
// pretty-printer for debugging.
//
// Node is a tagged variant with exactly two shapes, [List] and [Symbol],
// matching the data model in the expanded specification. Go expresses the
// tag with a small marker-method interface rather than a hand-rolled enum,
// the same idiom the teacher repo uses for its AST (ast.Node).
package sexp

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIllFormed reports a structural shape mismatch in the s-expression
// tree: wrong arity for a special form, non-list formals, a non-symbol
// name where one was required, and so on.
var ErrIllFormed = errors.New("ill-formed s-expression")

// Node is implemented by every s-expression tree node: [List] and [Symbol].
type Node interface {
	fmt.Stringer
	isNode()
}

// List is an ordered sequence of child nodes. ScopeID is set by the
// scoper on every list node that introduces a lexical scope (the whole
// `(lambda ...)` form); it is nil on every other list.
type List struct {
	Children []Node
	ScopeID  *uint64
}

func (*List) isNode() {}

// String renders the list in the same parenthesized surface form it was
// read from, recursively.
func (l *List) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, c := range l.Children {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Symbol is an atomic node: a keyword, an identifier name, an integer
// literal, a boolean literal, or — after the scoper's resolve pass — a
// binding id. Value holds exactly one of [Keyword], [Name], [BindingID],
// [Integer], or [Bool].
type Symbol struct {
	Value Value
}

func (*Symbol) isNode() {}

// String renders the symbol's literal surface form.
func (s *Symbol) String() string { return s.Value.String() }

// Value is implemented by the five possible contents of a Symbol.
type Value interface {
	fmt.Stringer
	isValue()
}

// Keyword is one of the closed set of reserved words: if, let, lambda,
// define.
type Keyword string

func (Keyword) isValue()        {}
func (k Keyword) String() string { return string(k) }

// The closed set of keywords recognized in head-of-list position.
const (
	If     Keyword = "if"
	Let    Keyword = "let"
	Lambda Keyword = "lambda"
	Define Keyword = "define"
)

// IsKeyword reports whether text names one of the reserved keywords.
func IsKeyword(text string) (Keyword, bool) {
	switch Keyword(text) {
	case If, Let, Lambda, Define:
		return Keyword(text), true
	}
	return "", false
}

// Name is an identifier occurrence before scope resolution replaces it
// with a [BindingID].
type Name string

func (Name) isValue()        {}
func (n Name) String() string { return string(n) }

// PrimitiveNames lists the built-in arithmetic/logic operators, in the
// fixed order their reserved binding ids are assigned (see
// [PrimitiveID]). This is the language's entire arithmetic/logic
// surface: nothing else in the grammar reaches the ISA's Arithmetic and
// Logic instruction classes. Every name is pre-bound as an ordinary
// global [BindingID] (see scope.New), so scope resolution, lowering,
// and Core IR see exactly the same Var/Apply shape as any other
// function call; only the generator treats these particular ids
// specially, compiling them straight to an opcode instead of a CALL.
var PrimitiveNames = []string{
	"+", "-", "*", "/", "mod",
	"inc", "dec", "max", "min",
	"<", "<=", "=", ">=", ">",
}

// PrimitiveIDBase is the first reserved binding id for a built-in
// operator. It sits far above any id a Scoper will ever assign through
// ordinary lambda/define binding (which starts at 0 and increments by
// one per binding), so the two id spaces never collide.
const PrimitiveIDBase uint64 = 1 << 63

// PrimitiveID returns the reserved binding id for a built-in operator
// name, if it is one.
func PrimitiveID(name string) (uint64, bool) {
	for i, n := range PrimitiveNames {
		if n == name {
			return PrimitiveIDBase + uint64(i), true
		}
	}
	return 0, false
}

// PrimitiveName reverses [PrimitiveID]: given a binding id, reports the
// built-in operator name it was reserved for, if any.
func PrimitiveName(id uint64) (string, bool) {
	if id < PrimitiveIDBase {
		return "", false
	}
	idx := id - PrimitiveIDBase
	if idx >= uint64(len(PrimitiveNames)) {
		return "", false
	}
	return PrimitiveNames[idx], true
}

// BindingID is an identifier occurrence after scope resolution: a
// reference to a unique lexical binding.
type BindingID uint64

func (BindingID) isValue() {}
func (b BindingID) String() string {
	return fmt.Sprintf("#%d", uint64(b))
}

// Integer is a 64-bit unsigned integer literal.
type Integer uint64

func (Integer) isValue()        {}
func (i Integer) String() string { return fmt.Sprintf("%d", uint64(i)) }

// Bool is a boolean literal (#t / #f).
type Bool bool

func (Bool) isValue() {}
func (b Bool) String() string {
	if b {
		return "#t"
	}
	return "#f"
}

// Sprint pretty-prints a top-level sequence of nodes, one per line.
func Sprint(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(n.String())
		b.WriteByte('\n')
	}
	return b.String()
}
