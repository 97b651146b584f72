// Package gen is the Generator: it walks a Core IR program and emits a
// flat sequence of isa.Instruction, patching forward jump targets in a
// single pass.
//
// Grounded on original source's generator.cpp for the emission shapes
// (Cond's two-patch layout, Lambda's jump-over-body layout) and on
// SPEC_FULL §4.3a for the STORE/LOAD-based binding convention that
// replaces the original's address-only Var/Define sketch. The
// single-pass, instruction-index-then-scale addressing model mirrors
// the teacher's compiler.Compiler, which also tracks emitted
// instruction positions to patch jump operands after the fact
// (compiler.changeOperand / compiler.replaceInstruction).
package gen

import (
	"fmt"

	"splisp/core"
	"splisp/isa"
	"splisp/sexp"
)

// Generate lowers a Core IR program to a flat instruction stream.
func Generate(prog core.Program) ([]isa.Instruction, error) {
	g := &generator{}
	for _, top := range prog {
		if err := g.genTop(top); err != nil {
			return nil, err
		}
	}
	return g.instrs, nil
}

type generator struct {
	instrs []isa.Instruction
}

// emit appends an instruction and returns its index.
func (g *generator) emit(op isa.Op, operand uint64) int {
	g.instrs = append(g.instrs, isa.Instruction{Op: op, Operand: operand})
	return len(g.instrs) - 1
}

// here is the index the next emitted instruction will occupy.
func (g *generator) here() int {
	return len(g.instrs)
}

// addrOf scales an instruction index to its byte address.
func addrOf(idx int) uint64 {
	return uint64(idx) * isa.InstructionSize
}

// patch rewrites the operand of an already-emitted instruction, used to
// back-fill forward jump targets once they're known.
func (g *generator) patch(idx int, operand uint64) {
	g.instrs[idx].Operand = operand
}

func (g *generator) genTop(t core.Top) error {
	switch n := t.(type) {
	case *core.Define:
		if err := g.genExpr(n.Rhs); err != nil {
			return err
		}
		g.emit(isa.Store, n.Name)
		return nil
	case core.Expr:
		return g.genExpr(n)
	default:
		return fmt.Errorf("gen: unknown top-level item %T", t)
	}
}

func (g *generator) genExpr(e core.Expr) error {
	switch n := e.(type) {
	case *core.Const:
		g.emit(isa.Push, n.Value)
		return nil
	case *core.Var:
		g.emit(isa.Load, n.ID)
		return nil
	case *core.Apply:
		return g.genApply(n)
	case *core.Lambda:
		return g.genLambda(n)
	case *core.Cond:
		return g.genCond(n)
	default:
		return fmt.Errorf("gen: unknown expression %T", e)
	}
}

// primitiveOps maps a built-in operator name straight to the ISA
// opcode that implements it; these are the only source-level spellings
// of the Arithmetic and Logic instruction classes. The names themselves
// are pre-bound as global Vars by scope.New, so a primitive callee
// arrives here as an ordinary *core.Var whose id falls in
// sexp.PrimitiveIDBase's reserved range.
var primitiveOps = map[string]isa.Op{
	"+": isa.Add, "-": isa.Sub, "*": isa.Mul, "/": isa.Div, "mod": isa.Mod,
	"inc": isa.Inc, "dec": isa.Dec, "max": isa.Max, "min": isa.Min,
	"<": isa.Lt, "<=": isa.Le, "=": isa.Eq, ">=": isa.Ge, ">": isa.Gt,
}

func (g *generator) genApply(n *core.Apply) error {
	if v, ok := n.Callee.(*core.Var); ok {
		if name, isPrimitive := sexp.PrimitiveName(v.ID); isPrimitive {
			op, ok := primitiveOps[name]
			if !ok {
				return fmt.Errorf("gen: unknown primitive operator %q", name)
			}
			for _, arg := range n.Args {
				if err := g.genExpr(arg); err != nil {
					return err
				}
			}
			g.emit(op, 0)
			return nil
		}
	}

	for _, arg := range n.Args {
		if err := g.genExpr(arg); err != nil {
			return err
		}
	}
	if err := g.genExpr(n.Callee); err != nil {
		return err
	}
	g.emit(isa.Call, 0)
	return nil
}

// genLambda emits a forward jump past the body, the body itself bracketed
// by per-formal STOREs and a RET, then pushes the entry address so the
// lambda expression leaves a callable value on the data stack.
func (g *generator) genLambda(n *core.Lambda) error {
	jumpOperand := g.emit(isa.Push, 0)
	g.emit(isa.Jmp, 0)

	entry := addrOf(g.here())
	for i := len(n.Formals) - 1; i >= 0; i-- {
		g.emit(isa.Store, n.Formals[i])
	}
	for _, b := range n.Body {
		if err := g.genExpr(b); err != nil {
			return err
		}
	}
	g.emit(isa.Ret, 0)

	g.patch(jumpOperand, addrOf(g.here()))
	g.emit(isa.Push, entry)
	return nil
}

// genCond follows the layout from original §4.3: push the then-address,
// evaluate the condition, CJMP, evaluate the otherwise-branch on
// fall-through, push the end-address, JMP past the then-branch, then
// emit the then-branch itself. then_address and end_address are
// patched once both landmarks are known.
func (g *generator) genCond(n *core.Cond) error {
	thenTarget := g.emit(isa.Push, 0)
	if err := g.genExpr(n.Condition); err != nil {
		return err
	}
	g.emit(isa.Cjmp, 0)

	if err := g.genExpr(n.Otherwise); err != nil {
		return err
	}
	endTarget := g.emit(isa.Push, 0)
	g.emit(isa.Jmp, 0)

	thenAddr := addrOf(g.here())
	if err := g.genExpr(n.Then); err != nil {
		return err
	}
	endAddr := addrOf(g.here())

	g.patch(thenTarget, thenAddr)
	g.patch(endTarget, endAddr)
	return nil
}
