package vm_test

import (
	"testing"

	"splisp/isa"
	"splisp/vm"
)

func run(t *testing.T, instrs []isa.Instruction) *vm.Machine {
	t.Helper()
	image := vm.NewImage(instrs, nil)
	m := vm.New(image, len(instrs))
	m.Run()
	return m
}

func TestAddThenHalt(t *testing.T) {
	// spec scenario 5: [PUSH 2, PUSH 3, ADD, HALT] halts with a single
	// data-stack value of 5.
	m := run(t, []isa.Instruction{
		{Op: isa.Push, Operand: 2},
		{Op: isa.Push, Operand: 3},
		{Op: isa.Add},
		{Op: isa.Halt},
	})
	if m.State() != vm.Halt {
		t.Fatalf("expected Halt, got %s", m.State())
	}
	if got := m.DataStack(); len(got) != 1 || got[0] != 5 {
		t.Fatalf("expected data stack [5], got %v", got)
	}
}

func TestLtSwapCjmpScenario(t *testing.T) {
	// spec scenario 6: [PUSH 3, PUSH 2, LT, PUSH 8*9, SWAP, CJMP, PUSH 0,
	// HALT, PUSH 1, HALT] halts with a single data-stack value of 1.
	m := run(t, []isa.Instruction{
		{Op: isa.Push, Operand: 3},
		{Op: isa.Push, Operand: 2},
		{Op: isa.Lt},
		{Op: isa.Push, Operand: 8 * isa.InstructionSize},
		{Op: isa.Swap},
		{Op: isa.Cjmp},
		{Op: isa.Push, Operand: 0},
		{Op: isa.Halt},
		{Op: isa.Push, Operand: 1},
		{Op: isa.Halt},
	})
	if m.State() != vm.Halt {
		t.Fatalf("expected Halt, got %s", m.State())
	}
	if got := m.DataStack(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected data stack [1], got %v", got)
	}
}

func TestDropOnEmptyStackUnderflows(t *testing.T) {
	m := run(t, []isa.Instruction{
		{Op: isa.Drop},
	})
	if m.State() != vm.StackUnderflow {
		t.Fatalf("expected StackUnderflow, got %s", m.State())
	}
}

func TestHaltLeavesStateHalt(t *testing.T) {
	m := run(t, []isa.Instruction{
		{Op: isa.Push, Operand: 7},
		{Op: isa.Halt},
	})
	if m.State() != vm.Halt {
		t.Fatalf("expected Halt, got %s", m.State())
	}
}

func TestCjmpWithZeroConditionFallsThrough(t *testing.T) {
	m := run(t, []isa.Instruction{
		{Op: isa.Push, Operand: 0}, // dest, unused since condition is false
		{Op: isa.Push, Operand: 0}, // condition
		{Op: isa.Cjmp},
		{Op: isa.Push, Operand: 99},
		{Op: isa.Halt},
	})
	if m.State() != vm.Halt {
		t.Fatalf("expected Halt, got %s", m.State())
	}
	if got := m.DataStack(); len(got) != 1 || got[0] != 99 {
		t.Fatalf("expected fallthrough to push 99, got %v", got)
	}
}

func TestInvalidOpcodeFaults(t *testing.T) {
	image := []byte{200, 0, 0, 0, 0, 0, 0, 0, 0}
	m := vm.New(image, 1)
	m.Run()
	if m.State() != vm.InvalidInstruction {
		t.Fatalf("expected InvalidInstruction, got %s", m.State())
	}
}

func TestRotMatchesOriginalFixture(t *testing.T) {
	// original source's ROT test fixture: push(1), push(2), push(3), then
	// ROT yields (top-down) 1, 3, 2.
	m := run(t, []isa.Instruction{
		{Op: isa.Push, Operand: 1},
		{Op: isa.Push, Operand: 2},
		{Op: isa.Push, Operand: 3},
		{Op: isa.Rot},
		{Op: isa.Halt},
	})
	got := m.DataStack()
	if len(got) != 3 || got[2] != 1 || got[1] != 3 || got[0] != 2 {
		t.Fatalf("expected bottom-up [2,3,1], got %v", got)
	}
}

func TestTuckMatchesOriginalFixture(t *testing.T) {
	// original source's TUCK test fixture: push(7), push(10), push(20),
	// then TUCK yields (top-down) 20, 10, 20, 7.
	m := run(t, []isa.Instruction{
		{Op: isa.Push, Operand: 7},
		{Op: isa.Push, Operand: 10},
		{Op: isa.Push, Operand: 20},
		{Op: isa.Tuck},
		{Op: isa.Halt},
	})
	got := m.DataStack()
	if len(got) != 4 || got[0] != 7 || got[1] != 20 || got[2] != 10 || got[3] != 20 {
		t.Fatalf("expected bottom-up [7,20,10,20], got %v", got)
	}
}

func TestStoreAndLoadRoundTripThroughGlobals(t *testing.T) {
	m := run(t, []isa.Instruction{
		{Op: isa.Push, Operand: 42},
		{Op: isa.Store, Operand: 5},
		{Op: isa.Load, Operand: 5},
		{Op: isa.Halt},
	})
	if got := m.DataStack(); len(got) != 1 || got[0] != 42 {
		t.Fatalf("expected data stack [42], got %v", got)
	}
}

func TestLambdaCallRoundTrip(t *testing.T) {
	// Mirrors gen.genLambda's own layout for (lambda (x) x) applied to 7:
	// PUSH <end>, JMP, STORE 0, LOAD 0, RET, PUSH <entry>, <args+call>.
	instrs := []isa.Instruction{
		{Op: isa.Push, Operand: 5 * isa.InstructionSize}, // 0: end addr (after RET)
		{Op: isa.Jmp},                                    // 9
		{Op: isa.Store, Operand: 0},                       // 18: entry
		{Op: isa.Load, Operand: 0},                        // 27
		{Op: isa.Ret},                                     // 36
		{Op: isa.Push, Operand: 7},                        // 45: arg
		{Op: isa.Push, Operand: 2 * isa.InstructionSize},  // 54: entry addr
		{Op: isa.Call},                                    // 63
		{Op: isa.Halt},                                    // 72
	}
	m := run(t, instrs)
	if m.State() != vm.Halt {
		t.Fatalf("expected Halt, got %s", m.State())
	}
	if got := m.DataStack(); len(got) != 1 || got[0] != 7 {
		t.Fatalf("expected data stack [7], got %v", got)
	}
}

func TestWaitSuspendsWithoutAdvancing(t *testing.T) {
	image := vm.NewImage([]isa.Instruction{
		{Op: isa.Wait},
		{Op: isa.Push, Operand: 1},
		{Op: isa.Halt},
	}, nil)
	m := vm.New(image, 3)

	m.Run()
	if m.State() != vm.Okay {
		t.Fatalf("expected Okay after a WAIT-only run, got %s", m.State())
	}
	if len(m.DataStack()) != 0 {
		t.Fatalf("expected no data pushed yet, got %v", m.DataStack())
	}

	m.Run()
	if m.State() != vm.Halt {
		t.Fatalf("expected Halt after resuming past WAIT, got %s", m.State())
	}
	if got := m.DataStack(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected data stack [1], got %v", got)
	}
}
