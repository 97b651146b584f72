package isa_test

import (
	"testing"

	"splisp/isa"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []isa.Instruction{
		{Op: isa.Push, Operand: 42},
		{Op: isa.Add, Operand: 0},
		{Op: isa.Jmp, Operand: 1 << 40},
		{Op: isa.Halt, Operand: 0},
		{Op: isa.Store, Operand: 7},
		{Op: isa.Load, Operand: 7},
	}
	for _, want := range cases {
		enc := isa.Encode(want)
		if len(enc) != isa.InstructionSize {
			t.Fatalf("encoded instruction has wrong size: got %d, want %d", len(enc), isa.InstructionSize)
		}
		got, err := isa.Decode(enc[:])
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %#v, want %#v", got, want)
		}
	}
}

func TestEncodeProgramIsConcatenationOfInstructions(t *testing.T) {
	program := []isa.Instruction{
		{Op: isa.Push, Operand: 1},
		{Op: isa.Push, Operand: 2},
		{Op: isa.Add},
	}
	mem := isa.EncodeProgram(program)
	if len(mem) != len(program)*isa.InstructionSize {
		t.Fatalf("expected %d bytes, got %d", len(program)*isa.InstructionSize, len(mem))
	}
	for i, want := range program {
		got, err := isa.Decode(mem[i*isa.InstructionSize:])
		if err != nil {
			t.Fatalf("Decode instruction %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("instruction %d mismatch: got %#v, want %#v", i, got, want)
		}
	}
}

func TestDecodeRejectsShortInput(t *testing.T) {
	_, err := isa.Decode([]byte{byte(isa.Push), 0, 0, 0})
	if err == nil {
		t.Fatal("expected an error decoding a truncated instruction")
	}
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	buf := make([]byte, isa.InstructionSize)
	buf[0] = 200
	_, err := isa.Decode(buf)
	if err == nil {
		t.Fatal("expected an error decoding an unknown opcode")
	}
}

func TestLookupEveryDefinedOpcodeHasAMnemonic(t *testing.T) {
	for op := isa.Add; op <= isa.Load; op++ {
		spec, err := isa.Lookup(byte(op))
		if err != nil {
			t.Fatalf("Lookup(%d): %v", op, err)
		}
		if spec.Mnemonic == "" {
			t.Fatalf("opcode %d has no mnemonic", op)
		}
	}
}

func TestStringDisassemblesAProgram(t *testing.T) {
	program := []isa.Instruction{
		{Op: isa.Push, Operand: 42},
		{Op: isa.Halt},
	}
	mem := isa.EncodeProgram(program)
	out := isa.String(mem, len(program))
	if out == "" {
		t.Fatal("expected non-empty disassembly")
	}
}
