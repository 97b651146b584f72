// splisp compiles splisp source into bytecode and runs it in a stack
// machine.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"splisp/core"
	"splisp/gen"
	"splisp/internal/repl"
	"splisp/isa"
	"splisp/scope"
	"splisp/sexp"
	"splisp/vm"
)

const version = "0.1.0"

// printUsage displays custom usage information.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `splisp v%s

USAGE:
    %s [OPTIONS]

DESCRIPTION:
    splisp compiles splisp source into bytecode and runs it in a stack
    machine. Without any flags, it starts an interactive REPL.

OPTIONS:
    -f, --file <path>       Compile and run a splisp source file
    -e, --eval <code>       Compile and run a splisp expression
    -d, --debug             Print the disassembled bytecode before running
    -v, --version           Show version information
    -h, --help              Show this help message

EXAMPLES:
    # Start the interactive REPL
    %s

    # Run a script file
    %s -f program.splisp

    # Evaluate an expression, printing the top of the data stack
    %s -e "(+ 1 2)"

    # Run with the disassembly printed first
    %s -f program.splisp -d

`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	flag.Usage = printUsage

	fileFlag := flag.String("file", "", "Compile and run a splisp source file")
	evalFlag := flag.String("eval", "", "Compile and run a splisp expression")
	debugFlag := flag.Bool("debug", false, "Print the disassembled bytecode before running")
	versionFlag := flag.Bool("version", false, "Show version information")

	flag.StringVar(fileFlag, "f", "", "Compile and run a splisp source file")
	flag.StringVar(evalFlag, "e", "", "Compile and run a splisp expression")
	flag.BoolVar(debugFlag, "d", false, "Print the disassembled bytecode before running")
	flag.BoolVar(versionFlag, "v", false, "Show version information")

	flag.Parse()

	if *versionFlag {
		fmt.Printf("splisp v%s\n", version)
		return
	}

	if *fileFlag != "" {
		executeFile(*fileFlag, *debugFlag)
		return
	}

	if *evalFlag != "" {
		executeSource(*evalFlag, *debugFlag)
		return
	}

	username := "unknown"
	if usr, err := user.Current(); err == nil {
		username = usr.Username
	}
	repl.Start(username, repl.Options{Debug: *debugFlag})
}

// executeFile reads and runs a splisp source file.
func executeFile(filename string, debug bool) {
	cleaned := filepath.Clean(filename)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		fmt.Printf("Error getting absolute path: %s\n", err)
		os.Exit(1)
	}

	//nolint:gosec // the path comes from a flag the operator supplies
	content, err := os.ReadFile(absolute)
	if err != nil {
		fmt.Printf("Error reading file: %s\n", err)
		os.Exit(1)
	}

	executeSource(string(content), debug)
}

// executeSource compiles source through the full pipeline and runs it,
// printing the disassembly first when debug is set and the top of the
// data stack once the machine halts.
func executeSource(source string, debug bool) {
	instrs, err := compile(source)
	if err != nil {
		fmt.Printf("Compilation error: %s\n", err)
		os.Exit(1)
	}

	instrs = append(instrs, isa.Instruction{Op: isa.Halt})

	if debug {
		fmt.Print(isa.String(isa.EncodeProgram(instrs), len(instrs)))
	}

	image := vm.NewImage(instrs, nil)
	m := vm.New(image, len(instrs))
	if state := m.Run(); state != vm.Halt {
		fmt.Printf("VM error: %s\n", state)
		os.Exit(1)
	}

	if top := m.DataStack(); len(top) > 0 {
		fmt.Println(top[len(top)-1])
	}
}

// compile runs source through the reader, scoper, lowerer, and generator.
func compile(source string) ([]isa.Instruction, error) {
	nodes, err := sexp.Read(source)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if _, err := scope.Resolve(nodes); err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	prog, err := core.Lower(nodes)
	if err != nil {
		return nil, fmt.Errorf("lower: %w", err)
	}
	instrs, err := gen.Generate(prog)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return instrs, nil
}
