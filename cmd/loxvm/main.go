// Command loxvm is the host for the lox bytecode virtual machine:
// an interactive REPL, a file runner, and compile/disassemble
// subcommands for looking at the bytecode a script compiles to.
//
// A thin argv dispatch in main, one function per subcommand, errors
// written straight to stderr and a non-zero os.Exit on failure (1 for
// usage and I/O errors, 65 for compile errors, 70 for runtime errors)
// rather than propagated as Go errors (this is a CLI entry point, not a
// library).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/kristofer/loxvm/internal/config"
	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/debug"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/vm"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "loxvm.yaml", "path to a YAML tuning file")
	stressGC := flag.Bool("stress-gc", false, "collect on every allocation")
	traceExec := flag.Bool("trace", false, "disassemble each instruction as it runs")
	traceGC := flag.Bool("trace-gc", false, "log every collection cycle")
	flag.Usage = printUsage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "stress-gc":
			cfg.StressGC = *stressGC
		case "trace":
			cfg.TraceExecution = *traceExec
		case "trace-gc":
			cfg.TraceGC = *traceGC
		}
	})

	args := flag.Args()
	if len(args) == 0 {
		runREPL(cfg)
		return
	}

	switch args[0] {
	case "version":
		fmt.Printf("loxvm version %s\n", version)
	case "help":
		printUsage()
	case "repl":
		runREPL(cfg)
	case "run":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(cfg, args[1])
	case "compile", "disassemble", "disasm":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			os.Exit(1)
		}
		disassembleFile(args[1])
	default:
		runFile(cfg, args[0])
	}
}

func printUsage() {
	fmt.Println("loxvm - a bytecode interpreter for lox")
	fmt.Println("\nUsage:")
	fmt.Println("  loxvm                    Start interactive REPL")
	fmt.Println("  loxvm [file]             Run a .lox file")
	fmt.Println("  loxvm run [file]         Run a .lox file")
	fmt.Println("  loxvm compile [file]     Compile and disassemble a .lox file")
	fmt.Println("  loxvm disassemble [file] Same as compile")
	fmt.Println("  loxvm repl               Start interactive REPL")
	fmt.Println("  loxvm version            Show version")
	fmt.Println("  loxvm help               Show this help")
	fmt.Println("\nFlags:")
	flag.PrintDefaults()
}

func newVM(cfg config.Config) *vm.VM {
	v := vm.New()
	v.TraceExecution = cfg.TraceExecution
	heap := v.Heap()
	heap.StressGC = cfg.StressGC
	heap.SetGCTuning(cfg.InitialGCThreshold, cfg.GCGrowthFactor)
	if cfg.TraceGC {
		heap.TraceGC = os.Stderr
	}
	return v
}

func runFile(cfg config.Config, filename string) {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	v := newVM(cfg)
	result, err := v.Interpret(string(data))
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
	}
	switch result {
	case vm.InterpretCompileError:
		os.Exit(65)
	case vm.InterpretRuntimeError:
		os.Exit(70)
	}
}

// disassembleFile compiles a script without running it and prints its
// bytecode.
func disassembleFile(filename string) {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	heap := object.NewHeap()
	fn, ok := compiler.Compile(string(data), heap, os.Stderr)
	if !ok {
		os.Exit(65)
	}
	debug.Disassemble(os.Stdout, fn.Chunk, scriptName(fn))
}

func scriptName(fn *object.Function) string {
	if fn.Name != nil {
		return fn.Name.Chars
	}
	return "<script>"
}

// runREPL reads lines from stdin, compiling and running each one against
// a persistent VM so variables and functions defined in one input remain
// visible to the next. The prompt is suppressed when stdin is not a
// terminal (piped input).
func runREPL(cfg config.Config) {
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	v := newVM(cfg)
	if interactive {
		fmt.Printf("loxvm %s [%s] instance %s\n", version, "repl", v.ID)
		fmt.Println("Type 'exit' to quit.")
	}
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if interactive {
			fmt.Print("lox> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			break
		}
		evalREPL(v, line)
	}
}

func evalREPL(v *vm.VM, input string) {
	result, err := v.Interpret(input)
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
	}
	_ = result
}
