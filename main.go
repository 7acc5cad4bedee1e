// Package main provides a short usage pointer for rv5sim.
// rv5sim is a cycle-accurate 5-stage in-order RISC-V RV32I/RV64I pipeline
// simulator built on the sarchlab stack.
//
// For the full CLI, use: go run ./cmd/rv5sim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("rv5sim - RISC-V RV32I/RV64I pipeline simulator")
	fmt.Println("")
	fmt.Println("Usage: rv5sim [options] <program.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -timing      Enable cycle-accurate timing report")
	fmt.Println("  -config      Path to a pipeline configuration JSON file")
	fmt.Println("  -max-cycles  Stop after this many cycles (0 = unlimited)")
	fmt.Println("  -v           Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/rv5sim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/rv5sim' instead.")
	}
}
