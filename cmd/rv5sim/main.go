// Package main provides the entry point for rv5sim.
// rv5sim is a cycle-accurate 5-stage in-order RISC-V RV32I/RV64I pipeline
// simulator.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/rv5sim/config"
	"github.com/sarchlab/rv5sim/emu"
	"github.com/sarchlab/rv5sim/loader"
	"github.com/sarchlab/rv5sim/timing/core"
)

// spStackPointerReg is x2, the RISC-V calling convention's stack pointer.
const spStackPointerReg = 2

var (
	timing     = flag.Bool("timing", false, "Enable cycle-accurate timing simulation")
	configPath = flag.String("config", "", "Path to a pipeline configuration JSON file")
	maxCycles  = flag.Uint64("max-cycles", 0, "Stop after this many cycles (0 = unlimited)")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: rv5sim [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%x\n", prog.EntryPoint)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
		fmt.Printf("RV64I: %v\n", prog.Is64Bit)
	}

	cfg, err := loadConfig(prog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	exitCode := run(prog, cfg)
	os.Exit(int(exitCode))
}

// loadConfig resolves the pipeline configuration: an explicit -config file
// if given, otherwise the default geometry sized to the program's ISA
// width.
func loadConfig(prog *loader.Program) (*config.Config, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}
	if prog.Is64Bit {
		return config.Default64(), nil
	}
	return config.Default(), nil
}

// run loads prog into a fresh memory image, drives the pipeline to
// completion (or to -max-cycles), and prints a timing report when -timing
// is set.
func run(prog *loader.Program, cfg *config.Config) int64 {
	memory := emu.NewMemory()
	for _, seg := range prog.Segments {
		for i, b := range seg.Data {
			memory.Write8(seg.VirtAddr+uint64(i), b)
		}
		for i := uint64(len(seg.Data)); i < seg.MemSize; i++ {
			memory.Write8(seg.VirtAddr+i, 0)
		}
	}

	regFile := &emu.RegFile{}
	regFile.Write(spStackPointerReg, prog.InitialSP)

	c := core.NewCore(regFile, memory, cfg)
	c.SetPC(prog.EntryPoint)

	var stillRunning bool
	if *maxCycles > 0 {
		stillRunning = c.RunCycles(*maxCycles)
	} else {
		c.Run()
		stillRunning = false
	}

	exitCode := c.ExitCode()
	stats := c.Stats()

	if *timing {
		printReport(stats, stillRunning, exitCode)
	} else if *verbose {
		fmt.Printf("Exit code: %d\n", exitCode)
		fmt.Printf("Instructions executed: %d\n", stats.Instructions)
	}

	return exitCode
}

// printReport prints a cycle/CPI breakdown for -timing mode.
func printReport(stats core.Stats, stillRunning bool, exitCode int64) {
	cpi := 0.0
	if stats.Instructions > 0 {
		cpi = float64(stats.Cycles) / float64(stats.Instructions)
	}

	fmt.Printf("\n")
	if stillRunning {
		fmt.Printf("Stopped at cycle limit (program still running)\n")
	} else {
		fmt.Printf("Exit code: %d\n", exitCode)
	}
	fmt.Printf("Total Instructions: %d\n", stats.Instructions)
	fmt.Printf("Total Cycles:       %d\n", stats.Cycles)
	fmt.Printf("CPI:                %.2f\n", cpi)
	fmt.Printf("\n")
	fmt.Printf("Pipeline Events:\n")
	fmt.Printf("  Stalls:  %d\n", stats.Stalls)
	fmt.Printf("  Flushes: %d\n", stats.Flushes)
}
