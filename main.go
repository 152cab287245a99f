// Command vmips is the simulator driver: it loads a MIPS program image
// (32-bit MIPS ELF, or the flat binary format the external two-pass
// assembler emits) and runs it on the functional engine or on one of the
// timing engines.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/vmips-go/vmips/emu"
	"github.com/vmips-go/vmips/loader"
	"github.com/vmips-go/vmips/simlog"
	"github.com/vmips-go/vmips/timing/cache"
	"github.com/vmips-go/vmips/timing/core"
	"github.com/vmips-go/vmips/timing/latency"
	"github.com/vmips-go/vmips/timing/pipeline"
	"github.com/vmips-go/vmips/timing/tomasulo"
)

const usage = `Usage: vmips <command> [options] <program>

Commands:
  functional   run the program on the functional engine
  timing       run the program on a timing engine (in-order or --tomasulo)
  assemble     lower assembly source to a flat binary (external tool)
  run          assemble and run (external tool)
  interactive  start the REPL (external tool)

Run 'vmips <command> --help' for command options.
`

// Defaults shared by both run modes.
const (
	defaultMemorySize = 4 * 1024 * 1024
	defaultLoadBase   = 0x1000
	defaultDataBase   = 0x10000000
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "functional":
		os.Exit(runFunctional(os.Args[2:]))
	case "timing":
		os.Exit(runTiming(os.Args[2:]))
	case "assemble", "run", "interactive":
		fmt.Fprintf(os.Stderr,
			"vmips: %q is provided by the standalone assembler/REPL tool, not this driver\n",
			os.Args[1])
		os.Exit(1)
	case "--help", "-h", "help":
		fmt.Print(usage)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "vmips: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
}

func runFunctional(args []string) int {
	fs := flag.NewFlagSet("functional", flag.ExitOnError)
	memorySize := fs.Uint("memory-size", defaultMemorySize, "memory size in bytes")
	memoryConfigPath := fs.String("memory-config", "", "memory configuration JSON file")
	maxInstrs := fs.Uint64("max-instructions", 0, "instruction budget (0 = default)")
	outputPath := fs.String("output", "", "write program output to FILE instead of stdout")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error, silent")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "vmips functional: missing program path")
		return 1
	}

	log := simlog.New(os.Stderr, simlog.ParseLevel(*logLevel))
	prog, err := loadProgram(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmips: %v\n", err)
		return 1
	}

	stdout, cleanup, err := openOutput(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmips: %v\n", err)
		return 1
	}
	defer cleanup()

	memory, err := buildMemory(*memoryConfigPath, uint32(*memorySize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmips: %v\n", err)
		return 1
	}
	loader.LoadInto(memory, prog)

	opts := []emu.Option{emu.WithMemory(memory), emu.WithStdout(stdout)}
	if *maxInstrs > 0 {
		opts = append(opts, emu.WithMaxInstructions(*maxInstrs))
	}
	sim := emu.NewSimulator(opts...)
	sim.SetPC(prog.EntryPoint)

	log.Infof("running %s from entry 0x%08x", fs.Arg(0), prog.EntryPoint)
	result := sim.Run()

	log.Infof("instructions executed: %d", result.Instructions)
	if result.Exception != nil {
		fmt.Fprintf(os.Stderr, "vmips: %v\n", result.Exception)
		for _, f := range result.TopPCs {
			log.Debugf("hot PC 0x%08x fetched %d times", f.PC, f.Count)
		}
		return 1
	}
	return int(result.ExitCode)
}

func runTiming(args []string) int {
	fs := flag.NewFlagSet("timing", flag.ExitOnError)
	memorySize := fs.Uint("memory-size", defaultMemorySize, "memory size in bytes")
	memoryConfigPath := fs.String("memory-config", "", "memory configuration JSON file")
	maxCycles := fs.Uint64("max-cycles", 0, "cycle budget (0 = default)")
	outputPath := fs.String("output", "", "write program output to FILE instead of stdout")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error, silent")
	configPath := fs.String("config", "", "timing configuration JSON file")
	useTomasulo := fs.Bool("tomasulo", false, "use the out-of-order engine")
	useCaches := fs.Bool("caches", false, "model the L1/L2 cache hierarchy")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "vmips timing: missing program path")
		return 1
	}

	log := simlog.New(os.Stderr, simlog.ParseLevel(*logLevel))
	prog, err := loadProgram(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmips: %v\n", err)
		return 1
	}

	stdout, cleanup, err := openOutput(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmips: %v\n", err)
		return 1
	}
	defer cleanup()

	timingConfig := latency.DefaultTimingConfig()
	if *configPath != "" {
		timingConfig, err = latency.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vmips: %v\n", err)
			return 1
		}
	}
	table := latency.NewTableWithConfig(timingConfig)

	memory, err := buildMemory(*memoryConfigPath, uint32(*memorySize))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmips: %v\n", err)
		return 1
	}
	loader.LoadInto(memory, prog)
	regFile := emu.NewRegFile()
	fpFile := emu.NewFPRegFile()
	handler := emu.NewDefaultSyscallHandler(regFile, fpFile, memory, os.Stdin, stdout, os.Stderr)

	c := buildCore(regFile, fpFile, memory, handler, table, *useTomasulo, *useCaches, *maxCycles)
	c.SetPC(prog.EntryPoint)

	log.Infof("running %s from entry 0x%08x", fs.Arg(0), prog.EntryPoint)
	c.Run()

	if err := c.Fault(); err != nil {
		fmt.Fprintf(os.Stderr, "vmips: at PC 0x%08x: %v\n", c.PC(), err)
		return 1
	}

	printTimingReport(os.Stderr, c)
	return int(c.ExitCode())
}

func buildCore(regFile *emu.RegFile, fpFile *emu.FPRegFile, memory *emu.Memory,
	handler emu.SyscallHandler, table *latency.Table,
	useTomasulo, useCaches bool, maxCycles uint64) *core.Core {
	opts := []core.Option{core.WithMaxCycles(maxCycles)}

	var l2 *cache.Cache
	if useCaches {
		backing := cache.NewMemoryBacking(memory)
		l2 = cache.New(cache.DefaultL2Config(), backing, cache.WithWriteAllocate())
	}

	if useTomasulo {
		if useCaches {
			opts = append(opts,
				core.WithICache(cache.New(cache.DefaultL1IConfig(), cache.NewLevelBacking(l2))),
				core.WithOutOfOrder(
					tomasuloOptions(handler, table,
						cache.New(cache.DefaultL1DConfig(), cache.NewLevelBacking(l2)))...))
		} else {
			opts = append(opts, core.WithOutOfOrder(tomasuloOptions(handler, table, nil)...))
		}
		return core.NewCore(regFile, fpFile, memory, opts...)
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithSyscallHandler(handler),
		pipeline.WithLatencyTable(table),
	}
	if useCaches {
		pipeOpts = append(pipeOpts, pipeline.WithCaches(
			cache.New(cache.DefaultL1IConfig(), cache.NewLevelBacking(l2)),
			cache.New(cache.DefaultL1DConfig(), cache.NewLevelBacking(l2))))
	}
	opts = append(opts, core.WithPipelineOptions(pipeOpts...))
	return core.NewCore(regFile, fpFile, memory, opts...)
}

func tomasuloOptions(handler emu.SyscallHandler, table *latency.Table, dcache *cache.Cache) []tomasulo.Option {
	opts := []tomasulo.Option{
		tomasulo.WithSyscallHandler(handler),
		tomasulo.WithLatencyTable(table),
	}
	if dcache != nil {
		opts = append(opts, tomasulo.WithDCache(dcache))
	}
	return opts
}

func printTimingReport(w *os.File, c *core.Core) {
	if pipe := c.Pipeline(); pipe != nil {
		stats := pipe.Stats()
		fmt.Fprintf(w, "\ncycles:                %d\n", stats.CycleCount)
		fmt.Fprintf(w, "instructions:          %d\n", stats.InstructionCount)
		fmt.Fprintf(w, "CPI:                   %.2f\n", stats.CPI())
		fmt.Fprintf(w, "stalls:                %d (data %d, control %d, structural %d)\n",
			stats.StallCount, stats.DataStallCount, stats.ControlStallCount, stats.StructuralStallCount)
		fmt.Fprintf(w, "forwards used:         %d\n", stats.ForwardingUsed)
		fmt.Fprintf(w, "branch mispredictions: %d\n", stats.BranchMispredictions)
		fmt.Fprintf(w, "cache stall cycles:    %d\n", stats.CacheStallCycles)
		return
	}

	stats := c.Processor().Stats()
	fmt.Fprintf(w, "\ncycles:                %d\n", stats.Cycles)
	fmt.Fprintf(w, "issued:                %d\n", stats.InstructionsIssued)
	fmt.Fprintf(w, "executed:              %d\n", stats.InstructionsExecuted)
	fmt.Fprintf(w, "committed:             %d\n", stats.InstructionsCommitted)
	fmt.Fprintf(w, "IPC:                   %.2f\n", stats.IPC())
	fmt.Fprintf(w, "branch mispredictions: %d\n", stats.BranchMispredictions)
	fmt.Fprintf(w, "RS utilization:        %.1f%%\n", stats.RSUtilization()*100)
	fmt.Fprintf(w, "ROB utilization:       %.1f%%\n", stats.ROBUtilization()*100)
}

// buildMemory shapes the address space from a --memory-config file when
// one is given, falling back to a permissive memory of the requested
// size.
func buildMemory(configPath string, size uint32) (*emu.Memory, error) {
	if configPath == "" {
		return emu.NewMemory(size), nil
	}
	config, err := emu.LoadMemoryConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config.Build(), nil
}

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// loadProgram reads path as an ELF image when it carries the ELF magic,
// and as the flat assembler binary format otherwise.
func loadProgram(path string) (*loader.Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(raw, elfMagic) {
		return loader.LoadELF(path)
	}
	return loader.LoadBinary(bytes.NewReader(raw), defaultDataBase, defaultLoadBase, defaultLoadBase)
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
