package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
)

var OutFilePerm = os.FileMode(0o755)

var (
	ProgramFlag = &cli.PathFlag{
		Name:      "program",
		Usage:     "path of the bytecode program JSON",
		TakesFile: true,
		Required:  true,
	}
	MethodFlag = &cli.StringFlag{
		Name:  "method",
		Usage: "entry to invoke, may be omitted for programs with a single entry",
	}
	InputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of the witness JSON: arguments and contract storage",
		TakesFile: true,
		Required:  true,
	}
	OutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path to write the output JSON to, '-' for stdout",
		TakesFile: true,
		Value:     "-",
	}
	WitnessFlag = &cli.PathFlag{
		Name:      "witness",
		Usage:     "path to write the full variable assignment to",
		TakesFile: true,
	}
	CasesFlag = &cli.PathFlag{
		Name:      "cases",
		Usage:     "path of the test cases JSON",
		TakesFile: true,
		Required:  true,
	}
	ParallelFlag = &cli.IntFlag{
		Name:  "parallel",
		Usage: "number of test cases run concurrently",
		Value: 4,
	}
	FilterFlag = &cli.StringFlag{
		Name:  "filter",
		Usage: "only run the test cases whose name contains this string",
	}
	MaxCallDepthFlag = &cli.IntFlag{
		Name:  "max-call-depth",
		Usage: "maximum depth of nested calls",
		Value: 1024,
	}
	LogLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "lowest log level to output: trace, debug, info, warn, error or crit",
		Value: "info",
	}
	PProfCPUFlag = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "enable pprof cpu profiling",
	}
)

var commonFlags = []cli.Flag{
	ProgramFlag,
	MethodFlag,
	MaxCallDepthFlag,
	LogLevelFlag,
	PProfCPUFlag,
}
