package cmd

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/vm"
)

func config(ctx *cli.Context) (*vm.Config, log.Logger, error) {
	lvl, err := parseLevel(ctx.String(LogLevelFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	l := Logger(ctx.App.ErrWriter, lvl)
	cfg := vm.DefaultConfig()
	cfg.MaxCallDepth = ctx.Int(MaxCallDepthFlag.Name)
	cfg.Logger = l
	return cfg, l, nil
}

func loadProgram(ctx *cli.Context) (*bytecode.Program, error) {
	path := ctx.Path(ProgramFlag.Name)
	program, err := jsonutil.LoadJSON[bytecode.Program](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load program %s: %w", path, err)
	}
	if program.Name == "" {
		program.Name = path
	}
	return program, nil
}

func Run(ctx *cli.Context) error {
	if ctx.Bool(PProfCPUFlag.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}
	cfg, l, err := config(ctx)
	if err != nil {
		return err
	}
	program, err := loadProgram(ctx)
	if err != nil {
		return err
	}
	w, err := jsonutil.LoadJSON[vm.Witness](ctx.Path(InputFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}

	start := time.Now()
	out, err := vm.Run(program, ctx.String(MethodFlag.Name), w, cfg)
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", program.Name, err)
	}
	l.Info("execution complete",
		"program", program.Name,
		"constraints", out.Stats.Constraints,
		"variables", out.Stats.Variables,
		"transfers", len(out.Transfers),
		"duration", time.Since(start),
	)

	if path := ctx.Path(WitnessFlag.Name); path != "" {
		witness, err := NewWitnessOutput(out.System)
		if err != nil {
			return err
		}
		if err := jsonutil.WriteJSON(path, witness, OutFilePerm); err != nil {
			return fmt.Errorf("failed to write witness: %w", err)
		}
	}
	if err := jsonutil.WriteJSON(ctx.Path(OutputFlag.Name), out, OutFilePerm); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run an entry with a witness",
	Description: "Run an entry of a program with its arguments and contract storage, building a satisfied constraint system. Writes the result, the new storage and the transfers.",
	Action:      Run,
	Flags: append([]cli.Flag{
		InputFlag,
		OutputFlag,
		WitnessFlag,
	}, commonFlags...),
}
