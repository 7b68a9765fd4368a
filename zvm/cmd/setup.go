package cmd

import (
	"fmt"

	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/zvm/zvm/vm"
)

func Setup(ctx *cli.Context) error {
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
	circuit, err := vm.Setup(program, ctx.String(MethodFlag.Name), cfg)
	if err != nil {
		return fmt.Errorf("failed to build circuit of %s: %w", program.Name, err)
	}
	l.Info("circuit built",
		"program", program.Name,
		"entry", circuit.Entry,
		"constraints", circuit.Stats.Constraints,
		"digest", circuit.Digest,
	)
	if err := jsonutil.WriteJSON(ctx.Path(OutputFlag.Name), circuit, OutFilePerm); err != nil {
		return fmt.Errorf("failed to write circuit: %w", err)
	}
	return nil
}

var SetupCommand = &cli.Command{
	Name:        "setup",
	Usage:       "Build the circuit of an entry without witness",
	Description: "Build the constraint system of an entry with zero storage and no arguments. Writes its size and shape digest, which every run of the entry reproduces.",
	Action:      Setup,
	Flags: append([]cli.Flag{
		OutputFlag,
	}, commonFlags...),
}
