package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/zvm/zvm/cmd"
)

var Version = "v0.1.0"

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "zvm"
	app.Version = Version
	app.Usage = "Zero-knowledge bytecode VM"
	app.Description = "Executes bytecode programs and contract methods while building their R1CS circuit"
	app.Commands = []*cli.Command{
		cmd.RunCommand,
		cmd.SetupCommand,
		cmd.TestCommand,
	}
	return app
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		_, _ = fmt.Fprintln(os.Stderr, "\r\nInterrupted, stopping...")
	}()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		if errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintln(os.Stderr, "command interrupted")
			os.Exit(130)
		}
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
