package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/zvm/zvm/bytecode"
	"github.com/ethereum-optimism/zvm/zvm/vm"
)

type TestCase struct {
	Name   string          `json:"name"`
	Entry  string          `json:"entry,omitempty"`
	Input  vm.Witness      `json:"input"`
	Expect json.RawMessage `json:"expect,omitempty"`
	// ShouldPanic expects the run to fail.
	ShouldPanic bool `json:"should_panic,omitempty"`
	Ignore      bool `json:"ignore,omitempty"`
}

// check runs a case and returns why it failed, nil if it passed.
func (tc *TestCase) check(program *bytecode.Program, cfg *vm.Config) error {
	out, err := vm.Run(program, tc.Entry, &tc.Input, cfg)
	switch {
	case tc.ShouldPanic && err == nil:
		return fmt.Errorf("expected failure, got %s", out.Result)
	case tc.ShouldPanic:
		return nil
	case err != nil:
		return err
	}
	equal, err := jsonEqual(tc.Expect, out.Result)
	if err != nil {
		return fmt.Errorf("invalid expectation: %w", err)
	}
	if !equal {
		return fmt.Errorf("expected %s, got %s", tc.Expect, out.Result)
	}
	return nil
}

func jsonEqual(a, b json.RawMessage) (bool, error) {
	if len(bytes.TrimSpace(a)) == 0 {
		a = json.RawMessage("null")
	}
	var x, y any
	if err := json.Unmarshal(a, &x); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, &y); err != nil {
		return false, err
	}
	return reflect.DeepEqual(x, y), nil
}

func Test(ctx *cli.Context) error {
	cfg, l, err := config(ctx)
	if err != nil {
		return err
	}
	program, err := loadProgram(ctx)
	if err != nil {
		return err
	}
	cases, err := jsonutil.LoadJSON[[]TestCase](ctx.Path(CasesFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load test cases: %w", err)
	}

	filter := ctx.String(FilterFlag.Name)
	skipped := make([]bool, len(*cases))
	for i, tc := range *cases {
		skipped[i] = tc.Ignore || !strings.Contains(tc.Name, filter)
	}

	results := make([]error, len(*cases))
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx.Context)
	g.SetLimit(max(ctx.Int(ParallelFlag.Name), 1))
	for i := range *cases {
		if skipped[i] {
			continue
		}
		i, tc := i, &(*cases)[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if results[i] = tc.check(program, cfg); results[i] != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := ctx.App.Writer
	ran := 0
	for i, tc := range *cases {
		switch {
		case skipped[i]:
			if tc.Ignore {
				_, _ = fmt.Fprintf(w, "[%s] IGNORED\n", tc.Name)
			}
			continue
		case results[i] != nil:
			_, _ = fmt.Fprintf(w, "[%s] FAILED: %v\n", tc.Name, results[i])
		default:
			_, _ = fmt.Fprintf(w, "[%s] PASSED\n", tc.Name)
		}
		ran++
	}
	passed := ran - int(failed.Load())
	l.Info("tests finished", "program", program.Name, "passed", passed, "failed", failed.Load(), "skipped", len(*cases)-ran)
	if failed.Load() > 0 {
		return fmt.Errorf("%d of %d test cases failed", failed.Load(), ran)
	}
	return nil
}

var TestCommand = &cli.Command{
	Name:        "test",
	Usage:       "Run the test cases of a program",
	Description: "Run every test case of a program concurrently and compare the results with the expected values. Fails if any case fails.",
	Action:      Test,
	Flags: append([]cli.Flag{
		CasesFlag,
		ParallelFlag,
		FilterFlag,
	}, commonFlags...),
}
