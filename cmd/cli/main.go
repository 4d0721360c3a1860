// tracediff - Execution Trace Comparison Tool
//
// tracediff compares an emulator's execution trace against a reference trace
// such as nestest.log and reports every line whose compared fields differ.
package main

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/oklog/run"

	"github.com/ccollicutt/tracediff/internal/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	code := 0
	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	g.Add(func() error {
		code = cli.Execute(ctx)
		return nil
	}, func(error) {
		cancel()
	})

	err := g.Run()

	var sig run.SignalError
	if errors.As(err, &sig) {
		code = cli.ExitInterrupted
	}

	cancel()
	os.Exit(code)
}
