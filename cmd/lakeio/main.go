package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gear6io/lakeio/cli"
	"github.com/gear6io/lakeio/pkg/errors"
	"github.com/pterm/pterm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteWithContext(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, pterm.Error.Sprint(errors.FormatError(err)))
		stop()
		os.Exit(1)
	}
}
