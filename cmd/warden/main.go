// Package main provides the warden command: the guarded action API server and its
// offline helpers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
)

func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "warden",
		Usage:                 "Plan, approve, run and roll back administrative actions on a workspace",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewServeCommand(),
			NewValidatePolicyCommand(),
			NewParseCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		stop()
		os.Exit(1)
	}
}
