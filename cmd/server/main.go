package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/chatrelay/internal/cli"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/trace"
)

const stopNotice = "Operation is stopped by user operation."

func main() {
	os.Exit(run(os.Args[1:]))
}

// run parses the command line, starts the relay and blocks until it stops.
// Startup failures map to a non-zero status; once the loop has run the
// status is zero whatever state it ended in.
func run(args []string) int {
	opts, err := cli.Parse(args)
	if err != nil {
		if errors.Is(err, cli.ErrHelp) {
			cli.Usage(os.Stdout)
		} else {
			cli.PrintError(os.Stderr, err)
		}
		return cli.ExitCode(err)
	}

	log := trace.New(os.Stderr, opts.TraceLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			fmt.Fprintln(os.Stderr, stopNotice)
			cancel()
		case <-ctx.Done():
		}
	}()

	srv, err := server.New(opts.Config, server.WithLogger(log))
	if err != nil {
		cli.PrintError(os.Stderr, err)
		return cli.ExitCode(err)
	}

	if err := srv.Start(ctx); err != nil {
		cli.PrintError(os.Stderr, err)
		return cli.ExitCode(err)
	}

	// Run logs its own fatal error; the exit status stays zero.
	_ = srv.Run(ctx)
	return cli.ExitOK
}
