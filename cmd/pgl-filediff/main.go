package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/paulschiretz/pgl-filediff/cmd"
	"github.com/paulschiretz/pgl-filediff/pkg/buildinfo"
	"github.com/paulschiretz/pgl-filediff/pkg/flagparse"
	"github.com/paulschiretz/pgl-filediff/pkg/hints"
	"github.com/paulschiretz/pgl-filediff/pkg/plog"
)

// Exit codes. exitIncomplete signals a sync that ran but left changes unapplied.
const (
	exitOK         = 0
	exitError      = 1
	exitIncomplete = 2
)

// run parses the command line and dispatches to the selected command.
func run(ctx context.Context, args []string) error {
	command, flagMap, err := flagparse.Parse(args)
	if err != nil {
		return err
	}

	switch command {
	case flagparse.None:
		return nil
	case flagparse.Version:
		return cmd.RunVersion()
	}

	plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "command", command, "pid", os.Getpid())
	switch command {
	case flagparse.Diff:
		return cmd.RunDiff(ctx, flagMap)
	case flagparse.Sync:
		return cmd.RunSync(ctx, flagMap)
	case flagparse.Cache:
		return cmd.RunCache(flagMap)
	case flagparse.Init:
		return cmd.RunInit(ctx, flagMap)
	default:
		return fmt.Errorf("internal error: unknown command %s", command)
	}
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case hints.IsHint(err):
		plog.Info(err.Error())
		return exitOK
	case errors.Is(err, cmd.ErrIncomplete):
		return exitIncomplete
	}
	plog.Error(buildinfo.Name+" exited with error", "error", err)
	return exitError
}

func main() {
	// Cancel the context on the first Ctrl+C so running workers can stop
	// and caches are still saved.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:])
	stop()
	os.Exit(exitCode(err))
}
