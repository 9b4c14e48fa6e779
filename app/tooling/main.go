package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/jrazmi/sqlrunner/app/tooling/commands"
	"github.com/jrazmi/sqlrunner/core/migration"
	"github.com/jrazmi/sqlrunner/sdk/environment"
	"github.com/jrazmi/sqlrunner/sdk/logger"
	"github.com/jrazmi/sqlrunner/sdk/telemetry"
)

var build = "develop"
var appName = "SQLRUNNER"

func run(ctx context.Context, log *logger.Logger) error {
	log.DebugContext(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// Cancel the run on SIGINT/SIGTERM; the runner stops before the next
	// statement and the connection is still released.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := commands.Deps{
		AppName: appName,
		Build:   build,
		Log:     log,
		Out:     os.Stdout,
	}

	return commands.Execute(ctx, deps, os.Args[1:])
}

func main() {
	if err := environment.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	log, err := logger.NewFromEnv(appName)
	if err != nil {
		fmt.Println("oh no we couldn't even get logging going.")
		os.Exit(1)
	}
	ctx := telemetry.SetRunID(context.Background())

	os.Exit(finish(ctx, log, run(ctx, log)))
}

// finish logs the outcome of a command and returns the process exit code.
func finish(ctx context.Context, log *logger.Logger, err error) int {
	switch {
	case err == nil:
	case errors.Is(err, migration.ErrStatementsFailed):
		log.WarnContext(ctx, "completed with failures", "err", err)
	default:
		log.ErrorContext(ctx, "run", "err", err)
	}

	return commands.ExitCode(err)
}
