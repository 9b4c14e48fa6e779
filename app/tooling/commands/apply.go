package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrazmi/sqlrunner/core/migration"
	"github.com/jrazmi/sqlrunner/infrastructure/databases"
	"github.com/jrazmi/sqlrunner/sdk/logger"
	"github.com/jrazmi/sqlrunner/sdk/telemetry"
)

// Exit codes.
const (
	ExitOK               = 0
	ExitFatal            = 1
	ExitStatementsFailed = 2
)

// Opener establishes the session a run executes on.
type Opener func(ctx context.Context, databaseURL string, opts databases.Options) (migration.Session, error)

// ExitCode maps the result of a command to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, migration.ErrStatementsFailed):
		return ExitStatementsFailed
	default:
		return ExitFatal
	}
}

// Apply validates cfg, reads and splits the script, opens one session and
// runs every statement through it. The session is closed on every path once
// it was opened. A completed run with failed statements returns the report
// together with an error wrapping migration.ErrStatementsFailed.
func Apply(ctx context.Context, log *logger.Logger, cfg Config, open Opener) (migration.Report, error) {
	if err := cfg.Validate(true); err != nil {
		return migration.Report{}, err
	}

	splitter, err := migration.NewSplitter(cfg.Splitter)
	if err != nil {
		return migration.Report{}, err
	}

	script, err := migration.ReadScript(cfg.File, splitter)
	if err != nil {
		return migration.Report{}, err
	}

	if open == nil {
		open = databases.Open
	}

	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	runID := telemetry.GetRunID(ctx)
	runLog := log.With("run_id", runID)

	session, err := open(ctx, cfg.DatabaseURL, databases.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		LogQueries:     cfg.LogQueries,
		Logger:         runLog.Logger,
	})
	if err != nil {
		return migration.Report{}, fmt.Errorf("open database: %w", err)
	}
	runLog.InfoContext(ctx, "init", "service", "database", "statements", script.Len())
	defer func() {
		runLog.InfoContext(ctx, "shutdown", "status", "closing database connection")
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			runLog.ErrorContext(ctx, "shutdown", "status", "closing database connection", "error", err)
		}
	}()

	runner := migration.New(session, log,
		migration.WithHaltOnError(cfg.HaltOnError),
		migration.WithStatementTimeout(cfg.StatementTimeout),
		migration.WithRunID(runID),
	)

	report, runErr := runner.Run(ctx, script)

	if cfg.ReportPath != "" {
		if err := report.WriteFile(cfg.ReportPath); err != nil {
			runLog.ErrorContext(ctx, "report", "path", cfg.ReportPath, "error", err)
		}
	}

	if runErr != nil {
		return report, runErr
	}

	return report, report.Err()
}
