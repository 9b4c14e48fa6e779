// Package commands holds the sqlrunner command tree.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jrazmi/sqlrunner/sdk/logger"
)

// Deps carries what the command tree needs from main.
type Deps struct {
	AppName string
	Build   string
	Log     *logger.Logger
	Out     io.Writer
	Open    Opener
}

type flagValues struct {
	configPath string
	cfg        Config
}

// NewRootCommand assembles the sqlrunner command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	var fv flagValues

	root := &cobra.Command{
		Use:           "sqlrunner",
		Short:         "Apply SQL scripts statement by statement.",
		Long:          "sqlrunner splits a SQL file on its statement terminators and applies the statements in order over a single database connection, continuing past failures unless --halt-on-error is set.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(deps.Out)

	pf := root.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", "", "path to a TOML config file")
	pf.StringVar(&fv.cfg.Splitter, "splitter", "", `statement splitter: "simple" or "postgres"`)

	root.AddCommand(
		newApplyCommand(deps, &fv),
		newPlanCommand(deps, &fv),
		newVersionCommand(deps),
	)

	return root
}

// resolveConfig layers flags that were explicitly set over file + env config.
func resolveConfig(cmd *cobra.Command, deps Deps, fv *flagValues, args []string) (Config, error) {
	cfg, err := LoadConfig(deps.AppName, fv.configPath)
	if err != nil {
		return Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("splitter") {
		cfg.Splitter = fv.cfg.Splitter
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = fv.cfg.DatabaseURL
	}
	if flags.Changed("halt-on-error") {
		cfg.HaltOnError = fv.cfg.HaltOnError
	}
	if flags.Changed("statement-timeout") {
		cfg.StatementTimeout = fv.cfg.StatementTimeout
	}
	if flags.Changed("run-timeout") {
		cfg.RunTimeout = fv.cfg.RunTimeout
	}
	if flags.Changed("connect-timeout") {
		cfg.ConnectTimeout = fv.cfg.ConnectTimeout
	}
	if flags.Changed("log-queries") {
		cfg.LogQueries = fv.cfg.LogQueries
	}
	if flags.Changed("report") {
		cfg.ReportPath = fv.cfg.ReportPath
	}
	if len(args) > 0 {
		cfg.File = args[0]
	}

	return cfg, nil
}

func newApplyCommand(deps Deps, fv *flagValues) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply every statement of a SQL file to the database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, deps, fv, args)
			if err != nil {
				return err
			}

			report, err := Apply(cmd.Context(), deps.Log, cfg, deps.Open)
			if report.Total > 0 {
				printSummary(cmd.OutOrStdout(), report)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&fv.cfg.DatabaseURL, "database-url", "", "connection string (postgres://, sqlite://, libsql://)")
	f.BoolVar(&fv.cfg.HaltOnError, "halt-on-error", false, "stop at the first failing statement")
	f.DurationVar(&fv.cfg.StatementTimeout, "statement-timeout", 0, "per-statement timeout (0 = none)")
	f.DurationVar(&fv.cfg.RunTimeout, "run-timeout", 0, "timeout for the whole run (0 = none)")
	f.DurationVar(&fv.cfg.ConnectTimeout, "connect-timeout", 0, "connection timeout (default 10s)")
	f.BoolVar(&fv.cfg.LogQueries, "log-queries", false, "trace every query at debug level (postgres only)")
	f.StringVar(&fv.cfg.ReportPath, "report", "", "write a JSON report of every statement outcome to this path")

	return cmd
}

func newPlanCommand(deps Deps, fv *flagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [file]",
		Short: "Print the statements a run would execute, without connecting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, deps, fv, args)
			if err != nil {
				return err
			}

			script, err := Plan(cfg)
			if err != nil {
				return err
			}

			printPlan(cmd.OutOrStdout(), script)
			return nil
		},
	}
}

func newVersionCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sqlrunner build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), deps.Build)
		},
	}
}

// Execute runs the command tree with ctx and returns the command error.
func Execute(ctx context.Context, deps Deps, args []string) error {
	root := NewRootCommand(deps)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
