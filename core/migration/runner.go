// Package migration applies SQL scripts statement by statement against a
// single database session.
//
// Statements run strictly in file order, one at a time. By default a failing
// statement is logged and the run moves on to the next one, so re-running a
// script made of idempotent DDL converges on the same schema. WithHaltOnError
// switches to stopping at the first failure.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrazmi/sqlrunner/sdk/logger"
)

// ErrObjectExists marks an execution error caused by the target object
// already existing. Backends wrap engine errors with it.
var ErrObjectExists = errors.New("object already exists")

// Executor runs one SQL statement.
type Executor interface {
	Exec(ctx context.Context, sql string) error
}

// Session is an exclusively owned connection that must be closed exactly once.
type Session interface {
	Executor
	Close(ctx context.Context) error
}

type options struct {
	haltOnError      bool
	statementTimeout time.Duration
	runID            string
}

// Option configures a Runner.
type Option func(*options)

// WithHaltOnError stops the run at the first failing statement.
func WithHaltOnError(halt bool) Option {
	return func(o *options) {
		o.haltOnError = halt
	}
}

// WithStatementTimeout bounds each statement. Zero means no limit.
func WithStatementTimeout(d time.Duration) Option {
	return func(o *options) {
		o.statementTimeout = d
	}
}

// WithRunID tags the report and log lines with id.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

// Runner applies scripts through an Executor.
type Runner struct {
	exec Executor
	log  *logger.Logger
	opts options
}

// New constructs a Runner. A nil log discards output.
func New(exec Executor, log *logger.Logger, opts ...Option) *Runner {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if log == nil {
		log = logger.NewDiscard()
	}
	if o.runID != "" {
		log = log.With("run_id", o.runID)
	}

	return &Runner{
		exec: exec,
		log:  log,
		opts: o,
	}
}

// Run executes every statement of script in order and returns the report.
// Statement failures are recorded in the report, not returned. The returned
// error is non-nil only when ctx ends before all statements were attempted;
// the partial report is still returned.
func (r *Runner) Run(ctx context.Context, script Script) (Report, error) {
	total := script.Len()
	report := Report{
		RunID:    r.opts.runID,
		Source:   script.Source,
		Total:    total,
		Started:  time.Now(),
		Outcomes: make([]Outcome, 0, total),
	}

	mode := "continue"
	if r.opts.haltOnError {
		mode = "halt"
	}
	r.log.InfoContext(ctx, "migration started",
		"source", script.Source,
		"statements", total,
		"on_error", mode,
	)

	for _, stmt := range script.Statements {
		if err := ctx.Err(); err != nil {
			report.Finished = time.Now()
			r.log.ErrorContext(ctx, "migration interrupted",
				"attempted", report.Attempted(),
				"statements", total,
				"error", err,
			)
			return report, fmt.Errorf("run interrupted before statement %d: %w", stmt.Position, err)
		}

		outcome := r.apply(ctx, stmt, total)
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.Err != nil && r.opts.haltOnError {
			report.Halted = true
			break
		}
	}

	report.Finished = time.Now()

	r.log.InfoContext(ctx, "migration finished",
		"source", script.Source,
		"attempted", report.Attempted(),
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"halted", report.Halted,
		"duration", report.Duration().String(),
	)

	return report, nil
}

// apply executes a single statement and logs the result.
func (r *Runner) apply(ctx context.Context, stmt Statement, total int) Outcome {
	execCtx := ctx
	if r.opts.statementTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.opts.statementTimeout)
		defer cancel()
	}

	start := time.Now()
	err := r.exec.Exec(execCtx, stmt.SQL)

	outcome := Outcome{
		Position: stmt.Position,
		Total:    total,
		SQL:      stmt.SQL,
		Err:      err,
		Duration: time.Since(start),
	}

	if err == nil {
		r.log.InfoContext(ctx, "statement applied",
			"position", stmt.Position,
			"total", total,
			"status", "ok",
			"duration", outcome.Duration.String(),
		)
		return outcome
	}

	outcome.AlreadyExists = errors.Is(err, ErrObjectExists)
	if outcome.AlreadyExists {
		r.log.WarnContext(ctx, "statement failed",
			"position", stmt.Position,
			"total", total,
			"status", "already_exists",
			"error", err.Error(),
		)
		return outcome
	}

	r.log.ErrorContext(ctx, "statement failed",
		"position", stmt.Position,
		"total", total,
		"status", "failed",
		"error", err.Error(),
	)
	return outcome
}
