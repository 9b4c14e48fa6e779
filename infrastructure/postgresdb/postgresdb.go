// Package postgresdb opens exclusively owned Postgres sessions for the
// migration runner.
package postgresdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgconn/ctxwatch"

	"github.com/jrazmi/sqlrunner/core/migration"
)

// PostgreSQL error codes
const (
	uniqueViolation   = "23505"
	undefinedTable    = "42P01"
	duplicateTable    = "42P07"
	duplicateColumn   = "42701"
	duplicateObject   = "42710"
	duplicateSchema   = "42P06"
	duplicateFunction = "42723"
)

// cancelGrace is how long a cancelled statement may take to return after the
// server-side cancel request before the socket deadline closes the session.
const cancelGrace = 5 * time.Second

// Set of error variables for statement failures.
var (
	ErrDBDuplicatedEntry = errors.New("duplicated entry")
	ErrUndefinedTable    = errors.New("undefined table")
)

// options holds the internal runtime configuration
type options struct {
	logger         *slog.Logger
	connectTimeout time.Duration
	logQueries     bool
}

// Option is a function that configures the session options
type Option func(*options)

// WithLogger sets a custom logger used by the query tracer
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConnectTimeout sets the connection timeout
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = timeout
	}
}

// WithLogQueries enables or disables query logging
func WithLogQueries(enable bool) Option {
	return func(o *options) {
		o.logQueries = enable
	}
}

// Session is a single Postgres connection owned by one run.
type Session struct {
	conn *pgx.Conn
}

// Connect opens one connection to databaseURL and pings it. No pool is
// created; the caller owns the session and must Close it.
func Connect(ctx context.Context, databaseURL string, opts ...Option) (*Session, error) {
	o := &options{
		connectTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	cfg, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if o.logQueries {
		cfg.Tracer = NewLoggingQueryTracer(o.logger)
	}
	// Scripts are plain DDL without bind parameters.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	// An expired statement context asks the server to cancel the statement
	// instead of closing the socket, so the session stays usable for the
	// statements that follow.
	cfg.BuildContextWatcherHandler = func(pgConn *pgconn.PgConn) ctxwatch.Handler {
		return &pgconn.CancelRequestContextWatcherHandler{
			Conn:          pgConn,
			DeadlineDelay: cancelGrace,
		}
	}

	connectCtx := ctx
	if o.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, o.connectTimeout)
		defer cancel()
	}

	conn, err := pgx.ConnectConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Session{conn: conn}
	if err := s.StatusCheck(connectCtx); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return s, nil
}

// Exec runs one statement. A statement cancelled because ctx ended reports
// the context error alongside the server's query_canceled error.
func (s *Session) Exec(ctx context.Context, sql string) error {
	if _, err := s.conn.Exec(ctx, sql); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("%w: %w", ctxErr, HandlePgError(err))
		}
		return HandlePgError(err)
	}
	return nil
}

// Close releases the connection.
func (s *Session) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// StatusCheck returns nil if it can successfully talk to the database
func (s *Session) StatusCheck(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second)
		defer cancel()
	}

	return s.conn.Ping(ctx)
}

// HandlePgError converts PostgreSQL errors to application errors. The
// original error stays in the chain so callers keep the server message.
func HandlePgError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case duplicateTable, duplicateColumn, duplicateObject, duplicateSchema, duplicateFunction:
			return fmt.Errorf("%w: %w", migration.ErrObjectExists, err)
		case uniqueViolation:
			return fmt.Errorf("%w: %w", ErrDBDuplicatedEntry, err)
		case undefinedTable:
			return fmt.Errorf("%w: %w", ErrUndefinedTable, err)
		}
	}

	return err
}

var _ migration.Session = (*Session)(nil)
