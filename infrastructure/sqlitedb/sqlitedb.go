// Package sqlitedb opens exclusively owned SQLite and libSQL sessions.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/jrazmi/sqlrunner/core/migration"
)

// database/sql driver names registered by the imports above.
const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
)

type options struct {
	connectTimeout time.Duration
}

// Option configures Connect.
type Option func(*options)

// WithConnectTimeout bounds opening and pinging the connection.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = timeout
	}
}

// Session is a single pinned connection.
type Session struct {
	db   *sql.DB
	conn *sql.Conn
}

// Connect opens databaseURL and pins one connection from it. libsql:// URLs
// go to the libSQL client; everything else is treated as a SQLite path
// (sqlite://path, file:path, path.db or :memory:).
func Connect(ctx context.Context, databaseURL string, opts ...Option) (*Session, error) {
	o := &options{connectTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	driver, dsn := DataSource(databaseURL)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	db.SetMaxOpenConns(1)

	connectCtx := ctx
	if o.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, o.connectTimeout)
		defer cancel()
	}

	conn, err := db.Conn(connectCtx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := conn.PingContext(connectCtx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Session{db: db, conn: conn}, nil
}

// DataSource maps a connection string to a driver name and DSN.
func DataSource(databaseURL string) (driver, dsn string) {
	lower := strings.ToLower(databaseURL)
	switch {
	case strings.HasPrefix(lower, "libsql://"):
		return DriverLibSQL, databaseURL
	case strings.HasPrefix(lower, "sqlite://"):
		return DriverSQLite, databaseURL[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		return DriverSQLite, databaseURL[len("sqlite:"):]
	default:
		return DriverSQLite, databaseURL
	}
}

// Exec runs one statement.
func (s *Session) Exec(ctx context.Context, query string) error {
	if _, err := s.conn.ExecContext(ctx, query); err != nil {
		return HandleError(err)
	}
	return nil
}

// Close releases the pinned connection and its pool.
func (s *Session) Close(ctx context.Context) error {
	connErr := s.conn.Close()
	dbErr := s.db.Close()
	if connErr != nil {
		return fmt.Errorf("closing connection: %w", connErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing database: %w", dbErr)
	}
	return nil
}

// HandleError wraps "already exists" style engine errors with
// migration.ErrObjectExists. SQLite only reports these in the message text.
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name") {
		return fmt.Errorf("%w: %w", migration.ErrObjectExists, err)
	}

	return err
}

var _ migration.Session = (*Session)(nil)
