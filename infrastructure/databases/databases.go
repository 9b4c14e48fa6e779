// Package databases picks the backend for a connection string and opens a
// migration session on it.
package databases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jrazmi/sqlrunner/core/migration"
	"github.com/jrazmi/sqlrunner/infrastructure/postgresdb"
	"github.com/jrazmi/sqlrunner/infrastructure/sqlitedb"
)

// Kind identifies a backend.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
	KindLibSQL   Kind = "libsql"
)

// ErrUnsupportedURL is returned for connection strings no backend accepts.
var ErrUnsupportedURL = errors.New("unsupported database url")

// Detect returns the backend for databaseURL.
func Detect(databaseURL string) (Kind, error) {
	lower := strings.ToLower(strings.TrimSpace(databaseURL))

	switch {
	case lower == "":
		return "", fmt.Errorf("%w: empty", ErrUnsupportedURL)
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return KindPostgres, nil
	case strings.HasPrefix(lower, "libsql://"):
		return KindLibSQL, nil
	case strings.HasPrefix(lower, "sqlite:"), strings.HasPrefix(lower, "file:"), lower == ":memory:":
		return KindSQLite, nil
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return KindSQLite, nil
	case strings.Contains(lower, "://"):
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, lower[:strings.Index(lower, "://")])
	default:
		// libpq keyword/value form: "host=... dbname=..."
		if strings.Contains(lower, "=") {
			return KindPostgres, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnsupportedURL, databaseURL)
	}
}

// Options carries the backend-neutral connection settings.
type Options struct {
	ConnectTimeout time.Duration
	LogQueries     bool
	Logger         *slog.Logger
}

// Open connects to databaseURL with the detected backend.
func Open(ctx context.Context, databaseURL string, opts Options) (migration.Session, error) {
	kind, err := Detect(databaseURL)
	if err != nil {
		return nil, err
	}

	if kind == KindPostgres {
		s, err := postgresdb.Connect(ctx, databaseURL,
			postgresdb.WithConnectTimeout(opts.ConnectTimeout),
			postgresdb.WithLogQueries(opts.LogQueries),
			postgresdb.WithLogger(opts.Logger),
		)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	s, err := sqlitedb.Connect(ctx, databaseURL,
		sqlitedb.WithConnectTimeout(opts.ConnectTimeout),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
