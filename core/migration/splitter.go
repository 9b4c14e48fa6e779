package migration

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Splitter names accepted by NewSplitter.
const (
	SplitterSimple   = "simple"
	SplitterPostgres = "postgres"
)

// Splitter breaks a script into statement texts.
type Splitter interface {
	Split(text string) ([]string, error)
}

// NewSplitter returns the splitter registered under name. An empty name
// selects the simple splitter.
func NewSplitter(name string) (Splitter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SplitterSimple:
		return SimpleSplitter{}, nil
	case SplitterPostgres, "postgresql", "pg":
		return PostgresSplitter{}, nil
	default:
		return nil, fmt.Errorf("unknown splitter %q (want %q or %q)", name, SplitterSimple, SplitterPostgres)
	}
}

// SimpleSplitter cuts on every ';'. It does not understand string literals,
// quoted identifiers or comments, so a ';' inside any of them splits the
// statement. Use PostgresSplitter for scripts that contain such text.
type SimpleSplitter struct{}

func (SimpleSplitter) Split(text string) ([]string, error) {
	return strings.Split(text, ";"), nil
}

// PostgresSplitter uses the Postgres lexer, so literals, dollar quoting and
// comments are kept intact.
type PostgresSplitter struct{}

func (PostgresSplitter) Split(text string) ([]string, error) {
	stmts, err := pg_query.SplitWithScanner(text, true)
	if err != nil {
		return nil, fmt.Errorf("scan sql: %w", err)
	}
	return stmts, nil
}
