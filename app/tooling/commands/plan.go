package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jrazmi/sqlrunner/core/migration"
)

// Plan reads and splits the configured script without connecting anywhere.
func Plan(cfg Config) (migration.Script, error) {
	if err := cfg.Validate(false); err != nil {
		return migration.Script{}, err
	}

	splitter, err := migration.NewSplitter(cfg.Splitter)
	if err != nil {
		return migration.Script{}, err
	}

	return migration.ReadScript(cfg.File, splitter)
}

// printPlan writes the numbered execution plan.
func printPlan(w io.Writer, script migration.Script) {
	fmt.Fprintf(w, "%s: %d statement(s)\n", script.Source, script.Len())
	for _, stmt := range script.Statements {
		fmt.Fprintf(w, "\n-- [%d/%d]\n%s;\n", stmt.Position, script.Len(), strings.TrimSpace(stmt.SQL))
	}
}
