package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/jrazmi/sqlrunner/core/migration"
)

var (
	okColor     = color.New(color.FgGreen)
	failColor   = color.New(color.FgRed)
	existsColor = color.New(color.FgYellow)
)

// printSummary writes a human readable digest of report. Log lines carry the
// same information in structured form.
func printSummary(w io.Writer, report migration.Report) {
	for _, o := range report.Outcomes {
		label := fmt.Sprintf("[%d/%d]", o.Position, o.Total)
		switch {
		case o.Succeeded():
			_, _ = okColor.Fprintf(w, "✓ %s %s\n", label, firstLine(o.SQL))
		case o.AlreadyExists:
			_, _ = existsColor.Fprintf(w, "• %s %s\n    %v\n", label, firstLine(o.SQL), o.Err)
		default:
			_, _ = failColor.Fprintf(w, "✗ %s %s\n    %v\n", label, firstLine(o.SQL), o.Err)
		}
	}

	fmt.Fprintf(w, "\n%d statement(s): %d applied, %d failed", report.Total, report.Succeeded(), report.Failed())
	if skipped := report.Total - report.Attempted(); skipped > 0 {
		fmt.Fprintf(w, ", %d not attempted", skipped)
	}
	fmt.Fprintf(w, " in %s\n", report.Duration().Round(time.Millisecond))

	if report.Halted {
		_, _ = failColor.Fprintln(w, "halted at first failure")
	}
}

func firstLine(sql string) string {
	line, _, cut := strings.Cut(strings.TrimSpace(sql), "\n")
	if cut {
		return line + " …"
	}
	return line
}
