package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrStatementsFailed is returned by Report.Err when at least one statement
// failed.
var ErrStatementsFailed = errors.New("statements failed")

// Outcome records what happened to one statement.
type Outcome struct {
	Position      int
	Total         int
	SQL           string
	Err           error
	AlreadyExists bool
	Duration      time.Duration
}

// Succeeded reports whether the statement executed without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Report is the structured result of one run. Outcomes appear in execution
// order and only for statements that were attempted.
type Report struct {
	RunID    string
	Source   string
	Total    int
	Started  time.Time
	Finished time.Time
	Halted   bool
	Outcomes []Outcome
}

// Attempted returns the number of statements that were executed.
func (r Report) Attempted() int {
	return len(r.Outcomes)
}

// Failed returns the number of attempted statements that returned an error.
func (r Report) Failed() int {
	var n int
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}

// Succeeded returns the number of attempted statements that succeeded.
func (r Report) Succeeded() int {
	return r.Attempted() - r.Failed()
}

// FailedOutcomes returns the outcomes of the statements that failed.
func (r Report) FailedOutcomes() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Err returns nil when every attempted statement succeeded.
func (r Report) Err() error {
	if n := r.Failed(); n > 0 {
		return fmt.Errorf("%d of %d: %w", n, r.Attempted(), ErrStatementsFailed)
	}
	return nil
}

type outcomeJSON struct {
	Position      int     `json:"position"`
	SQL           string  `json:"sql"`
	Status        string  `json:"status"`
	Error         string  `json:"error,omitempty"`
	AlreadyExists bool    `json:"already_exists,omitempty"`
	DurationMS    float64 `json:"duration_ms"`
}

type reportJSON struct {
	RunID     string        `json:"run_id"`
	Source    string        `json:"source"`
	Total     int           `json:"total"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Halted    bool          `json:"halted"`
	Started   time.Time     `json:"started"`
	Finished  time.Time     `json:"finished"`
	Outcomes  []outcomeJSON `json:"outcomes"`
}

// MarshalJSON flattens errors to strings so the report can be consumed by
// other tools.
func (r Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		RunID:     r.RunID,
		Source:    r.Source,
		Total:     r.Total,
		Attempted: r.Attempted(),
		Succeeded: r.Succeeded(),
		Failed:    r.Failed(),
		Halted:    r.Halted,
		Started:   r.Started,
		Finished:  r.Finished,
		Outcomes:  make([]outcomeJSON, 0, len(r.Outcomes)),
	}

	for _, o := range r.Outcomes {
		oj := outcomeJSON{
			Position:      o.Position,
			SQL:           o.SQL,
			Status:        "ok",
			AlreadyExists: o.AlreadyExists,
			DurationMS:    float64(o.Duration.Microseconds()) / 1000,
		}
		if o.Err != nil {
			oj.Status = "failed"
			oj.Error = o.Err.Error()
		}
		out.Outcomes = append(out.Outcomes, oj)
	}

	return json.Marshal(out)
}

// WriteFile stores the report as indented JSON at path.
func (r Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
