package migration

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned when a script file is not valid UTF-8.
var ErrInvalidEncoding = errors.New("script is not valid UTF-8")

// Statement is one executable unit of a script.
type Statement struct {
	Position int    `json:"position"` // 1-based, execution order
	SQL      string `json:"sql"`
}

// Script is the ordered execution plan produced from a source document.
type Script struct {
	Source     string      `json:"source"`
	Statements []Statement `json:"statements"`
}

// Len returns the number of statements in the plan.
func (s Script) Len() int {
	return len(s.Statements)
}

// ParseScript splits text into a plan using splitter. Entries that are empty
// after trimming are dropped before positions are assigned.
func ParseScript(source, text string, splitter Splitter) (Script, error) {
	if splitter == nil {
		splitter = SimpleSplitter{}
	}

	parts, err := splitter.Split(text)
	if err != nil {
		return Script{}, fmt.Errorf("split %s: %w", source, err)
	}

	script := Script{Source: source}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		script.Statements = append(script.Statements, Statement{
			Position: len(script.Statements) + 1,
			SQL:      part,
		})
	}

	return script, nil
}

// ReadScript reads the whole file at path and parses it.
func ReadScript(path string, splitter Splitter) (Script, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}

	if !utf8.Valid(content) {
		return Script{}, fmt.Errorf("read script %s: %w", path, ErrInvalidEncoding)
	}

	return ParseScript(path, string(content), splitter)
}
