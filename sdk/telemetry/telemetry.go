// Package telemetry provides support for correlating the log lines of one run.
package telemetry

import (
	"context"

	"github.com/google/uuid"
)

type telKey int

const (
	runIDKey telKey = iota + 1
)

const noRunID = "--------NORUN--------"

// SetRunID stores a fresh run identifier in ctx.
func SetRunID(ctx context.Context) context.Context {
	id, err := uuid.NewRandom()
	if err != nil {
		return context.WithValue(ctx, runIDKey, noRunID)
	}
	return context.WithValue(ctx, runIDKey, id.String())
}

// GetRunID returns the identifier stored by SetRunID.
func GetRunID(ctx context.Context) string {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok {
		return noRunID
	}
	return v
}
