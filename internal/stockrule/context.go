package stockrule

import "context"

type runIDContextKey struct{}

// WithRunID stores the run identifier in context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey{}, runID)
}

// RunIDFromContext extracts the run identifier from context.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDContextKey{}).(string)
	return id
}
