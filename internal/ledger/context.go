package ledger

import (
	"context"

	"github.com/google/uuid"
)

type correlationKey struct{}

// WithCorrelationID attaches a caller-supplied correlation id for the audit
// trail of events written by the operation.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// correlationID returns the attached id, or a fresh one so every event row
// is traceable even when the caller did not supply one.
func correlationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok && v != "" {
		return v
	}
	return uuid.New().String()
}
