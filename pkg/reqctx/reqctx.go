// Package reqctx carries per-request tenant and actor identity through
// context.Context. The core performs no authentication itself: an
// authorization layer in front of it is expected to populate these
// values, and every core operation reads the tenant from here.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	businessIDKey ctxKey = iota
	actorKey
	requestIDKey
)

// WithBusinessID returns a context carrying the tenant id.
func WithBusinessID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, businessIDKey, id)
}

// BusinessID extracts the tenant id; ok=false when absent.
func BusinessID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(businessIDKey).(uuid.UUID)
	return id, ok
}

// WithActor returns a context carrying the acting user identity
// (opaque string: user id, "system", etc).
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Actor extracts the acting identity, or "" when absent.
func Actor(ctx context.Context) string {
	a, _ := ctx.Value(actorKey).(string)
	return a
}

// WithRequestID returns a context carrying the request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request correlation id, or "" when absent.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
