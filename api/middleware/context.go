package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{ name string }

var userIDKey = &contextKey{name: "user_id"}

// UserIDFromContext returns the caller attached by OptionalAuth. ok is false for
// anonymous requests.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDKey, userID)
}

func callerScope(ctx context.Context) string {
	if id, ok := UserIDFromContext(ctx); ok {
		return id.String()
	}
	return "anonymous"
}
