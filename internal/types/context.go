package types

import "context"

// Context Keys
type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	actorEmailKey contextKey = "actor_email"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithActorEmail stores the authenticated caller's email in the context.
// Populated by the auth middleware from the identity provider's claims.
func WithActorEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, actorEmailKey, email)
}

// GetActorEmail retrieves the authenticated caller's email from the context.
func GetActorEmail(ctx context.Context) string {
	email, _ := ctx.Value(actorEmailKey).(string)
	return email
}
