package types

import (
	"context"
	"time"
)

// Logger defines the structured logging interface used throughout the platform.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// EmailProvider abstracts the external email-sending API. The rate limiter
// paces calls to Send; everything above it treats the provider as an opaque
// asynchronous operation.
type EmailProvider interface {
	// Send transmits a single email and returns the provider's message id.
	Send(ctx context.Context, input SendInput) (string, error)
}

// AuthOracle answers whitelist and admin membership questions. Backed by the
// user table in Postgres; the identity provider itself is external.
type AuthOracle interface {
	IsEmailWhitelisted(ctx context.Context, email string) (bool, error)
	IsEmailAdmin(ctx context.Context, email string) (bool, error)
}

// AuditLogger records insert-only admin audit events. Logging failures are
// reported to the caller but must never abort the audited operation.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
}
