// Package xcontext holds request-scoped values shared across middleware.
package xcontext

import "context"

type (
	requestIDKey          struct{}
	shutdownInProgressKey struct{}
)

// SetRequestID records the delivery id (the SNS message id when present).
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey{}).(string)
	return requestID, ok && requestID != ""
}

// SetShutdownInProgress marks requests turned away while the server drains.
func SetShutdownInProgress(ctx context.Context, inProgress bool) context.Context {
	return context.WithValue(ctx, shutdownInProgressKey{}, inProgress)
}

// IsShutdownInProgress reports whether the request arrived while draining.
func IsShutdownInProgress(ctx context.Context) bool {
	inProgress, _ := ctx.Value(shutdownInProgressKey{}).(bool)
	return inProgress
}
