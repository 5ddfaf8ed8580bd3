// Package context carries request-scoped values between the HTTP middleware,
// the route handlers, and the logs they emit. Only values that cross package
// or goroutine boundaries live here; anything derivable from the request
// itself stays on the request.
package context

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	userIDKey
	userEmailKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key contextKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}

// SetRequestID tags the context with the request correlation id.
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// SetUserID stores the authenticated caller's id.
func SetUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	return stringValue(ctx, userIDKey)
}

// SetUserEmail stores the authenticated caller's email. Context retrieval
// scopes search results to documents this email can access.
func SetUserEmail(ctx context.Context, email string) context.Context {
	return withString(ctx, userEmailKey, email)
}

func GetUserEmail(ctx context.Context) string {
	return stringValue(ctx, userEmailKey)
}

// Fields returns the values present on the context shaped for structured log
// entries. Absent values are omitted so log lines stay compact.
func Fields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if v := GetRequestID(ctx); v != "" {
		fields["request_id"] = v
	}
	if v := GetUserID(ctx); v != "" {
		fields["user_id"] = v
	}
	if v := GetUserEmail(ctx); v != "" {
		fields["user_email"] = v
	}
	return fields
}
