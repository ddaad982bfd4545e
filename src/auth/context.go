package auth

import (
	"context"
)

type contextKey string

const OperatorKey contextKey = "operator"

// WithOperator tags the request context with the operator who issued it.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, OperatorKey, operator)
}

func GetOperatorFromContext(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(OperatorKey).(string)
	return operator, ok
}
