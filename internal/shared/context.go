package shared

import "context"

type operatorContextKey struct{}

// ContextWithOperator stores the operator reference in context. The reference
// is supplied by the authentication layer and is opaque to the ledger core.
func ContextWithOperator(ctx context.Context, operatorRef string) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, operatorRef)
}

// OperatorFromContext extracts the operator reference from context.
func OperatorFromContext(ctx context.Context) string {
	ref, _ := ctx.Value(operatorContextKey{}).(string)
	return ref
}
