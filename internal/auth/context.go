package auth

import "context"

type adminContextKey struct{}

// WithAdmin attaches the authenticated admin to the context.
func WithAdmin(ctx context.Context, admin *Admin) context.Context {
	if admin == nil {
		return ctx
	}
	return context.WithValue(ctx, adminContextKey{}, admin)
}

// AdminFromContext retrieves the authenticated admin from the context.
func AdminFromContext(ctx context.Context) (*Admin, bool) {
	admin, ok := ctx.Value(adminContextKey{}).(*Admin)
	return admin, ok
}
