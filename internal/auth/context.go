package auth

import "context"

// User is the authenticated caller.
type User struct {
	ID       string
	Username string
}

type contextKey string

const userContextKey contextKey = "user"

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func FromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok
}
