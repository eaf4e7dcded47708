package auth

import (
	"context"
	"errors"
)

// UserContext carries the authenticated user's identity through a request
type UserContext struct {
	UserID string
	Email  string
	Plan   string
}

type contextKey string

const userContextKey contextKey = "auth.user"

// ErrNoUserInContext is returned when no authenticated user is present
var ErrNoUserInContext = errors.New("no authenticated user in context")

// SetUserInContext stores the user context on a request context
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext retrieves the authenticated user from a context
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, ErrNoUserInContext
	}
	return user, nil
}
