// Package identity resolves the acting user for data-layer operations.
// Writes that must be attributed to a user (creates, feedback) consult a
// Provider instead of trusting caller-supplied ids.
package identity

import (
	"context"
	"errors"
)

// ErrNoUser indicates no authenticated user is available.
var ErrNoUser = errors.New("no authenticated user")

// Provider yields the id of the user on whose behalf an operation runs.
type Provider interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// Static always returns the configured user id. Used by single-user
// deployments and tests.
type Static struct {
	UserID string
}

// CurrentUserID implements Provider.
func (s Static) CurrentUserID(context.Context) (string, error) {
	if s.UserID == "" {
		return "", ErrNoUser
	}
	return s.UserID, nil
}

type ctxKey struct{}

// WithUser returns a context carrying userID for Contextual providers.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom extracts the user id stored by WithUser, if any.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Contextual reads the user id from the request context, where the HTTP
// layer's authentication middleware deposits it.
type Contextual struct{}

// CurrentUserID implements Provider.
func (Contextual) CurrentUserID(ctx context.Context) (string, error) {
	if id, ok := UserFrom(ctx); ok {
		return id, nil
	}
	return "", ErrNoUser
}
