package tool

import (
	"context"
	"errors"
	"strings"
)

var ErrMissingIdentity = errors.New("caller identity missing from context")

type identityKey struct{}

// WithIdentity attaches the conversation's user id. Tools read it from here and never
// accept it as a model argument.
func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityKey{}, strings.TrimSpace(userID))
}

func IdentityFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey{}).(string)
	return id, ok && id != ""
}

func requireIdentity(ctx context.Context) (string, error) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return "", ErrMissingIdentity
	}
	return id, nil
}
