package auth

import (
	"context"

	"dayboard/internal/model"
)

type ctxKey string

const (
	userContextKey    ctxKey = "dayboard.auth.user"
	sessionContextKey ctxKey = "dayboard.auth.session"
)

// WithUser returns ctx carrying u as the authenticated principal.
func WithUser(ctx context.Context, u model.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

func withSession(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

func UserFromContext(ctx context.Context) (model.User, bool) {
	u, ok := ctx.Value(userContextKey).(model.User)
	return u, ok
}

func SessionFromContext(ctx context.Context) (model.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(model.Session)
	return s, ok
}
