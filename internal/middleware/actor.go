package middleware

import (
	"context"
	"strings"
	"unicode/utf8"

	"connectrpc.com/connect"
)

// ActorHeader carries the member or client that issued a request. It is
// recorded on log entries for audit only; it is not authentication.
const ActorHeader = "Settleup-Actor"

const maxActorLen = 128

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ActorKey is the context key for the request's actor.
const ActorKey contextKey = "actor"

// GetActor extracts the actor from the context.
// Returns empty string if not found.
func GetActor(ctx context.Context) string {
	actor, _ := ctx.Value(ActorKey).(string)
	return actor
}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ActorInterceptor copies the Settleup-Actor header into the request context.
func ActorInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if actor := strings.TrimSpace(req.Header().Get(ActorHeader)); actor != "" {
				actor = truncate(actor, maxActorLen)
				ctx = WithActor(ctx, actor)
			}
			return next(ctx, req)
		}
	}
}
