package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Scope names the owner of per-user client state. It is a stable digest of
// the bearer token, so state is never shared between tokens and the token
// itself is never used as a key.
func Scope(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(token)).String()
}

func scopedKey(scope, key string) string {
	return scope + "/" + key
}

// shared runs fn once per key across concurrent callers. The flight does not
// inherit any one caller's cancellation; each caller stops waiting when its
// own ctx is done and the others keep the result.
func shared(ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (interface{}, error) {
		return fn(flightCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
