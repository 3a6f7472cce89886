package session

import "context"

// Handler processes one Request within the scope of a Session and returns
// its result. It is the terminal shape every Middleware wraps.
type Handler func(ctx context.Context, sess *Session, req *Request) (any, error)

// Middleware wraps a Handler, replacing the Python original's
// decorator-style middleware classes with an explicit `handle(ctx, next)`
// value.
type Middleware func(next Handler) Handler

// Chain composes middlewares outermost-first: Chain{Debug, Auth, Tracking}
// runs Debug, then Auth, then Tracking, then the final Handler.
type Chain []Middleware

// Then builds the composed Handler, applying middlewares from the last
// to the first so that Chain[0] ends up outermost.
func (c Chain) Then(final Handler) Handler {
	h := final
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](h)
	}
	return h
}
