package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mcpm-sh/mcpm/pkg/logging"
)

// DebugMiddleware logs method, timing, and capability name for every
// request when enabled; it is a no-op otherwise.
func DebugMiddleware(enabled bool) Middleware {
	return func(next Handler) Handler {
		if !enabled {
			return next
		}
		return func(ctx context.Context, sess *Session, req *Request) (any, error) {
			start := time.Now()
			result, err := next(ctx, sess, req)
			logging.Debug("session:debug", "%s %s (server=%s) took %s, err=%v",
				req.Kind, req.Name, req.ServerName, time.Since(start), err)
			return result, err
		}
	}
}

// ErrAuthFailed is returned when the bearer token does not match the
// configured api_key.
var ErrAuthFailed = fmt.Errorf("invalid or missing bearer token")

// AuthMiddleware enforces the shared bearer token in HTTP mode only; in
// stdio mode auth is always bypassed regardless of configuration
//. Headers and transport are read per-request
// from the RequestContext the router attaches to ctx, since a single Chain
// is built once at construction time but headers vary per call.
func AuthMiddleware(enabled bool, apiKey string) Middleware {
	return func(next Handler) Handler {
		if !enabled {
			return next
		}
		return func(ctx context.Context, sess *Session, req *Request) (any, error) {
			rc, _ := RequestContextFromContext(ctx)
			if rc == nil || rc.Transport != "http" {
				return next(ctx, sess, req)
			}
			if !bearerMatches(rc.Headers, apiKey) {
				return nil, ErrAuthFailed
			}
			return next(ctx, sess, req)
		}
	}
}

// bearerMatches extracts the bearer token from an Authorization header
// (case-insensitive "Bearer" prefix, or a bare token) and compares it to
// apiKey.
func bearerMatches(headers map[string]string, apiKey string) bool {
	raw := headerLookup(headers, "authorization")
	if raw == "" {
		return false
	}
	token := raw
	if idx := strings.IndexByte(raw, ' '); idx >= 0 {
		scheme := raw[:idx]
		if strings.EqualFold(scheme, "bearer") {
			token = strings.TrimSpace(raw[idx+1:])
		}
	}
	return token != "" && token == apiKey
}
