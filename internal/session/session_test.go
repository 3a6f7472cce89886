package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct{ events []Event }

func (f *fakeSink) Record(ev Event) { f.events = append(f.events, ev) }

func TestClassifySource(t *testing.T) {
	cases := []struct {
		transport, ip string
		want          Source
	}{
		{"stdio", "", SourceLocalStdio},
		{"http", "127.0.0.1", SourceLocal},
		{"http", "::1", SourceLocal},
		{"http", "10.0.0.5", SourceLocalNetwork},
		{"http", "172.16.0.1", SourceLocalNetwork},
		{"http", "172.31.255.255", SourceLocalNetwork},
		{"http", "192.168.1.1", SourceLocalNetwork},
		{"http", "169.254.1.1", SourceLocalNetwork},
		{"http", "fd12:3456::1", SourceLocalNetwork},
		{"http", "8.8.8.8", SourcePublicNet},
		{"http", "unknown", SourceUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifySource(c.transport, c.ip), "transport=%s ip=%s", c.transport, c.ip)
	}
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	ip := ClientIP(map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "127.0.0.1:9999")
	assert.Equal(t, "203.0.113.7", ip)
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	ip := ClientIP(nil, "203.0.113.9:4444")
	assert.Equal(t, "203.0.113.9", ip)
}

func ctxWith(transport string, headers map[string]string) context.Context {
	return WithRequestContext(context.Background(), &RequestContext{Transport: transport, Headers: headers})
}

func TestAuthMiddleware_BypassedForStdio(t *testing.T) {
	called := false
	h := AuthMiddleware(true, "secret")(func(ctx context.Context, s *Session, r *Request) (any, error) {
		called = true
		return nil, nil
	})
	_, err := h(ctxWith("stdio", nil), &Session{}, &Request{})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestAuthMiddleware_RejectsMissingBearer(t *testing.T) {
	h := AuthMiddleware(true, "secret")(func(ctx context.Context, s *Session, r *Request) (any, error) {
		return "ok", nil
	})
	_, err := h(ctxWith("http", map[string]string{}), &Session{}, &Request{})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthMiddleware_AcceptsBearerCaseInsensitive(t *testing.T) {
	h := AuthMiddleware(true, "secret")(func(ctx context.Context, s *Session, r *Request) (any, error) {
		return "ok", nil
	})
	result, err := h(ctxWith("http", map[string]string{"Authorization": "bearer secret"}), &Session{}, &Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestAuthMiddleware_AcceptsBareToken(t *testing.T) {
	h := AuthMiddleware(true, "secret")(func(ctx context.Context, s *Session, r *Request) (any, error) {
		return "ok", nil
	})
	_, err := h(ctxWith("http", map[string]string{"Authorization": "secret"}), &Session{}, &Request{})
	require.NoError(t, err)
}

func TestTracker_SessionStartOnlyOnce(t *testing.T) {
	reg := NewRegistry()
	sink := &fakeSink{}
	tracker := NewTracker(reg, sink)

	sess := reg.Open(&Session{ID: "s1", StartedAt: time.Now()})
	handler := tracker.Middleware()(func(ctx context.Context, s *Session, r *Request) (any, error) {
		return nil, nil
	})

	_, _ = handler(context.Background(), sess, &Request{Kind: KindCallTool, Name: "x"})
	_, _ = handler(context.Background(), sess, &Request{Kind: KindCallTool, Name: "y"})

	starts := 0
	for _, ev := range sink.events {
		if ev.Type == EventSessionStart {
			starts++
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 3, len(sink.events)) // 1 start + 2 tool invocations
}

func TestTracker_RecordsFailureWithErrorMessage(t *testing.T) {
	reg := NewRegistry()
	sink := &fakeSink{}
	tracker := NewTracker(reg, sink)
	sess := reg.Open(&Session{ID: "s1", StartedAt: time.Now()})

	handler := tracker.Middleware()(func(ctx context.Context, s *Session, r *Request) (any, error) {
		return nil, errors.New("boom")
	})
	_, _ = handler(context.Background(), sess, &Request{Kind: KindCallTool, Name: "x"})

	var invocation *Event
	for i := range sink.events {
		if sink.events[i].Type == EventToolInvocation {
			invocation = &sink.events[i]
		}
	}
	require.NotNil(t, invocation)
	assert.False(t, invocation.Success)
	assert.Equal(t, "boom", invocation.ErrorMessage)
}

func TestTracker_End_EmitsSessionEndAndClosesRegistry(t *testing.T) {
	reg := NewRegistry()
	sink := &fakeSink{}
	tracker := NewTracker(reg, sink)
	sess := reg.Open(&Session{ID: "s1", StartedAt: time.Now().Add(-50 * time.Millisecond)})

	tracker.End(sess)

	_, stillOpen := reg.Get("s1")
	assert.False(t, stillOpen)

	require.Len(t, sink.events, 1)
	assert.Equal(t, EventSessionEnd, sink.events[0].Type)
	assert.GreaterOrEqual(t, sink.events[0].DurationMs, int64(40))
}

func TestRegistry_LiveListsOpenSessions(t *testing.T) {
	reg := NewRegistry()
	reg.Open(&Session{ID: "a"})
	reg.Open(&Session{ID: "b"})
	reg.Close("a")
	live := reg.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "b", live[0].ID)
}
