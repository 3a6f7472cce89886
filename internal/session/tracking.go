package session

import (
	"context"
	"time"
)

// Tracker implements the Unified Tracking middleware,
// grounded on MCPMUnifiedTrackingMiddleware in original_source's
// middleware.py: it emits SESSION_START on a session's first request,
// TOOL_INVOCATION/RESOURCE_ACCESS/PROMPT_EXECUTION per call, and
// SESSION_END when End is called for the session.
type Tracker struct {
	registry *Registry
	sink     EventSink
}

// NewTracker builds a Tracker recording into sink and tracking session
// lifetimes in registry.
func NewTracker(registry *Registry, sink EventSink) *Tracker {
	return &Tracker{registry: registry, sink: sink}
}

// Middleware returns the Chain entry. It must run innermost of the three
// so that it observes the real downstream outcome, not an auth failure.
func (t *Tracker) Middleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, sess *Session, req *Request) (any, error) {
			if t.registry.MarkStarted(sess.ID) {
				t.sink.Record(Event{
					SessionID:  sess.ID,
					Type:       EventSessionStart,
					Timestamp:  time.Now(),
					Success:    true,
					DurationMs: 0,
					Metadata: map[string]any{
						"action":       string(sess.Action),
						"profile_name": sess.ProfileName,
						"transport":    sess.Transport,
						"source":       string(sess.Source),
					},
				})
			}

			start := time.Now()
			result, err := next(ctx, sess, req)
			duration := time.Since(start).Milliseconds()

			eventType, ok := eventTypeForKind(req.Kind)
			if !ok {
				return result, err
			}

			evt := Event{
				SessionID:  sess.ID,
				Type:       eventType,
				ServerName: req.ServerName,
				ResourceID: req.Name,
				Timestamp:  time.Now(),
				DurationMs: duration,
				Success:    err == nil,
			}
			if err != nil {
				evt.ErrorMessage = err.Error()
			}
			t.sink.Record(evt)

			return result, err
		}
	}
}

func eventTypeForKind(k Kind) (EventType, bool) {
	switch k {
	case KindCallTool:
		return EventToolInvocation, true
	case KindReadResource:
		return EventResourceAccess, true
	case KindGetPrompt:
		return EventPromptExecution, true
	default:
		return "", false
	}
}

// End emits SESSION_END for sess with total duration, and removes it from
// the registry. The aggregator calls it for every still-open session when
// it stops; an upstream disconnect on its own does not end a session.
func (t *Tracker) End(sess *Session) {
	t.registry.Close(sess.ID)
	t.sink.Record(Event{
		SessionID:  sess.ID,
		Type:       EventSessionEnd,
		Timestamp:  time.Now(),
		Success:    true,
		DurationMs: SessionDuration(sess),
	})
}
