package telemetry

import (
	"testing"

	"github.com/mcpm-sh/mcpm/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newQueueOnlyStore builds a Store with no database, exercising only the
// bounded-queue overflow policy.
func newQueueOnlyStore(size int) *Store {
	return &Store{queue: make(chan session.Event, size)}
}

func TestRecord_OverflowDropsOldestNonSessionEvent(t *testing.T) {
	s := newQueueOnlyStore(2)

	s.Record(session.Event{Type: session.EventToolInvocation, ResourceID: "first"})
	s.Record(session.Event{Type: session.EventToolInvocation, ResourceID: "second"})
	// queue is full; this enqueue must drop "first" (oldest non-SESSION).
	s.Record(session.Event{Type: session.EventToolInvocation, ResourceID: "third"})

	require.Len(t, s.queue, 2)
	first := <-s.queue
	second := <-s.queue
	assert.Equal(t, "second", first.ResourceID)
	assert.Equal(t, "third", second.ResourceID)
}

func TestRecord_OverflowPrefersKeepingSessionEvents(t *testing.T) {
	s := newQueueOnlyStore(2)

	s.Record(session.Event{Type: session.EventSessionStart})
	s.Record(session.Event{Type: session.EventToolInvocation, ResourceID: "tool"})
	s.Record(session.Event{Type: session.EventToolInvocation, ResourceID: "tool2"})

	var types []session.EventType
	for len(s.queue) > 0 {
		types = append(types, (<-s.queue).Type)
	}
	assert.Contains(t, types, session.EventSessionStart)
}
