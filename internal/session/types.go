package session

import "time"

// Source classifies where an upstream connection originated, derived from
// the client's IP address.
type Source string

const (
	SourceLocal         Source = "local"
	SourceLocalNetwork  Source = "local_network"
	SourcePublicNet     Source = "public_internet"
	SourceLocalStdio    Source = "local_stdio"
	SourceUnknown       Source = "unknown"
)

// Action identifies which CLI-level operation created this session.
type Action string

const (
	ActionRun        Action = "run"
	ActionRunHTTP    Action = "run_http"
	ActionProfileRun Action = "profile_run"
	ActionProxy      Action = "proxy"
)

// Session is the live, in-memory record of one upstream connection's
// lifetime through the aggregator. It never persists across
// a process restart.
type Session struct {
	ID          string
	Action      Action
	ProfileName string
	Transport   string
	Source      Source
	StartedAt   time.Time
	ClientInfo  string
	ServerInfo  string
}

// EventType enumerates the persistent telemetry event kinds.
type EventType string

const (
	EventSessionStart     EventType = "SESSION_START"
	EventSessionEnd       EventType = "SESSION_END"
	EventToolInvocation   EventType = "TOOL_INVOCATION"
	EventResourceAccess   EventType = "RESOURCE_ACCESS"
	EventPromptExecution  EventType = "PROMPT_EXECUTION"
)

// Event is one append-only telemetry record.
type Event struct {
	SessionID    string
	Type         EventType
	ServerName   string
	ResourceID   string
	Timestamp    time.Time
	DurationMs   int64
	Success      bool
	ErrorMessage string
	Metadata     map[string]any
}

// EventSink receives telemetry events emitted by the Unified Tracking
// middleware. internal/telemetry.Store implements this interface; the
// middleware chain depends only on the interface.
type EventSink interface {
	Record(ev Event)
}
