package telemetry

import (
	"time"

	"github.com/mcpm-sh/mcpm/internal/session"
)

// ServerStats is one row of the server-stats derived query.
type ServerStats struct {
	ServerName       string
	TotalSessions    int64
	TotalRuns        int64
	FirstUsed        time.Time
	LastUsed         time.Time
	SuccessRate      float64
	PrimaryTransport string
}

// ProfileStats is one row of the profile-stats derived query.
type ProfileStats struct {
	ProfileName   string
	TotalSessions int64
	TotalRuns     int64
	FirstUsed     time.Time
	LastUsed      time.Time
	ServerCount   int64
}

// RecentSession is one paired SESSION_START/SESSION_END row.
type RecentSession struct {
	SessionID string
	StartedAt time.Time
	EndedAt   time.Time
	DurationMs int64
}

// runActions lists the actions counted towards "total_runs" in both
// server and profile stats, ported from sqlite.py's
// `action IN ('run', 'run_http', 'profile_run')` filter.
var runActions = []string{string(session.ActionRun), string(session.ActionRunHTTP), string(session.ActionProfileRun)}

// ServerStatsSince computes per-server usage stats over the given window,
// derived entirely from SESSION_START/TOOL_INVOCATION/RESOURCE_ACCESS/
// PROMPT_EXECUTION rows — there is no separate sessions table.
//
// SESSION_START rows never carry a server_name (a session can span a whole
// profile of servers, not one), so every per-server aggregate here is
// built by joining each server's per-call rows back to their owning
// session's SESSION_START row rather than filtering SESSION_START rows by
// server_name directly.
func (s *Store) ServerStatsSince(since time.Time) ([]ServerStats, error) {
	var out []ServerStats
	err := s.db.Raw(`
		WITH calls AS (
			SELECT session_id, server_name, timestamp, success
			FROM events
			WHERE server_name != '' AND timestamp >= ?
		),
		starts AS (
			SELECT session_id,
			       json_extract(metadata, '$.action') AS action,
			       json_extract(metadata, '$.transport') AS transport
			FROM events
			WHERE event_type = 'SESSION_START'
		)
		SELECT
			calls.server_name AS server_name,
			COUNT(DISTINCT calls.session_id) AS total_sessions,
			COUNT(DISTINCT CASE WHEN starts.action IN (?, ?, ?) THEN calls.session_id END) AS total_runs,
			MIN(calls.timestamp) AS first_used,
			MAX(calls.timestamp) AS last_used,
			AVG(CASE WHEN calls.success THEN 1.0 ELSE 0.0 END) AS success_rate,
			(SELECT starts2.transport FROM calls calls2
			   JOIN starts starts2 ON starts2.session_id = calls2.session_id
			   WHERE calls2.server_name = calls.server_name
			   ORDER BY calls2.timestamp DESC LIMIT 1) AS primary_transport
		FROM calls
		JOIN starts ON starts.session_id = calls.session_id
		GROUP BY calls.server_name
		ORDER BY calls.server_name
	`, since, runActions[0], runActions[1], runActions[2]).Scan(&out).Error
	return out, err
}

// ProfileStatsSince computes per-profile usage stats over the given
// window, grouped by the profile_name recorded in SESSION_START metadata.
//
// server_count is drawn from the profile's sessions' per-call rows, not
// from SESSION_START itself: SESSION_START never carries a server_name
// (it precedes any call being routed to a specific downstream), so
// counting distinct server_name on SESSION_START rows alone always
// collapses to the single empty string.
func (s *Store) ProfileStatsSince(since time.Time) ([]ProfileStats, error) {
	var out []ProfileStats
	err := s.db.Raw(`
		WITH starts AS (
			SELECT session_id,
			       json_extract(metadata, '$.profile_name') AS profile_name,
			       json_extract(metadata, '$.action') AS action,
			       timestamp
			FROM events
			WHERE event_type = 'SESSION_START'
			  AND json_extract(metadata, '$.profile_name') IS NOT NULL
			  AND timestamp >= ?
		)
		SELECT
			starts.profile_name AS profile_name,
			COUNT(DISTINCT starts.session_id) AS total_sessions,
			COUNT(DISTINCT CASE WHEN starts.action IN (?, ?, ?) THEN starts.session_id END) AS total_runs,
			MIN(starts.timestamp) AS first_used,
			MAX(starts.timestamp) AS last_used,
			COUNT(DISTINCT calls.server_name) AS server_count
		FROM starts
		LEFT JOIN events calls ON calls.session_id = starts.session_id AND calls.server_name != ''
		GROUP BY starts.profile_name
		ORDER BY starts.profile_name
	`, since, runActions[0], runActions[1], runActions[2]).Scan(&out).Error
	return out, err
}

// RecentSessions returns the last n paired SESSION_START/SESSION_END rows
// with computed duration, newest first.
func (s *Store) RecentSessions(n int) ([]RecentSession, error) {
	var out []RecentSession
	err := s.db.Raw(`
		SELECT
			start.session_id AS session_id,
			start.timestamp AS started_at,
			end_.timestamp AS ended_at,
			end_.duration_ms AS duration_ms
		FROM events start
		JOIN events end_ ON end_.session_id = start.session_id AND end_.event_type = 'SESSION_END'
		WHERE start.event_type = 'SESSION_START'
		ORDER BY start.timestamp DESC
		LIMIT ?
	`, n).Scan(&out).Error
	return out, err
}
