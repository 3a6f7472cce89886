// Package registry implements the Capability Registry: an in-memory index
// mapping namespaced capability ids to (downstream server, original id),
// with a collision policy applied at registration time.
//
// Unlike an always-prefix scheme, this Registry rewrites a capability's
// name only on an actual collision, using fixed `_t_`/`_p_` separators,
// and fixes registration order lexicographically by server name so
// collision outcomes are deterministic across runs.
package registry
