package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Candidate is one capability a downstream server offers, prior to
// collision resolution. OriginalID is the tool/prompt name or the
// resource/resource-template URI as declared by the downstream.
type Candidate struct {
	Kind       Kind
	OriginalID string
	Descriptor any
}

// Registry is the Capability Registry: many-reader,
// rare-writer index from exposed capability id to its owning downstream.
// Reads are lock-free snapshots taken under a read lock; writes (register/
// remove a downstream) are serialized by mu.
type Registry struct {
	mu   sync.RWMutex
	mode Mode

	// byExposed[kind][exposedID] = Record
	byExposed map[Kind]map[string]Record
	// byServer[server] lists every (kind, exposedID) registered for
	// server, for O(servers) removal.
	byServer map[string][]exposedKey
}

type exposedKey struct {
	kind Kind
	id   string
}

// New builds an empty Registry with the given collision policy.
func New(mode Mode) *Registry {
	return &Registry{
		mode: mode,
		byExposed: map[Kind]map[string]Record{
			KindTool:             {},
			KindPrompt:           {},
			KindResource:         {},
			KindResourceTemplate: {},
		},
		byServer: map[string][]exposedKey{},
	}
}

// CollisionError is returned by RegisterServers (and RegisterServer) in ModeStrict, naming both
// sources of a collision.
type CollisionError struct {
	Kind             Kind
	ID               string
	ExistingServer   string
	IncomingServer   string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%s %q already registered by %s, cannot also register from %s in strict mode",
		e.Kind, e.ID, e.ExistingServer, e.IncomingServer)
}

// RegisterServers registers the candidates of every server in one pass,
// processing servers in lexicographic order of name so that collision
// outcomes are deterministic. servers maps server name to its candidate capabilities, in
// the order the downstream declared them.
//
// In ModeAuto, the first-registered (lexicographically smallest server
// name) capability keeps its original id; every later collision is
// rewritten. In ModeStrict, the first collision aborts the whole call and
// no partial state is retained.
func (r *Registry) RegisterServers(servers map[string][]Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	// Snapshot current state so a strict-mode failure can roll back
	// cleanly without partially registering servers from this call.
	before := r.cloneLocked()

	for _, name := range names {
		for _, cand := range servers[name] {
			if err := r.registerOneLocked(name, cand); err != nil {
				r.restoreLocked(before)
				return err
			}
		}
	}
	return nil
}

// RegisterServer registers a single downstream's capabilities, applying
// the same collision policy as RegisterServers against whatever is
// already registered. Used when a downstream is added after startup.
func (r *Registry) RegisterServer(name string, candidates []Candidate) error {
	return r.RegisterServers(map[string][]Candidate{name: candidates})
}

func (r *Registry) registerOneLocked(server string, cand Candidate) error {
	table := r.byExposed[cand.Kind]
	exposedID := cand.OriginalID

	if existing, collide := table[exposedID]; collide {
		if r.mode == ModeStrict {
			return &CollisionError{Kind: cand.Kind, ID: exposedID, ExistingServer: existing.Server, IncomingServer: server}
		}
		exposedID = rewriteID(cand.Kind, server, cand.OriginalID)
		// A third (or later) server colliding on the same original id
		// would collide again on the rewritten id too; disambiguate
		// with a numeric suffix as a last resort.
		for n := 2; ; n++ {
			if _, stillCollides := table[exposedID]; !stillCollides {
				break
			}
			exposedID = fmt.Sprintf("%s#%d", rewriteID(cand.Kind, server, cand.OriginalID), n)
		}
	}

	rec := Record{Kind: cand.Kind, ExposedID: exposedID, Server: server, OriginalID: cand.OriginalID, Descriptor: cand.Descriptor}
	table[exposedID] = rec
	r.byServer[server] = append(r.byServer[server], exposedKey{kind: cand.Kind, id: exposedID})
	return nil
}

func rewriteID(kind Kind, server, originalID string) string {
	switch kind {
	case KindTool, KindPrompt:
		return server + collisionSeparator(kind) + originalID
	case KindResource:
		return rewriteResourceURIHost(server, originalID)
	case KindResourceTemplate:
		return rewriteTemplateURI(server, originalID)
	default:
		return server + "_" + originalID
	}
}

// RemoveDownstream drops every record registered for server in one pass.
func (r *Registry) RemoveDownstream(server string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeDownstreamLocked(server)
}

func (r *Registry) removeDownstreamLocked(server string) {
	for _, key := range r.byServer[server] {
		delete(r.byExposed[key.kind], key.id)
	}
	delete(r.byServer, server)
}

// Resolve looks up the (server, originalID) a given exposed id maps to.
func (r *Registry) Resolve(kind Kind, exposedID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byExposed[kind][exposedID]
	return rec, ok
}

// Snapshot returns every record of kind, optionally restricted to
// allowedServers (profile scoping). A nil allowedServers
// means no restriction. The result is sorted by ExposedID for stable
// output.
func (r *Registry) Snapshot(kind Kind, allowedServers map[string]bool) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.byExposed[kind]))
	for _, rec := range r.byExposed[kind] {
		if allowedServers != nil && !allowedServers[rec.Server] {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExposedID < out[j].ExposedID })
	return out
}

// HasAny reports whether at least one downstream has registered a
// capability of kind — used to decide which top-level capabilities the
// Aggregating Router advertises.
func (r *Registry) HasAny(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byExposed[kind]) > 0
}

func (r *Registry) cloneLocked() *Registry {
	clone := New(r.mode)
	for kind, table := range r.byExposed {
		for id, rec := range table {
			clone.byExposed[kind][id] = rec
		}
	}
	for server, keys := range r.byServer {
		clone.byServer[server] = append([]exposedKey(nil), keys...)
	}
	return clone
}

func (r *Registry) restoreLocked(snapshot *Registry) {
	r.byExposed = snapshot.byExposed
	r.byServer = snapshot.byServer
}
