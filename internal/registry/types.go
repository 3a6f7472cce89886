package registry

// Kind identifies which capability namespace a record belongs to. Each
// kind has its own exposed-id space.
type Kind string

const (
	KindTool             Kind = "tool"
	KindPrompt           Kind = "prompt"
	KindResource         Kind = "resource"
	KindResourceTemplate Kind = "resource_template"
)

// collisionSeparator returns the kind-specific separator used to rewrite a
// colliding tool/prompt id. Resources rewrite the URI host instead (see
// rewriteResourceURIHost) and resource templates get a "<server>:" prefix
// (see rewriteTemplateURI).
func collisionSeparator(k Kind) string {
	switch k {
	case KindTool:
		return "_t_"
	case KindPrompt:
		return "_p_"
	default:
		return ""
	}
}

// Record is a Capability Record: one entry in the registry
// naming which downstream owns a capability and under what original id,
// alongside the exposed id upstream clients see and the opaque MCP-level
// descriptor as the downstream declared it (the aggregator renames its
// copy to ExposedID when exposing it).
type Record struct {
	Kind       Kind
	ExposedID  string
	Server     string
	OriginalID string
	Descriptor any
}

// Mode is the collision-resolution policy applied at registration time.
type Mode string

const (
	// ModeStrict fails startup on any collision, naming both sources.
	ModeStrict Mode = "strict"
	// ModeAuto rewrites the later-registered exposed id (default for
	// profile aggregation).
	ModeAuto Mode = "auto"
)
