package catalog

// Kind discriminates the ServerConfig sum type.
type Kind string

const (
	KindStdio  Kind = "stdio"
	KindRemote Kind = "remote"
)

// ServerConfig is the Go discriminated union replacing the Python
// original's dynamically-typed server records:
// a sealed interface with exhaustive switch on Kind() at every read site.
type ServerConfig interface {
	Kind() Kind
	ServerName() string
	Tags() []string
}

// StdioServer is a downstream launched as a local child process.
type StdioServer struct {
	Name        string            `json:"name"`
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	ProfileTags []string          `json:"profile_tags,omitempty"`
}

func (s *StdioServer) Kind() Kind          { return KindStdio }
func (s *StdioServer) ServerName() string  { return s.Name }
func (s *StdioServer) Tags() []string      { return s.ProfileTags }

// RemoteServer is a downstream reachable over HTTP/SSE.
type RemoteServer struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	ProfileTags []string          `json:"profile_tags,omitempty"`
}

func (s *RemoteServer) Kind() Kind         { return KindRemote }
func (s *RemoteServer) ServerName() string { return s.Name }
func (s *RemoteServer) Tags() []string     { return s.ProfileTags }

// ProfileMetadata is the optional named-profile record.
// A profile "exists" if either this metadata is present or some server
// carries its tag.
type ProfileMetadata struct {
	Name        string `json:"name"`
	APIKey      string `json:"api_key,omitempty"`
	Description string `json:"description,omitempty"`
}

// CompleteProfile is the result of get_complete_profile:
// a profile's metadata (possibly zero-valued if none was ever created)
// paired with the servers currently tagged with it.
type CompleteProfile struct {
	Metadata ProfileMetadata
	Servers  []ServerConfig
}
