package catalog

import (
	"encoding/json"
	"fmt"
)

// serversDocument is the on-disk shape of servers.json: {name ->
// ServerConfig} with the discriminator being the presence of "command"
// (stdio) vs "url" (remote),
type serversDocument map[string]json.RawMessage

func decodeServers(raw []byte) (map[string]ServerConfig, error) {
	if len(raw) == 0 {
		return map[string]ServerConfig{}, nil
	}
	var doc serversDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode servers.json: %w", err)
	}

	out := make(map[string]ServerConfig, len(doc))
	for name, msg := range doc {
		cfg, err := decodeServerConfig(name, msg)
		if err != nil {
			return nil, err
		}
		out[name] = cfg
	}
	return out, nil
}

func decodeServerConfig(name string, msg json.RawMessage) (ServerConfig, error) {
	var probe struct {
		Command *string `json:"command"`
		URL     *string `json:"url"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return nil, fmt.Errorf("decode server %q: %w", name, err)
	}

	switch {
	case probe.Command != nil:
		var s StdioServer
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fmt.Errorf("decode stdio server %q: %w", name, err)
		}
		return &s, nil
	case probe.URL != nil:
		var s RemoteServer
		if err := json.Unmarshal(msg, &s); err != nil {
			return nil, fmt.Errorf("decode remote server %q: %w", name, err)
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("server %q has neither command nor url", name)
	}
}

func encodeServers(servers map[string]ServerConfig) ([]byte, error) {
	doc := make(map[string]ServerConfig, len(servers))
	for name, cfg := range servers {
		doc[name] = cfg
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeProfiles(raw []byte) (map[string]ProfileMetadata, error) {
	if len(raw) == 0 {
		return map[string]ProfileMetadata{}, nil
	}
	var doc map[string]ProfileMetadata
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode profiles_metadata.json: %w", err)
	}
	return doc, nil
}

func encodeProfiles(profiles map[string]ProfileMetadata) ([]byte, error) {
	return json.MarshalIndent(profiles, "", "  ")
}
