package registry

import (
	"fmt"
	"net/url"
)

// rewriteResourceURIHost rewrites the host component of a resource URI to
// "<server>:<host>", leaving every other URI component untouched
//. If uri fails to parse as a URL
// (unusual but not impossible for MCP resource URIs), the server name is
// prepended verbatim instead.
func rewriteResourceURIHost(server, uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" && u.Scheme == "" {
		return fmt.Sprintf("%s:%s", server, uri)
	}
	u.Host = server + ":" + u.Host
	return u.String()
}

// rewriteTemplateURI implements the resource-template collision rule,
// which prefixes the whole template rather than rewriting a URI host
// component.
func rewriteTemplateURI(server, template string) string {
	return fmt.Sprintf("%s:%s", server, template)
}
