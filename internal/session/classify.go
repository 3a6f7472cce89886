package session

import (
	"net"
	"strconv"
	"strings"
)

// ClassifySource ports the exact origin-classification algorithm from
// original_source/src/mcpm/fastmcp_integration/middleware.py's
// _classify_origin: loopback addresses are "local"; RFC1918 ranges,
// link-local, and IPv6 ULA are "local_network"; anything else with an
// address is "public_internet". Any non-HTTP transport (stdio) is
// "local_stdio"; an HTTP request with no known address is "unknown".
func ClassifySource(transport, ip string) Source {
	if transport != "http" {
		return SourceLocalStdio
	}
	if ip == "" || ip == "unknown" {
		return SourceUnknown
	}

	if ip == "::1" || ip == "localhost" || strings.HasPrefix(ip, "127.") {
		return SourceLocal
	}

	for _, prefix := range privateIPv4Prefixes() {
		if strings.HasPrefix(ip, prefix) {
			return SourceLocalNetwork
		}
	}
	if strings.HasPrefix(ip, "169.254.") {
		return SourceLocalNetwork
	}
	// IPv6 unique local addresses (fc00::/7), written as fc.. or fd...
	if strings.HasPrefix(ip, "fd") || strings.HasPrefix(ip, "fc") {
		return SourceLocalNetwork
	}

	return SourcePublicNet
}

func privateIPv4Prefixes() []string {
	prefixes := []string{"10.", "192.168."}
	for i := 16; i <= 31; i++ {
		prefixes = append(prefixes, "172."+strconv.Itoa(i)+".")
	}
	return prefixes
}

// ClientIP extracts the caller's address the way the Python original's
// _get_client_ip does: prefer X-Forwarded-For (first entry), then
// X-Real-IP, then the raw remote address, else "unknown". remoteAddr is
// expected in host[:port] form; the port is stripped if present.
func ClientIP(headers map[string]string, remoteAddr string) string {
	if v := headerLookup(headers, "x-forwarded-for"); v != "" {
		parts := strings.Split(v, ",")
		return strings.TrimSpace(parts[0])
	}
	if v := headerLookup(headers, "x-real-ip"); v != "" {
		return strings.TrimSpace(v)
	}
	if remoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func headerLookup(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
