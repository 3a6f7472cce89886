// Package tunnel implements the Tunnel Client: a long-lived
// bidirectional bridge that exposes a local HTTP listener to the public
// internet through a share service, advertising a locally-generated share
// token and relaying bytes to/from localhost:<http_port>.
//
// The share service's wire protocol is an external contract: public URL
// in, bytes to localhost:http_port out. This package multiplexes the
// tunnel over hashicorp/yamux and defines its own minimal control
// handshake on top of that stream — a JSON-encoded token and requested
// scheme out, one JSON object back with the assigned public URL.
package tunnel
