package tunnel

import "time"

// Config configures one Tunnel Client instance.
type Config struct {
	// ShareAddr is the configured share service's "host:port".
	ShareAddr string
	// LocalHTTPPort is the local aggregator's HTTP listener port; every
	// accepted data stream is bridged to localhost:LocalHTTPPort.
	LocalHTTPPort int
	// PlainHTTP requests "http" instead of the default "https" public
	// URL scheme.
	PlainHTTP bool
	// DialTimeout bounds the initial connection to ShareAddr.
	DialTimeout time.Duration
}

func (c Config) scheme() string {
	if c.PlainHTTP {
		return "http"
	}
	return "https"
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return 10 * time.Second
}
