package tunnel

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/hashicorp/yamux"

	"github.com/mcpm-sh/mcpm/pkg/logging"
)

// controlRequest is the client->service handshake message, JSON-framed
// over the first yamux stream ( §4.F).
type controlRequest struct {
	Token  string `json:"token"`
	Scheme string `json:"scheme"`
}

// controlResponse carries the share service's assigned public URL back.
type controlResponse struct {
	URL string `json:"url"`
}

// Tunnel is one live share session: a single outbound
// connection to the share service, multiplexed with yamux so the service
// can push one stream per public connection back down the same socket.
type Tunnel struct {
	cfg Config

	conn    net.Conn
	session *yamux.Session

	mu       sync.Mutex
	closed   bool
	closeErr error
}

// Start dials the share service, performs the control handshake, and
// begins bridging every subsequently accepted stream to
// localhost:LocalHTTPPort. It returns the public URL the service assigned,
// or a non-nil error if the tunnel could not be established; failure here
// is fatal to the whole `share` operation.
func Start(cfg Config) (*Tunnel, string, error) {
	conn, err := net.DialTimeout("tcp", cfg.ShareAddr, cfg.dialTimeout())
	if err != nil {
		return nil, "", fmt.Errorf("dial share service %s: %w", cfg.ShareAddr, err)
	}

	sess, err := yamux.Client(conn, yamux.DefaultConfig())
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("start yamux session: %w", err)
	}

	url, err := handshake(sess, cfg)
	if err != nil {
		sess.Close()
		conn.Close()
		return nil, "", fmt.Errorf("tunnel handshake: %w", err)
	}

	t := &Tunnel{cfg: cfg, conn: conn, session: sess}
	go t.acceptLoop()
	return t, url, nil
}

// handshake opens the control stream, sends a JSON-framed share token and
// requested scheme, and reads back the JSON-framed public URL the service
// assigns. This framing is this package's own; see doc.go.
func handshake(sess *yamux.Session, cfg Config) (string, error) {
	ctrl, err := sess.Open()
	if err != nil {
		return "", fmt.Errorf("open control stream: %w", err)
	}
	defer ctrl.Close()

	req := controlRequest{Token: generateShareToken(), Scheme: cfg.scheme()}
	enc := json.NewEncoder(ctrl)
	if err := enc.Encode(req); err != nil {
		return "", fmt.Errorf("send control handshake: %w", err)
	}

	var resp controlResponse
	if err := json.NewDecoder(bufio.NewReader(ctrl)).Decode(&resp); err != nil {
		return "", fmt.Errorf("read assigned url: %w", err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("share service returned an empty url")
	}
	return resp.URL, nil
}

// acceptLoop accepts one yamux stream per public connection the share
// service forwards and bridges each to the local HTTP listener. It returns
// once the session is closed (by us, via kill, or by the remote end).
func (t *Tunnel) acceptLoop() {
	for {
		stream, err := t.session.Accept()
		if err != nil {
			return
		}
		go t.bridge(stream)
	}
}

// bridge copies bytes bidirectionally between an accepted public stream
// and a fresh connection to the local aggregator HTTP listener.
func (t *Tunnel) bridge(stream net.Conn) {
	defer stream.Close()

	local, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", t.cfg.LocalHTTPPort))
	if err != nil {
		logging.Warn("tunnel", "dial local listener on port %d: %v", t.cfg.LocalHTTPPort, err)
		return
	}
	defer local.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(local, stream)
		closeWrite(local)
	}()
	go func() {
		defer wg.Done()
		io.Copy(stream, local)
		closeWrite(stream)
	}()
	wg.Wait()
}

// closeWrite half-closes conn's write side when supported, so the peer
// sees EOF without tearing down the whole bridged connection early.
func closeWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
}

// Kill closes both halves of the tunnel: the yamux session (and every
// open stream it carries) and the underlying connection to the share
// service. Idempotent closes both halves").
func (t *Tunnel) Kill() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.closeErr
	}
	t.closed = true

	err := t.session.Close()
	// Closing the yamux session already closes conn, so an "already
	// closed" error from the second close is expected and not reported.
	if cerr := t.conn.Close(); err == nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}
	t.closeErr = err
	return err
}
