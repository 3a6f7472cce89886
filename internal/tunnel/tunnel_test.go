package tunnel

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/yamux"
)

// fakeShareService stands in for the real share service: it accepts one
// inbound connection, yamux-serves it, replies to the control handshake
// with a canned URL, then opens one data stream per test case.
type fakeShareService struct {
	ln   net.Listener
	sess *yamux.Session
	url  string
}

func startFakeShareService(t *testing.T, url string) *fakeShareService {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &fakeShareService{ln: ln, url: url}
}

func (f *fakeShareService) addr() string { return f.ln.Addr().String() }

// serve runs the server side of the handshake plus one bridged data
// stream carrying payload, returning what it read back from the client.
func (f *fakeShareService) serveOneStream(t *testing.T, payload string) string {
	t.Helper()
	conn, err := f.ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	sess, err := yamux.Server(conn, yamux.DefaultConfig())
	if err != nil {
		t.Fatalf("yamux server: %v", err)
	}
	f.sess = sess

	ctrl, err := sess.Accept()
	if err != nil {
		t.Fatalf("accept control stream: %v", err)
	}
	var req struct {
		Token  string `json:"token"`
		Scheme string `json:"scheme"`
	}
	if err := json.NewDecoder(bufio.NewReader(ctrl)).Decode(&req); err != nil {
		t.Fatalf("decode control request: %v", err)
	}
	if err := json.NewEncoder(ctrl).Encode(struct {
		URL string `json:"url"`
	}{URL: f.url}); err != nil {
		t.Fatalf("write url: %v", err)
	}
	ctrl.Close()

	data, err := sess.Open()
	if err != nil {
		t.Fatalf("open data stream: %v", err)
	}
	defer data.Close()

	if _, err := data.Write([]byte(payload)); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if cw, ok := data.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}

	echoed, err := io.ReadAll(data)
	if err != nil {
		t.Fatalf("read echoed payload: %v", err)
	}
	return string(echoed)
}

// startLocalEcho starts a TCP listener that echoes back whatever it
// reads, standing in for the aggregator's HTTP listener.
func startLocalEcho(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				io.Copy(c, c)
				c.Close()
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

func TestStart_ReturnsAssignedURLFromHandshake(t *testing.T) {
	share := startFakeShareService(t, "https://example.mcpm.sh/abc123")
	localPort := startLocalEcho(t)

	cfg := Config{ShareAddr: share.addr(), LocalHTTPPort: localPort, DialTimeout: 2 * time.Second}

	var gotURL string
	var startErr error
	var tun *Tunnel
	done := make(chan struct{})
	go func() {
		tun, gotURL, startErr = Start(cfg)
		close(done)
	}()

	echoed := share.serveOneStream(t, "ping")
	<-done

	if startErr != nil {
		t.Fatalf("Start returned error: %v", startErr)
	}
	if gotURL != "https://example.mcpm.sh/abc123" {
		t.Fatalf("url = %q, want the handshake-assigned url", gotURL)
	}
	if echoed != "ping" {
		t.Fatalf("echoed = %q, want bridged payload to round-trip through localhost", echoed)
	}

	if err := tun.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
}

func TestKill_IsIdempotent(t *testing.T) {
	share := startFakeShareService(t, "https://example.mcpm.sh/def456")
	localPort := startLocalEcho(t)
	cfg := Config{ShareAddr: share.addr(), LocalHTTPPort: localPort, DialTimeout: 2 * time.Second}

	var tun *Tunnel
	done := make(chan struct{})
	go func() {
		var err error
		tun, _, err = Start(cfg)
		if err != nil {
			t.Errorf("Start: %v", err)
		}
		close(done)
	}()

	share.serveOneStream(t, "x")
	<-done

	if err := tun.Kill(); err != nil {
		t.Fatalf("first Kill: %v", err)
	}
	if err := tun.Kill(); err != nil {
		t.Fatalf("second Kill should be a no-op returning the same result, got: %v", err)
	}
}

func TestPlainHTTPScheme_IsSentInControlHandshake(t *testing.T) {
	share := startFakeShareService(t, "http://example.mcpm.sh/ghi789")
	localPort := startLocalEcho(t)
	cfg := Config{ShareAddr: share.addr(), LocalHTTPPort: localPort, PlainHTTP: true, DialTimeout: 2 * time.Second}

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := share.ln.Accept()
		if err == nil {
			connCh <- conn
		}
	}()

	var gotURL string
	done := make(chan struct{})
	go func() {
		_, gotURL, _ = Start(cfg)
		close(done)
	}()

	conn := <-connCh
	sess, err := yamux.Server(conn, yamux.DefaultConfig())
	if err != nil {
		t.Fatalf("yamux server: %v", err)
	}
	ctrl, err := sess.Accept()
	if err != nil {
		t.Fatalf("accept control stream: %v", err)
	}
	var req struct {
		Token  string `json:"token"`
		Scheme string `json:"scheme"`
	}
	if err := json.NewDecoder(bufio.NewReader(ctrl)).Decode(&req); err != nil {
		t.Fatalf("decode control request: %v", err)
	}
	json.NewEncoder(ctrl).Encode(struct {
		URL string `json:"url"`
	}{URL: share.url})
	ctrl.Close()

	<-done
	if gotURL != share.url {
		t.Fatalf("url = %q, want %q", gotURL, share.url)
	}
	if req.Scheme != "http" {
		t.Fatalf("scheme = %q, want %q for PlainHTTP config", req.Scheme, "http")
	}
}
