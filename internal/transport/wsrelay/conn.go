package wsrelay

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/yamux"
)

// wsConn adapts a *websocket.Conn to net.Conn so it can carry a yamux
// session. It tracks no byte counters of its own — relay.Session
// already counts bytes crossing a Destination, one layer up, so a
// second counter here would just be a second place for the totals to
// disagree.
type wsConn struct {
	conn   *websocket.Conn
	reader io.Reader
	mu     sync.Mutex
}

func (w *wsConn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if w.reader == nil {
		_, r, err := w.conn.NextReader()
		if err != nil {
			return 0, err
		}
		w.reader = r
	}

	n, err := w.reader.Read(p)
	if err == io.EOF {
		w.reader = nil
		err = nil
	}
	return n, err
}

func (w *wsConn) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error                       { return w.conn.Close() }
func (w *wsConn) LocalAddr() net.Addr                { return w.conn.LocalAddr() }
func (w *wsConn) RemoteAddr() net.Addr               { return w.conn.RemoteAddr() }
func (w *wsConn) SetDeadline(t time.Time) error      { return nil }
func (w *wsConn) SetReadDeadline(t time.Time) error  { return w.conn.SetReadDeadline(t) }
func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.conn.SetWriteDeadline(t) }

func yamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.MaxStreamWindowSize = 4 * 1024 * 1024
	cfg.AcceptBacklog = 512
	cfg.EnableKeepAlive = true
	cfg.KeepAliveInterval = 30 * time.Second
	return cfg
}

// peerConfig holds the options a Wrap or NewPeer call was built with.
type peerConfig struct {
	e2ee bool
}

// Option configures Wrap or NewPeer.
type Option func(*peerConfig)

// WithE2EE turns on the X25519/ChaCha20-Poly1305 transport from
// e2ee.go over the underlying websocket. Both ends of a connection
// must agree on whether it's set; the handshake has no way to
// negotiate encryption on versus off, only to run it once both sides
// already expect to.
func WithE2EE() Option {
	return func(c *peerConfig) { c.e2ee = true }
}

func buildPeerConfig(opts []Option) *peerConfig {
	c := &peerConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wrap adapts a single *websocket.Conn into a net.Conn, optionally
// negotiating end-to-end encryption over it. Unlike Peer, it carries
// no yamux multiplexing — one net.Conn, one session — which is the
// shape a simple per-session WebSocket upgrade endpoint needs.
func Wrap(ws *websocket.Conn, isServer bool, opts ...Option) (net.Conn, error) {
	cfg := buildPeerConfig(opts)
	var conn net.Conn = &wsConn{conn: ws}
	if !cfg.e2ee {
		return conn, nil
	}
	secured, err := negotiateE2EE(conn, isServer)
	if err != nil {
		return nil, fmt.Errorf("wsrelay: e2ee negotiation: %w", err)
	}
	return secured, nil
}

// Peer is one end of a yamux session multiplexed over a single
// *websocket.Conn, letting many relay sessions share one physical
// connection between an edge process and a relay server. isServer
// must agree on both ends: one side of a websocket upgrade is the
// yamux server, the other the client. WithE2EE additionally wraps the
// multiplexed connection in the ChaCha20-Poly1305 transport from
// e2ee.go.
type Peer struct {
	ymux *yamux.Session
}

// NewPeer establishes the yamux session (and, with WithE2EE, the
// X25519 handshake) over ws. It blocks until the handshake completes.
func NewPeer(ws *websocket.Conn, isServer bool, opts ...Option) (*Peer, error) {
	cfg := buildPeerConfig(opts)
	var conn net.Conn = &wsConn{conn: ws}

	if cfg.e2ee {
		secured, err := negotiateE2EE(conn, isServer)
		if err != nil {
			return nil, fmt.Errorf("wsrelay: e2ee negotiation: %w", err)
		}
		conn = secured
	}

	var ymux *yamux.Session
	var err error
	if isServer {
		ymux, err = yamux.Server(conn, yamuxConfig())
	} else {
		ymux, err = yamux.Client(conn, yamuxConfig())
	}
	if err != nil {
		return nil, fmt.Errorf("wsrelay: establish yamux session: %w", err)
	}

	return &Peer{ymux: ymux}, nil
}

// OpenStream opens a new multiplexed stream, used by the side of the
// pair that registers as a source or destination first.
func (p *Peer) OpenStream() (net.Conn, error) {
	return p.ymux.OpenStream()
}

// AcceptStream blocks until the remote side opens a stream.
func (p *Peer) AcceptStream() (net.Conn, error) {
	return p.ymux.AcceptStream()
}

// Close tears down the yamux session and the underlying websocket.
func (p *Peer) Close() error {
	return p.ymux.Close()
}
