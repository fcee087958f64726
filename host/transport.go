package host

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the byte-stream abstraction the Client drives: whatever the
// engine hands it to send goes to Write, and whatever arrives is handed to
// Read. Both net.Conn and the WebSocket adapter below satisfy it.
type Transport interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// DialTCP opens a raw TCP (optionally TLS) connection to addr.
func DialTCP(ctx context.Context, addr string, tlsConfig *tls.Config) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("host: dial tcp %s: %w", addr, err)
	}
	if tlsConfig != nil {
		tconn := tls.Client(conn, tlsConfig)
		if err := tconn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("host: tls handshake %s: %w", addr, err)
		}
		return tconn, nil
	}
	return conn, nil
}

// DialWebSocket opens a WebSocket connection carrying the MQTT byte stream
// as binary frames, matching the way golang-io-mqtt and
// alibo-simple-mqtt-network-lab offer a WebSocket transport alongside a raw
// TCP one for the same wire protocol.
func DialWebSocket(ctx context.Context, rawURL string, tlsConfig *tls.Config) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("host: parse websocket url: %w", err)
	}
	dialer := websocket.Dialer{
		TLSClientConfig:  tlsConfig,
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"mqtt"},
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("host: dial websocket %s: %w", rawURL, err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a *websocket.Conn's message framing to the plain byte
// stream the MQTT framer expects, buffering the unread remainder of a
// binary message across Read calls.
type wsConn struct {
	conn *websocket.Conn
	rest []byte
}

func (w *wsConn) Read(p []byte) (int, error) {
	for len(w.rest) == 0 {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		w.rest = data
	}
	n := copy(p, w.rest)
	w.rest = w.rest[n:]
	return n, nil
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) Close() error { return w.conn.Close() }

func (w *wsConn) SetReadDeadline(t time.Time) error { return w.conn.SetReadDeadline(t) }
