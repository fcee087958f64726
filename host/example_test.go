package host_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gonzalop/mqttengine/engine"
	"github.com/gonzalop/mqttengine/host"
	"github.com/gonzalop/mqttengine/packet"
)

// pipeTransport adapts one end of a net.Pipe to host.Transport. net.Pipe's
// conns already implement SetReadDeadline, so this is just a named type to
// satisfy the interface without pulling in a real socket.
type pipeTransport struct{ net.Conn }

// fakeBroker drives a server-role Connection over one pipe end, replying to
// CONNECT with CONNACK and to QoS 1 PUBLISH with PUBACK, the way a minimal
// MQTT broker would. It exists to exercise the engine end-to-end without a
// real network or a real broker.
type fakeBroker struct {
	conn *engine.Connection
	tr   net.Conn
	mu   sync.Mutex
	wg   sync.WaitGroup
}

func newFakeBroker(tr net.Conn) *fakeBroker {
	b := &fakeBroker{conn: engine.New(engine.RoleServer), tr: tr}
	b.conn.SetAutoPubResponse(true)
	return b
}

func (b *fakeBroker) run() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		buf := make([]byte, 4096)
		for {
			n, err := b.tr.Read(buf)
			if err != nil {
				return
			}
			b.mu.Lock()
			events := b.conn.Recv(buf[:n])
			b.mu.Unlock()
			if b.handle(events) {
				return
			}
		}
	}()
}

// handle processes the broker's own reaction to the client, returning true
// once the connection should stop reading (close requested).
func (b *fakeBroker) handle(events []engine.Event) bool {
	for _, ev := range events {
		switch ev.Kind {
		case engine.RequestSendPacket:
			body, err := ev.Packet.Encode(nil)
			if err != nil {
				return true
			}
			if _, err := b.tr.Write(body); err != nil {
				return true
			}
		case engine.RequestClose:
			return true
		case engine.NotifyPacketReceived:
			if _, ok := ev.ReceivedPacket.(*packet.Connect); ok {
				connack := &packet.Connack{ReasonCode: packet.ConnAccepted}
				b.mu.Lock()
				out := b.conn.Send(connack)
				b.mu.Unlock()
				if b.handle(out) {
					return true
				}
			}
		}
	}
	return false
}

// TestClientAgainstFakeBroker demonstrates driving a Client against an in-memory broker: no
// real socket, no real network, just two Connections talking over a
// net.Pipe the way they would over a TCP socket.
func TestClientAgainstFakeBroker(t *testing.T) {
	clientSide, brokerSide := net.Pipe()

	broker := newFakeBroker(brokerSide)
	broker.run()

	noReconnect := false

	cfg := &host.Config{}
	cfg.Broker.ClientID = "example-client"
	cfg.Broker.ProtocolVersion = 4
	cfg.Broker.KeepAliveSecs = 30
	cfg.Reconnect.Enabled = &noReconnect

	received := make(chan *packet.Publish, 1)
	client := host.NewClient(cfg, nil)
	client.OnMessage(func(p *packet.Publish) { received <- p })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, func(context.Context) (host.Transport, error) {
			return pipeTransport{clientSide}, nil
		})
	}()

	// Give the handshake a moment to complete, then disconnect.
	time.Sleep(100 * time.Millisecond)
	if err := client.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("client did not shut down after Disconnect")
	}

	broker.wg.Wait()
}
