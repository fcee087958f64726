// Package host is a reference I/O driver for engine.Connection: it owns
// the socket, the read loop, keep-alive timers, and reconnect policy the
// sans-I/O engine deliberately leaves to its caller. It is not part of
// the protocol engine itself.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gonzalop/mqttengine/engine"
	"github.com/gonzalop/mqttengine/packet"
)

// errCloseRequested is returned by handleEvents when the engine asks for
// the transport to be closed.
var errCloseRequested = errors.New("host: engine requested close")

// Client drives an engine.Connection over a real Transport: it owns the
// socket, the read loop, and the keep-alive timers the engine
// itself never touches. It is the reference consumer spec.md's sans-I/O
// design leaves for a real caller to build.
type Client struct {
	cfg       *Config
	transport Transport
	conn      *engine.Connection
	logger    *slog.Logger
	stats     *Stats
	store     *FileStore

	mu     sync.Mutex // serializes every call into conn, per engine's concurrency contract
	timers map[engine.TimerKind]*time.Timer

	onMessage func(*packet.Publish)
	router    router

	closed chan struct{}
	once   sync.Once
}

// NewClient constructs a Client for the given configuration. A nil logger
// defaults to a discarding handler, matching the teacher's WithLogger
// default in options.go.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = "mqttengine-" + uuid.NewString()
	}
	c := &Client{
		cfg:    cfg,
		conn:   engine.New(engine.RoleClient),
		logger: logger,
		stats:  NewStats(),
		timers: make(map[engine.TimerKind]*time.Timer),
		closed: make(chan struct{}),
	}
	c.conn.SetOfflinePublish(cfg.Session.OfflinePublish)
	if cfg.Session.StoreDir != "" {
		if store, err := NewFileStore(cfg.Session.StoreDir, cfg.Broker.ClientID); err == nil {
			c.store = store
			c.conn.SetNeedStore(true)
		} else {
			c.logger.Warn("host: could not open file store", "error", err)
		}
	}
	return c
}

// OnMessage registers the handler invoked for a NotifyPacketReceived
// PUBLISH event that no Subscribe filter matched; a PUBLISH routed to at
// least one Subscribe handler is not passed to it.
func (c *Client) OnMessage(fn func(*packet.Publish)) { c.onMessage = fn }

// Run dials the broker, performs the CONNECT handshake, and serves the
// connection until ctx is cancelled or the transport fails. If
// reconnect is enabled in the configuration it keeps retrying with
// exponential backoff instead of returning on a transient failure.
func (c *Client) Run(ctx context.Context, dial func(context.Context) (Transport, error)) error {
	backoff := time.Duration(c.cfg.Reconnect.InitialMs) * time.Millisecond
	maxBackoff := time.Duration(c.cfg.Reconnect.MaxMs) * time.Millisecond

	for {
		err := c.runOnce(ctx, dial)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.cfg.reconnectEnabled() {
			return err
		}
		c.stats.Reconnects.Inc()
		c.logger.Warn("host: connection lost, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) runOnce(ctx context.Context, dial func(context.Context) (Transport, error)) error {
	transport, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("host: dial: %w", err)
	}
	c.transport = transport
	defer transport.Close()

	c.stats.ActiveConnections.Inc()
	defer c.stats.ActiveConnections.Dec()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.sendConnect()
	})
	group.Go(func() error {
		return c.readLoop(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		c.transport.Close()
		return nil
	})

	return group.Wait()
}

func (c *Client) sendConnect() error {
	cs := c.cfg.cleanStart()
	connect := &packet.Connect{
		ProtocolName:  "MQTT",
		ProtocolLevel: uint8(c.cfg.Broker.ProtocolVersion),
		CleanStart:    cs,
		UsernameFlag:  c.cfg.Broker.Username != "",
		PasswordFlag:  c.cfg.Broker.Password != "",
		Username:      c.cfg.Broker.Username,
		Password:      c.cfg.Broker.Password,
		KeepAlive:     uint16(c.cfg.Broker.KeepAliveSecs),
		ClientID:      c.cfg.Broker.ClientID,
	}
	if connect.ProtocolLevel >= 5 {
		props := &packet.Properties{}
		if c.cfg.Session.TopicAliasMaximum != 0 {
			props.SetTopicAliasMaximum(c.cfg.Session.TopicAliasMaximum)
		}
		if c.cfg.Session.ReceiveMaximum != 0 {
			props.SetReceiveMaximum(c.cfg.Session.ReceiveMaximum)
		}
		if c.cfg.Session.MaxPacketSize != 0 {
			props.SetMaximumPacketSize(c.cfg.Session.MaxPacketSize)
		}
		connect.Properties = props
	}
	c.conn.SetPingrespRecvTimeout(int(c.cfg.Broker.KeepAliveSecs) * 1500)

	c.mu.Lock()
	events := c.conn.Send(connect)
	c.mu.Unlock()
	return c.handleEvents(events)
}

// readLoop feeds bytes from the transport into the engine and processes
// the events it returns, until the transport errors or ctx is cancelled.
func (c *Client) readLoop(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.transport.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, err := c.transport.Read(buf)
		if err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("host: read: %w", err)
		}
		c.stats.BytesReceived.Add(float64(n))

		c.mu.Lock()
		events := c.conn.Recv(buf[:n])
		c.mu.Unlock()
		if err := c.handleEvents(events); err != nil {
			return err
		}
	}
}

// handleEvents executes the host's side of every event the engine
// returned: writing packets, arming/cancelling timers, closing the
// transport, and surfacing received packets and errors to the logger.
func (c *Client) handleEvents(events []engine.Event) error {
	for _, ev := range events {
		switch ev.Kind {
		case engine.RequestSendPacket:
			if err := c.writePacket(ev.Packet); err != nil {
				if ev.HasReleaseID {
					c.mu.Lock()
					c.conn.ReleasePacketID(uint16(ev.ReleasePacketIDIfSendError))
					c.mu.Unlock()
				}
				return err
			}
		case engine.RequestTimerReset:
			c.armTimer(ev.Timer, ev.TimerMs)
		case engine.RequestTimerCancel:
			c.cancelTimer(ev.Timer)
		case engine.RequestClose:
			c.once.Do(func() {
				close(c.closed)
				if c.transport != nil {
					c.transport.Close()
				}
			})
			return errCloseRequested
		case engine.NotifyPacketReceived:
			c.deliver(ev.ReceivedPacket)
		case engine.NotifyPacketIDReleased:
			c.logger.Debug("host: packet id released", "id", ev.ReleasedID)
		case engine.NotifyError:
			c.logger.Error("host: engine error", "kind", ev.Err.Kind.String(), "error", ev.Err)
		}
	}
	return nil
}

func (c *Client) writePacket(p packet.Packet) error {
	body, err := p.Encode(nil)
	if err != nil {
		return fmt.Errorf("host: encode %s: %w", packet.TypeName(p.Type()), err)
	}
	if _, err := c.transport.Write(body); err != nil {
		return fmt.Errorf("host: write %s: %w", packet.TypeName(p.Type()), err)
	}
	c.stats.PacketsSent.Inc()
	c.stats.BytesSent.Add(float64(len(body)))
	c.logger.Debug("host: sent packet", "type", packet.TypeName(p.Type()))
	return nil
}

func (c *Client) deliver(p packet.Packet) {
	c.stats.PacketsReceived.Inc()
	c.logger.Debug("host: received packet", "type", packet.TypeName(p.Type()))
	pub, ok := p.(*packet.Publish)
	if !ok {
		return
	}
	delivered := c.router.dispatch(&Message{Topic: pub.Topic, Payload: pub.Payload, QoS: pub.QoS, Retain: pub.Retain})
	if delivered == 0 && c.onMessage != nil {
		c.onMessage(pub)
	}
}

func (c *Client) armTimer(kind engine.TimerKind, ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[kind]; ok {
		t.Stop()
	}
	c.timers[kind] = time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		c.mu.Lock()
		events := c.conn.NotifyTimerFired(kind)
		c.mu.Unlock()
		c.handleEvents(events)
	})
}

func (c *Client) cancelTimer(kind engine.TimerKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[kind]; ok {
		t.Stop()
		delete(c.timers, kind)
	}
}

// Publish sends a PUBLISH, acquiring a packet id first if the QoS requires
// one.
func (c *Client) Publish(topic string, payload []byte, qos uint8, retain bool) error {
	c.mu.Lock()
	p := &packet.Publish{Topic: topic, Payload: payload, QoS: qos, Retain: retain, Version: c.conn.Version()}
	if qos > 0 {
		id, err := c.conn.AcquirePacketID()
		if err != nil {
			c.mu.Unlock()
			return err
		}
		p.PacketID = id
	}
	events := c.conn.Send(p)
	c.mu.Unlock()
	return c.handleEvents(events)
}

// Subscribe sends a SUBSCRIBE for filter and registers handler to receive
// every PUBLISH whose topic matches it, including wildcards. Multiple
// Subscribe calls with overlapping filters each run independently: a
// PUBLISH on "a/b" fires both an "a/+" and an "a/#" handler if both are
// registered.
func (c *Client) Subscribe(filter string, qos uint8, handler func(*Message)) error {
	c.mu.Lock()
	id, err := c.conn.AcquirePacketID()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	p := &packet.Subscribe{
		PacketID:      id,
		Version:       c.conn.Version(),
		Subscriptions: []packet.SubscriptionOption{{Topic: filter, QoS: qos}},
	}
	events := c.conn.Send(p)
	c.mu.Unlock()
	if err := c.handleEvents(events); err != nil {
		return err
	}
	c.router.add(filter, qos, handler)
	return nil
}

// Unsubscribe sends an UNSUBSCRIBE for filter and stops routing PUBLISHes
// to handlers registered for it.
func (c *Client) Unsubscribe(filter string) error {
	c.mu.Lock()
	id, err := c.conn.AcquirePacketID()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	p := &packet.Unsubscribe{PacketID: id, Version: c.conn.Version(), Topics: []string{filter}}
	events := c.conn.Send(p)
	c.mu.Unlock()
	if err := c.handleEvents(events); err != nil {
		return err
	}
	c.router.removeFilter(filter)
	return nil
}

// Disconnect sends a DISCONNECT and closes the transport. The close the
// engine requests after the DISCONNECT is expected and is not reported as
// an error.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	d := &packet.Disconnect{Version: c.conn.Version(), ReasonCode: packet.ReasonNormalDisconnect}
	events := c.conn.Send(d)
	c.mu.Unlock()
	if err := c.handleEvents(events); err != nil && !errors.Is(err, errCloseRequested) {
		return err
	}
	return nil
}
