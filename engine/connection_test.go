package engine

import (
	"testing"

	"github.com/gonzalop/mqttengine/packet"
)

func findEvent(events []Event, kind EventKind) (Event, bool) {
	for _, ev := range events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

func findTimerEvent(events []Event, kind EventKind, timer TimerKind) (Event, bool) {
	for _, ev := range events {
		if ev.Kind == kind && ev.Timer == timer {
			return ev, true
		}
	}
	return Event{}, false
}

func countEvents(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// wireBytes encodes p and returns the exact bytes a peer would put on the
// wire, for feeding into Recv.
func wireBytes(t *testing.T, p packet.Packet) []byte {
	t.Helper()
	wire, err := p.Encode(nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return wire
}

func TestClientConnectHandshake(t *testing.T) {
	c := New(RoleClient)
	connect := &packet.Connect{ProtocolName: "MQTT", ProtocolLevel: 4, CleanStart: true, ClientID: "c1", KeepAlive: 30}

	events := c.Send(connect)
	if c.Status() != Connecting {
		t.Fatalf("Status() = %v, want Connecting", c.Status())
	}
	if ev, ok := findEvent(events, RequestSendPacket); !ok || ev.Packet != packet.Packet(connect) {
		t.Fatalf("Send(CONNECT) did not request sending the CONNECT packet: %+v", events)
	}

	connack := &packet.Connack{ReasonCode: packet.ConnAccepted}
	events = c.Recv(wireBytes(t, connack))
	if c.Status() != Connected {
		t.Fatalf("Status() after CONNACK = %v, want Connected", c.Status())
	}
	if _, ok := findEvent(events, NotifyPacketReceived); !ok {
		t.Fatalf("Recv(CONNACK) did not notify the received packet: %+v", events)
	}
}

func TestServerReceivesConnectAndAccepts(t *testing.T) {
	s := New(RoleServer)
	connect := &packet.Connect{ProtocolName: "MQTT", ProtocolLevel: 5, CleanStart: true, ClientID: "c2"}

	events := s.Recv(wireBytes(t, connect))
	if s.Status() != Connecting {
		t.Fatalf("Status() = %v, want Connecting", s.Status())
	}
	if s.Version() != packet.V5 {
		t.Fatalf("Version() = %v, want V5", s.Version())
	}
	if _, ok := findEvent(events, NotifyPacketReceived); !ok {
		t.Fatalf("Recv(CONNECT) did not notify the received packet: %+v", events)
	}

	events = s.Send(&packet.Connack{ReasonCode: packet.ConnAccepted})
	if s.Status() != Connected {
		t.Fatalf("Status() after sending CONNACK = %v, want Connected", s.Status())
	}
	if _, ok := findEvent(events, RequestSendPacket); !ok {
		t.Fatalf("Send(CONNACK) did not request sending it: %+v", events)
	}
}

func TestClientCannotSendServerOnlyPacket(t *testing.T) {
	c := New(RoleClient)
	events := c.Send(&packet.Connack{ReasonCode: packet.ConnAccepted})
	ev, ok := findEvent(events, NotifyError)
	if !ok || ev.Err.Kind != PacketNotAllowedToSend {
		t.Fatalf("Send(CONNACK) from a client = %+v, want a PacketNotAllowedToSend error", events)
	}
}

func connectedClient(t *testing.T, version packet.Version) *Connection {
	t.Helper()
	c := New(RoleClient)
	level := uint8(4)
	if version == packet.V5 {
		level = 5
	}
	c.Send(&packet.Connect{ProtocolName: "MQTT", ProtocolLevel: level, CleanStart: true, ClientID: "c", KeepAlive: 30})
	c.Recv(wireBytes(t, &packet.Connack{ReasonCode: packet.ConnAccepted}))
	if c.Status() != Connected {
		t.Fatalf("connectedClient: Status() = %v, want Connected", c.Status())
	}
	return c
}

func TestQoS1PublishRoundTrip(t *testing.T) {
	c := connectedClient(t, packet.V311)

	id, err := c.AcquirePacketID()
	if err != nil {
		t.Fatalf("AcquirePacketID() error = %v", err)
	}
	pub := &packet.Publish{Topic: "a/b", Payload: []byte("hi"), QoS: packet.QoS1, PacketID: id, Version: packet.V311}
	events := c.Send(pub)
	sendEv, ok := findEvent(events, RequestSendPacket)
	if !ok || !sendEv.HasReleaseID {
		t.Fatalf("Send(QoS1 PUBLISH) = %+v, want a RequestSendPacket with a release id", events)
	}
	if !c.pids.InUse(id) {
		t.Fatal("packet id was released before the PUBACK arrived")
	}

	ack := packet.NewPuback()
	ack.PacketID = id
	ack.Version = packet.V311
	events = c.Recv(wireBytes(t, ack))
	if _, ok := findEvent(events, NotifyPacketIDReleased); !ok {
		t.Fatalf("Recv(PUBACK) = %+v, want a NotifyPacketIDReleased event", events)
	}
	if c.pids.InUse(id) {
		t.Fatal("packet id still in use after PUBACK")
	}
}

func TestQoS2PublishFullHandshake(t *testing.T) {
	c := connectedClient(t, packet.V311)

	id, _ := c.AcquirePacketID()
	pub := &packet.Publish{Topic: "a/b", Payload: []byte("hi"), QoS: packet.QoS2, PacketID: id, Version: packet.V311}
	c.Send(pub)

	pubrec := packet.NewPubrec()
	pubrec.PacketID = id
	pubrec.Version = packet.V311
	events := c.Recv(wireBytes(t, pubrec))
	// autoPubResponse defaults to true: receiving PUBREC must trigger the
	// engine to send PUBREL on its own.
	sendEv, ok := findEvent(events, RequestSendPacket)
	if !ok {
		t.Fatalf("Recv(PUBREC) = %+v, want an automatic PUBREL send", events)
	}
	pubrel, ok := sendEv.Packet.(*packet.Ack)
	if !ok || pubrel.Type() != packet.PUBREL {
		t.Fatalf("auto-response to PUBREC sent %T, want PUBREL", sendEv.Packet)
	}

	pubcomp := packet.NewPubcomp()
	pubcomp.PacketID = id
	pubcomp.Version = packet.V311
	events = c.Recv(wireBytes(t, pubcomp))
	if _, ok := findEvent(events, NotifyPacketIDReleased); !ok {
		t.Fatalf("Recv(PUBCOMP) = %+v, want the packet id released", events)
	}
	if c.pids.InUse(id) {
		t.Fatal("packet id still in use after PUBCOMP")
	}
}

func TestQoS1IncomingPublishAutoAcks(t *testing.T) {
	c := connectedClient(t, packet.V311)

	pub := &packet.Publish{Topic: "x/y", Payload: []byte("z"), QoS: packet.QoS1, PacketID: 7, Version: packet.V311}
	events := c.Recv(wireBytes(t, pub))

	if _, ok := findEvent(events, NotifyPacketReceived); !ok {
		t.Fatalf("Recv(QoS1 PUBLISH) = %+v, want the packet surfaced", events)
	}
	sendEv, ok := findEvent(events, RequestSendPacket)
	if !ok {
		t.Fatalf("Recv(QoS1 PUBLISH) = %+v, want an automatic PUBACK", events)
	}
	ack, ok := sendEv.Packet.(*packet.Ack)
	if !ok || ack.Type() != packet.PUBACK || ack.PacketID != 7 {
		t.Fatalf("auto-ack = %+v, want PUBACK for id 7", sendEv.Packet)
	}
}

func TestVersionMismatchRejected(t *testing.T) {
	c := connectedClient(t, packet.V5)
	// c negotiated v5; sending a packet explicitly tagged v3.1.1 must be
	// rejected rather than silently sent under the wrong version.
	d := &packet.Disconnect{Version: packet.V311, ReasonCode: packet.ReasonNormalDisconnect}
	events := c.Send(d)
	ev, ok := findEvent(events, NotifyError)
	if !ok || ev.Err.Kind != PacketNotAllowedToSend {
		t.Fatalf("Send() with mismatched version = %+v, want PacketNotAllowedToSend", events)
	}
}

func TestAuthRejectedUnderV311(t *testing.T) {
	c := connectedClient(t, packet.V311)
	events := c.Send(&packet.Auth{})
	ev, ok := findEvent(events, NotifyError)
	if !ok || ev.Err.Kind != PacketNotAllowedToSend {
		t.Fatalf("Send(AUTH) under v3.1.1 = %+v, want PacketNotAllowedToSend", events)
	}
}

func TestPayloadFormatValidationRejectsInvalidUTF8(t *testing.T) {
	c := connectedClient(t, packet.V5)

	id, _ := c.AcquirePacketID()
	props := &packet.Properties{}
	props.SetPayloadFormatIndicator(1)

	pub := &packet.Publish{
		Topic: "a/b", Payload: []byte{0xff, 0xfe}, QoS: packet.QoS1, PacketID: id,
		Version: packet.V5, Properties: props,
	}
	events := c.Send(pub)
	ev, ok := findEvent(events, NotifyError)
	if !ok || ev.Err.Kind != MalformedPacket {
		t.Fatalf("Send(invalid UTF-8 PUBLISH) = %+v, want MalformedPacket", events)
	}
	if c.pids.InUse(id) {
		t.Fatal("packet id was not released on payload format rejection")
	}
}

func TestNotifyClosedReleasesAwaitingIDs(t *testing.T) {
	c := connectedClient(t, packet.V311)
	id, _ := c.AcquirePacketID()
	pub := &packet.Publish{Topic: "a", Payload: []byte("x"), QoS: packet.QoS1, PacketID: id, Version: packet.V311}
	c.Send(pub)

	events := c.NotifyClosed()
	if c.Status() != Disconnected {
		t.Fatalf("Status() after NotifyClosed = %v, want Disconnected", c.Status())
	}
	if countEvents(events, RequestTimerCancel) == 0 {
		t.Fatalf("NotifyClosed() = %+v, want timer cancellations", events)
	}
	if c.pids.InUse(id) {
		t.Fatal("packet id still in use after NotifyClosed with needStore=false")
	}
}

func TestQoS2IncomingPublishTracksAndReleasesPublishRecv(t *testing.T) {
	c := connectedClient(t, packet.V311)

	pub := &packet.Publish{Topic: "a/b", Payload: []byte("x"), QoS: packet.QoS2, PacketID: 3, Version: packet.V311}
	c.Recv(wireBytes(t, pub))
	if _, ok := c.publishRecv[3]; !ok {
		t.Fatal("Recv(QoS2 PUBLISH) did not track the id in publishRecv")
	}

	pubrel := packet.NewPubrel()
	pubrel.PacketID = 3
	pubrel.Version = packet.V311
	c.Recv(wireBytes(t, pubrel))
	if _, ok := c.publishRecv[3]; ok {
		t.Fatal("Recv(PUBREL) left the id in publishRecv after the auto PUBCOMP was sent")
	}
}

func TestServerRecvConnectAbsorbsMaximumPacketSize(t *testing.T) {
	s := New(RoleServer)
	props := &packet.Properties{}
	props.SetMaximumPacketSize(2048)
	connect := &packet.Connect{ProtocolName: "MQTT", ProtocolLevel: 5, CleanStart: true, ClientID: "c", Properties: props}

	s.Recv(wireBytes(t, connect))
	if s.maxPacketSizeSend != 2048 {
		t.Fatalf("maxPacketSizeSend = %d, want 2048 (tightened from the client's CONNECT)", s.maxPacketSizeSend)
	}
}

func TestClientSendConnectAbsorbsMaximumPacketSize(t *testing.T) {
	c := New(RoleClient)
	props := &packet.Properties{}
	props.SetMaximumPacketSize(4096)
	connect := &packet.Connect{ProtocolName: "MQTT", ProtocolLevel: 5, CleanStart: true, ClientID: "c", Properties: props}

	c.Send(connect)
	if c.maxPacketSizeRecv != 4096 {
		t.Fatalf("maxPacketSizeRecv = %d, want 4096 (declared by our own CONNECT)", c.maxPacketSizeRecv)
	}
}

func TestServerSendConnackAbsorbsReceiveSideLimitsOnly(t *testing.T) {
	s := New(RoleServer)
	clientConnect := &packet.Connect{ProtocolName: "MQTT", ProtocolLevel: 5, CleanStart: true, ClientID: "c"}
	clientConnect.Properties = &packet.Properties{}
	clientConnect.Properties.SetTopicAliasMaximum(10)
	s.Recv(wireBytes(t, clientConnect))

	if s.topicAliasSend == nil {
		t.Fatal("recvConnect did not build the send alias table from the client's TopicAliasMaximum")
	}

	ackProps := &packet.Properties{}
	ackProps.SetReceiveMaximum(5)
	ackProps.SetMaximumPacketSize(1024)
	s.Send(&packet.Connack{ReasonCode: packet.ConnAccepted, Properties: ackProps})

	if s.publishRecvMax != 5 {
		t.Fatalf("publishRecvMax = %d, want 5 (our own CONNACK ReceiveMaximum)", s.publishRecvMax)
	}
	if s.maxPacketSizeRecv != 1024 {
		t.Fatalf("maxPacketSizeRecv = %d, want 1024 (our own CONNACK MaximumPacketSize)", s.maxPacketSizeRecv)
	}
	if s.topicAliasSend == nil {
		t.Fatal("sending our own CONNACK stomped the send alias table built from the client's CONNECT")
	}
	if s.publishSendMax != 0 {
		t.Fatalf("publishSendMax = %d, want 0 (our own CONNACK properties must not set send-side limits)", s.publishSendMax)
	}
}

func TestPingreqArmsPingrespWatchdog(t *testing.T) {
	c := connectedClient(t, packet.V311)
	c.SetPingrespRecvTimeout(5000)

	events := c.Send(&packet.Pingreq{})
	if _, ok := findTimerEvent(events, RequestTimerReset, PingrespRecv); !ok {
		t.Fatalf("Send(PINGREQ) = %+v, want a PingrespRecv timer reset", events)
	}

	events = c.Recv(wireBytes(t, &packet.Pingresp{}))
	if _, ok := findTimerEvent(events, RequestTimerCancel, PingrespRecv); !ok {
		t.Fatalf("Recv(PINGRESP) = %+v, want the watchdog cancelled", events)
	}
}
