package engine

import "github.com/gonzalop/mqttengine/packet"

// Send implements the send(packet) entry point (§4.G.3): validates role
// and version admission, validates size against maximum_packet_size_send,
// performs per-type bookkeeping, and emits RequestSendPacket.
func (c *Connection) Send(p packet.Packet) []Event {
	if err := c.admitSend(p); err != nil {
		return []Event{{Kind: NotifyError, Err: err.(*Error)}}
	}

	if v, ok := packetVersion(p); ok && c.version != packet.Undetermined && v != c.version {
		return []Event{evError(PacketNotAllowedToSend, "packet version %d disagrees with negotiated version %d", v, c.version)}
	}

	if !c.admitSendByState(p) {
		return []Event{evError(PacketNotAllowedToSend, "%s not permitted in state %s", packet.TypeName(p.Type()), c.status)}
	}

	encoded, err := p.Encode(nil)
	if err != nil {
		return []Event{evError(MalformedPacket, "%s", err)}
	}
	if uint32(len(encoded)) > c.maxPacketSizeSend {
		return []Event{evError(PacketTooLarge, "%s is %d bytes, exceeds send cap %d", packet.TypeName(p.Type()), len(encoded), c.maxPacketSizeSend)}
	}

	switch v := p.(type) {
	case *packet.Connect:
		return c.sendConnect(v)
	case *packet.Connack:
		return c.sendConnack(v)
	case *packet.Publish:
		return c.sendPublish(v)
	case *packet.Ack:
		return c.sendAck(v)
	case *packet.Subscribe:
		c.awaitingSuback[v.PacketID] = struct{}{}
		return c.finishSend(v)
	case *packet.Unsubscribe:
		c.awaitingUnsuback[v.PacketID] = struct{}{}
		return c.finishSend(v)
	case *packet.Disconnect:
		return c.sendDisconnect(v)
	case *packet.Pingreq:
		events := c.finishSend(v)
		if c.pingrespRecvTimeoutMs > 0 {
			c.pingrespRecvSet = true
			events = append(events, evTimerReset(PingrespRecv, c.pingrespRecvTimeoutMs))
		}
		return events
	default:
		return c.finishSend(p)
	}
}

// admitSendByState rejects packets the current Status does not permit,
// beyond role admission. CONNECT/CONNACK drive their own transitions so
// are exempt here.
func (c *Connection) admitSendByState(p packet.Packet) bool {
	switch p.Type() {
	case packet.CONNECT, packet.CONNACK, packet.DISCONNECT, packet.AUTH:
		return true
	default:
		return c.status != Disconnected || (c.needStore && c.offlinePublish && p.Type() == packet.PUBLISH)
	}
}

func packetVersion(p packet.Packet) (packet.Version, bool) {
	switch v := p.(type) {
	case *packet.Publish:
		return v.Version, true
	case *packet.Ack:
		return v.Version, true
	case *packet.Subscribe:
		return v.Version, true
	case *packet.Suback:
		return v.Version, true
	case *packet.Unsubscribe:
		return v.Version, true
	case *packet.Unsuback:
		return v.Version, true
	case *packet.Disconnect:
		return v.Version, true
	default:
		return packet.Undetermined, false
	}
}

func (c *Connection) finishSend(p packet.Packet) []Event {
	events := []Event{evSend(p)}
	events = append(events, c.armPingreqSend()...)
	if c.role != RoleClient {
		events = append(events, c.armPingreqRecv()...)
	}
	return events
}

func (c *Connection) sendConnect(p *packet.Connect) []Event {
	events := c.enterConnecting(true, p.CleanStart)
	c.version = versionFromLevel(p.ProtocolLevel)
	if p.KeepAlive != 0 {
		c.pingreqSendIntervalMs = int(p.KeepAlive) * 1000
	}
	if p.Properties != nil {
		c.needStore = c.needStore || p.Properties.SessionExpiryInterval != 0
		// Our own TopicAliasMaximum bounds how many aliases the peer may
		// use when sending PUBLISH to us.
		if taMax := p.Properties.TopicAliasMaximum; taMax != 0 {
			c.topicAliasRecv = newRecvAliasTable(taMax)
		}
		if mps := p.Properties.MaximumPacketSize; mps != 0 {
			c.maxPacketSizeRecv = mps
		}
	} else if !p.CleanStart {
		c.needStore = true
	}
	return append(events, evSend(p))
}

func (c *Connection) sendConnack(p *packet.Connack) []Event {
	if p.Properties != nil {
		if taMax := p.Properties.TopicAliasMaximum; taMax != 0 {
			c.topicAliasRecv = newRecvAliasTable(taMax)
		}
	}
	if p.ReasonCode == packet.ConnAccepted {
		events := c.absorbConnackSend(p.Properties, p.SessionPresent)
		return append([]Event{evSend(p)}, events...)
	}
	events := c.failConnecting()
	return append([]Event{evSend(p)}, events...)
}

func (c *Connection) sendPublish(p *packet.Publish) []Event {
	if events, reject := c.prepareOutgoingPublish(p); reject {
		return events
	}
	id := uint32(0)
	hasID := false
	if p.QoS > 0 {
		id, hasID = uint32(p.PacketID), true
	} else if _, ok := c.releaseOnError[p.PacketID]; ok {
		id, hasID = uint32(p.PacketID), true
	}
	ev := evSend(p)
	if hasID {
		ev = evSendWithRelease(p, id)
	}
	events := []Event{ev}
	events = append(events, c.armPingreqSend()...)
	return events
}

func (c *Connection) sendAck(a *packet.Ack) []Event {
	if a.Type() == packet.PUBCOMP {
		delete(c.publishRecv, a.PacketID)
	}
	return c.finishSend(a)
}

func (c *Connection) sendDisconnect(d *packet.Disconnect) []Event {
	events := []Event{evSend(d)}
	events = append(events, c.closeConnected()...)
	events = append(events, evClose())
	return events
}

func versionFromLevel(level uint8) packet.Version {
	if level >= 5 {
		return packet.V5
	}
	return packet.V311
}
