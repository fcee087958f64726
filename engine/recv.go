package engine

import (
	"github.com/gonzalop/mqttengine/framer"
	"github.com/gonzalop/mqttengine/packet"
)

// Recv implements the recv(bytes) entry point (§4.G.2): feeds the framer,
// and for every packet it completes, dispatches by version and type,
// running the per-type state transition before notifying the host.
func (c *Connection) Recv(data []byte) []Event {
	raws, err := c.builder.Feed(data)
	if err != nil {
		events := c.sendDisconnectOrClose(MalformedPacket)
		return append(events, evError(MalformedPacket, "%s", err))
	}

	var events []Event
	for _, raw := range raws {
		events = append(events, c.dispatchRaw(raw)...)
	}
	return events
}

func (c *Connection) dispatchRaw(raw framer.Raw) []Event {
	total := 1 + packet.VarIntLen(raw.Header.RemainingLength) + raw.Header.RemainingLength
	if uint32(total) > c.maxPacketSizeRecv {
		events := c.sendDisconnectOrClose(PacketTooLarge)
		return append(events, evError(PacketTooLarge, "incoming %s is %d bytes, exceeds recv cap %d", packet.TypeName(raw.Header.Type), total, c.maxPacketSizeRecv))
	}

	version := c.version
	if version == packet.Undetermined && raw.Header.Type == packet.CONNECT {
		if len(raw.Body) > 7 {
			version = packet.Version(raw.Body[7])
		}
	}

	p, err := packet.Decode(raw.Header, raw.Body, version)
	if err != nil {
		return c.decodeFailure(raw.Header.Type, err)
	}

	return c.dispatchDecoded(p)
}

func (c *Connection) decodeFailure(kind uint8, err error) []Event {
	if kind == packet.CONNECT && c.role != RoleClient {
		ack := &packet.Connack{ReasonCode: mapDecodeErrorToConnackReason(err)}
		events := []Event{evSend(ack)}
		events = append(events, c.failConnecting()...)
		events = append(events, evClose())
		events = append(events, evError(MalformedPacket, "%s", err))
		return events
	}
	events := c.sendDisconnectOrClose(MalformedPacket)
	return append(events, evError(MalformedPacket, "%s", err))
}

func mapDecodeErrorToConnackReason(error) uint8 {
	return packet.ConnRefusedUnacceptableProtocol
}

func (c *Connection) dispatchDecoded(p packet.Packet) []Event {
	switch v := p.(type) {
	case *packet.Connect:
		return c.recvConnect(v)
	case *packet.Connack:
		return c.recvConnack(v)
	case *packet.Publish:
		events := c.armPingreqRecv()
		return append(events, c.handleIncomingPublish(v)...)
	case *packet.Ack:
		events := c.armPingreqRecv()
		switch v.Type() {
		case packet.PUBACK:
			return append(events, c.handlePuback(v)...)
		case packet.PUBREC:
			return append(events, c.handlePubrec(v)...)
		case packet.PUBREL:
			return append(events, c.handlePubrel(v)...)
		case packet.PUBCOMP:
			return append(events, c.handlePubcomp(v)...)
		}
		return events
	case *packet.Subscribe:
		return append(c.armPingreqRecv(), evReceived(v))
	case *packet.Suback:
		delete(c.awaitingSuback, v.PacketID)
		c.pids.Release(v.PacketID)
		return []Event{evIDReleased(uint32(v.PacketID)), evReceived(v)}
	case *packet.Unsubscribe:
		return append(c.armPingreqRecv(), evReceived(v))
	case *packet.Unsuback:
		delete(c.awaitingUnsuback, v.PacketID)
		c.pids.Release(v.PacketID)
		return []Event{evIDReleased(uint32(v.PacketID)), evReceived(v)}
	case *packet.Pingreq:
		events := c.armPingreqRecv()
		events = append(events, evReceived(v))
		if c.autoPingResponse && c.status == Connected {
			events = append(events, evSend(&packet.Pingresp{}))
		}
		return events
	case *packet.Pingresp:
		var events []Event
		if c.pingrespRecvSet {
			c.pingrespRecvSet = false
			events = append(events, evTimerCancel(PingrespRecv))
		}
		events = append(events, evReceived(v))
		return events
	case *packet.Disconnect:
		events := c.closeConnected()
		return append(events, evReceived(v), evClose())
	case *packet.Auth:
		return append(c.armPingreqRecv(), evReceived(v))
	default:
		return []Event{evReceived(p)}
	}
}

func (c *Connection) recvConnect(p *packet.Connect) []Event {
	if p.KeepAlive != 0 {
		c.pingreqRecvTimeoutMs = keepAliveRecvTimeoutMs(p.KeepAlive)
	}
	events := c.enterConnecting(false, p.CleanStart)
	c.version = versionFromLevel(p.ProtocolLevel)
	if p.Properties != nil {
		c.needStore = c.needStore || p.Properties.SessionExpiryInterval != 0
		// The client's TopicAliasMaximum bounds how many aliases WE (the
		// server) may use when sending PUBLISH to it.
		if taMax := p.Properties.TopicAliasMaximum; taMax != 0 {
			c.topicAliasSend = newSendAliasTable(taMax)
		}
		if rm := p.Properties.ReceiveMaximum; rm != 0 {
			c.publishSendMax = rm
		}
		if mps := p.Properties.MaximumPacketSize; mps != 0 {
			c.maxPacketSizeSend = mps
		}
	} else if !p.CleanStart {
		c.needStore = true
	}
	return append(events, evReceived(p))
}

func (c *Connection) recvConnack(p *packet.Connack) []Event {
	if p.ReasonCode == packet.ConnAccepted {
		events := c.absorbConnackRecv(p.Properties, p.SessionPresent)
		return append(events, evReceived(p))
	}
	events := c.failConnecting()
	return append(events, evReceived(p))
}
