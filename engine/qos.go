package engine

import (
	"unicode/utf8"

	"github.com/gonzalop/mqttengine/packet"
)

// prepareOutgoingPublish implements the §4.G.4 send-side QoS 1/2 protocol.
// It runs after admission and size checks but before the packet is
// emitted, and may itself produce events (e.g. a rejection) that should
// be returned instead of the send.
func (c *Connection) prepareOutgoingPublish(p *packet.Publish) (events []Event, reject bool) {
	if c.version == packet.V5 && p.Properties != nil && p.Properties.HasPayloadFormatIndicator() &&
		p.Properties.PayloadFormatIndicator == 1 && !utf8.Valid(p.Payload) {
		if p.QoS > 0 {
			c.pids.Release(p.PacketID)
			return append(
				[]Event{evError(MalformedPacket, "PUBLISH payload is not valid UTF-8 as required by PayloadFormatIndicator")},
				evIDReleased(uint32(p.PacketID)),
			), true
		}
		return []Event{evError(MalformedPacket, "PUBLISH payload is not valid UTF-8 as required by PayloadFormatIndicator")}, true
	}

	if p.QoS > 0 {
		canSendOffline := c.needStore && c.offlinePublish
		if c.status != Connected && !canSendOffline {
			c.pids.Release(p.PacketID)
			return append(
				[]Event{evError(PacketNotAllowedToSend, "PUBLISH qos=%d requires a Connected connection", p.QoS)},
				evIDReleased(uint32(p.PacketID)),
			), true
		}
		if !c.pids.InUse(p.PacketID) {
			return []Event{evError(PacketIdentifierInvalid, "packet id %d is not allocated", p.PacketID)}, true
		}

		storeEligible := c.needStore && !(c.status == Disconnected && !c.offlinePublish)
		if storeEligible {
			regulated, err := c.regulateForStore(p)
			if err != nil {
				c.pids.Release(p.PacketID)
				return append([]Event{evError(PacketNotAllowedToSend, "%s", err)}, evIDReleased(uint32(p.PacketID))), true
			}
			c.store.putPublish(p.PacketID, regulated)
		} else {
			c.releaseOnError[p.PacketID] = struct{}{}
		}

		if p.QoS == packet.QoS2 {
			c.qos2PublishProcessing[p.PacketID] = struct{}{}
			c.awaitingPubrec[p.PacketID] = struct{}{}
		} else {
			c.awaitingPuback[p.PacketID] = struct{}{}
		}

		if c.version == packet.V5 && c.publishSendMax != 0 {
			if c.publishSendCount >= c.publishSendMax {
				c.pids.Release(p.PacketID)
				delete(c.awaitingPuback, p.PacketID)
				delete(c.awaitingPubrec, p.PacketID)
				delete(c.qos2PublishProcessing, p.PacketID)
				c.store.remove(p.PacketID)
				return append([]Event{evError(ReceiveMaximumExceeded, "publish_send_max reached")}, evIDReleased(uint32(p.PacketID))), true
			}
			c.publishSendCount++
		}
	}

	if c.version == packet.V5 {
		if err := c.applySendTopicAlias(p); err != nil {
			if p.QoS > 0 {
				c.pids.Release(p.PacketID)
				return append([]Event{evError(PacketNotAllowedToSend, "%s", err)}, evIDReleased(uint32(p.PacketID))), true
			}
			return []Event{evError(PacketNotAllowedToSend, "%s", err)}, true
		}
	}

	return nil, false
}

// applySendTopicAlias implements the manual and auto alias-mapping policy
// of §4.G.4's last bullet.
func (c *Connection) applySendTopicAlias(p *packet.Publish) error {
	if c.topicAliasSend == nil {
		return nil
	}
	hasAlias := p.Properties != nil && p.Properties.HasTopicAlias()

	if p.Topic != "" && hasAlias {
		alias := p.Properties.TopicAlias
		if alias < 1 || alias > c.topicAliasSend.max {
			return newError(TopicAliasInvalid, "alias %d out of range", alias)
		}
		c.topicAliasSend.InsertOrUpdate(p.Topic, alias)
		return nil
	}

	if p.Topic != "" && !hasAlias && (c.autoMapTopicAliasSend || c.autoReplaceTopicAlias) {
		if alias, ok := c.topicAliasSend.FindByTopic(p.Topic); ok {
			p.SubstituteTopicWithAlias(alias)
			c.topicAliasSend.Get(alias)
			return nil
		}
		if c.autoMapTopicAliasSend {
			alias := c.topicAliasSend.GetLRUAlias()
			c.topicAliasSend.InsertOrUpdate(p.Topic, alias)
			p.SubstituteTopicWithAlias(alias)
		}
	}
	return nil
}

// handlePuback implements the recv-side of the QoS 1 send protocol.
func (c *Connection) handlePuback(ack *packet.Ack) []Event {
	id := ack.PacketID
	if _, ok := c.awaitingPuback[id]; !ok {
		return c.protocolViolation("PUBACK for id %d not awaited", id)
	}
	delete(c.awaitingPuback, id)
	c.store.remove(id)
	delete(c.releaseOnError, id)
	if c.publishSendMax != 0 && c.publishSendCount > 0 {
		c.publishSendCount--
	}
	c.pids.Release(id)
	return []Event{evIDReleased(uint32(id)), evReceived(ack)}
}

// handlePubrec implements the recv-side of the QoS 2 send protocol's first
// acknowledgement.
func (c *Connection) handlePubrec(ack *packet.Ack) []Event {
	id := ack.PacketID
	if _, ok := c.awaitingPubrec[id]; !ok {
		return c.protocolViolation("PUBREC for id %d not awaited", id)
	}
	delete(c.awaitingPubrec, id)

	if c.version == packet.V5 && ack.ReasonCode >= 0x80 {
		delete(c.qos2PublishProcessing, id)
		c.store.remove(id)
		if c.publishSendMax != 0 && c.publishSendCount > 0 {
			c.publishSendCount--
		}
		c.pids.Release(id)
		return []Event{evIDReleased(uint32(id)), evReceived(ack)}
	}

	events := []Event{evReceived(ack)}
	if c.autoPubResponse {
		events = append(events, c.sendPubrel(id)...)
	}
	return events
}

// sendPubrel implements the send side of a QoS 2 PUBREL, manual or
// triggered by auto_pub_response.
func (c *Connection) sendPubrel(id uint16) []Event {
	if !c.pids.InUse(id) {
		return []Event{evError(PacketIdentifierInvalid, "packet id %d is not allocated", id)}
	}
	if c.needStore {
		c.store.putPubrel(id)
	}
	c.awaitingPubcomp[id] = struct{}{}
	pubrel := packet.NewPubrel()
	pubrel.PacketID = id
	pubrel.Version = c.version
	return []Event{evSend(pubrel)}
}

// handlePubcomp implements the final acknowledgement of the QoS 2 send
// protocol.
func (c *Connection) handlePubcomp(ack *packet.Ack) []Event {
	id := ack.PacketID
	if _, ok := c.awaitingPubcomp[id]; !ok {
		return c.protocolViolation("PUBCOMP for id %d not awaited", id)
	}
	delete(c.awaitingPubcomp, id)
	c.store.remove(id)
	delete(c.qos2PublishProcessing, id)
	if c.publishSendMax != 0 && c.publishSendCount > 0 {
		c.publishSendCount--
	}
	c.pids.Release(id)
	return []Event{evIDReleased(uint32(id)), evReceived(ack)}
}

// handleIncomingPublish implements the §4.G.5 recv-side QoS 1/2 protocol,
// including v5 topic-alias resolution.
func (c *Connection) handleIncomingPublish(p *packet.Publish) []Event {
	if c.version == packet.V5 {
		if events, fatal := c.resolveRecvTopicAlias(p); fatal {
			return events
		}
	}

	switch p.QoS {
	case packet.QoS0:
		return []Event{evReceived(p)}

	case packet.QoS1:
		if c.publishRecvMax != 0 && uint16(len(c.publishRecv)) >= c.publishRecvMax {
			return c.receiveMaximumExceeded()
		}
		c.publishRecv[p.PacketID] = struct{}{}
		events := []Event{evReceived(p)}
		if c.autoPubResponse && c.status == Connected {
			ack := packet.NewPuback()
			ack.PacketID = p.PacketID
			ack.Version = c.version
			events = append(events, evSend(ack))
		}
		return events

	case packet.QoS2:
		if c.publishRecvMax != 0 && uint16(len(c.publishRecv)) >= c.publishRecvMax {
			return c.receiveMaximumExceeded()
		}
		c.publishRecv[p.PacketID] = struct{}{}
		_, duplicate := c.qos2PublishHandled[p.PacketID]
		c.qos2PublishHandled[p.PacketID] = struct{}{}

		var events []Event
		if !duplicate {
			events = append(events, evReceived(p))
		}
		if c.autoPubResponse || duplicate {
			ack := packet.NewPubrec()
			ack.PacketID = p.PacketID
			ack.Version = c.version
			events = append(events, evSend(ack))
		}
		return events

	default:
		return []Event{evError(MalformedPacket, "PUBLISH has invalid QoS %d", p.QoS)}
	}
}

// resolveRecvTopicAlias implements the v5 topic-alias resolution that runs
// before any acknowledgement is considered (§4.G.5).
func (c *Connection) resolveRecvTopicAlias(p *packet.Publish) (events []Event, fatal bool) {
	hasAlias := p.Properties != nil && p.Properties.HasTopicAlias()

	if p.Topic == "" {
		if !hasAlias || c.topicAliasRecv == nil {
			return c.topicAliasFailure(), true
		}
		alias := p.Properties.TopicAlias
		if alias < 1 || alias > c.topicAliasRecv.max {
			return c.topicAliasFailure(), true
		}
		topic, ok := c.topicAliasRecv.Lookup(alias)
		if !ok {
			return c.topicAliasFailure(), true
		}
		if err := p.AddExtractedTopicName(topic); err != nil {
			return c.topicAliasFailure(), true
		}
		return nil, false
	}

	if hasAlias {
		alias := p.Properties.TopicAlias
		if c.topicAliasRecv == nil || alias < 1 {
			return c.topicAliasFailure(), true
		}
		c.topicAliasRecv.InsertOrUpdate(alias, p.Topic)
	}
	return nil, false
}

func (c *Connection) topicAliasFailure() []Event {
	events := c.sendDisconnectOrClose(TopicAliasInvalid)
	return append(events, evError(TopicAliasInvalid, "unresolvable or invalid topic alias"))
}

func (c *Connection) receiveMaximumExceeded() []Event {
	events := c.sendDisconnectOrClose(ReceiveMaximumExceeded)
	return append(events, evError(ReceiveMaximumExceeded, "publish_recv_max reached"))
}

// handlePubrel implements the recv side of a peer-originated QoS 2 PUBREL.
func (c *Connection) handlePubrel(ack *packet.Ack) []Event {
	delete(c.qos2PublishHandled, ack.PacketID)
	events := []Event{evReceived(ack)}
	if c.autoPubResponse && c.status == Connected {
		delete(c.publishRecv, ack.PacketID)
		comp := packet.NewPubcomp()
		comp.PacketID = ack.PacketID
		comp.Version = c.version
		events = append(events, evSend(comp))
	}
	return events
}

// protocolViolation implements the §4.G.9 failure path for a
// protocol-error detected mid-stream while processing an acknowledgement.
func (c *Connection) protocolViolation(format string, args ...any) []Event {
	events := c.sendDisconnectOrClose(ProtocolError)
	return append(events, evError(ProtocolError, format, args...))
}

// sendDisconnectOrClose implements the shared §4.G.9 rule: a Connected v5
// connection gets a DISCONNECT with the mapped reason before closing;
// everyone else just gets a close request.
func (c *Connection) sendDisconnectOrClose(kind ErrorKind) []Event {
	if c.version == packet.V5 && c.status == Connected {
		d := &packet.Disconnect{ReasonCode: reasonCodeFor(kind), Version: c.version}
		events := []Event{evSend(d)}
		events = append(events, c.closeConnected()...)
		events = append(events, evClose())
		return events
	}
	events := []Event{evClose()}
	events = append(events, c.closeConnected()...)
	return events
}
