package engine

import "github.com/gonzalop/mqttengine/packet"

// enterConnecting implements the Disconnected -> Connecting transition
// (§4.G.1), shared by both "send CONNECT" (client) and "recv CONNECT"
// (server).
func (c *Connection) enterConnecting(isClient bool, cleanSession bool) []Event {
	c.status = Connecting
	c.isClient = isClient
	c.publishSendCount = 0
	c.publishSendMax = 0
	c.publishRecvMax = 0
	c.topicAliasSend = nil
	c.topicAliasRecv = nil
	c.publishRecv = make(map[uint16]struct{})
	c.qos2PublishProcessing = make(map[uint16]struct{})
	c.awaitingSuback = make(map[uint16]struct{})
	c.awaitingUnsuback = make(map[uint16]struct{})

	if cleanSession {
		c.store.clear()
		c.awaitingPuback = make(map[uint16]struct{})
		c.awaitingPubrec = make(map[uint16]struct{})
		c.awaitingPubcomp = make(map[uint16]struct{})
		c.qos2PublishHandled = make(map[uint16]struct{})
		c.pids.ReleaseAll()
	}
	return c.armPingreqRecv()
}

// absorbConnackRecv applies the negotiated parameters carried by a CONNACK
// this side received from its peer and transitions to Connected (§4.G.1
// Connecting -> Connected). The peer's advertised limits bound what this
// side may still send it, so they land on the send-side fields.
func (c *Connection) absorbConnackRecv(props *packet.Properties, sessionPresent bool) []Event {
	if props != nil {
		if taMax := props.TopicAliasMaximum; taMax != 0 {
			c.topicAliasSend = newSendAliasTable(taMax)
		}
		if rm := props.ReceiveMaximum; rm != 0 {
			c.publishSendMax = rm
		}
		if mps := props.MaximumPacketSize; mps != 0 {
			c.maxPacketSizeSend = mps
		}
		if ska := props.ServerKeepAlive; ska != 0 {
			c.pingreqSendIntervalMs = int(ska) * 1000
		}
	}
	return c.finishConnack(sessionPresent)
}

// absorbConnackSend applies the limits this side is declaring in a CONNACK
// it is sending itself and transitions to Connected. These properties
// describe what this side will accept from the peer, not what it may
// send, so they land on the recv-side fields; TopicAliasMaximum is handled
// by the caller (sendConnack) since it needs to build the recv alias table
// regardless of ReasonCode.
func (c *Connection) absorbConnackSend(props *packet.Properties, sessionPresent bool) []Event {
	if props != nil {
		if rm := props.ReceiveMaximum; rm != 0 {
			c.publishRecvMax = rm
		}
		if mps := props.MaximumPacketSize; mps != 0 {
			c.maxPacketSizeRecv = mps
		}
	}
	return c.finishConnack(sessionPresent)
}

// finishConnack is the direction-independent half of the Connecting ->
// Connected transition: session replay and arming the keep-alive sender.
func (c *Connection) finishConnack(sessionPresent bool) []Event {
	c.status = Connected
	var events []Event

	if sessionPresent {
		events = append(events, c.replayStore()...)
	} else {
		c.store.clear()
		c.awaitingPuback = make(map[uint16]struct{})
		c.awaitingPubrec = make(map[uint16]struct{})
		c.awaitingPubcomp = make(map[uint16]struct{})
		c.qos2PublishHandled = make(map[uint16]struct{})
		c.qos2PublishProcessing = make(map[uint16]struct{})
	}

	events = append(events, c.armPingreqSend()...)
	return events
}

// failConnecting implements Connecting -> Disconnected on a failure
// CONNACK: cancel timers, reset topic-alias tables and packet-size caps,
// but leave the store intact in case the host reconnects.
func (c *Connection) failConnecting() []Event {
	c.status = Disconnected
	c.topicAliasSend = nil
	c.topicAliasRecv = nil
	c.maxPacketSizeSend = protocolCeilingBytes
	c.maxPacketSizeRecv = protocolCeilingBytes
	return c.cancelAllTimers()
}

// closeConnected implements Connected -> Disconnected on a send/recv
// DISCONNECT or a fatal framing error: cancel timers only. The caller is
// responsible for emitting RequestClose afterward.
func (c *Connection) closeConnected() []Event {
	c.status = Disconnected
	return c.cancelAllTimers()
}

// NotifyClosed implements notify_closed (§4.G.8). It is idempotent.
func (c *Connection) NotifyClosed() []Event {
	events := c.cancelAllTimers()

	c.status = Disconnected
	c.maxPacketSizeSend = protocolCeilingBytes
	c.maxPacketSizeRecv = protocolCeilingBytes
	c.topicAliasSend = nil
	c.topicAliasRecv = nil

	for id := range c.awaitingSuback {
		c.pids.Release(id)
		events = append(events, evIDReleased(uint32(id)))
	}
	for id := range c.awaitingUnsuback {
		c.pids.Release(id)
		events = append(events, evIDReleased(uint32(id)))
	}
	c.awaitingSuback = make(map[uint16]struct{})
	c.awaitingUnsuback = make(map[uint16]struct{})

	if !c.needStore {
		c.qos2PublishHandled = make(map[uint16]struct{})
		c.qos2PublishProcessing = make(map[uint16]struct{})
		for id := range c.awaitingPuback {
			c.pids.Release(id)
			events = append(events, evIDReleased(uint32(id)))
		}
		for id := range c.awaitingPubrec {
			c.pids.Release(id)
			events = append(events, evIDReleased(uint32(id)))
		}
		for id := range c.awaitingPubcomp {
			c.pids.Release(id)
			events = append(events, evIDReleased(uint32(id)))
		}
		c.awaitingPuback = make(map[uint16]struct{})
		c.awaitingPubrec = make(map[uint16]struct{})
		c.awaitingPubcomp = make(map[uint16]struct{})
	}

	return events
}
