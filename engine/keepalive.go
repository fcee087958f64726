package engine

import "github.com/gonzalop/mqttengine/packet"

var pingreqPacket = packet.Pingreq{}

// keepAliveRecvTimeoutMs converts a CONNECT keep-alive (seconds) into the
// 1.5x server-side watchdog duration used for PingreqRecv.
func keepAliveRecvTimeoutMs(keepAliveSeconds uint16) int {
	return int(keepAliveSeconds) * 1500
}

// armPingreqRecv (re)arms the server-side watchdog that fires if the peer
// goes quiet for too long. Called on entry to Connecting and after every
// qualifying inbound packet (§4.G.7).
func (c *Connection) armPingreqRecv() []Event {
	if c.pingreqRecvTimeoutMs <= 0 {
		return nil
	}
	c.pingreqRecvSet = true
	return []Event{evTimerReset(PingreqRecv, c.pingreqRecvTimeoutMs)}
}

// armPingreqSend re-arms the client-side keep-alive send timer after any
// outgoing packet.
func (c *Connection) armPingreqSend() []Event {
	if c.pingreqSendIntervalMs <= 0 {
		return nil
	}
	c.pingreqSendSet = true
	return []Event{evTimerReset(PingreqSend, c.pingreqSendIntervalMs)}
}

// cancelAllTimers cancels whichever of the three keep-alive timers the
// engine believes are currently armed.
func (c *Connection) cancelAllTimers() []Event {
	var events []Event
	if c.pingreqSendSet {
		c.pingreqSendSet = false
		events = append(events, evTimerCancel(PingreqSend))
	}
	if c.pingreqRecvSet {
		c.pingreqRecvSet = false
		events = append(events, evTimerCancel(PingreqRecv))
	}
	if c.pingrespRecvSet {
		c.pingrespRecvSet = false
		events = append(events, evTimerCancel(PingrespRecv))
	}
	return events
}

// NotifyTimerFired implements notify_timer_fired.
func (c *Connection) NotifyTimerFired(kind TimerKind) []Event {
	switch kind {
	case PingreqSend:
		return c.firePingreqSend()
	case PingreqRecv:
		return c.firePingreqRecv()
	case PingrespRecv:
		return c.firePingrespRecv()
	default:
		return nil
	}
}

func (c *Connection) firePingreqSend() []Event {
	c.pingreqSendSet = false
	if c.status != Connected {
		return nil
	}
	events := []Event{evSend(&pingreqPacket)}
	events = append(events, c.armPingreqSend()...)
	if c.pingrespRecvTimeoutMs > 0 {
		c.pingrespRecvSet = true
		events = append(events, evTimerReset(PingrespRecv, c.pingrespRecvTimeoutMs))
	}
	return events
}

func (c *Connection) firePingreqRecv() []Event {
	if !c.pingreqRecvSet {
		return nil
	}
	c.pingreqRecvSet = false
	return c.keepAliveExpired()
}

func (c *Connection) firePingrespRecv() []Event {
	if !c.pingrespRecvSet {
		return nil
	}
	c.pingrespRecvSet = false
	return c.keepAliveExpired()
}

// keepAliveExpired implements the shared expiry semantics of PingreqRecv
// and PingrespRecv (§4.G.7): v5 Connected emits a DISCONNECT with reason
// KeepAliveTimeout; otherwise the engine simply requests the transport be
// closed.
func (c *Connection) keepAliveExpired() []Event {
	if c.version == packet.V5 && c.status == Connected {
		d := &packet.Disconnect{ReasonCode: packet.ReasonKeepAliveTimeout, Version: c.version}
		events := []Event{evSend(d)}
		events = append(events, c.closeConnected()...)
		return events
	}
	events := []Event{evClose()}
	events = append(events, c.closeConnected()...)
	return events
}
