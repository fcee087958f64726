package engine

import "github.com/gonzalop/mqttengine/packet"

// TimerKind identifies one of the three keep-alive timers the engine asks
// the host to manage. The engine owns no clock; it only requests resets
// and cancellations.
type TimerKind uint8

const (
	PingreqSend TimerKind = iota + 1
	PingreqRecv
	PingrespRecv
)

func (k TimerKind) String() string {
	switch k {
	case PingreqSend:
		return "pingreq-send"
	case PingreqRecv:
		return "pingreq-recv"
	case PingrespRecv:
		return "pingresp-recv"
	default:
		return "unknown-timer"
	}
}

// Event is the sum type emitted by every engine entry point. Exactly one
// of the typed accessors is meaningful per event; callers switch on Kind.
type Event struct {
	Kind EventKind

	Packet                     packet.Packet
	ReleasePacketIDIfSendError uint32
	HasReleaseID               bool

	Timer        TimerKind
	TimerMs      int

	ReceivedPacket packet.Packet

	ReleasedID uint32

	Err *Error
}

// EventKind discriminates Event.
type EventKind uint8

const (
	RequestSendPacket EventKind = iota + 1
	RequestTimerReset
	RequestTimerCancel
	RequestClose
	NotifyPacketReceived
	NotifyPacketIDReleased
	NotifyError
)

func (k EventKind) String() string {
	switch k {
	case RequestSendPacket:
		return "RequestSendPacket"
	case RequestTimerReset:
		return "RequestTimerReset"
	case RequestTimerCancel:
		return "RequestTimerCancel"
	case RequestClose:
		return "RequestClose"
	case NotifyPacketReceived:
		return "NotifyPacketReceived"
	case NotifyPacketIDReleased:
		return "NotifyPacketIDReleased"
	case NotifyError:
		return "NotifyError"
	default:
		return "unknown-event"
	}
}

func evSend(p packet.Packet) Event {
	return Event{Kind: RequestSendPacket, Packet: p}
}

func evSendWithRelease(p packet.Packet, id uint32) Event {
	return Event{Kind: RequestSendPacket, Packet: p, ReleasePacketIDIfSendError: id, HasReleaseID: true}
}

func evTimerReset(kind TimerKind, ms int) Event {
	return Event{Kind: RequestTimerReset, Timer: kind, TimerMs: ms}
}

func evTimerCancel(kind TimerKind) Event {
	return Event{Kind: RequestTimerCancel, Timer: kind}
}

func evClose() Event {
	return Event{Kind: RequestClose}
}

func evReceived(p packet.Packet) Event {
	return Event{Kind: NotifyPacketReceived, ReceivedPacket: p}
}

func evIDReleased(id uint32) Event {
	return Event{Kind: NotifyPacketIDReleased, ReleasedID: id}
}

func evError(kind ErrorKind, format string, args ...any) Event {
	return Event{Kind: NotifyError, Err: newError(kind, format, args...)}
}
