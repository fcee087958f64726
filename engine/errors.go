package engine

import (
	"fmt"

	"github.com/gonzalop/mqttengine/packet"
)

// ErrorKind is the taxonomy of engine-detected failures (§7). The engine
// never panics. Faults detected by Send, Recv, NotifyTimerFired and
// NotifyClosed surface as NotifyError events carrying one of these kinds;
// AcquirePacketID, RegisterPacketID and RegulateForStore return an *Error
// directly.
type ErrorKind uint8

const (
	MalformedPacket ErrorKind = iota + 1
	ProtocolError
	UnsupportedProtocolVersion
	ClientIdentifierNotValid
	BadUserNameOrPassword
	PacketNotAllowedToSend
	PacketTooLarge
	PacketIdentifierInvalid
	PacketIdentifierNotAvailable
	ReceiveMaximumExceeded
	TopicAliasInvalid
	PacketNotRegulated
	KeepAliveTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedPacket:
		return "malformed-packet"
	case ProtocolError:
		return "protocol-error"
	case UnsupportedProtocolVersion:
		return "unsupported-protocol-version"
	case ClientIdentifierNotValid:
		return "client-identifier-not-valid"
	case BadUserNameOrPassword:
		return "bad-user-name-or-password"
	case PacketNotAllowedToSend:
		return "packet-not-allowed-to-send"
	case PacketTooLarge:
		return "packet-too-large"
	case PacketIdentifierInvalid:
		return "packet-identifier-invalid"
	case PacketIdentifierNotAvailable:
		return "packet-identifier-not-available"
	case ReceiveMaximumExceeded:
		return "receive-maximum-exceeded"
	case TopicAliasInvalid:
		return "topic-alias-invalid"
	case PacketNotRegulated:
		return "packet-not-regulated"
	case KeepAliveTimeout:
		return "keep-alive-timeout"
	default:
		return "unknown"
	}
}

// Error pairs an ErrorKind with a human-readable explanation for logs. It
// is carried inside a NotifyError event, or returned as the error of
// AcquirePacketID, RegisterPacketID and RegulateForStore.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("engine: %s: %s", e.Kind, e.Msg) }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// reasonCodeFor maps an ErrorKind to the v5.0 DISCONNECT reason code used
// when the engine must tell a Connected v5 peer why it is closing.
func reasonCodeFor(kind ErrorKind) uint8 {
	switch kind {
	case MalformedPacket:
		return packet.ReasonMalformedPacket
	case ProtocolError:
		return packet.ReasonProtocolError
	case UnsupportedProtocolVersion:
		return packet.ReasonUnsupportedProtocolVersion
	case ClientIdentifierNotValid:
		return packet.ReasonClientIdentifierNotValid
	case BadUserNameOrPassword:
		return packet.ReasonBadUserNameOrPassword
	case PacketTooLarge:
		return packet.ReasonPacketTooLarge
	case ReceiveMaximumExceeded:
		return packet.ReasonReceiveMaximumExceeded
	case TopicAliasInvalid:
		return packet.ReasonTopicAliasInvalid
	case KeepAliveTimeout:
		return packet.ReasonKeepAliveTimeout
	default:
		return packet.ReasonUnspecifiedError
	}
}
