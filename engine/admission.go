package engine

import "github.com/gonzalop/mqttengine/packet"

// clientOnlySend is the set of packet types only a client role may send.
func clientOnlySend(t uint8) bool {
	switch t {
	case packet.CONNECT, packet.SUBSCRIBE, packet.UNSUBSCRIBE, packet.PINGREQ:
		return true
	default:
		return false
	}
}

// serverOnlySend is the set of packet types only a server role may send.
func serverOnlySend(t uint8) bool {
	switch t {
	case packet.CONNACK, packet.SUBACK, packet.UNSUBACK, packet.PINGRESP:
		return true
	default:
		return false
	}
}

// admitSend enforces role-scoped admission control on an outgoing packet
// (§4.G.1). DISCONNECT is client-only under v3.1.1 but open to both roles
// under v5.0.
func (c *Connection) admitSend(p packet.Packet) error {
	t := p.Type()

	if t == packet.AUTH && c.version != packet.V5 {
		return newError(PacketNotAllowedToSend, "AUTH does not exist under the negotiated protocol version")
	}

	if t == packet.DISCONNECT && c.version != packet.V5 && c.role != RoleAny {
		if c.role == RoleServer {
			return newError(PacketNotAllowedToSend, "server role cannot send v3.1.1 DISCONNECT")
		}
	}

	switch c.role {
	case RoleClient:
		if serverOnlySend(t) {
			return newError(PacketNotAllowedToSend, "client role cannot send %s", packet.TypeName(t))
		}
	case RoleServer:
		if clientOnlySend(t) {
			return newError(PacketNotAllowedToSend, "server role cannot send %s", packet.TypeName(t))
		}
	case RoleAny:
		// both directions permitted
	}
	return nil
}
