package packet

import "fmt"

// Decode dispatches on fh.Type and decodes the variable header and payload
// in buf (the fixed header already stripped) into the matching packet type.
func Decode(fh FixedHeader, buf []byte, version Version) (Packet, error) {
	switch fh.Type {
	case CONNECT:
		return DecodeConnect(buf)
	case CONNACK:
		return DecodeConnack(buf, version)
	case PUBLISH:
		return DecodePublish(buf, fh.Flags, version)
	case PUBACK:
		return DecodeAck(PUBACK, buf, version)
	case PUBREC:
		return DecodeAck(PUBREC, buf, version)
	case PUBREL:
		if fh.Flags != 0x02 {
			return nil, fmt.Errorf("packet: PUBREL must have fixed header flags 0x02, got 0x%02x", fh.Flags)
		}
		return DecodeAck(PUBREL, buf, version)
	case PUBCOMP:
		return DecodeAck(PUBCOMP, buf, version)
	case SUBSCRIBE:
		if fh.Flags != 0x02 {
			return nil, fmt.Errorf("packet: SUBSCRIBE must have fixed header flags 0x02, got 0x%02x", fh.Flags)
		}
		return DecodeSubscribe(buf, version)
	case SUBACK:
		return DecodeSuback(buf, version)
	case UNSUBSCRIBE:
		if fh.Flags != 0x02 {
			return nil, fmt.Errorf("packet: UNSUBSCRIBE must have fixed header flags 0x02, got 0x%02x", fh.Flags)
		}
		return DecodeUnsubscribe(buf, version)
	case UNSUBACK:
		return DecodeUnsuback(buf, version)
	case PINGREQ:
		return DecodePingreq(buf)
	case PINGRESP:
		return DecodePingresp(buf)
	case DISCONNECT:
		return DecodeDisconnect(buf, version)
	case AUTH:
		if version != V5 {
			return nil, fmt.Errorf("packet: AUTH is not defined for protocol version %d", version)
		}
		return DecodeAuth(buf)
	default:
		return nil, fmt.Errorf("packet: unrecognized control packet type %d", fh.Type)
	}
}
