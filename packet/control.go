package packet

import "fmt"

// Pingreq represents an MQTT PINGREQ control packet. It has no variable
// header or payload.
type Pingreq struct{}

// Type implements Packet.
func (Pingreq) Type() uint8 { return PINGREQ }

// Encode implements Packet.
func (Pingreq) Encode(dst []byte) ([]byte, error) {
	return FixedHeader{Type: PINGREQ}.Append(dst), nil
}

// DecodePingreq decodes a PINGREQ packet (never any payload).
func DecodePingreq(buf []byte) (*Pingreq, error) {
	if len(buf) != 0 {
		return nil, fmt.Errorf("packet: PINGREQ must have an empty payload")
	}
	return &Pingreq{}, nil
}

// Pingresp represents an MQTT PINGRESP control packet. It has no variable
// header or payload.
type Pingresp struct{}

// Type implements Packet.
func (Pingresp) Type() uint8 { return PINGRESP }

// Encode implements Packet.
func (Pingresp) Encode(dst []byte) ([]byte, error) {
	return FixedHeader{Type: PINGRESP}.Append(dst), nil
}

// DecodePingresp decodes a PINGRESP packet (never any payload).
func DecodePingresp(buf []byte) (*Pingresp, error) {
	if len(buf) != 0 {
		return nil, fmt.Errorf("packet: PINGRESP must have an empty payload")
	}
	return &Pingresp{}, nil
}

// Disconnect represents an MQTT DISCONNECT control packet.
type Disconnect struct {
	ReasonCode uint8 // v5.0 only; ignored under v3.1.1
	Properties *Properties
	Version    Version
}

// Type implements Packet.
func (p *Disconnect) Type() uint8 { return DISCONNECT }

// Encode implements Packet.
func (p *Disconnect) Encode(dst []byte) ([]byte, error) {
	includeReason := p.Version == V5 && (p.ReasonCode != ReasonNormalDisconnect || p.Properties != nil)

	body := GetScratch()
	defer PutScratch(body)
	b := *body
	if includeReason {
		b = append(b, p.ReasonCode)
		b = AppendProperties(b, p.Properties)
	}
	*body = b

	fh := FixedHeader{Type: DISCONNECT, RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodeDisconnect decodes a DISCONNECT packet's variable header.
func DecodeDisconnect(buf []byte, version Version) (*Disconnect, error) {
	p := &Disconnect{Version: version, ReasonCode: ReasonNormalDisconnect}
	if version == V5 && len(buf) > 0 {
		p.ReasonCode = buf[0]
		if len(buf) > 1 {
			props, _, err := DecodeProperties(buf[1:])
			if err != nil {
				return nil, fmt.Errorf("packet: DISCONNECT properties: %w", err)
			}
			p.Properties = props
		}
	}
	return p, nil
}

// Auth represents an MQTT v5.0 AUTH control packet, used for extended
// (challenge/response) authentication exchanges and reauthentication.
type Auth struct {
	ReasonCode uint8
	Properties *Properties
}

// Type implements Packet.
func (p *Auth) Type() uint8 { return AUTH }

// Encode implements Packet.
func (p *Auth) Encode(dst []byte) ([]byte, error) {
	body := GetScratch()
	defer PutScratch(body)
	b := append(*body, p.ReasonCode)
	b = AppendProperties(b, p.Properties)
	*body = b

	fh := FixedHeader{Type: AUTH, RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodeAuth decodes an AUTH packet's variable header. AUTH does not exist
// under v3.1.1; callers must reject it before decoding by checking the
// negotiated protocol version.
func DecodeAuth(buf []byte) (*Auth, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("packet: AUTH too short")
	}
	p := &Auth{ReasonCode: buf[0]}
	if len(buf) > 1 {
		props, _, err := DecodeProperties(buf[1:])
		if err != nil {
			return nil, fmt.Errorf("packet: AUTH properties: %w", err)
		}
		p.Properties = props
	}
	return p, nil
}
