package packet

import "fmt"

// Connack represents an MQTT CONNACK control packet.
type Connack struct {
	SessionPresent bool
	ReasonCode     uint8 // return code under v3.1.1
	Properties     *Properties
}

// Type implements Packet.
func (p *Connack) Type() uint8 { return CONNACK }

// Encode implements Packet.
func (p *Connack) Encode(dst []byte) ([]byte, error) {
	var ackFlags uint8
	if p.SessionPresent {
		ackFlags |= 0x01
	}

	body := GetScratch()
	defer PutScratch(body)
	b := append(*body, ackFlags, p.ReasonCode)
	if p.Properties != nil {
		b = AppendProperties(b, p.Properties)
	}
	*body = b

	fh := FixedHeader{Type: CONNACK, RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodeConnack decodes a CONNACK packet's variable header from buf.
func DecodeConnack(buf []byte, version Version) (*Connack, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("packet: CONNACK too short")
	}
	p := &Connack{
		SessionPresent: buf[0]&0x01 != 0,
		ReasonCode:     buf[1],
	}
	if version == V5 && len(buf) > 2 {
		props, _, err := DecodeProperties(buf[2:])
		if err != nil {
			return nil, fmt.Errorf("packet: CONNACK properties: %w", err)
		}
		p.Properties = props
	}
	return p, nil
}
