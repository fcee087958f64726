package packet

import (
	"encoding/binary"
	"fmt"
)

// Ack represents the common shape of PUBACK, PUBREC, PUBCOMP, and the
// PUBREL variant of the QoS 2 handshake: a packet id, and — on v5.0, only
// when non-default — a reason code and properties.
type Ack struct {
	kind       uint8
	PacketID   uint16
	ReasonCode uint8
	Properties *Properties
	Version    Version
}

// NewPuback builds an Ack shaped as a PUBACK.
func NewPuback() *Ack { return &Ack{kind: PUBACK} }

// NewPubrec builds an Ack shaped as a PUBREC.
func NewPubrec() *Ack { return &Ack{kind: PUBREC} }

// NewPubrel builds an Ack shaped as a PUBREL.
func NewPubrel() *Ack { return &Ack{kind: PUBREL} }

// NewPubcomp builds an Ack shaped as a PUBCOMP.
func NewPubcomp() *Ack { return &Ack{kind: PUBCOMP} }

// Type implements Packet.
func (p *Ack) Type() uint8 { return p.kind }

func (p *Ack) flags() uint8 {
	if p.kind == PUBREL {
		return 0x02
	}
	return 0
}

// Encode implements Packet.
func (p *Ack) Encode(dst []byte) ([]byte, error) {
	includeReason := p.Version == V5 && (p.ReasonCode != ReasonSuccess || p.Properties != nil)

	body := GetScratch()
	defer PutScratch(body)
	b := binary.BigEndian.AppendUint16(*body, p.PacketID)
	if includeReason {
		b = append(b, p.ReasonCode)
		b = AppendProperties(b, p.Properties)
	}
	*body = b

	fh := FixedHeader{Type: p.kind, Flags: p.flags(), RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodeAck decodes the common PUBACK/PUBREC/PUBREL/PUBCOMP shape from buf.
func DecodeAck(kind uint8, buf []byte, version Version) (*Ack, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("packet: %s too short", TypeName(kind))
	}
	p := &Ack{kind: kind, Version: version}
	p.PacketID = binary.BigEndian.Uint16(buf[0:2])

	if version == V5 && len(buf) > 2 {
		p.ReasonCode = buf[2]
		if len(buf) > 3 {
			props, _, err := DecodeProperties(buf[3:])
			if err != nil {
				return nil, fmt.Errorf("packet: %s properties: %w", TypeName(kind), err)
			}
			p.Properties = props
		}
	}
	return p, nil
}
