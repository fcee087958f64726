package packet

import (
	"encoding/binary"
	"fmt"
)

// RetainHandling values for a v5.0 subscription option.
const (
	RetainSend         uint8 = 0
	RetainSendIfNew    uint8 = 1
	RetainDoNotSend    uint8 = 2
)

// SubscriptionOption is a single topic filter entry within a SUBSCRIBE
// packet, with its v5.0 per-filter options.
type SubscriptionOption struct {
	Topic             string
	QoS               uint8
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    uint8
}

// Subscribe represents an MQTT SUBSCRIBE control packet.
type Subscribe struct {
	PacketID       uint16
	Subscriptions  []SubscriptionOption
	Properties     *Properties
	Version        Version
}

// Type implements Packet.
func (p *Subscribe) Type() uint8 { return SUBSCRIBE }

// Encode implements Packet.
func (p *Subscribe) Encode(dst []byte) ([]byte, error) {
	body := GetScratch()
	defer PutScratch(body)
	b := binary.BigEndian.AppendUint16(*body, p.PacketID)
	if p.Version == V5 {
		b = AppendProperties(b, p.Properties)
	}
	for _, s := range p.Subscriptions {
		b = AppendString(b, s.Topic)
		opts := s.QoS & 0x03
		if p.Version == V5 {
			if s.NoLocal {
				opts |= 1 << 2
			}
			if s.RetainAsPublished {
				opts |= 1 << 3
			}
			opts |= (s.RetainHandling & 0x03) << 4
		}
		b = append(b, opts)
	}
	*body = b

	fh := FixedHeader{Type: SUBSCRIBE, Flags: 0x02, RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodeSubscribe decodes a SUBSCRIBE packet's variable header and payload.
func DecodeSubscribe(buf []byte, version Version) (*Subscribe, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("packet: SUBSCRIBE too short")
	}
	p := &Subscribe{Version: version}
	offset := 0
	p.PacketID = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2

	if version == V5 {
		props, n, err := DecodeProperties(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: SUBSCRIBE properties: %w", err)
		}
		p.Properties = props
		offset += n
	}

	for offset < len(buf) {
		topic, n, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: SUBSCRIBE topic filter: %w", err)
		}
		offset += n
		if offset >= len(buf) {
			return nil, fmt.Errorf("packet: SUBSCRIBE truncated before options byte")
		}
		opts := buf[offset]
		offset++

		so := SubscriptionOption{Topic: topic, QoS: opts & 0x03}
		if so.QoS > 2 {
			return nil, fmt.Errorf("packet: SUBSCRIBE option byte has invalid QoS 3")
		}
		if version == V5 {
			so.NoLocal = opts&(1<<2) != 0
			so.RetainAsPublished = opts&(1<<3) != 0
			so.RetainHandling = (opts >> 4) & 0x03
		}
		p.Subscriptions = append(p.Subscriptions, so)
	}
	if len(p.Subscriptions) == 0 {
		return nil, fmt.Errorf("packet: SUBSCRIBE must contain at least one topic filter")
	}
	return p, nil
}

// Suback represents an MQTT SUBACK control packet.
type Suback struct {
	PacketID    uint16
	ReasonCodes []uint8
	Properties  *Properties
	Version     Version
}

// Type implements Packet.
func (p *Suback) Type() uint8 { return SUBACK }

// Encode implements Packet.
func (p *Suback) Encode(dst []byte) ([]byte, error) {
	body := GetScratch()
	defer PutScratch(body)
	b := binary.BigEndian.AppendUint16(*body, p.PacketID)
	if p.Version == V5 {
		b = AppendProperties(b, p.Properties)
	}
	b = append(b, p.ReasonCodes...)
	*body = b

	fh := FixedHeader{Type: SUBACK, RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodeSuback decodes a SUBACK packet's variable header and payload.
func DecodeSuback(buf []byte, version Version) (*Suback, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("packet: SUBACK too short")
	}
	p := &Suback{Version: version}
	offset := 0
	p.PacketID = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2

	if version == V5 {
		props, n, err := DecodeProperties(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: SUBACK properties: %w", err)
		}
		p.Properties = props
		offset += n
	}
	p.ReasonCodes = append([]byte(nil), buf[offset:]...)
	return p, nil
}

// Unsubscribe represents an MQTT UNSUBSCRIBE control packet.
type Unsubscribe struct {
	PacketID   uint16
	Topics     []string
	Properties *Properties
	Version    Version
}

// Type implements Packet.
func (p *Unsubscribe) Type() uint8 { return UNSUBSCRIBE }

// Encode implements Packet.
func (p *Unsubscribe) Encode(dst []byte) ([]byte, error) {
	body := GetScratch()
	defer PutScratch(body)
	b := binary.BigEndian.AppendUint16(*body, p.PacketID)
	if p.Version == V5 {
		b = AppendProperties(b, p.Properties)
	}
	for _, t := range p.Topics {
		b = AppendString(b, t)
	}
	*body = b

	fh := FixedHeader{Type: UNSUBSCRIBE, Flags: 0x02, RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodeUnsubscribe decodes an UNSUBSCRIBE packet's variable header and payload.
func DecodeUnsubscribe(buf []byte, version Version) (*Unsubscribe, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("packet: UNSUBSCRIBE too short")
	}
	p := &Unsubscribe{Version: version}
	offset := 0
	p.PacketID = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2

	if version == V5 {
		props, n, err := DecodeProperties(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: UNSUBSCRIBE properties: %w", err)
		}
		p.Properties = props
		offset += n
	}

	for offset < len(buf) {
		topic, n, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: UNSUBSCRIBE topic filter: %w", err)
		}
		p.Topics = append(p.Topics, topic)
		offset += n
	}
	if len(p.Topics) == 0 {
		return nil, fmt.Errorf("packet: UNSUBSCRIBE must contain at least one topic filter")
	}
	return p, nil
}

// Unsuback represents an MQTT UNSUBACK control packet.
type Unsuback struct {
	PacketID    uint16
	ReasonCodes []uint8 // v5.0 only
	Properties  *Properties
	Version     Version
}

// Type implements Packet.
func (p *Unsuback) Type() uint8 { return UNSUBACK }

// Encode implements Packet.
func (p *Unsuback) Encode(dst []byte) ([]byte, error) {
	body := GetScratch()
	defer PutScratch(body)
	b := binary.BigEndian.AppendUint16(*body, p.PacketID)
	if p.Version == V5 {
		b = AppendProperties(b, p.Properties)
		b = append(b, p.ReasonCodes...)
	}
	*body = b

	fh := FixedHeader{Type: UNSUBACK, RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodeUnsuback decodes an UNSUBACK packet's variable header and payload.
func DecodeUnsuback(buf []byte, version Version) (*Unsuback, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("packet: UNSUBACK too short")
	}
	p := &Unsuback{Version: version}
	offset := 0
	p.PacketID = binary.BigEndian.Uint16(buf[offset : offset+2])
	offset += 2

	if version == V5 {
		props, n, err := DecodeProperties(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: UNSUBACK properties: %w", err)
		}
		p.Properties = props
		offset += n
		p.ReasonCodes = append([]byte(nil), buf[offset:]...)
	}
	return p, nil
}
