package packet

import "fmt"

// Connect represents an MQTT CONNECT control packet.
type Connect struct {
	ProtocolName  string
	ProtocolLevel uint8 // 4 for v3.1.1, 5 for v5.0

	CleanStart   bool // called CleanSession under v3.1.1
	WillFlag     bool
	WillQoS      uint8
	WillRetain   bool
	PasswordFlag bool
	UsernameFlag bool

	KeepAlive uint16

	ClientID string

	WillTopic      string
	WillMessage    []byte
	WillProperties *Properties // v5.0 only

	Username string
	Password string

	Properties *Properties // v5.0 only
}

// Type implements Packet.
func (p *Connect) Type() uint8 { return CONNECT }

// Encode implements Packet.
func (p *Connect) Encode(dst []byte) ([]byte, error) {
	v5 := p.ProtocolLevel >= 5

	var flags uint8
	if p.CleanStart {
		flags |= 0x02
	}
	if p.WillFlag {
		flags |= 0x04
		flags |= (p.WillQoS & 0x03) << 3
		if p.WillRetain {
			flags |= 0x20
		}
	}
	if p.PasswordFlag {
		flags |= 0x40
	}
	if p.UsernameFlag {
		flags |= 0x80
	}

	body := GetScratch()
	defer PutScratch(body)

	b := *body
	b = AppendString(b, p.ProtocolName)
	b = append(b, p.ProtocolLevel, flags)
	b = append(b, byte(p.KeepAlive>>8), byte(p.KeepAlive))
	if v5 {
		b = AppendProperties(b, p.Properties)
	}
	b = AppendString(b, p.ClientID)
	if p.WillFlag {
		if v5 {
			b = AppendProperties(b, p.WillProperties)
		}
		b = AppendString(b, p.WillTopic)
		b = AppendBinary(b, p.WillMessage)
	}
	if p.UsernameFlag {
		b = AppendString(b, p.Username)
	}
	if p.PasswordFlag {
		b = AppendString(b, p.Password)
	}
	*body = b

	fh := FixedHeader{Type: CONNECT, RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodeConnect decodes a CONNECT packet's variable header and payload from
// buf (the fixed header already stripped).
func DecodeConnect(buf []byte) (*Connect, error) {
	p := &Connect{}
	offset := 0

	name, n, err := DecodeString(buf[offset:])
	if err != nil {
		return nil, fmt.Errorf("packet: CONNECT protocol name: %w", err)
	}
	p.ProtocolName = name
	offset += n

	if offset+2 > len(buf) {
		return nil, fmt.Errorf("packet: CONNECT truncated before protocol level/flags")
	}
	p.ProtocolLevel = buf[offset]
	flags := buf[offset+1]
	offset += 2

	p.CleanStart = flags&0x02 != 0
	p.WillFlag = flags&0x04 != 0
	p.WillQoS = (flags >> 3) & 0x03
	p.WillRetain = flags&0x20 != 0
	p.PasswordFlag = flags&0x40 != 0
	p.UsernameFlag = flags&0x80 != 0
	if flags&0x01 != 0 {
		return nil, fmt.Errorf("packet: CONNECT reserved flag bit set")
	}

	if offset+2 > len(buf) {
		return nil, fmt.Errorf("packet: CONNECT truncated before keep alive")
	}
	p.KeepAlive = uint16(buf[offset])<<8 | uint16(buf[offset+1])
	offset += 2

	v5 := p.ProtocolLevel >= 5
	if v5 {
		props, n, err := DecodeProperties(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: CONNECT properties: %w", err)
		}
		p.Properties = props
		offset += n
	}

	clientID, n, err := DecodeString(buf[offset:])
	if err != nil {
		return nil, fmt.Errorf("packet: CONNECT client id: %w", err)
	}
	p.ClientID = clientID
	offset += n

	if p.WillFlag {
		if v5 {
			props, n, err := DecodeProperties(buf[offset:])
			if err != nil {
				return nil, fmt.Errorf("packet: CONNECT will properties: %w", err)
			}
			p.WillProperties = props
			offset += n
		}
		topic, n, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: CONNECT will topic: %w", err)
		}
		p.WillTopic = topic
		offset += n

		msg, n, err := DecodeBinary(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: CONNECT will message: %w", err)
		}
		p.WillMessage = append([]byte(nil), msg...)
		offset += n
	}

	if p.UsernameFlag {
		u, n, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: CONNECT username: %w", err)
		}
		p.Username = u
		offset += n
	}

	if p.PasswordFlag {
		pw, _, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: CONNECT password: %w", err)
		}
		p.Password = pw
	}

	return p, nil
}
