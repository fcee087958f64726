package packet

import (
	"encoding/binary"
	"fmt"
)

// Publish represents an MQTT PUBLISH control packet.
type Publish struct {
	Dup    bool
	QoS    uint8
	Retain bool

	Topic    string
	PacketID uint16 // only meaningful if QoS > 0

	Payload []byte

	Properties *Properties
	Version    Version

	// TopicExtracted records that Topic was filled in by the engine from a
	// receive-side topic-alias lookup rather than sent explicitly by the
	// peer. Host code can use it to avoid echoing a topic the peer never
	// transmitted.
	TopicExtracted bool
}

// Type implements Packet.
func (p *Publish) Type() uint8 { return PUBLISH }

// Encode implements Packet.
func (p *Publish) Encode(dst []byte) ([]byte, error) {
	var flags uint8
	if p.Dup {
		flags |= 0x08
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= 0x01
	}

	body := GetScratch()
	defer PutScratch(body)
	b := AppendString(*body, p.Topic)
	if p.QoS > 0 {
		b = binary.BigEndian.AppendUint16(b, p.PacketID)
	}
	if p.Version == V5 {
		b = AppendProperties(b, p.Properties)
	}
	b = append(b, p.Payload...)
	*body = b

	fh := FixedHeader{Type: PUBLISH, Flags: flags, RemainingLength: len(b)}
	dst = fh.Append(dst)
	return append(dst, b...), nil
}

// DecodePublish decodes a PUBLISH packet's variable header and payload from
// buf, given the fixed header flags already parsed by the caller.
func DecodePublish(buf []byte, flags uint8, version Version) (*Publish, error) {
	p := &Publish{
		Dup:     flags&0x08 != 0,
		QoS:     (flags >> 1) & 0x03,
		Retain:  flags&0x01 != 0,
		Version: version,
	}
	if p.QoS > 2 {
		return nil, fmt.Errorf("packet: PUBLISH has invalid QoS 3")
	}

	offset := 0
	topic, n, err := DecodeString(buf[offset:])
	if err != nil {
		return nil, fmt.Errorf("packet: PUBLISH topic: %w", err)
	}
	p.Topic = topic
	offset += n

	if p.QoS > 0 {
		if offset+2 > len(buf) {
			return nil, fmt.Errorf("packet: PUBLISH truncated before packet id")
		}
		p.PacketID = binary.BigEndian.Uint16(buf[offset : offset+2])
		offset += 2
	}

	if version == V5 {
		props, n, err := DecodeProperties(buf[offset:])
		if err != nil {
			return nil, fmt.Errorf("packet: PUBLISH properties: %w", err)
		}
		p.Properties = props
		offset += n
	}

	p.Payload = append([]byte(nil), buf[offset:]...)
	return p, nil
}

// ResolveAliasAddTopic implements the resolve-alias-add-topic transform: it
// requires the current topic to be empty and the candidate to contain no
// wildcard, sets the topic, and removes any TopicAlias property.
func (p *Publish) ResolveAliasAddTopic(topic string) error {
	if p.Topic != "" {
		return fmt.Errorf("packet: PUBLISH already carries a topic")
	}
	if containsWildcard(topic) {
		return fmt.Errorf("packet: topic %q contains a wildcard character", topic)
	}
	p.Topic = topic
	if p.Properties != nil {
		p.Properties.ClearTopicAlias()
	}
	return nil
}

// RemoveTopicAlias implements the remove-topic-alias transform: it deletes
// the TopicAlias property, leaving the topic name unchanged.
func (p *Publish) RemoveTopicAlias() {
	if p.Properties != nil {
		p.Properties.ClearTopicAlias()
	}
}

// SubstituteTopicWithAlias implements the substitute-topic-with-alias
// transform: it clears the topic name and sets a TopicAlias property to
// alias.
func (p *Publish) SubstituteTopicWithAlias(alias uint16) {
	p.Topic = ""
	if p.Properties == nil {
		p.Properties = &Properties{}
	}
	p.Properties.SetTopicAlias(alias)
}

// AddExtractedTopicName implements the add-extracted-topic-name transform:
// like ResolveAliasAddTopic, but for the receive side, and it marks the
// topic as engine-inserted via TopicExtracted.
func (p *Publish) AddExtractedTopicName(topic string) error {
	if err := p.ResolveAliasAddTopic(topic); err != nil {
		return err
	}
	p.TopicExtracted = true
	return nil
}

func containsWildcard(topic string) bool {
	for i := 0; i < len(topic); i++ {
		if topic[i] == '+' || topic[i] == '#' {
			return true
		}
	}
	return false
}
