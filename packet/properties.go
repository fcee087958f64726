package packet

import (
	"encoding/binary"
	"fmt"
)

// Property identifiers defined by the MQTT v5.0 specification.
const (
	PropPayloadFormatIndicator          uint8 = 0x01
	PropMessageExpiryInterval           uint8 = 0x02
	PropContentType                     uint8 = 0x03
	PropResponseTopic                   uint8 = 0x08
	PropCorrelationData                 uint8 = 0x09
	PropSubscriptionIdentifier          uint8 = 0x0B
	PropSessionExpiryInterval           uint8 = 0x11
	PropAssignedClientIdentifier        uint8 = 0x12
	PropServerKeepAlive                 uint8 = 0x13
	PropAuthenticationMethod            uint8 = 0x15
	PropAuthenticationData              uint8 = 0x16
	PropRequestProblemInformation       uint8 = 0x17
	PropWillDelayInterval                uint8 = 0x18
	PropRequestResponseInformation      uint8 = 0x19
	PropResponseInformation             uint8 = 0x1A
	PropServerReference                 uint8 = 0x1C
	PropReasonString                    uint8 = 0x1F
	PropReceiveMaximum                  uint8 = 0x21
	PropTopicAliasMaximum               uint8 = 0x22
	PropTopicAlias                       uint8 = 0x23
	PropMaximumQoS                       uint8 = 0x24
	PropRetainAvailable                  uint8 = 0x25
	PropUserProperty                     uint8 = 0x26
	PropMaximumPacketSize                uint8 = 0x27
	PropWildcardSubscriptionAvailable    uint8 = 0x28
	PropSubscriptionIdentifierAvailable  uint8 = 0x29
	PropSharedSubscriptionAvailable      uint8 = 0x2A
)

// Presence bits, one per scalar property, tracked in Properties.Presence so
// zero-valued-but-present can be told apart from absent.
const (
	hasPayloadFormatIndicator uint32 = 1 << iota
	hasMessageExpiryInterval
	hasContentType
	hasResponseTopic
	hasSessionExpiryInterval
	hasAssignedClientIdentifier
	hasServerKeepAlive
	hasAuthenticationMethod
	hasRequestProblemInformation
	hasWillDelayInterval
	hasRequestResponseInformation
	hasResponseInformation
	hasServerReference
	hasReasonString
	hasReceiveMaximum
	hasTopicAliasMaximum
	hasTopicAlias
	hasMaximumQoS
	hasRetainAvailable
	hasMaximumPacketSize
	hasWildcardSubscriptionAvailable
	hasSubscriptionIdentifierAvailable
	hasSharedSubscriptionAvailable
)

// UserProperty is an MQTT v5.0 User Property: an arbitrary, repeatable
// key/value pair.
type UserProperty struct {
	Key   string
	Value string
}

// Properties holds every property a v5.0 control packet may carry. Not
// every field is legal on every packet type, but encoding and decoding do
// not check which properties a packet type admits, and a singleton
// property repeated on the wire overwrites the earlier value instead of
// being rejected. Only the per-property value checks in decodeOne apply.
type Properties struct {
	Presence uint32

	PayloadFormatIndicator   uint8
	MessageExpiryInterval    uint32
	ContentType              string
	ResponseTopic            string
	CorrelationData          []byte
	SubscriptionIdentifier   []int
	SessionExpiryInterval    uint32
	AssignedClientIdentifier string
	ServerKeepAlive          uint16
	AuthenticationMethod     string
	AuthenticationData       []byte
	RequestProblemInfo       uint8
	WillDelayInterval        uint32
	RequestResponseInfo      uint8
	ResponseInformation      string
	ServerReference          string
	ReasonString             string
	ReceiveMaximum           uint16
	TopicAliasMaximum        uint16
	TopicAlias               uint16
	MaximumQoS               uint8
	RetainAvailable          bool
	UserProperties           []UserProperty
	MaximumPacketSize        uint32
	WildcardSubAvailable     bool
	SubIDAvailable           bool
	SharedSubAvailable       bool
}

func (p *Properties) has(bit uint32) bool { return p != nil && p.Presence&bit != 0 }

// HasTopicAlias reports whether a TopicAlias property is present.
func (p *Properties) HasTopicAlias() bool { return p.has(hasTopicAlias) }

// HasReasonString reports whether a ReasonString property is present.
func (p *Properties) HasReasonString() bool { return p.has(hasReasonString) }

// HasSessionExpiryInterval reports whether a SessionExpiryInterval property is present.
func (p *Properties) HasSessionExpiryInterval() bool { return p.has(hasSessionExpiryInterval) }

// HasServerReference reports whether a ServerReference property is present.
func (p *Properties) HasServerReference() bool { return p.has(hasServerReference) }

// HasPayloadFormatIndicator reports whether a PayloadFormatIndicator
// property is present.
func (p *Properties) HasPayloadFormatIndicator() bool { return p.has(hasPayloadFormatIndicator) }

// ClearTopicAlias removes the TopicAlias property, if present.
func (p *Properties) ClearTopicAlias() {
	if p == nil {
		return
	}
	p.Presence &^= hasTopicAlias
	p.TopicAlias = 0
}

// SetTopicAlias sets (or replaces) the TopicAlias property.
func (p *Properties) SetTopicAlias(alias uint16) {
	p.Presence |= hasTopicAlias
	p.TopicAlias = alias
}

// SetTopicAliasMaximum sets (or replaces) the TopicAliasMaximum property.
func (p *Properties) SetTopicAliasMaximum(max uint16) {
	p.Presence |= hasTopicAliasMaximum
	p.TopicAliasMaximum = max
}

// SetReceiveMaximum sets (or replaces) the ReceiveMaximum property.
func (p *Properties) SetReceiveMaximum(max uint16) {
	p.Presence |= hasReceiveMaximum
	p.ReceiveMaximum = max
}

// SetMaximumPacketSize sets (or replaces) the MaximumPacketSize property.
func (p *Properties) SetMaximumPacketSize(max uint32) {
	p.Presence |= hasMaximumPacketSize
	p.MaximumPacketSize = max
}

// SetPayloadFormatIndicator sets (or replaces) the PayloadFormatIndicator
// property. 1 declares the payload to be UTF-8 text.
func (p *Properties) SetPayloadFormatIndicator(v uint8) {
	p.Presence |= hasPayloadFormatIndicator
	p.PayloadFormatIndicator = v
}

// EncodedLen returns the number of bytes AppendProperties would write for p,
// including the leading length prefix.
func EncodedLen(p *Properties) int {
	if p == nil {
		return 1
	}
	n := appendPropertyFields(nil, p)
	return VarIntLen(len(n)) + len(n)
}

// AppendProperties appends the VBI-framed property section (length prefix
// followed by each property) to dst.
func AppendProperties(dst []byte, p *Properties) []byte {
	if p == nil {
		return append(dst, 0x00)
	}
	body := appendPropertyFields(nil, p)
	dst = AppendVarInt(dst, len(body))
	return append(dst, body...)
}

func appendPropertyFields(dst []byte, p *Properties) []byte {
	dst = p.appendNumericAndBool(dst)
	dst = p.appendStringsAndBinary(dst)
	dst = p.appendRepeated(dst)
	return dst
}

func (p *Properties) appendNumericAndBool(dst []byte) []byte {
	if p.has(hasPayloadFormatIndicator) {
		dst = append(dst, PropPayloadFormatIndicator, p.PayloadFormatIndicator)
	}
	if p.has(hasMessageExpiryInterval) {
		dst = append(dst, PropMessageExpiryInterval)
		dst = binary.BigEndian.AppendUint32(dst, p.MessageExpiryInterval)
	}
	if p.has(hasSessionExpiryInterval) {
		dst = append(dst, PropSessionExpiryInterval)
		dst = binary.BigEndian.AppendUint32(dst, p.SessionExpiryInterval)
	}
	if p.has(hasServerKeepAlive) {
		dst = append(dst, PropServerKeepAlive)
		dst = binary.BigEndian.AppendUint16(dst, p.ServerKeepAlive)
	}
	if p.has(hasRequestProblemInformation) {
		dst = append(dst, PropRequestProblemInformation, p.RequestProblemInfo)
	}
	if p.has(hasWillDelayInterval) {
		dst = append(dst, PropWillDelayInterval)
		dst = binary.BigEndian.AppendUint32(dst, p.WillDelayInterval)
	}
	if p.has(hasRequestResponseInformation) {
		dst = append(dst, PropRequestResponseInformation, p.RequestResponseInfo)
	}
	if p.has(hasReceiveMaximum) {
		dst = append(dst, PropReceiveMaximum)
		dst = binary.BigEndian.AppendUint16(dst, p.ReceiveMaximum)
	}
	if p.has(hasTopicAliasMaximum) {
		dst = append(dst, PropTopicAliasMaximum)
		dst = binary.BigEndian.AppendUint16(dst, p.TopicAliasMaximum)
	}
	if p.has(hasTopicAlias) {
		dst = append(dst, PropTopicAlias)
		dst = binary.BigEndian.AppendUint16(dst, p.TopicAlias)
	}
	if p.has(hasMaximumQoS) {
		dst = append(dst, PropMaximumQoS, p.MaximumQoS)
	}
	if p.has(hasMaximumPacketSize) {
		dst = append(dst, PropMaximumPacketSize)
		dst = binary.BigEndian.AppendUint32(dst, p.MaximumPacketSize)
	}
	if p.has(hasRetainAvailable) {
		dst = append(dst, PropRetainAvailable, boolByte(p.RetainAvailable))
	}
	if p.has(hasWildcardSubscriptionAvailable) {
		dst = append(dst, PropWildcardSubscriptionAvailable, boolByte(p.WildcardSubAvailable))
	}
	if p.has(hasSubscriptionIdentifierAvailable) {
		dst = append(dst, PropSubscriptionIdentifierAvailable, boolByte(p.SubIDAvailable))
	}
	if p.has(hasSharedSubscriptionAvailable) {
		dst = append(dst, PropSharedSubscriptionAvailable, boolByte(p.SharedSubAvailable))
	}
	return dst
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (p *Properties) appendStringsAndBinary(dst []byte) []byte {
	if p.has(hasContentType) {
		dst = append(dst, PropContentType)
		dst = AppendString(dst, p.ContentType)
	}
	if p.has(hasResponseTopic) {
		dst = append(dst, PropResponseTopic)
		dst = AppendString(dst, p.ResponseTopic)
	}
	if len(p.CorrelationData) > 0 {
		dst = append(dst, PropCorrelationData)
		dst = AppendBinary(dst, p.CorrelationData)
	}
	if p.has(hasAssignedClientIdentifier) {
		dst = append(dst, PropAssignedClientIdentifier)
		dst = AppendString(dst, p.AssignedClientIdentifier)
	}
	if p.has(hasAuthenticationMethod) {
		dst = append(dst, PropAuthenticationMethod)
		dst = AppendString(dst, p.AuthenticationMethod)
	}
	if len(p.AuthenticationData) > 0 {
		dst = append(dst, PropAuthenticationData)
		dst = AppendBinary(dst, p.AuthenticationData)
	}
	if p.has(hasResponseInformation) {
		dst = append(dst, PropResponseInformation)
		dst = AppendString(dst, p.ResponseInformation)
	}
	if p.has(hasServerReference) {
		dst = append(dst, PropServerReference)
		dst = AppendString(dst, p.ServerReference)
	}
	if p.has(hasReasonString) {
		dst = append(dst, PropReasonString)
		dst = AppendString(dst, p.ReasonString)
	}
	return dst
}

func (p *Properties) appendRepeated(dst []byte) []byte {
	for _, id := range p.SubscriptionIdentifier {
		dst = append(dst, PropSubscriptionIdentifier)
		dst = AppendVarInt(dst, id)
	}
	for _, up := range p.UserProperties {
		dst = append(dst, PropUserProperty)
		dst = AppendString(dst, up.Key)
		dst = AppendString(dst, up.Value)
	}
	return dst
}

// DecodeProperties reads a VBI-framed property section from the front of
// buf and returns the decoded properties (nil if the section is empty) plus
// the total number of bytes consumed (length prefix included).
func DecodeProperties(buf []byte) (*Properties, int, error) {
	propLen, n, err := DecodeVarInt(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("packet: properties length: %w", err)
	}
	total := n + propLen
	if len(buf) < total {
		return nil, 0, fmt.Errorf("packet: buffer too short for properties body")
	}
	if propLen == 0 {
		return nil, total, nil
	}

	p := &Properties{}
	body := buf[n:total]
	off := 0
	for off < len(body) {
		id := body[off]
		off++
		consumed, err := p.decodeOne(id, body[off:])
		if err != nil {
			return nil, 0, err
		}
		off += consumed
	}
	return p, total, nil
}

func (p *Properties) decodeOne(id uint8, data []byte) (int, error) {
	switch id {
	case PropPayloadFormatIndicator:
		if len(data) < 1 {
			return 0, shortProp(id)
		}
		if data[0] > 1 {
			return 0, fmt.Errorf("packet: PayloadFormatIndicator must be 0 or 1, got %d", data[0])
		}
		p.PayloadFormatIndicator = data[0]
		p.Presence |= hasPayloadFormatIndicator
		return 1, nil
	case PropMessageExpiryInterval:
		if len(data) < 4 {
			return 0, shortProp(id)
		}
		p.MessageExpiryInterval = binary.BigEndian.Uint32(data)
		p.Presence |= hasMessageExpiryInterval
		return 4, nil
	case PropContentType:
		s, n, err := DecodeString(data)
		if err != nil {
			return 0, err
		}
		p.ContentType = s
		p.Presence |= hasContentType
		return n, nil
	case PropResponseTopic:
		s, n, err := DecodeString(data)
		if err != nil {
			return 0, err
		}
		p.ResponseTopic = s
		p.Presence |= hasResponseTopic
		return n, nil
	case PropCorrelationData:
		b, n, err := DecodeBinary(data)
		if err != nil {
			return 0, err
		}
		p.CorrelationData = append([]byte(nil), b...)
		return n, nil
	case PropSubscriptionIdentifier:
		v, n, err := DecodeVarInt(data)
		if err != nil {
			return 0, err
		}
		if v == 0 {
			return 0, fmt.Errorf("packet: SubscriptionIdentifier must not be 0")
		}
		p.SubscriptionIdentifier = append(p.SubscriptionIdentifier, v)
		return n, nil
	case PropSessionExpiryInterval:
		if len(data) < 4 {
			return 0, shortProp(id)
		}
		p.SessionExpiryInterval = binary.BigEndian.Uint32(data)
		p.Presence |= hasSessionExpiryInterval
		return 4, nil
	case PropAssignedClientIdentifier:
		s, n, err := DecodeString(data)
		if err != nil {
			return 0, err
		}
		p.AssignedClientIdentifier = s
		p.Presence |= hasAssignedClientIdentifier
		return n, nil
	case PropServerKeepAlive:
		if len(data) < 2 {
			return 0, shortProp(id)
		}
		p.ServerKeepAlive = binary.BigEndian.Uint16(data)
		p.Presence |= hasServerKeepAlive
		return 2, nil
	case PropAuthenticationMethod:
		s, n, err := DecodeString(data)
		if err != nil {
			return 0, err
		}
		p.AuthenticationMethod = s
		p.Presence |= hasAuthenticationMethod
		return n, nil
	case PropAuthenticationData:
		b, n, err := DecodeBinary(data)
		if err != nil {
			return 0, err
		}
		p.AuthenticationData = append([]byte(nil), b...)
		return n, nil
	case PropRequestProblemInformation:
		if len(data) < 1 {
			return 0, shortProp(id)
		}
		p.RequestProblemInfo = data[0]
		p.Presence |= hasRequestProblemInformation
		return 1, nil
	case PropWillDelayInterval:
		if len(data) < 4 {
			return 0, shortProp(id)
		}
		p.WillDelayInterval = binary.BigEndian.Uint32(data)
		p.Presence |= hasWillDelayInterval
		return 4, nil
	case PropRequestResponseInformation:
		if len(data) < 1 {
			return 0, shortProp(id)
		}
		p.RequestResponseInfo = data[0]
		p.Presence |= hasRequestResponseInformation
		return 1, nil
	case PropResponseInformation:
		s, n, err := DecodeString(data)
		if err != nil {
			return 0, err
		}
		p.ResponseInformation = s
		p.Presence |= hasResponseInformation
		return n, nil
	case PropServerReference:
		s, n, err := DecodeString(data)
		if err != nil {
			return 0, err
		}
		p.ServerReference = s
		p.Presence |= hasServerReference
		return n, nil
	case PropReasonString:
		s, n, err := DecodeString(data)
		if err != nil {
			return 0, err
		}
		p.ReasonString = s
		p.Presence |= hasReasonString
		return n, nil
	case PropReceiveMaximum:
		if len(data) < 2 {
			return 0, shortProp(id)
		}
		v := binary.BigEndian.Uint16(data)
		if v == 0 {
			return 0, fmt.Errorf("packet: ReceiveMaximum must not be 0")
		}
		p.ReceiveMaximum = v
		p.Presence |= hasReceiveMaximum
		return 2, nil
	case PropTopicAliasMaximum:
		if len(data) < 2 {
			return 0, shortProp(id)
		}
		p.TopicAliasMaximum = binary.BigEndian.Uint16(data)
		p.Presence |= hasTopicAliasMaximum
		return 2, nil
	case PropTopicAlias:
		if len(data) < 2 {
			return 0, shortProp(id)
		}
		v := binary.BigEndian.Uint16(data)
		if v == 0 {
			return 0, fmt.Errorf("packet: TopicAlias must not be 0")
		}
		p.TopicAlias = v
		p.Presence |= hasTopicAlias
		return 2, nil
	case PropMaximumQoS:
		if len(data) < 1 {
			return 0, shortProp(id)
		}
		if data[0] > 1 {
			return 0, fmt.Errorf("packet: MaximumQoS must be 0 or 1, got %d", data[0])
		}
		p.MaximumQoS = data[0]
		p.Presence |= hasMaximumQoS
		return 1, nil
	case PropRetainAvailable:
		if len(data) < 1 {
			return 0, shortProp(id)
		}
		p.RetainAvailable = data[0] != 0
		p.Presence |= hasRetainAvailable
		return 1, nil
	case PropUserProperty:
		k, nk, err := DecodeString(data)
		if err != nil {
			return 0, err
		}
		v, nv, err := DecodeString(data[nk:])
		if err != nil {
			return 0, err
		}
		p.UserProperties = append(p.UserProperties, UserProperty{Key: k, Value: v})
		return nk + nv, nil
	case PropMaximumPacketSize:
		if len(data) < 4 {
			return 0, shortProp(id)
		}
		v := binary.BigEndian.Uint32(data)
		if v == 0 {
			return 0, fmt.Errorf("packet: MaximumPacketSize must not be 0")
		}
		p.MaximumPacketSize = v
		p.Presence |= hasMaximumPacketSize
		return 4, nil
	case PropWildcardSubscriptionAvailable:
		if len(data) < 1 {
			return 0, shortProp(id)
		}
		p.WildcardSubAvailable = data[0] != 0
		p.Presence |= hasWildcardSubscriptionAvailable
		return 1, nil
	case PropSubscriptionIdentifierAvailable:
		if len(data) < 1 {
			return 0, shortProp(id)
		}
		p.SubIDAvailable = data[0] != 0
		p.Presence |= hasSubscriptionIdentifierAvailable
		return 1, nil
	case PropSharedSubscriptionAvailable:
		if len(data) < 1 {
			return 0, shortProp(id)
		}
		p.SharedSubAvailable = data[0] != 0
		p.Presence |= hasSharedSubscriptionAvailable
		return 1, nil
	default:
		return 0, fmt.Errorf("packet: unrecognized property identifier 0x%02x", id)
	}
}

func shortProp(id uint8) error {
	return fmt.Errorf("packet: truncated property 0x%02x", id)
}
