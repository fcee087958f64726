package packet

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// AppendString appends an MQTT UTF-8 encoded string (2-byte big-endian
// length prefix, max 65535 bytes of content) to dst.
func AppendString(dst []byte, s string) []byte {
	n := uint16(len(s))
	dst = append(dst, byte(n>>8), byte(n))
	return append(dst, s...)
}

// AppendBinary appends an MQTT binary field (2-byte big-endian length
// prefix) to dst.
func AppendBinary(dst []byte, data []byte) []byte {
	n := uint16(len(data))
	dst = append(dst, byte(n>>8), byte(n))
	return append(dst, data...)
}

// DecodeString reads a length-prefixed UTF-8 string from the front of buf.
// It rejects embedded NUL bytes and invalid UTF-8, both disallowed for MQTT
// strings.
func DecodeString(buf []byte) (string, int, error) {
	if len(buf) < 2 {
		return "", 0, fmt.Errorf("packet: buffer too short for string length")
	}
	n := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+n {
		return "", 0, fmt.Errorf("packet: buffer too short for string content: need %d, have %d", n, len(buf)-2)
	}
	s := string(buf[2 : 2+n])
	if strings.IndexByte(s, 0) >= 0 {
		return "", 0, fmt.Errorf("packet: string contains a NUL byte")
	}
	if !utf8.ValidString(s) {
		return "", 0, fmt.Errorf("packet: string is not valid UTF-8")
	}
	return s, 2 + n, nil
}

// DecodeBinary reads a length-prefixed binary field from the front of buf.
// The returned slice aliases buf.
func DecodeBinary(buf []byte) ([]byte, int, error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("packet: buffer too short for binary length")
	}
	n := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+n {
		return nil, 0, fmt.Errorf("packet: buffer too short for binary content: need %d, have %d", n, len(buf)-2)
	}
	return buf[2 : 2+n], 2 + n, nil
}
