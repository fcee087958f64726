// Package packet implements the MQTT v3.1.1 and v5.0 wire format: fixed
// headers, variable byte integers, UTF-8 strings and binary data, the
// v5.0 property subsystem, and Encode/Decode for every control packet
// type. It has no knowledge of connection state or I/O; engine builds on
// top of it.
package packet

import "sync"

// Packet is implemented by every MQTT control packet.
type Packet interface {
	// Type returns the control packet type (one of the constants in types.go).
	Type() uint8

	// Encode appends the packet's wire encoding to dst and returns the
	// extended slice. It never blocks and performs no I/O.
	Encode(dst []byte) ([]byte, error)
}

// FixedHeader is the one-to-five-byte header present on every control
// packet: packet type + flags, followed by the Variable Byte Integer
// Remaining Length.
type FixedHeader struct {
	Type            uint8
	Flags           uint8
	RemainingLength int
}

// Append appends the encoded fixed header to dst.
func (h FixedHeader) Append(dst []byte) []byte {
	dst = append(dst, (h.Type<<4)|(h.Flags&0x0f))
	return AppendVarInt(dst, h.RemainingLength)
}

// Len reports the encoded size of the fixed header in bytes.
func (h FixedHeader) Len() int {
	return 1 + VarIntLen(h.RemainingLength)
}

// scratchPool recycles the append buffers used by Encode callers that need
// a throwaway []byte (e.g. to size-check a packet before sending it). 4KB
// comfortably covers the common control packets; PUBLISH payloads larger
// than that simply grow the slice as append would anyway.
var scratchPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 4096)
		return &buf
	},
}

// GetScratch returns a zero-length buffer with spare capacity from the pool.
func GetScratch() *[]byte {
	return scratchPool.Get().(*[]byte)
}

// PutScratch returns a scratch buffer to the pool. Buffers that grew past a
// few times the default capacity are dropped instead of pooled, so one
// oversized PUBLISH doesn't pin a large buffer in the pool forever.
func PutScratch(buf *[]byte) {
	if cap(*buf) > 64*1024 {
		return
	}
	*buf = (*buf)[:0]
	scratchPool.Put(buf)
}
