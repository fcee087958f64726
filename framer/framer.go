// Package framer turns a stream of incoming bytes into complete MQTT
// control packets without ever blocking on a reader: callers feed it
// whatever bytes have arrived so far and it reports back either a
// complete raw packet, a request for more bytes, or a framing error.
//
// This mirrors the buffered byte-by-byte loop of a blocking
// io.Reader-based packet reader, just staged to tolerate partial
// delivery a chunk at a time.
package framer

import (
	"errors"
	"fmt"

	"github.com/gonzalop/mqttengine/packet"
)

// ErrPacketTooLarge is returned by Feed when a fixed header announces a
// Remaining Length beyond the framer's configured maximum.
var ErrPacketTooLarge = errors.New("framer: packet exceeds maximum size")

// Raw is a framed but not-yet-decoded control packet: the fixed header
// plus its exact variable-header-and-payload bytes.
type Raw struct {
	Header packet.FixedHeader
	Body   []byte
}

// Framer incrementally reassembles MQTT control packets from a byte
// stream. It owns no socket and performs no I/O; Feed is the only entry
// point, and it never blocks.
type Framer struct {
	maxPacketSize int
	buf           []byte
}

// New creates a Framer. maxPacketSize bounds the Remaining Length a fixed
// header may announce; 0 or a value above the protocol ceiling falls back
// to packet.MaxPacketSize's remaining-length component (268435455).
func New(maxPacketSize int) *Framer {
	if maxPacketSize <= 0 || maxPacketSize > 268435455 {
		maxPacketSize = 268435455
	}
	return &Framer{maxPacketSize: maxPacketSize}
}

// Feed appends data to the framer's internal buffer and extracts as many
// complete packets as are available. It returns the packets fully framed
// by this call, in arrival order. Leftover partial bytes are retained
// internally for the next Feed call.
func (f *Framer) Feed(data []byte) ([]Raw, error) {
	f.buf = append(f.buf, data...)

	var out []Raw
	for {
		raw, ok, err := f.tryExtract()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, raw)
	}
}

// tryExtract attempts to pull one complete packet off the front of f.buf.
func (f *Framer) tryExtract() (Raw, bool, error) {
	if len(f.buf) == 0 {
		return Raw{}, false, nil
	}

	typeByte := f.buf[0]
	remaining, n, err := packet.DecodeVarInt(f.buf[1:])
	if err != nil {
		// Need more bytes for the VBI unless it's outright malformed
		// (we can't yet tell from a truncated VBI alone, so treat any
		// decode failure here as "not enough data yet" up to 4 length
		// bytes; DecodeVarInt itself reports the 5-byte-continuation
		// case as an error, which we propagate as a framing failure.
		if len(f.buf) >= 5 {
			return Raw{}, false, fmt.Errorf("framer: %w", err)
		}
		return Raw{}, false, nil
	}

	if remaining > f.maxPacketSize {
		return Raw{}, false, fmt.Errorf("%w: remaining length %d exceeds %d", ErrPacketTooLarge, remaining, f.maxPacketSize)
	}

	total := 1 + n + remaining
	if len(f.buf) < total {
		return Raw{}, false, nil
	}

	body := make([]byte, remaining)
	copy(body, f.buf[1+n:total])

	raw := Raw{
		Header: packet.FixedHeader{
			Type:            typeByte >> 4,
			Flags:           typeByte & 0x0f,
			RemainingLength: remaining,
		},
		Body: body,
	}

	// Slide the consumed prefix out. Reslicing-and-copy keeps the
	// buffer from growing unbounded across many small Feed calls.
	rest := len(f.buf) - total
	copy(f.buf, f.buf[total:])
	f.buf = f.buf[:rest]

	return raw, true, nil
}

// Pending reports how many bytes are currently buffered awaiting more
// data to complete a packet.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset discards any partially-buffered bytes, as happens when a
// connection is closed and a new one begins reusing the same Framer.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
