package framer

import (
	"bytes"
	"testing"

	"github.com/gonzalop/mqttengine/packet"
)

// rawPingreq builds the two-byte wire form of a PINGREQ: type nibble 0xc,
// no flags, zero remaining length.
func rawPingreq() []byte {
	return []byte{0xc0, 0x00}
}

// rawPublish builds a PUBLISH with the given payload and no variable
// header, just enough to exercise multi-byte remaining length.
func rawPublish(payload []byte) []byte {
	var buf []byte
	buf = append(buf, 0x30) // PUBLISH, QoS 0, no dup/retain
	buf = packet.AppendVarInt(buf, len(payload))
	buf = append(buf, payload...)
	return buf
}

func TestFeedCompletePacketInOneCall(t *testing.T) {
	f := New(0)
	raws, err := f.Feed(rawPingreq())
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("len(raws) = %d, want 1", len(raws))
	}
	if raws[0].Header.Type != packet.PINGREQ {
		t.Fatalf("Header.Type = %d, want PINGREQ", raws[0].Header.Type)
	}
	if raws[0].Header.RemainingLength != 0 {
		t.Fatalf("RemainingLength = %d, want 0", raws[0].Header.RemainingLength)
	}
	if f.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", f.Pending())
	}
}

func TestFeedByteAtATime(t *testing.T) {
	f := New(0)
	wire := rawPublish([]byte("hello"))

	var got []Raw
	for i, b := range wire {
		raws, err := f.Feed([]byte{b})
		if err != nil {
			t.Fatalf("Feed() byte %d error = %v", i, err)
		}
		got = append(got, raws...)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if !bytes.Equal(got[0].Body, wire[2:]) {
		t.Fatalf("Body = %q, want %q", got[0].Body, wire[2:])
	}
}

func TestFeedMultiplePacketsInOneCall(t *testing.T) {
	f := New(0)
	wire := append(rawPingreq(), rawPingreq()...)
	wire = append(wire, rawPublish([]byte("x"))...)

	raws, err := f.Feed(wire)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(raws) != 3 {
		t.Fatalf("len(raws) = %d, want 3", len(raws))
	}
	if raws[2].Header.Type != packet.PUBLISH {
		t.Fatalf("raws[2].Header.Type = %d, want PUBLISH", raws[2].Header.Type)
	}
}

func TestFeedIncompletePacketWaitsForMoreBytes(t *testing.T) {
	f := New(0)
	wire := rawPublish([]byte("hello world"))

	raws, err := f.Feed(wire[:3])
	if err != nil {
		t.Fatalf("Feed() partial error = %v", err)
	}
	if len(raws) != 0 {
		t.Fatalf("len(raws) = %d, want 0 on partial feed", len(raws))
	}
	if f.Pending() != 3 {
		t.Fatalf("Pending() = %d, want 3", f.Pending())
	}

	raws, err = f.Feed(wire[3:])
	if err != nil {
		t.Fatalf("Feed() remainder error = %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("len(raws) = %d, want 1 after remainder", len(raws))
	}
}

func TestFeedRejectsOversizedPacket(t *testing.T) {
	f := New(10)
	wire := rawPublish(make([]byte, 100))

	_, err := f.Feed(wire)
	if err == nil {
		t.Fatal("Feed() with oversized packet did not error")
	}
}

func TestFeedTruncatedVarIntWaits(t *testing.T) {
	f := New(0)
	// A remaining-length byte with the continuation bit set but nothing
	// after it isn't malformed yet -- just incomplete.
	raws, err := f.Feed([]byte{0x30, 0x80})
	if err != nil {
		t.Fatalf("Feed() error = %v, want nil (awaiting more bytes)", err)
	}
	if len(raws) != 0 {
		t.Fatalf("len(raws) = %d, want 0", len(raws))
	}
}

func TestResetDiscardsPendingBytes(t *testing.T) {
	f := New(0)
	f.Feed(rawPublish([]byte("hello"))[:3])
	if f.Pending() == 0 {
		t.Fatal("Pending() = 0 before Reset, test setup is wrong")
	}
	f.Reset()
	if f.Pending() != 0 {
		t.Fatalf("Pending() after Reset = %d, want 0", f.Pending())
	}
}
