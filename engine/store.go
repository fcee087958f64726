package engine

import "github.com/gonzalop/mqttengine/packet"

// storeKind distinguishes the two packet shapes a store entry can hold.
type storeKind uint8

const (
	storePublish storeKind = iota
	storePubrel
)

// StoreEntry is the regulated, wire-ready form of a PUBLISH (DUP forced,
// topic alias resolved or removed) or PUBREL awaiting its acknowledgement.
// It is the unit the host snapshots and restores across a process restart.
type StoreEntry struct {
	ID      uint16
	Publish *packet.Publish // nil for a PUBREL entry
	IsPubrel bool
}

// store is the retransmission store keyed by packet id (§3, "Store
// entry"). It is private to its Connection.
type store struct {
	entries map[uint16]StoreEntry
	order   []uint16 // insertion order, for deterministic replay
}

func newStore() *store {
	return &store{entries: make(map[uint16]StoreEntry)}
}

func (s *store) putPublish(id uint16, p *packet.Publish) {
	if _, exists := s.entries[id]; !exists {
		s.order = append(s.order, id)
	}
	s.entries[id] = StoreEntry{ID: id, Publish: p}
}

func (s *store) putPubrel(id uint16) {
	if _, exists := s.entries[id]; !exists {
		s.order = append(s.order, id)
	}
	s.entries[id] = StoreEntry{ID: id, IsPubrel: true}
}

func (s *store) remove(id uint16) {
	if _, ok := s.entries[id]; !ok {
		return
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *store) clear() {
	s.entries = make(map[uint16]StoreEntry)
	s.order = nil
}

// snapshot returns the entries in insertion order.
func (s *store) snapshot() []StoreEntry {
	out := make([]StoreEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}

// GetStoredPackets implements get_stored_packets.
func (c *Connection) GetStoredPackets() []StoreEntry {
	return c.store.snapshot()
}

// RestorePackets implements restore_packets: it rehydrates the store and
// the corresponding pid_awaiting_* sets, re-registering each id with the
// packet-id manager. Entries whose id is already in use are skipped.
func (c *Connection) RestorePackets(entries []StoreEntry) {
	for _, e := range entries {
		if c.pids.InUse(e.ID) {
			continue
		}
		_ = c.pids.Register(e.ID)
		if e.IsPubrel {
			c.store.putPubrel(e.ID)
			c.awaitingPubcomp[e.ID] = struct{}{}
			c.qos2PublishProcessing[e.ID] = struct{}{}
			continue
		}
		c.store.putPublish(e.ID, e.Publish)
		if e.Publish != nil && e.Publish.QoS == packet.QoS2 {
			c.awaitingPubrec[e.ID] = struct{}{}
			c.qos2PublishProcessing[e.ID] = struct{}{}
		} else {
			c.awaitingPuback[e.ID] = struct{}{}
		}
	}
}

// replayStore emits a RequestSendPacket for each stored entry, in
// insertion order, dropping and releasing any entry too large for the
// newly negotiated send cap (§4.G.6).
func (c *Connection) replayStore() []Event {
	var events []Event
	for _, id := range append([]uint16(nil), c.store.order...) {
		entry := c.store.entries[id]
		if entry.IsPubrel {
			pubrel := packet.NewPubrel()
			pubrel.PacketID = id
			pubrel.Version = c.version
			events = append(events, evSend(pubrel))
			continue
		}
		clone := *entry.Publish
		clone.Dup = true
		encodedLen := estimatePublishSize(&clone)
		if uint32(encodedLen) > c.maxPacketSizeSend {
			c.store.remove(id)
			c.pids.Release(id)
			delete(c.awaitingPuback, id)
			delete(c.awaitingPubrec, id)
			delete(c.qos2PublishProcessing, id)
			events = append(events, evIDReleased(uint32(id)))
			continue
		}
		events = append(events, evSend(&clone))
	}
	return events
}

func estimatePublishSize(p *packet.Publish) int {
	body, err := p.Encode(nil)
	if err != nil {
		return protocolCeilingBytes + 1
	}
	return len(body)
}
