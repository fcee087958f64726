package engine

import (
	"testing"

	"github.com/gonzalop/mqttengine/packet"
)

func TestStorePutSnapshotOrderAndRemove(t *testing.T) {
	s := newStore()
	s.putPublish(3, &packet.Publish{Topic: "a", PacketID: 3})
	s.putPublish(1, &packet.Publish{Topic: "b", PacketID: 1})
	s.putPubrel(2)

	snap := s.snapshot()
	if len(snap) != 3 || snap[0].ID != 3 || snap[1].ID != 1 || snap[2].ID != 2 {
		t.Fatalf("snapshot() = %+v, want insertion order [3, 1, 2]", snap)
	}

	s.remove(1)
	snap = s.snapshot()
	if len(snap) != 2 || snap[0].ID != 3 || snap[1].ID != 2 {
		t.Fatalf("snapshot() after remove(1) = %+v, want [3, 2]", snap)
	}

	s.remove(99) // no-op, must not panic
	s.clear()
	if len(s.snapshot()) != 0 {
		t.Fatal("snapshot() after clear() is not empty")
	}
}

func TestRegulateForStoreV311ForcesDupOnly(t *testing.T) {
	c := New(RoleClient)
	p := &packet.Publish{Topic: "a/b", Payload: []byte("x"), Version: packet.V311, PacketID: 1}

	got, err := c.regulateForStore(p)
	if err != nil {
		t.Fatalf("regulateForStore() error = %v", err)
	}
	if !got.Dup {
		t.Fatal("regulateForStore() did not force Dup")
	}
	if got.Topic != "a/b" {
		t.Fatalf("regulateForStore() Topic = %q, want unchanged a/b", got.Topic)
	}
	if p.Dup {
		t.Fatal("regulateForStore() mutated the caller's original PUBLISH")
	}
}

func TestRegulateForStoreV5StripsTopicAliasWhenTopicPresent(t *testing.T) {
	c := New(RoleClient)
	props := &packet.Properties{}
	props.SetTopicAlias(9)
	p := &packet.Publish{Topic: "a/b", Payload: []byte("x"), Version: packet.V5, PacketID: 1, Properties: props}

	got, err := c.regulateForStore(p)
	if err != nil {
		t.Fatalf("regulateForStore() error = %v", err)
	}
	if got.Properties != nil && got.Properties.HasTopicAlias() {
		t.Fatal("regulateForStore() left the topic alias in place alongside an explicit topic")
	}
	if !props.HasTopicAlias() {
		t.Fatal("regulateForStore() mutated the caller's Properties in place")
	}
}

func TestRegulateForStoreV5ResolvesAliasFromSendTable(t *testing.T) {
	c := New(RoleClient)
	c.topicAliasSend = newSendAliasTable(10)
	c.topicAliasSend.InsertOrUpdate("resolved/topic", 4)

	props := &packet.Properties{}
	props.SetTopicAlias(4)
	p := &packet.Publish{Payload: []byte("x"), Version: packet.V5, PacketID: 1, Properties: props}

	got, err := c.regulateForStore(p)
	if err != nil {
		t.Fatalf("regulateForStore() error = %v", err)
	}
	if got.Topic != "resolved/topic" {
		t.Fatalf("regulateForStore() Topic = %q, want resolved/topic", got.Topic)
	}
	if got.Properties != nil && got.Properties.HasTopicAlias() {
		t.Fatal("regulateForStore() left the topic alias set after resolving it")
	}

	// Peek must not have disturbed the live LRU ordering.
	if got := c.topicAliasSend.GetLRUAlias(); got != 1 {
		t.Fatalf("GetLRUAlias() after regulateForStore = %d, want 1 (table still has capacity; lowest unmapped alias)", got)
	}
}

func TestRegulateForStoreV5NoTopicNoAliasErrors(t *testing.T) {
	c := New(RoleClient)
	p := &packet.Publish{Payload: []byte("x"), Version: packet.V5, PacketID: 1}

	if _, err := c.regulateForStore(p); err == nil {
		t.Fatal("regulateForStore() with neither topic nor alias did not error")
	}
}

func TestRegulateForStoreV5UnregisteredAliasErrors(t *testing.T) {
	c := New(RoleClient)
	c.topicAliasSend = newSendAliasTable(10)
	props := &packet.Properties{}
	props.SetTopicAlias(7)
	p := &packet.Publish{Payload: []byte("x"), Version: packet.V5, PacketID: 1, Properties: props}

	if _, err := c.regulateForStore(p); err == nil {
		t.Fatal("regulateForStore() with an unregistered alias did not error")
	}
}

// TestQoS1PublishIsStoredAndReplayedOnReconnect exercises the full path: a
// QoS1 PUBLISH sent while connected with needStore enabled lands in the
// store, survives NotifyClosed, and is replayed with Dup set once the
// broker reports SessionPresent on the next CONNACK.
func TestQoS1PublishIsStoredAndReplayedOnReconnect(t *testing.T) {
	c := New(RoleClient)
	c.SetNeedStore(true)

	c.Send(&packet.Connect{ProtocolName: "MQTT", ProtocolLevel: 4, CleanStart: false, ClientID: "c", KeepAlive: 30})
	c.Recv(wireBytes(t, &packet.Connack{ReasonCode: packet.ConnAccepted}))

	id, err := c.AcquirePacketID()
	if err != nil {
		t.Fatalf("AcquirePacketID() error = %v", err)
	}
	pub := &packet.Publish{Topic: "a/b", Payload: []byte("hi"), QoS: packet.QoS1, PacketID: id, Version: packet.V311}
	c.Send(pub)

	if len(c.store.snapshot()) != 1 {
		t.Fatalf("store has %d entries after Send, want 1", len(c.store.snapshot()))
	}

	c.NotifyClosed()
	if len(c.store.snapshot()) != 1 {
		t.Fatal("NotifyClosed dropped the store even though needStore is true")
	}
	if !c.pids.InUse(id) {
		t.Fatal("NotifyClosed released the packet id even though needStore is true")
	}

	c.Send(&packet.Connect{ProtocolName: "MQTT", ProtocolLevel: 4, CleanStart: false, ClientID: "c", KeepAlive: 30})
	reconnectAck := &packet.Connack{ReasonCode: packet.ConnAccepted, SessionPresent: true}
	events := c.Recv(wireBytes(t, reconnectAck))

	sendEv, ok := findEvent(events, RequestSendPacket)
	if !ok {
		t.Fatalf("Recv(CONNACK SessionPresent=true) = %+v, want the stored PUBLISH replayed", events)
	}
	replayed, ok := sendEv.Packet.(*packet.Publish)
	if !ok || !replayed.Dup || replayed.PacketID != id {
		t.Fatalf("replayed packet = %+v, want a DUP PUBLISH with id %d", sendEv.Packet, id)
	}
}

func TestReplayStoreDropsOversizedEntry(t *testing.T) {
	c := New(RoleClient)
	c.SetNeedStore(true)
	c.store.putPublish(1, &packet.Publish{Topic: "a/b", Payload: []byte("hi"), QoS: packet.QoS1, PacketID: 1, Version: packet.V311})
	_ = c.pids.Register(1)
	c.awaitingPuback[1] = struct{}{}
	c.maxPacketSizeSend = 1 // nothing will fit

	events := c.replayStore()
	if _, ok := findEvent(events, NotifyPacketIDReleased); !ok {
		t.Fatalf("replayStore() with a tiny cap = %+v, want the oversized entry released", events)
	}
	if c.pids.InUse(1) {
		t.Fatal("replayStore() did not release the id of a dropped entry")
	}
	if len(c.store.snapshot()) != 0 {
		t.Fatal("replayStore() did not remove the dropped entry from the store")
	}
}
