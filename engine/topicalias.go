package engine

import "container/list"

// sendAliasEntry is the value stored in the send table's LRU list.
type sendAliasEntry struct {
	topic string
	alias uint16
}

// sendAliasTable is the send-side bidirectional topic<->alias mapping
// (§4.F). It tracks recency so get-lru-alias can report the alias that
// would be evicted next, and distinguishes get (which touches recency)
// from peek (which does not) so that resolving an alias at store time
// never perturbs the ordering the wire protocol observes.
type sendAliasTable struct {
	max      uint16
	byTopic  map[string]*list.Element
	byAlias  map[uint16]*list.Element
	order    *list.List // front = most recently used
}

func newSendAliasTable(max uint16) *sendAliasTable {
	return &sendAliasTable{
		max:     max,
		byTopic: make(map[string]*list.Element),
		byAlias: make(map[uint16]*list.Element),
		order:   list.New(),
	}
}

// FindByTopic reports the alias currently mapped to topic, if any. It does
// not affect recency.
func (t *sendAliasTable) FindByTopic(topic string) (uint16, bool) {
	el, ok := t.byTopic[topic]
	if !ok {
		return 0, false
	}
	return el.Value.(*sendAliasEntry).alias, true
}

// Peek finds the topic mapped to alias without updating recency. Used by
// regulate-for-store: resolving an alias for the retransmission store must
// not disturb the live LRU ordering visible to the wire protocol.
func (t *sendAliasTable) Peek(alias uint16) (string, bool) {
	el, ok := t.byAlias[alias]
	if !ok {
		return "", false
	}
	return el.Value.(*sendAliasEntry).topic, true
}

// Get finds the topic mapped to alias and marks it most-recently-used.
func (t *sendAliasTable) Get(alias uint16) (string, bool) {
	el, ok := t.byAlias[alias]
	if !ok {
		return "", false
	}
	t.order.MoveToFront(el)
	return el.Value.(*sendAliasEntry).topic, true
}

// InsertOrUpdate records topic<->alias, replacing any previous mapping
// either side was part of, and marks the entry most-recently-used.
func (t *sendAliasTable) InsertOrUpdate(topic string, alias uint16) {
	if el, ok := t.byTopic[topic]; ok {
		if old := el.Value.(*sendAliasEntry); old.alias != alias {
			delete(t.byAlias, old.alias)
			delete(t.byTopic, topic)
			t.order.Remove(el)
		}
	}
	if el, ok := t.byAlias[alias]; ok {
		entry := el.Value.(*sendAliasEntry)
		delete(t.byTopic, entry.topic)
		entry.topic = topic
		t.byTopic[topic] = el
		t.order.MoveToFront(el)
		return
	}
	entry := &sendAliasEntry{topic: topic, alias: alias}
	el := t.order.PushFront(entry)
	t.byTopic[topic] = el
	t.byAlias[alias] = el
}

// GetLRUAlias reports the alias that would be evicted next (the least
// recently used entry), without evicting it. If the table has capacity
// remaining (fewer entries than max distinct aliases), it returns the
// lowest alias that is not currently mapped instead.
func (t *sendAliasTable) GetLRUAlias() uint16 {
	if uint16(len(t.byAlias)) < t.max {
		for a := uint16(1); a <= t.max; a++ {
			if _, used := t.byAlias[a]; !used {
				return a
			}
		}
	}
	back := t.order.Back()
	if back == nil {
		return 1
	}
	return back.Value.(*sendAliasEntry).alias
}

// recvAliasTable is the receive-side alias->topic mapping (§4.F). It has
// no LRU semantics of its own: the peer (the send-side owner) chooses
// which aliases to reuse, so the receive table simply tracks whatever it
// is told.
type recvAliasTable struct {
	max     uint16
	byAlias map[uint16]string
}

func newRecvAliasTable(max uint16) *recvAliasTable {
	return &recvAliasTable{max: max, byAlias: make(map[uint16]string)}
}

// InsertOrUpdate records alias -> topic.
func (t *recvAliasTable) InsertOrUpdate(alias uint16, topic string) {
	t.byAlias[alias] = topic
}

// Lookup returns the topic registered for alias.
func (t *recvAliasTable) Lookup(alias uint16) (string, bool) {
	topic, ok := t.byAlias[alias]
	return topic, ok
}
