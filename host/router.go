package host

import "strings"

// matchTopic reports whether topic matches filter, honoring the MQTT
// wildcards '+' (single level) and '#' (multi-level, only legal as the
// final level). Per MQTT-4.7.2-1 a filter beginning with a wildcard never
// matches a topic beginning with '$', even though that rule is written for
// servers: local dispatch enforces it too, so a client doesn't accidentally
// route a broker's $SYS feed to a catch-all handler.
func matchTopic(filter, topic string) bool {
	if len(topic) > 0 && topic[0] == '$' {
		if len(filter) > 0 && (filter[0] == '+' || filter[0] == '#') {
			return false
		}
	}

	fIdx, tIdx := 0, 0
	fLen, tLen := len(filter), len(topic)

	for fIdx <= fLen {
		var fLevel string
		var fNext int
		if idx := strings.IndexByte(filter[fIdx:], '/'); idx >= 0 {
			fNext = fIdx + idx
			fLevel = filter[fIdx:fNext]
		} else {
			fNext = fLen
			fLevel = filter[fIdx:]
		}

		if fLevel == "#" {
			return true
		}
		if tIdx > tLen {
			return false
		}

		var tLevel string
		var tNext int
		if idx := strings.IndexByte(topic[tIdx:], '/'); idx >= 0 {
			tNext = tIdx + idx
			tLevel = topic[tIdx:tNext]
		} else {
			tNext = tLen
			tLevel = topic[tIdx:]
		}

		if fLevel != "+" && fLevel != tLevel {
			return false
		}

		if fNext == fLen {
			fIdx = fLen + 1
		} else {
			fIdx = fNext + 1
		}
		if tNext == tLen {
			tIdx = tLen + 1
		} else {
			tIdx = tNext + 1
		}
	}

	return tIdx > tLen
}

// subscription is one registered filter/handler pair.
type subscription struct {
	filter  string
	qos     uint8
	handler func(*Message)
}

// Message is the payload handed to a per-filter subscription handler,
// carrying the topic the PUBLISH actually arrived on, since a wildcard
// filter doesn't tell the handler which topic fired. The matched filter
// itself is not included.
type Message struct {
	Topic   string
	Payload []byte
	QoS     uint8
	Retain  bool
}

// router dispatches an incoming PUBLISH to every registered subscription
// whose filter matches the packet's topic. A PUBLISH can satisfy more than
// one filter (e.g. "a/+" and "a/#" both registered), so every match runs,
// not just the first.
type router struct {
	subs []subscription
}

func (r *router) add(filter string, qos uint8, handler func(*Message)) {
	r.subs = append(r.subs, subscription{filter: filter, qos: qos, handler: handler})
}

func (r *router) removeFilter(filter string) {
	kept := r.subs[:0]
	for _, s := range r.subs {
		if s.filter != filter {
			kept = append(kept, s)
		}
	}
	r.subs = kept
}

func (r *router) dispatch(m *Message) (delivered int) {
	for _, s := range r.subs {
		if matchTopic(s.filter, m.Topic) {
			s.handler(m)
			delivered++
		}
	}
	return delivered
}
