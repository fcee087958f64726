package host

import "testing"

func TestMatchTopicSingleLevelWildcard(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/b/c", false},
		{"a/+", "a/b", true},
		{"+/+", "a/b", true},
		{"+", "a", true},
		{"+", "a/b", false},
	}
	for _, tt := range tests {
		if got := matchTopic(tt.filter, tt.topic); got != tt.want {
			t.Errorf("matchTopic(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestMatchTopicMultiLevelWildcard(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/#", "a", true},
		{"a/#", "a/b", true},
		{"a/#", "a/b/c", true},
		{"#", "a/b/c", true},
		{"a/b/#", "a/b", true},
		{"a/b/#", "a/c", false},
	}
	for _, tt := range tests {
		if got := matchTopic(tt.filter, tt.topic); got != tt.want {
			t.Errorf("matchTopic(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestMatchTopicDollarPrefixExcludedFromWildcards(t *testing.T) {
	if matchTopic("+/config", "$SYS/config") {
		t.Fatal("a leading + filter matched a $-prefixed topic")
	}
	if matchTopic("#", "$SYS/broker/uptime") {
		t.Fatal("a leading # filter matched a $-prefixed topic")
	}
	if !matchTopic("$SYS/+", "$SYS/uptime") {
		t.Fatal("an explicit $SYS filter should still match")
	}
}

func TestRouterDispatchesToEveryMatchingFilter(t *testing.T) {
	var r router
	var calls []string
	r.add("a/+", 0, func(m *Message) { calls = append(calls, "a/+:"+m.Topic) })
	r.add("a/#", 0, func(m *Message) { calls = append(calls, "a/#:"+m.Topic) })
	r.add("b/+", 0, func(m *Message) { calls = append(calls, "b/+:"+m.Topic) })

	n := r.dispatch(&Message{Topic: "a/b", Payload: []byte("x")})
	if n != 2 {
		t.Fatalf("dispatch() delivered to %d handlers, want 2", n)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want 2 entries", calls)
	}
}

func TestRouterRemoveFilter(t *testing.T) {
	var r router
	r.add("a/b", 0, func(m *Message) {})
	r.add("c/d", 0, func(m *Message) {})
	r.removeFilter("a/b")

	if n := r.dispatch(&Message{Topic: "a/b"}); n != 0 {
		t.Fatalf("dispatch() after removeFilter = %d matches, want 0", n)
	}
	if n := r.dispatch(&Message{Topic: "c/d"}); n != 1 {
		t.Fatalf("dispatch() for remaining filter = %d matches, want 1", n)
	}
}
