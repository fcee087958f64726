package engine

import "github.com/gonzalop/mqttengine/packet"

// regulateForStore performs the §4.C(1/2) transform against the current
// send topic-alias table, returning the wire form the store would hold:
// DUP forced on, and the topic either resolved from the alias table (via
// Peek, so the live LRU ordering is undisturbed) or stripped of its
// TopicAlias property.
func (c *Connection) regulateForStore(p *packet.Publish) (*packet.Publish, error) {
	clone := *p
	clone.Dup = true
	if clone.Properties != nil {
		props := *clone.Properties
		clone.Properties = &props
	}

	if clone.Version != packet.V5 {
		return &clone, nil
	}

	if clone.Topic == "" {
		if clone.Properties == nil || !clone.Properties.HasTopicAlias() {
			return nil, newError(PacketNotRegulated, "PUBLISH has no topic and no topic alias to resolve")
		}
		if c.topicAliasSend == nil {
			return nil, newError(PacketNotRegulated, "no send topic-alias table established")
		}
		topic, ok := c.topicAliasSend.Peek(clone.Properties.TopicAlias)
		if !ok {
			return nil, newError(PacketNotRegulated, "topic alias %d not registered", clone.Properties.TopicAlias)
		}
		if err := clone.ResolveAliasAddTopic(topic); err != nil {
			return nil, newError(PacketNotRegulated, "%s", err)
		}
		return &clone, nil
	}

	clone.RemoveTopicAlias()
	return &clone, nil
}

// RegulateForStore implements the public regulate_for_store host
// convenience.
func (c *Connection) RegulateForStore(p *packet.Publish) (*packet.Publish, error) {
	return c.regulateForStore(p)
}
