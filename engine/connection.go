// Package engine implements the sans-I/O MQTT connection state machine: it
// owns no socket, timer, or goroutine. Every entry point is synchronous
// and returns the ordered slice of Events describing what the host should
// do next (transmit bytes, arm or cancel a timer, close the transport,
// surface a received packet, report an error, release a packet id).
//
// A Connection is not safe for concurrent use; the host may run many
// Connections in parallel but must serialize calls into any one of them.
package engine

import (
	"github.com/gonzalop/mqttengine/framer"
	"github.com/gonzalop/mqttengine/packet"
	"github.com/gonzalop/mqttengine/pid"
)

// Role constrains which packet types a Connection may send.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
	RoleAny
)

// Status is the connection state machine's current state.
type Status uint8

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// protocolCeilingBytes is the maximum possible total encoded packet size:
// 1 fixed-header byte + up to 4 remaining-length bytes + up to 268435455
// remaining-length bytes.
const protocolCeilingBytes = 268435460

// Connection owns all mutable state for one MQTT endpoint: client or
// server, v3.1.1 or v5.0, for exactly one logical session.
type Connection struct {
	version  packet.Version
	role     Role
	status   Status
	isClient bool

	pids *pid.Manager[uint16]

	awaitingSuback   map[uint16]struct{}
	awaitingUnsuback map[uint16]struct{}
	awaitingPuback   map[uint16]struct{}
	awaitingPubrec   map[uint16]struct{}
	awaitingPubcomp  map[uint16]struct{}

	store *store

	needStore      bool
	offlinePublish bool

	autoPubResponse        bool
	autoPingResponse       bool
	autoMapTopicAliasSend  bool
	autoReplaceTopicAlias  bool

	topicAliasRecv *recvAliasTable
	topicAliasSend *sendAliasTable

	publishSendMax   uint16 // 0 = unbounded
	publishRecvMax   uint16
	publishSendCount uint16
	publishRecv      map[uint16]struct{}

	qos2PublishHandled    map[uint16]struct{}
	qos2PublishProcessing map[uint16]struct{}

	maxPacketSizeSend uint32
	maxPacketSizeRecv uint32

	pingreqSendIntervalMs int
	pingreqRecvTimeoutMs  int
	pingrespRecvTimeoutMs int
	pingreqSendSet        bool
	pingreqRecvSet        bool
	pingrespRecvSet       bool

	builder *framer.Framer

	releaseOnError map[uint16]struct{}
}

// New creates a Connection in the Disconnected state with no session.
func New(role Role) *Connection {
	c := &Connection{
		role:              role,
		status:            Disconnected,
		pids:              pid.NewManager[uint16](65535),
		maxPacketSizeSend: protocolCeilingBytes,
		maxPacketSizeRecv: protocolCeilingBytes,
		autoPubResponse:   true,
		autoPingResponse:  true,
	}
	c.resetSessionSets()
	c.builder = framer.New(int(c.maxPacketSizeRecv))
	return c
}

func (c *Connection) resetSessionSets() {
	c.awaitingSuback = make(map[uint16]struct{})
	c.awaitingUnsuback = make(map[uint16]struct{})
	c.awaitingPuback = make(map[uint16]struct{})
	c.awaitingPubrec = make(map[uint16]struct{})
	c.awaitingPubcomp = make(map[uint16]struct{})
	c.publishRecv = make(map[uint16]struct{})
	c.qos2PublishHandled = make(map[uint16]struct{})
	c.qos2PublishProcessing = make(map[uint16]struct{})
	c.releaseOnError = make(map[uint16]struct{})
	if c.store == nil {
		c.store = newStore()
	}
}

// Status reports the connection's current state.
func (c *Connection) Status() Status { return c.status }

// Version reports the negotiated protocol version (Undetermined before a
// server-role connection has observed its peer's CONNECT).
func (c *Connection) Version() packet.Version { return c.version }

// SetOfflinePublish implements set_offline_publish.
func (c *Connection) SetOfflinePublish(v bool) { c.offlinePublish = v }

// SetAutoPubResponse implements set_auto_pub_response.
func (c *Connection) SetAutoPubResponse(v bool) { c.autoPubResponse = v }

// SetAutoPingResponse implements set_auto_ping_response.
func (c *Connection) SetAutoPingResponse(v bool) { c.autoPingResponse = v }

// SetAutoMapTopicAliasSend implements set_auto_map_topic_alias_send.
func (c *Connection) SetAutoMapTopicAliasSend(v bool) { c.autoMapTopicAliasSend = v }

// SetAutoReplaceTopicAliasSend implements set_auto_replace_topic_alias_send.
func (c *Connection) SetAutoReplaceTopicAliasSend(v bool) { c.autoReplaceTopicAlias = v }

// SetNeedStore configures whether the retransmission store and qos2 sets
// survive a disconnect (v3.1.1 clean_session=false; v5
// session_expiry_interval != 0).
func (c *Connection) SetNeedStore(v bool) { c.needStore = v }

// SetPingreqSendInterval implements set_pingreq_send_interval. Returns any
// events caused by the change (a reset of the PingreqSend timer when
// Connected, or a cancel when the interval is cleared).
func (c *Connection) SetPingreqSendInterval(ms int) []Event {
	c.pingreqSendIntervalMs = ms
	if ms <= 0 {
		if c.pingreqSendSet {
			c.pingreqSendSet = false
			return []Event{evTimerCancel(PingreqSend)}
		}
		return nil
	}
	if c.status == Connected {
		c.pingreqSendSet = true
		return []Event{evTimerReset(PingreqSend, ms)}
	}
	return nil
}

// SetPingrespRecvTimeout implements set_pingresp_recv_timeout.
func (c *Connection) SetPingrespRecvTimeout(ms int) {
	c.pingrespRecvTimeoutMs = ms
}

// AcquirePacketID implements acquire_packet_id.
func (c *Connection) AcquirePacketID() (uint16, error) {
	id, ok := c.pids.Acquire()
	if !ok {
		return 0, newError(PacketIdentifierNotAvailable, "no packet identifiers available")
	}
	return id, nil
}

// RegisterPacketID implements register_packet_id.
func (c *Connection) RegisterPacketID(id uint16) error {
	if err := c.pids.Register(id); err != nil {
		return newError(PacketIdentifierInvalid, "%s", err)
	}
	return nil
}

// ReleasePacketID implements release_packet_id.
func (c *Connection) ReleasePacketID(id uint16) []Event {
	c.pids.Release(id)
	return []Event{evIDReleased(uint32(id))}
}

// GetReceiveMaximumVacancyForSend implements
// get_receive_maximum_vacancy_for_send. The second return is false when no
// cap is active (unbounded).
func (c *Connection) GetReceiveMaximumVacancyForSend() (uint16, bool) {
	if c.publishSendMax == 0 {
		return 0, false
	}
	if c.publishSendCount >= c.publishSendMax {
		return 0, true
	}
	return c.publishSendMax - c.publishSendCount, true
}

// IsPublishProcessing implements is_publish_processing.
func (c *Connection) IsPublishProcessing(id uint16) bool {
	_, ok := c.qos2PublishProcessing[id]
	return ok
}

// GetQoS2PublishHandled implements get_qos2_publish_handled.
func (c *Connection) GetQoS2PublishHandled() []uint16 {
	ids := make([]uint16, 0, len(c.qos2PublishHandled))
	for id := range c.qos2PublishHandled {
		ids = append(ids, id)
	}
	return ids
}

// RestoreQoS2PublishHandled implements restore_qos2_publish_handled.
func (c *Connection) RestoreQoS2PublishHandled(ids []uint16) {
	for _, id := range ids {
		c.qos2PublishHandled[id] = struct{}{}
	}
}
