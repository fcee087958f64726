package packet

// Reason codes defined by the MQTT v5.0 specification, shared across
// CONNACK, PUBACK, PUBREC, PUBREL, PUBCOMP, SUBACK, UNSUBACK, DISCONNECT,
// and AUTH. Not every code is legal on every packet type.
//
// 0x00-0x7F indicates success, 0x80-0xFF indicates failure.
const (
	ReasonSuccess                     uint8 = 0x00
	ReasonNormalDisconnect            uint8 = 0x00
	ReasonGrantedQoS0                 uint8 = 0x00
	ReasonGrantedQoS1                 uint8 = 0x01
	ReasonGrantedQoS2                 uint8 = 0x02
	ReasonDisconnectWithWill          uint8 = 0x04
	ReasonNoMatchingSubscribers       uint8 = 0x10
	ReasonNoSubscriptionExisted       uint8 = 0x11
	ReasonContinueAuthentication      uint8 = 0x18
	ReasonReauthenticate              uint8 = 0x19
	ReasonUnspecifiedError            uint8 = 0x80
	ReasonMalformedPacket             uint8 = 0x81
	ReasonProtocolError               uint8 = 0x82
	ReasonImplementationSpecificError uint8 = 0x83
	ReasonUnsupportedProtocolVersion  uint8 = 0x84
	ReasonClientIdentifierNotValid    uint8 = 0x85
	ReasonBadUserNameOrPassword       uint8 = 0x86
	ReasonNotAuthorized               uint8 = 0x87
	ReasonServerUnavailable           uint8 = 0x88
	ReasonServerBusy                  uint8 = 0x89
	ReasonBanned                      uint8 = 0x8A
	ReasonServerShuttingDown          uint8 = 0x8B
	ReasonBadAuthenticationMethod     uint8 = 0x8C
	ReasonKeepAliveTimeout            uint8 = 0x8D
	ReasonSessionTakenOver            uint8 = 0x8E
	ReasonTopicFilterInvalid          uint8 = 0x8F
	ReasonTopicNameInvalid            uint8 = 0x90
	ReasonPacketIdentifierInUse       uint8 = 0x91
	ReasonPacketIdentifierNotFound    uint8 = 0x92
	ReasonReceiveMaximumExceeded      uint8 = 0x93
	ReasonTopicAliasInvalid           uint8 = 0x94
	ReasonPacketTooLarge              uint8 = 0x95
	ReasonMessageRateTooHigh          uint8 = 0x96
	ReasonQuotaExceeded               uint8 = 0x97
	ReasonAdministrativeAction        uint8 = 0x98
	ReasonPayloadFormatInvalid        uint8 = 0x99
	ReasonRetainNotSupported          uint8 = 0x9A
	ReasonQoSNotSupported             uint8 = 0x9B
	ReasonUseAnotherServer            uint8 = 0x9C
	ReasonServerMoved                 uint8 = 0x9D
	ReasonSharedSubNotSupported       uint8 = 0x9E
	ReasonConnectionRateExceeded      uint8 = 0x9F
	ReasonMaximumConnectTime          uint8 = 0xA0
	ReasonSubscriptionIDsNotSupported uint8 = 0xA1
	ReasonWildcardSubNotSupported     uint8 = 0xA2
)
