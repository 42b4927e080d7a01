package bgp

import "fmt"

// NOTIFICATION error codes (RFC 4271 §4.5 and successors).
const (
	NotifyHeader       uint8 = 1
	NotifyOpen         uint8 = 2
	NotifyUpdate       uint8 = 3
	NotifyHoldTimer    uint8 = 4
	NotifyFSM          uint8 = 5
	NotifyCease        uint8 = 6
)

// Subcodes used by this implementation.
const (
	SubcodeMalformedAttrList uint8 = 1
	SubcodeUnrecognizedAttr  uint8 = 2
	SubcodeMissingAttr       uint8 = 3
	SubcodeMalformedAttr     uint8 = 5
	SubcodeInvalidNextHop    uint8 = 7
	SubcodeMalformedASPath   uint8 = 11

	SubcodeBadHeaderLength   uint8 = 2
	SubcodeBadMessageType    uint8 = 3

	SubcodeUnsupportedVersion uint8 = 1
	SubcodeBadPeerAS          uint8 = 2
	SubcodeBadBGPIdentifier   uint8 = 3
	SubcodeUnsupportedOptionalParam uint8 = 4
	SubcodeUnacceptableHoldTime     uint8 = 6
	SubcodeASN4Downgrade            uint8 = 253 // implementation-specific, interpreted by the FSM as reconnect

	SubcodeCeaseAdminShutdown     uint8 = 2
	SubcodeCeasePeerDeconfigured  uint8 = 3
	SubcodeCeaseAdminReset        uint8 = 4
	SubcodeCeaseConnectionRejected uint8 = 5
	SubcodeCeaseOtherConfigChange  uint8 = 6
)

// ParseError is a fatal wire-format violation: the caller MUST send a
// NOTIFICATION with (Code, Subcode) and close the session.
type ParseError struct {
	Code    uint8
	Subcode uint8
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bgp: parse error (code=%d subcode=%d): %s", e.Code, e.Subcode, e.Reason)
}

// AsNotification converts a ParseError into the NOTIFICATION message to
// send before closing.
func (e *ParseError) AsNotification() *Notification {
	return &Notification{Code: e.Code, Subcode: e.Subcode, Data: []byte(e.Reason)}
}
