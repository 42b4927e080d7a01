package bgp

// Notification is the NOTIFICATION message (RFC 4271 §4.5). Receiving or
// sending one always ends the session; Data carries the raw diagnostic
// bytes (e.g. the unrecognized attribute that triggered a malformed-
// attribute-list error).
type Notification struct {
	Code    uint8
	Subcode uint8
	Data    []byte
}

func (n *Notification) Type() uint8 { return MsgNotification }

func (n *Notification) packBody(neg *Negotiated) ([]byte, error) {
	body := make([]byte, 2, 2+len(n.Data))
	body[0] = n.Code
	body[1] = n.Subcode
	body = append(body, n.Data...)
	return body, nil
}

// UnpackNotification parses a NOTIFICATION body.
func UnpackNotification(data []byte) (*Notification, error) {
	if len(data) < 2 {
		return nil, &ParseError{Code: NotifyHeader, Subcode: SubcodeBadHeaderLength, Reason: "NOTIFICATION body too short"}
	}
	return &Notification{
		Code:    data[0],
		Subcode: data[1],
		Data:    append([]byte(nil), data[2:]...),
	}, nil
}

// IsCease reports whether this notification is a CEASE, the only class the
// FSM treats as a graceful peer-initiated teardown rather than a protocol
// error to log loudly.
func (n *Notification) IsCease() bool { return n.Code == NotifyCease }
