package bgp

// Keepalive is the empty-body KEEPALIVE message (RFC 4271 §4.4).
type Keepalive struct{}

func (k *Keepalive) Type() uint8 { return MsgKeepalive }

func (k *Keepalive) packBody(neg *Negotiated) ([]byte, error) {
	return nil, nil
}

// UnpackKeepalive validates that a KEEPALIVE body is empty.
func UnpackKeepalive(data []byte) (*Keepalive, error) {
	if len(data) != 0 {
		return nil, &ParseError{Code: NotifyHeader, Subcode: SubcodeBadHeaderLength, Reason: "KEEPALIVE body must be empty"}
	}
	return &Keepalive{}, nil
}
