package bgp

import (
	"encoding/binary"
	"fmt"
)

const openVersion = 4

// Open is a parsed/constructed OPEN message (RFC 4271 §4.2).
type Open struct {
	ASN        ASN // 2-byte field value: AS_TRANS when the real ASN needs asn4
	HoldTime   uint16
	RouterID   uint32
	Caps       *CapabilitySet
}

func (o *Open) Type() uint8 { return MsgOpen }

func (o *Open) packBody(neg *Negotiated) ([]byte, error) {
	asnField := uint16(o.ASN)
	if o.Caps.ASN4 && uint32(o.ASN) > 0xFFFF {
		asnField = uint16(ASTrans)
	}
	params := PackCapabilities(o.Caps, o.ASN)

	body := make([]byte, 10, 10+len(params))
	body[0] = openVersion
	binary.BigEndian.PutUint16(body[1:3], asnField)
	binary.BigEndian.PutUint16(body[3:5], o.HoldTime)
	binary.BigEndian.PutUint32(body[5:9], o.RouterID)
	body[9] = byte(len(params))
	body = append(body, params...)
	return body, nil
}

// UnpackOpen parses an OPEN body (post-header). Validation per §4.1:
// version must be 4; a nonzero hold-time below 3 is rejected (0 is
// accepted); router-id 0.0.0.0 is
// rejected. Peer ASN matching against configuration is the FSM's job, not
// the codec's, since it needs neighbor config this package doesn't have.
func UnpackOpen(data []byte) (*Open, error) {
	if len(data) < 10 {
		return nil, &ParseError{Code: NotifyOpen, Subcode: 0, Reason: "OPEN body too short"}
	}
	version := data[0]
	if version != openVersion {
		return nil, &ParseError{Code: NotifyOpen, Subcode: SubcodeUnsupportedVersion, Reason: fmt.Sprintf("unsupported BGP version %d", version)}
	}
	asnField := binary.BigEndian.Uint16(data[1:3])
	holdTime := binary.BigEndian.Uint16(data[3:5])
	routerID := binary.BigEndian.Uint32(data[5:9])
	paramsLen := int(data[9])

	if holdTime != 0 && holdTime < 3 {
		return nil, &ParseError{Code: NotifyOpen, Subcode: SubcodeUnacceptableHoldTime, Reason: "hold time < 3"}
	}
	if routerID == 0 {
		return nil, &ParseError{Code: NotifyOpen, Subcode: SubcodeBadBGPIdentifier, Reason: "router-id is 0.0.0.0"}
	}
	if 10+paramsLen > len(data) {
		return nil, &ParseError{Code: NotifyOpen, Subcode: SubcodeUnsupportedOptionalParam, Reason: "optional parameters truncated"}
	}

	caps, err := ParseCapabilities(data[10 : 10+paramsLen])
	if err != nil {
		return nil, err
	}

	return &Open{ASN: ASN(asnField), HoldTime: holdTime, RouterID: routerID, Caps: caps}, nil
}

// RealASN extracts the true 4-byte ASN from the FOUR_OCTET_ASN capability
// when present, falling back to the 2-byte OPEN field (which may itself be
// AS_TRANS) otherwise.
func (o *Open) RealASN() ASN {
	if o.Caps.ASN4 && o.Caps.ASN4Value != 0 {
		return o.Caps.ASN4Value
	}
	return o.ASN
}
