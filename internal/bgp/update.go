package bgp

import (
	"encoding/binary"
	"fmt"
)

// Update is a parsed/constructed UPDATE message (RFC 4271 §4.3). Withdrawn
// and NLRI here are always classic IPv4-unicast entries; every other
// family travels inside Attrs via MP_REACH_NLRI/MP_UNREACH_NLRI.
type Update struct {
	Withdrawn []NLRI
	Attrs     *AttributeCollection
	NLRI      []NLRI
}

func (u *Update) Type() uint8 { return MsgUpdate }

func (u *Update) packBody(neg *Negotiated) ([]byte, error) {
	addPath := false
	if neg != nil {
		addPath = neg.AddPathFor(FamilyIPv4Unicast).Send
	}

	var withdrawnBytes []byte
	for _, n := range u.Withdrawn {
		withdrawnBytes = n.Pack(withdrawnBytes)
	}

	attrBytes, err := u.Attrs.Pack(neg)
	if err != nil {
		return nil, err
	}

	var nlriBytes []byte
	for _, n := range u.NLRI {
		nlriBytes = n.Pack(nlriBytes)
	}
	_ = addPath

	body := make([]byte, 0, 4+len(withdrawnBytes)+len(attrBytes)+len(nlriBytes))
	body = append(body, byte(len(withdrawnBytes)>>8), byte(len(withdrawnBytes)))
	body = append(body, withdrawnBytes...)
	body = append(body, byte(len(attrBytes)>>8), byte(len(attrBytes)))
	body = append(body, attrBytes...)
	body = append(body, nlriBytes...)
	return body, nil
}

// UnpackUpdate parses an UPDATE body. The withdrawn_len + attrs_len +
// trailing split is validated against the overall body length; a mismatch
// is a malformed-attribute-list Notify per §4.1.
func UnpackUpdate(data []byte, neg *Negotiated) (*Update, error) {
	if len(data) < 4 {
		return nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttrList, Reason: "UPDATE body too short"}
	}
	off := 0
	withdrawnLen := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if off+withdrawnLen > len(data) {
		return nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttrList, Reason: "withdrawn routes length exceeds body"}
	}
	addPath := false
	if neg != nil {
		addPath = neg.AddPathFor(FamilyIPv4Unicast).Receive
	}
	withdrawn, err := ParseINRI(FamilyIPv4Unicast, data[off:off+withdrawnLen], addPath, ActionWithdraw)
	if err != nil {
		return nil, err
	}
	off += withdrawnLen

	if off+2 > len(data) {
		return nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttrList, Reason: "missing total path attribute length"}
	}
	attrsLen := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if off+attrsLen > len(data) {
		return nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttrList, Reason: "path attribute length exceeds body"}
	}
	attrData := data[off : off+attrsLen]
	off += attrsLen

	attrs, _, err := UnpackAttributes(attrData, neg)
	if err != nil {
		return nil, err
	}

	trailing := data[off:]
	nlri, err := ParseINRI(FamilyIPv4Unicast, trailing, addPath, ActionAnnounce)
	if err != nil {
		return nil, err
	}

	if err := validateMandatoryAttrs(attrs, len(nlri) > 0); err != nil {
		return nil, err
	}

	return &Update{Withdrawn: withdrawn, Attrs: attrs, NLRI: nlri}, nil
}

// validateMandatoryAttrs enforces RFC 4271 §5.1: ORIGIN, AS_PATH, NEXT_HOP
// are required whenever classic IPv4 NLRI are announced. An UPDATE whose
// announcements are all inside MP_REACH_NLRI is not checked here, and an
// UPDATE carrying only withdraws/EOR need not carry them.
func validateMandatoryAttrs(attrs *AttributeCollection, hasClassicNLRI bool) error {
	if !hasClassicNLRI {
		return nil
	}
	for code := range wellKnownMandatory {
		if !attrs.Has(code) {
			return &ParseError{Code: NotifyUpdate, Subcode: SubcodeMissingAttr, Reason: fmt.Sprintf("missing mandatory attribute %d", code)}
		}
	}
	return nil
}

// IsEndOfRIB reports whether this UPDATE is an End-of-RIB marker: for
// classic IPv4 unicast, no withdrawn routes, no attributes, no NLRI; for
// any other family, an UPDATE carrying only an empty MP_UNREACH_NLRI for
// that family.
func (u *Update) IsEndOfRIB() (Family, bool) {
	if len(u.Withdrawn) == 0 && len(u.NLRI) == 0 && u.Attrs.Len() == 0 {
		return FamilyIPv4Unicast, true
	}
	if u.Attrs.Len() == 1 && len(u.Withdrawn) == 0 && len(u.NLRI) == 0 {
		if a, ok := u.Attrs.Get(AttrMPUnreachNLRI); ok {
			unreach, err := ParseMPUnreach(a.Value, false)
			if err == nil && len(unreach.NLRI) == 0 {
				return unreach.Family, true
			}
		}
	}
	return Family{}, false
}

// NewEndOfRIB builds the EOR marker UPDATE for a family.
func NewEndOfRIB(family Family) *Update {
	if family == FamilyIPv4Unicast {
		return &Update{Attrs: NewAttributeCollection()}
	}
	attrs := NewAttributeCollection()
	value := PackMPUnreach(MPUnreach{Family: family})
	attrs.Set(newAttribute(AttrMPUnreachNLRI, value))
	return &Update{Attrs: attrs}
}
