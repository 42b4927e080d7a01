package bgp

import (
	"fmt"
	"sort"
)

// Attribute type codes (RFC 4271 and successors).
const (
	AttrOrigin          uint8 = 1
	AttrASPath          uint8 = 2
	AttrNextHop         uint8 = 3
	AttrMED             uint8 = 4
	AttrLocalPref       uint8 = 5
	AttrAtomicAggregate uint8 = 6
	AttrAggregator      uint8 = 7
	AttrCommunity       uint8 = 8
	AttrOriginatorID    uint8 = 9
	AttrClusterList     uint8 = 10
	AttrMPReachNLRI     uint8 = 14
	AttrMPUnreachNLRI   uint8 = 15
	AttrExtCommunity    uint8 = 16
	AttrAS4Path         uint8 = 17
	AttrAS4Aggregator   uint8 = 18
	AttrPMSITunnel      uint8 = 22
	AttrAIGP            uint8 = 26
	AttrLargeCommunity  uint8 = 32

	// flag bits
	flagOptional       byte = 0x80
	flagTransitive     byte = 0x40
	flagPartial        byte = 0x20
	flagExtendedLength byte = 0x10
)

// wellKnownMandatory is the set of attribute codes that MUST be present
// and well-formed in every UPDATE carrying NLRI; malformation here closes
// the session with Notify rather than being treated-as-withdraw.
var wellKnownMandatory = map[uint8]bool{
	AttrOrigin:  true,
	AttrASPath:  true,
	AttrNextHop: true,
}

// Attribute is one path attribute: an 8-bit flag byte, 8-bit type code,
// and raw value bytes. Semantic decoding happens in the type-specific
// accessor functions (Origin, ASPath, Communities, ...), not here.
type Attribute struct {
	Flags byte
	Code  uint8
	Value []byte
}

func (a Attribute) Optional() bool   { return a.Flags&flagOptional != 0 }
func (a Attribute) Transitive() bool { return a.Flags&flagTransitive != 0 }
func (a Attribute) Partial() bool    { return a.Flags&flagPartial != 0 }

// defaultFlags returns the canonical flag byte for a well-known code; used
// by constructors so callers don't have to remember RFC 4271 table 3.
func defaultFlags(code uint8) byte {
	switch code {
	case AttrOrigin, AttrASPath, AttrNextHop, AttrLocalPref, AttrAtomicAggregate:
		return flagTransitive
	case AttrMED, AttrOriginatorID, AttrClusterList, AttrMPReachNLRI, AttrMPUnreachNLRI, AttrAS4Path, AttrAS4Aggregator:
		return flagOptional
	case AttrCommunity, AttrExtCommunity, AttrLargeCommunity, AttrAggregator, AttrAIGP:
		return flagOptional | flagTransitive
	case AttrPMSITunnel:
		return flagOptional | flagTransitive
	default:
		return flagOptional | flagTransitive
	}
}

func newAttribute(code uint8, value []byte) Attribute {
	return Attribute{Flags: defaultFlags(code), Code: code, Value: value}
}

// AttributeCollection is a map from attribute code to Attribute, holding at
// most one instance per code. Insertion order is irrelevant: Index() and
// Pack() are both deterministic functions of content alone.
type AttributeCollection struct {
	attrs map[uint8]Attribute
}

func NewAttributeCollection() *AttributeCollection {
	return &AttributeCollection{attrs: make(map[uint8]Attribute)}
}

// Set inserts or replaces the attribute for its code. A second Set for the
// same code during UNPACKING of a single message is a protocol violation
// (duplicate attribute) and must be surfaced by the caller as Notify; Set
// itself is just a map write and does not enforce that — see UnpackAttributes.
func (c *AttributeCollection) Set(a Attribute) {
	c.attrs[a.Code] = a
}

func (c *AttributeCollection) Get(code uint8) (Attribute, bool) {
	a, ok := c.attrs[code]
	return a, ok
}

func (c *AttributeCollection) Has(code uint8) bool {
	_, ok := c.attrs[code]
	return ok
}

func (c *AttributeCollection) Delete(code uint8) {
	delete(c.attrs, code)
}

func (c *AttributeCollection) Len() int { return len(c.attrs) }

func (c *AttributeCollection) sortedCodes() []uint8 {
	codes := make([]uint8, 0, len(c.attrs))
	for code := range c.attrs {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Index returns a content-derived byte string: deterministic ordering,
// byte-identical for equal sets regardless of insertion order. It is the
// grouping key the outgoing RIB uses to bucket routes sharing attributes.
func (c *AttributeCollection) Index() string {
	codes := c.sortedCodes()
	buf := make([]byte, 0, 64)
	for _, code := range codes {
		a := c.attrs[code]
		buf = append(buf, a.Flags, a.Code)
		buf = append(buf, byte(len(a.Value)>>8), byte(len(a.Value)))
		buf = append(buf, a.Value...)
	}
	return string(buf)
}

// Equal reports whether two collections have byte-identical content,
// independent of insertion order.
func (c *AttributeCollection) Equal(o *AttributeCollection) bool {
	return c.Index() == o.Index()
}

// Clone returns a deep-enough copy (Attribute.Value slices are not shared
// on mutation paths that matter: callers never mutate Value in place).
func (c *AttributeCollection) Clone() *AttributeCollection {
	n := NewAttributeCollection()
	for code, a := range c.attrs {
		n.attrs[code] = a
	}
	return n
}

// Pack serializes the collection. neg is not consulted: each attribute
// value is emitted exactly as stored. Attributes are emitted in ascending code order
// for determinism (the wire format does not require this, but it makes
// Index() and Pack() agree, and keeps captures diffable).
func (c *AttributeCollection) Pack(neg *Negotiated) ([]byte, error) {
	var out []byte
	for _, code := range c.sortedCodes() {
		a := c.attrs[code]
		value := a.Value
		flags := a.Flags
		if len(value) > 255 {
			flags |= flagExtendedLength
		} else {
			flags &^= flagExtendedLength
		}
		out = append(out, flags, a.Code)
		if flags&flagExtendedLength != 0 {
			out = append(out, byte(len(value)>>8), byte(len(value)))
		} else {
			out = append(out, byte(len(value)))
		}
		out = append(out, value...)
	}
	return out, nil
}

// UnpackAttributes parses the path-attribute section of an UPDATE.
// Duplicate codes raise ParseError (Notify UPDATE/malformed-attribute-list)
// per RFC 4271. Malformed optional attributes are discarded or treated as
// withdraw per RFC 7606 and do not themselves raise ParseError; malformed
// well-known mandatory attributes do.
func UnpackAttributes(data []byte, neg *Negotiated) (*AttributeCollection, []TreatAsWithdrawNotice, error) {
	c := NewAttributeCollection()
	var treatAsWithdraw []TreatAsWithdrawNotice
	seen := make(map[uint8]bool)

	off := 0
	for off < len(data) {
		if off+2 > len(data) {
			return nil, nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttrList, Reason: "attribute header truncated"}
		}
		flags := data[off]
		code := data[off+1]
		off += 2

		var length int
		if flags&flagExtendedLength != 0 {
			if off+2 > len(data) {
				return nil, nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttrList, Reason: "extended attribute length truncated"}
			}
			length = int(data[off])<<8 | int(data[off+1])
			off += 2
		} else {
			if off+1 > len(data) {
				return nil, nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttrList, Reason: "attribute length truncated"}
			}
			length = int(data[off])
			off++
		}
		if off+length > len(data) {
			return nil, nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttrList, Reason: "attribute value truncated"}
		}
		value := data[off : off+length]
		off += length

		if seen[code] {
			return nil, nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttrList, Reason: fmt.Sprintf("duplicate attribute %d", code)}
		}
		seen[code] = true

		if err := validateAttribute(code, value); err != nil {
			if wellKnownMandatory[code] {
				return nil, nil, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedAttr, Reason: err.Error()}
			}
			// RFC 7606: recoverable optional attribute malformation.
			treatAsWithdraw = append(treatAsWithdraw, TreatAsWithdrawNotice{Code: code, Reason: err.Error()})
			continue
		}

		c.Set(Attribute{Flags: flags, Code: code, Value: append([]byte(nil), value...)})
	}

	return c, treatAsWithdraw, nil
}

// TreatAsWithdrawNotice records an RFC 7606 recoverable malformation: the
// session stays up, and the caller synthesizes withdraws for the NLRIs
// this UPDATE would otherwise have announced.
type TreatAsWithdrawNotice struct {
	Code   uint8
	Reason string
}

func validateAttribute(code uint8, value []byte) error {
	switch code {
	case AttrOrigin:
		if len(value) != 1 {
			return fmt.Errorf("bgp: ORIGIN must be 1 byte, got %d", len(value))
		}
	case AttrNextHop:
		if len(value) != 4 {
			return fmt.Errorf("bgp: classic NEXT_HOP must be 4 bytes, got %d", len(value))
		}
	case AttrMED, AttrLocalPref:
		if len(value) != 4 {
			return fmt.Errorf("bgp: attribute %d must be 4 bytes, got %d", code, len(value))
		}
	case AttrCommunity:
		if len(value)%4 != 0 {
			return fmt.Errorf("bgp: COMMUNITY length %d not a multiple of 4", len(value))
		}
	case AttrExtCommunity:
		if len(value)%8 != 0 {
			return fmt.Errorf("bgp: EXTENDED_COMMUNITY length %d not a multiple of 8", len(value))
		}
	case AttrLargeCommunity:
		if len(value)%12 != 0 {
			return fmt.Errorf("bgp: LARGE_COMMUNITY length %d not a multiple of 12", len(value))
		}
	}
	return nil
}
