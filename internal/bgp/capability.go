package bgp

import "encoding/binary"

// Capability codes (RFC 5492 and successors) this speaker sends/receives.
const (
	CapMultiprotocol       uint8 = 1
	CapRouteRefresh        uint8 = 2
	CapExtendedMessage     uint8 = 6
	CapGracefulRestart     uint8 = 64
	CapFourOctetASN        uint8 = 65
	CapAddPath             uint8 = 69
	CapEnhancedRouteRefresh uint8 = 70
)

// Capability is one optional-parameter-type-2 capability as carried in an
// OPEN message. Unknown codes are recorded (Value kept opaque) but never
// rejected, per §4.1.
type Capability struct {
	Code  uint8
	Value []byte
}

// AddPathRole is what a peer may do with Add-Path for one family.
type AddPathRole struct {
	Send    bool
	Receive bool
}

// GracefulRestartFamily is one family's forwarding-preserved flag within
// the Graceful Restart capability.
type GracefulRestartFamily struct {
	Family               Family
	ForwardingPreserved bool
}

// CapabilitySet is the parsed content of every OPEN-side capability, prior
// to negotiation (negotiation = intersection of two CapabilitySets, see
// Negotiated).
type CapabilitySet struct {
	ASN4               bool
	ASN4Value          ASN
	MultiprotocolFamilies []Family
	RouteRefresh       bool
	EnhancedRouteRefresh bool
	ExtendedMessage    bool
	AddPath            map[Family]AddPathRole
	// AddPathAll is the legacy global add-path flag some configurations
	// still set instead of (or alongside) the per-family map. SPEC_FULL's
	// open-question resolution #1 keeps both paths alive.
	AddPathAll         bool
	GracefulRestart    bool
	GracefulRestartTime uint16
	GracefulRestartFamilies []GracefulRestartFamily
	Unknown            []Capability
}

func NewCapabilitySet() *CapabilitySet {
	return &CapabilitySet{AddPath: make(map[Family]AddPathRole)}
}

// PackCapabilities serializes a CapabilitySet into the optional-parameters
// section of an OPEN message (type 2 "Capabilities" parameter per
// capability, as most implementations emit it rather than one giant
// parameter holding all capabilities).
func PackCapabilities(c *CapabilitySet, localASN ASN) []byte {
	var out []byte

	appendCap := func(code uint8, value []byte) {
		cap := append([]byte{code, byte(len(value))}, value...)
		param := append([]byte{2, byte(len(cap))}, cap...)
		out = append(out, param...)
	}

	for _, f := range c.MultiprotocolFamilies {
		val := make([]byte, 4)
		binary.BigEndian.PutUint16(val[0:2], uint16(f.AFI))
		val[2] = 0
		val[3] = byte(f.SAFI)
		appendCap(CapMultiprotocol, val)
	}
	if c.RouteRefresh {
		appendCap(CapRouteRefresh, nil)
	}
	if c.EnhancedRouteRefresh {
		appendCap(CapEnhancedRouteRefresh, nil)
	}
	if c.ExtendedMessage {
		appendCap(CapExtendedMessage, nil)
	}
	if c.ASN4 {
		val := make([]byte, 4)
		binary.BigEndian.PutUint32(val, uint32(localASN))
		appendCap(CapFourOctetASN, val)
	}
	if len(c.AddPath) > 0 {
		var val []byte
		for f, role := range c.AddPath {
			var sendRecv uint8
			if role.Send {
				sendRecv |= 1
			}
			if role.Receive {
				sendRecv |= 2
			}
			entry := make([]byte, 4)
			binary.BigEndian.PutUint16(entry[0:2], uint16(f.AFI))
			entry[2] = byte(f.SAFI)
			entry[3] = sendRecv
			val = append(val, entry...)
		}
		appendCap(CapAddPath, val)
	}
	if c.GracefulRestart {
		val := make([]byte, 2)
		binary.BigEndian.PutUint16(val, c.GracefulRestartTime&0x0FFF)
		for _, grf := range c.GracefulRestartFamilies {
			entry := make([]byte, 4)
			binary.BigEndian.PutUint16(entry[0:2], uint16(grf.Family.AFI))
			entry[2] = byte(grf.Family.SAFI)
			if grf.ForwardingPreserved {
				entry[3] = 0x80
			}
			val = append(val, entry...)
		}
		appendCap(CapGracefulRestart, val)
	}
	return out
}

// ParseCapabilities parses the optional-parameters section of an OPEN,
// extracting every type-2 (Capabilities) parameter. Unknown capability
// codes are recorded in Unknown, never rejected.
func ParseCapabilities(params []byte) (*CapabilitySet, error) {
	c := NewCapabilitySet()
	off := 0
	for off < len(params) {
		if off+2 > len(params) {
			return nil, &ParseError{Code: NotifyOpen, Subcode: SubcodeUnsupportedOptionalParam, Reason: "optional parameter header truncated"}
		}
		paramType := params[off]
		paramLen := int(params[off+1])
		off += 2
		if off+paramLen > len(params) {
			return nil, &ParseError{Code: NotifyOpen, Subcode: SubcodeUnsupportedOptionalParam, Reason: "optional parameter value truncated"}
		}
		val := params[off : off+paramLen]
		off += paramLen

		if paramType != 2 {
			continue // only capabilities (type 2) matter to negotiation
		}
		capOff := 0
		for capOff < len(val) {
			if capOff+2 > len(val) {
				return nil, &ParseError{Code: NotifyOpen, Subcode: SubcodeUnsupportedOptionalParam, Reason: "capability header truncated"}
			}
			code := val[capOff]
			length := int(val[capOff+1])
			capOff += 2
			if capOff+length > len(val) {
				return nil, &ParseError{Code: NotifyOpen, Subcode: SubcodeUnsupportedOptionalParam, Reason: "capability value truncated"}
			}
			cv := val[capOff : capOff+length]
			capOff += length

			switch code {
			case CapMultiprotocol:
				if length >= 4 {
					afi := AFI(binary.BigEndian.Uint16(cv[0:2]))
					safi := SAFI(cv[3])
					c.MultiprotocolFamilies = append(c.MultiprotocolFamilies, Family{AFI: afi, SAFI: safi})
				}
			case CapRouteRefresh:
				c.RouteRefresh = true
			case CapEnhancedRouteRefresh:
				c.EnhancedRouteRefresh = true
			case CapExtendedMessage:
				c.ExtendedMessage = true
			case CapFourOctetASN:
				c.ASN4 = true
				if len(cv) == 4 {
					c.ASN4Value = ASN(binary.BigEndian.Uint32(cv))
				}
			case CapAddPath:
				for i := 0; i+4 <= len(cv); i += 4 {
					f := Family{AFI: AFI(binary.BigEndian.Uint16(cv[i : i+2])), SAFI: SAFI(cv[i+2])}
					sendRecv := cv[i+3]
					c.AddPath[f] = AddPathRole{Send: sendRecv&1 != 0, Receive: sendRecv&2 != 0}
				}
				c.AddPathAll = false
			case CapGracefulRestart:
				c.GracefulRestart = true
				if len(cv) >= 2 {
					c.GracefulRestartTime = binary.BigEndian.Uint16(cv[0:2]) & 0x0FFF
				}
				for i := 2; i+4 <= len(cv); i += 4 {
					f := Family{AFI: AFI(binary.BigEndian.Uint16(cv[i : i+2])), SAFI: SAFI(cv[i+2])}
					c.GracefulRestartFamilies = append(c.GracefulRestartFamilies, GracefulRestartFamily{
						Family:              f,
						ForwardingPreserved: cv[i+3]&0x80 != 0,
					})
				}
			default:
				c.Unknown = append(c.Unknown, Capability{Code: code, Value: append([]byte(nil), cv...)})
			}
		}
	}
	return c, nil
}
