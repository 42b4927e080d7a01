package bgp

import "encoding/binary"

// ASN is a 32-bit Autonomous System Number. AS_TRANS (23456) is the
// wire-format fallback used by 2-byte-ASN peers when asn4 is negotiated
// off; the codec applies it only at pack/unpack time, never in the
// in-memory representation.
type ASN uint32

const ASTrans ASN = 23456

// ASPathSegmentType values (RFC 4271 §4.3).
const (
	ASPathSet      uint8 = 1
	ASPathSequence uint8 = 2
)

// ASPathSegment is one SET or SEQUENCE run of ASNs within an AS_PATH.
type ASPathSegment struct {
	Type uint8
	ASNs []ASN
}

// ASPath is the decoded AS_PATH (or AS4_PATH) attribute value.
type ASPath struct {
	Segments []ASPathSegment
}

// Pack encodes the AS_PATH honoring the negotiated ASN width: 2 bytes per
// ASN when asn4 is false (with AS_TRANS substituted for any ASN that does
// not fit in 16 bits), 4 bytes per ASN otherwise.
func (p ASPath) Pack(asn4 bool) []byte {
	var out []byte
	for _, seg := range p.Segments {
		hdr := []byte{seg.Type, byte(len(seg.ASNs))}
		out = append(out, hdr...)
		for _, asn := range seg.ASNs {
			if asn4 {
				var b [4]byte
				binary.BigEndian.PutUint32(b[:], uint32(asn))
				out = append(out, b[:]...)
			} else {
				v := uint16(asn)
				if uint32(asn) > 0xFFFF {
					v = uint16(ASTrans)
				}
				var b [2]byte
				binary.BigEndian.PutUint16(b[:], v)
				out = append(out, b[:]...)
			}
		}
	}
	return out
}

// ParseASPath decodes an AS_PATH value using the given ASN width.
func ParseASPath(data []byte, asn4 bool) (ASPath, error) {
	width := 2
	if asn4 {
		width = 4
	}
	var p ASPath
	off := 0
	for off < len(data) {
		if off+2 > len(data) {
			return p, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedASPath, Reason: "AS_PATH segment header truncated"}
		}
		segType := data[off]
		segLen := int(data[off+1])
		off += 2
		need := segLen * width
		if off+need > len(data) {
			return p, &ParseError{Code: NotifyUpdate, Subcode: SubcodeMalformedASPath, Reason: "AS_PATH segment body truncated"}
		}
		seg := ASPathSegment{Type: segType}
		for i := 0; i < segLen; i++ {
			if asn4 {
				seg.ASNs = append(seg.ASNs, ASN(binary.BigEndian.Uint32(data[off:off+4])))
				off += 4
			} else {
				seg.ASNs = append(seg.ASNs, ASN(binary.BigEndian.Uint16(data[off:off+2])))
				off += 2
			}
		}
		p.Segments = append(p.Segments, seg)
		off += 0
	}
	return p, nil
}

// MergeAS4Path reconciles a 2-byte AS_PATH containing AS_TRANS entries with
// the accompanying AS4_PATH attribute per RFC 6793 §4.2.3: AS4_PATH
// segments replace the trailing segments of AS_PATH that correspond to
// the real (wider) ASNs when the peer did not negotiate asn4.
func MergeAS4Path(asPath, as4Path ASPath) ASPath {
	if len(as4Path.Segments) == 0 {
		return asPath
	}
	asCount := segmentASNCount(asPath)
	as4Count := segmentASNCount(as4Path)
	if as4Count >= asCount {
		return as4Path
	}
	keep := asCount - as4Count
	merged := ASPath{}
	remaining := keep
	for _, seg := range asPath.Segments {
		if remaining <= 0 {
			break
		}
		if len(seg.ASNs) <= remaining {
			merged.Segments = append(merged.Segments, seg)
			remaining -= len(seg.ASNs)
			continue
		}
		merged.Segments = append(merged.Segments, ASPathSegment{Type: seg.Type, ASNs: seg.ASNs[:remaining]})
		remaining = 0
	}
	merged.Segments = append(merged.Segments, as4Path.Segments...)
	return merged
}

func segmentASNCount(p ASPath) int {
	n := 0
	for _, seg := range p.Segments {
		n += len(seg.ASNs)
	}
	return n
}
