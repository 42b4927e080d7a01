package bgp

import "encoding/binary"

// Community is a standard 4-byte community (RFC 1997): high 16 bits ASN,
// low 16 bits value.
type Community uint32

func NewCommunity(asn, value uint16) Community {
	return Community(uint32(asn)<<16 | uint32(value))
}

func (c Community) ASN() uint16   { return uint16(c >> 16) }
func (c Community) Value() uint16 { return uint16(c) }

func PackCommunities(cs []Community) []byte {
	out := make([]byte, 4*len(cs))
	for i, c := range cs {
		binary.BigEndian.PutUint32(out[i*4:], uint32(c))
	}
	return out
}

func ParseCommunities(data []byte) []Community {
	out := make([]Community, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		out = append(out, Community(binary.BigEndian.Uint32(data[i:i+4])))
	}
	return out
}

// ExtendedCommunity is an opaque 8-byte value (RFC 4360); the first two
// bytes carry type/subtype, the rest is type-specific.
type ExtendedCommunity [8]byte

func PackExtendedCommunities(cs []ExtendedCommunity) []byte {
	out := make([]byte, 8*len(cs))
	for i, c := range cs {
		copy(out[i*8:], c[:])
	}
	return out
}

func ParseExtendedCommunities(data []byte) []ExtendedCommunity {
	out := make([]ExtendedCommunity, 0, len(data)/8)
	for i := 0; i+8 <= len(data); i += 8 {
		var c ExtendedCommunity
		copy(c[:], data[i:i+8])
		out = append(out, c)
	}
	return out
}

// LargeCommunity is a 12-byte large community (RFC 8092): global admin,
// local data part 1, local data part 2.
type LargeCommunity struct {
	GlobalAdmin uint32
	Data1       uint32
	Data2       uint32
}

func PackLargeCommunities(cs []LargeCommunity) []byte {
	out := make([]byte, 12*len(cs))
	for i, c := range cs {
		binary.BigEndian.PutUint32(out[i*12:], c.GlobalAdmin)
		binary.BigEndian.PutUint32(out[i*12+4:], c.Data1)
		binary.BigEndian.PutUint32(out[i*12+8:], c.Data2)
	}
	return out
}

func ParseLargeCommunities(data []byte) []LargeCommunity {
	out := make([]LargeCommunity, 0, len(data)/12)
	for i := 0; i+12 <= len(data); i += 12 {
		out = append(out, LargeCommunity{
			GlobalAdmin: binary.BigEndian.Uint32(data[i : i+4]),
			Data1:       binary.BigEndian.Uint32(data[i+4 : i+8]),
			Data2:       binary.BigEndian.Uint32(data[i+8 : i+12]),
		})
	}
	return out
}
