package bgp

import (
	"encoding/binary"
	"fmt"
)

// RD is an 8-byte Route Distinguisher (RFC 4364). Type 0 (2-byte ASN :
// 4-byte number), type 1 (4-byte IPv4 : 2-byte number), and type 2 (4-byte
// ASN : 2-byte number) are all represented by the same 8 raw bytes; Type()
// decodes the discriminator.
type RD [8]byte

func (r RD) Type() uint16 { return binary.BigEndian.Uint16(r[0:2]) }

func (r RD) String() string {
	switch r.Type() {
	case 0:
		asn := binary.BigEndian.Uint16(r[2:4])
		num := binary.BigEndian.Uint32(r[4:8])
		return fmt.Sprintf("%d:%d", asn, num)
	case 1:
		ip := r[2:6]
		num := binary.BigEndian.Uint16(r[6:8])
		return fmt.Sprintf("%d.%d.%d.%d:%d", ip[0], ip[1], ip[2], ip[3], num)
	case 2:
		asn := binary.BigEndian.Uint32(r[2:6])
		num := binary.BigEndian.Uint16(r[6:8])
		return fmt.Sprintf("%d:%d", asn, num)
	default:
		return fmt.Sprintf("rd(type=%d)", r.Type())
	}
}

func NewRDType0(asn uint16, num uint32) RD {
	var r RD
	binary.BigEndian.PutUint16(r[0:2], 0)
	binary.BigEndian.PutUint16(r[2:4], asn)
	binary.BigEndian.PutUint32(r[4:8], num)
	return r
}

func NewRDType1(ip [4]byte, num uint16) RD {
	var r RD
	binary.BigEndian.PutUint16(r[0:2], 1)
	copy(r[2:6], ip[:])
	binary.BigEndian.PutUint16(r[6:8], num)
	return r
}

func NewRDType2(asn uint32, num uint16) RD {
	var r RD
	binary.BigEndian.PutUint16(r[0:2], 2)
	binary.BigEndian.PutUint32(r[2:6], asn)
	binary.BigEndian.PutUint16(r[6:8], num)
	return r
}

// IPVPN is an MPLS-VPN NLRI: a label stack, an 8-byte RD, then a prefix,
// all under one combined bit-length byte (RFC 4364 §4.3.4).
type IPVPN struct {
	base
	labels    []uint32
	rd        RD
	prefixLen int
	prefix    IP
}

func NewIPVPN(family Family, labels []uint32, rd RD, prefix IP, prefixLen int, action Action, pathID uint32, hasPathID bool) (*IPVPN, error) {
	if prefix.afi != family.AFI {
		return nil, fmt.Errorf("bgp: ipvpn prefix AFI mismatch")
	}
	key := packIPVPNKey(labels, rd, prefix.bytes, prefixLen, action == ActionWithdraw)
	return &IPVPN{
		base:      base{family: family, action: action, pathID: pathID, hasPath: hasPathID, key: key},
		labels:    labels,
		rd:        rd,
		prefixLen: prefixLen,
		prefix:    prefix,
	}, nil
}

func (n *IPVPN) Labels() []uint32 { return n.labels }
func (n *IPVPN) RD() RD           { return n.rd }
func (n *IPVPN) Prefix() IP       { return n.prefix }
func (n *IPVPN) MaskLen() int     { return n.prefixLen }

func (n *IPVPN) WithAction(a Action) NLRI {
	c := *n
	c.base.action = a
	return &c
}

func packIPVPNKey(labels []uint32, rd RD, addr []byte, bits int, withdraw bool) []byte {
	totalBits := bits + len(labels)*24 + 64
	n := (totalBits + 7) / 8
	out := make([]byte, 1+n)
	out[0] = byte(totalBits)
	off := 1
	for i, lv := range labels {
		bos := i == len(labels)-1
		var lb [3]byte
		if withdraw {
			lb[0], lb[1], lb[2] = byte(withdrawLabelValue>>16), byte((withdrawLabelValue>>8)&0xFF), byte(withdrawLabelValue&0xFF)
		} else {
			lb = packLabel(lv, bos)
		}
		copy(out[off:], lb[:])
		off += 3
	}
	copy(out[off:], rd[:])
	off += 8
	prefixBytes := (bits + 7) / 8
	copy(out[off:], addr[:prefixBytes])
	return out
}

// ParseIPVPN parses a run of MPLS-VPN NLRI entries.
func ParseIPVPN(family Family, data []byte, addPath bool, action Action) ([]NLRI, error) {
	var out []NLRI
	off := 0
	maxBytes := family.AFI.MaxBytes()
	for off < len(data) {
		var pathID uint32
		if addPath {
			if off+4 > len(data) {
				return nil, fmt.Errorf("bgp: add-path id truncated")
			}
			pathID = binary.BigEndian.Uint32(data[off : off+4])
			off += 4
		}
		if off >= len(data) {
			return nil, fmt.Errorf("bgp: truncated ipvpn nlri")
		}
		totalBits := int(data[off])
		off++
		totalBytes := (totalBits + 7) / 8
		if off+totalBytes > len(data) {
			return nil, fmt.Errorf("bgp: truncated ipvpn nlri body")
		}
		body := data[off : off+totalBytes]
		off += totalBytes

		var labels []uint32
		pos := 0
		for pos+3 <= len(body) {
			lv := unpackLabel(body[pos : pos+3])
			bos := lv&0x1 != 0
			pos += 3
			if lv>>4 == withdrawLabelValue>>4 {
				break
			}
			labels = append(labels, lv>>4)
			if bos {
				break
			}
		}
		if pos+8 > len(body) {
			return nil, fmt.Errorf("bgp: ipvpn nlri missing RD")
		}
		var rd RD
		copy(rd[:], body[pos:pos+8])
		pos += 8

		remainingBits := totalBits - pos*8
		if remainingBits < 0 {
			return nil, fmt.Errorf("bgp: ipvpn nlri label+rd exceeds total length")
		}
		addr := make([]byte, maxBytes)
		copy(addr, body[pos:])
		ip, err := NewIP(family.AFI, addr)
		if err != nil {
			return nil, err
		}
		n, err := NewIPVPN(family, labels, rd, ip, remainingBits, action, pathID, addPath)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
