package bgp

import (
	"encoding/binary"
	"fmt"
)

// Route-refresh subtypes used by the enhanced route-refresh capability
// (RFC 7313): a normal request carries no subtype marker on the wire
// (reserved byte is 0); BoRT/EoRT bracket a multi-message refresh.
const (
	RefreshNormal uint8 = 0
	RefreshBoRT   uint8 = 1
	RefreshEoRT   uint8 = 2
)

// RouteRefresh is the ROUTE-REFRESH message (RFC 2918, subtype extension
// RFC 7313 §3). Reserved doubles as the BoRT/EoRT subtype when enhanced
// route-refresh was negotiated; plain RFC 2918 peers always see 0.
type RouteRefresh struct {
	Family   Family
	Reserved uint8
}

func (r *RouteRefresh) Type() uint8 { return MsgRouteRefresh }

func (r *RouteRefresh) packBody(neg *Negotiated) ([]byte, error) {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:2], uint16(r.Family.AFI))
	body[2] = r.Reserved
	body[3] = byte(r.Family.SAFI)
	return body, nil
}

// UnpackRouteRefresh parses a ROUTE-REFRESH body.
func UnpackRouteRefresh(data []byte) (*RouteRefresh, error) {
	if len(data) != 4 {
		return nil, &ParseError{Code: NotifyHeader, Subcode: SubcodeBadHeaderLength, Reason: fmt.Sprintf("ROUTE-REFRESH body must be 4 bytes, got %d", len(data))}
	}
	afi := AFI(binary.BigEndian.Uint16(data[0:2]))
	reserved := data[2]
	safi := SAFI(data[3])
	return &RouteRefresh{Family: Family{AFI: afi, SAFI: safi}, Reserved: reserved}, nil
}

func (r *RouteRefresh) IsBoRT() bool { return r.Reserved == RefreshBoRT }
func (r *RouteRefresh) IsEoRT() bool { return r.Reserved == RefreshEoRT }
