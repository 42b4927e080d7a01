package audit

import (
	"crypto/sha256"
	"fmt"
)

// eventHash computes a deterministic SHA256 digest over the fields that
// identify one audit occurrence, mirroring the teacher's
// history.ComputeEventID but hashing the structured fields of an Event
// rather than raw BMP bytes, since this sink has no BMP framing to hash.
func eventHash(e *Event) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%s/%s|%s|%s",
		e.Neighbor, e.Kind, e.PeerASN, e.Family.AFI, e.Family.SAFI, e.Prefix, e.NextHop)
	sum := h.Sum(nil)
	return sum[:]
}
