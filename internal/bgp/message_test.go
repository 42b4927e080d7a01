package bgp

import (
	"bytes"
	"testing"
)

// buildMessage assembles a full wire frame the way a peer would send it:
// 16 bytes of 0xFF, a 2-byte total length, a 1-byte type, then body.
func buildMessage(msgType uint8, body []byte) []byte {
	total := headerLen + len(body)
	out := make([]byte, headerLen, total)
	for i := 0; i < headerMarkerLen; i++ {
		out[i] = 0xFF
	}
	out[16] = byte(total >> 8)
	out[17] = byte(total)
	out[18] = msgType
	return append(out, body...)
}

func TestPackUnpackKeepalive(t *testing.T) {
	raw, err := PackMessage(&Keepalive{}, nil)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(raw) != headerLen {
		t.Fatalf("expected %d byte KEEPALIVE, got %d", headerLen, len(raw))
	}
	msg, err := UnpackMessage(raw, nil)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if _, ok := msg.(*Keepalive); !ok {
		t.Fatalf("expected *Keepalive, got %T", msg)
	}
}

func TestPackUnpackNotification(t *testing.T) {
	n := &Notification{Code: NotifyCease, Subcode: SubcodeCeaseAdminShutdown, Data: []byte("bye")}
	raw, err := PackMessage(n, nil)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	msg, err := UnpackMessage(raw, nil)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	got, ok := msg.(*Notification)
	if !ok {
		t.Fatalf("expected *Notification, got %T", msg)
	}
	if got.Code != n.Code || got.Subcode != n.Subcode || !bytes.Equal(got.Data, n.Data) {
		t.Fatalf("round-trip mismatch: got %+v want %+v", got, n)
	}
	if !got.IsCease() {
		t.Fatalf("expected IsCease true")
	}
}

func TestPackUnpackRouteRefresh(t *testing.T) {
	rr := &RouteRefresh{Family: FamilyIPv6Unicast, Reserved: RefreshEoRT}
	raw, err := PackMessage(rr, nil)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	msg, err := UnpackMessage(raw, nil)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	got := msg.(*RouteRefresh)
	if got.Family != FamilyIPv6Unicast || !got.IsEoRT() {
		t.Fatalf("round-trip mismatch: got %+v", got)
	}
}

func TestUnpackMessage_BadMarker(t *testing.T) {
	raw := buildMessage(MsgKeepalive, nil)
	raw[5] = 0x00
	if _, err := UnpackMessage(raw, nil); err == nil {
		t.Fatalf("expected marker error")
	}
}

func TestUnpackMessage_BadLength(t *testing.T) {
	raw := buildMessage(MsgKeepalive, nil)
	raw[16], raw[17] = 0, 5 // below minMessageLen
	if _, err := UnpackMessage(raw, nil); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestUnpackMessage_UnknownType(t *testing.T) {
	raw := buildMessage(99, nil)
	if _, err := UnpackMessage(raw, nil); err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestPackUnpackOpen(t *testing.T) {
	caps := NewCapabilitySet()
	caps.ASN4 = true
	caps.RouteRefresh = true
	caps.MultiprotocolFamilies = []Family{FamilyIPv4Unicast, FamilyIPv6Unicast}

	open := &Open{ASN: 70000, HoldTime: 180, RouterID: 0x0A000001, Caps: caps}
	raw, err := PackMessage(open, nil)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	msg, err := UnpackMessage(raw, nil)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	got := msg.(*Open)
	if got.RealASN() != 70000 {
		t.Fatalf("expected RealASN 70000, got %d", got.RealASN())
	}
	if got.HoldTime != 180 || got.RouterID != 0x0A000001 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if !got.Caps.RouteRefresh || !got.Caps.ASN4 {
		t.Fatalf("capability round-trip lost data: %+v", got.Caps)
	}
	if len(got.Caps.MultiprotocolFamilies) != 2 {
		t.Fatalf("expected 2 multiprotocol families, got %d", len(got.Caps.MultiprotocolFamilies))
	}
}

func TestUnpackOpen_RejectsBadVersion(t *testing.T) {
	body := make([]byte, 10)
	body[0] = 3 // version 3, not supported
	if _, err := UnpackOpen(body); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestUnpackOpen_RejectsZeroRouterID(t *testing.T) {
	body := make([]byte, 10)
	body[0] = openVersion
	body[3], body[4] = 0, 180
	// router-id bytes (5:9) left zero
	if _, err := UnpackOpen(body); err == nil {
		t.Fatalf("expected bad-router-id error")
	}
}

func TestUnpackOpen_RejectsShortHoldTime(t *testing.T) {
	body := make([]byte, 10)
	body[0] = openVersion
	body[3], body[4] = 0, 2 // hold time 2, below the minimum of 3
	body[8] = 1             // nonzero router-id
	if _, err := UnpackOpen(body); err == nil {
		t.Fatalf("expected unacceptable hold-time error")
	}
}
