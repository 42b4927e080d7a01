package bgp

import "testing"

func TestAttributeCollectionPackUnpack(t *testing.T) {
	attrs := NewAttributeCollection()
	attrs.Set(newAttribute(AttrOrigin, []byte{1}))
	attrs.Set(newAttribute(AttrLocalPref, []byte{0, 0, 0, 100}))
	attrs.Set(newAttribute(AttrCommunity, PackCommunities([]Community{NewCommunity(65000, 100)})))

	packed, err := attrs.Pack(nil)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	got, notices, err := UnpackAttributes(packed, nil)
	if err != nil {
		t.Fatalf("UnpackAttributes: %v", err)
	}
	if len(notices) != 0 {
		t.Fatalf("expected no treat-as-withdraw notices, got %v", notices)
	}
	if !got.Equal(attrs) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestAttributeCollectionIndexIsOrderIndependent(t *testing.T) {
	a := NewAttributeCollection()
	a.Set(newAttribute(AttrOrigin, []byte{0}))
	a.Set(newAttribute(AttrLocalPref, []byte{0, 0, 0, 1}))

	b := NewAttributeCollection()
	b.Set(newAttribute(AttrLocalPref, []byte{0, 0, 0, 1}))
	b.Set(newAttribute(AttrOrigin, []byte{0}))

	if a.Index() != b.Index() {
		t.Fatalf("Index() should not depend on insertion order")
	}
}

func TestUnpackAttributes_DuplicateCodeRejected(t *testing.T) {
	a1 := []byte{flagTransitive, AttrOrigin, 1, 0}
	a2 := []byte{flagTransitive, AttrOrigin, 1, 1}
	data := append(append([]byte{}, a1...), a2...)
	if _, _, err := UnpackAttributes(data, nil); err == nil {
		t.Fatalf("expected duplicate-attribute error")
	}
}

func TestUnpackAttributes_MalformedMandatoryRejected(t *testing.T) {
	// ORIGIN must be exactly 1 byte; 2 bytes is malformed and, being
	// well-known mandatory, must raise a hard error rather than
	// treat-as-withdraw.
	data := []byte{flagTransitive, AttrOrigin, 2, 0, 0}
	if _, _, err := UnpackAttributes(data, nil); err == nil {
		t.Fatalf("expected malformed-mandatory-attribute error")
	}
}

func TestUnpackAttributes_MalformedOptionalTreatedAsWithdraw(t *testing.T) {
	// MED (optional non-transitive) must be 4 bytes; 2 bytes is malformed
	// but recoverable per RFC 7606.
	data := []byte{flagOptional, AttrMED, 2, 0, 0}
	attrs, notices, err := UnpackAttributes(data, nil)
	if err != nil {
		t.Fatalf("expected no hard error, got %v", err)
	}
	if len(notices) != 1 || notices[0].Code != AttrMED {
		t.Fatalf("expected one treat-as-withdraw notice for MED, got %v", notices)
	}
	if attrs.Has(AttrMED) {
		t.Fatalf("malformed optional attribute must not be retained")
	}
}

func TestUnpackAttributes_ExtendedLength(t *testing.T) {
	value := make([]byte, 300)
	for i := range value {
		value[i] = byte(i)
	}
	flags := flagOptional | flagTransitive | flagExtendedLength
	data := []byte{flags, AttrAIGP, byte(len(value) >> 8), byte(len(value))}
	data = append(data, value...)

	attrs, _, err := UnpackAttributes(data, nil)
	if err != nil {
		t.Fatalf("UnpackAttributes: %v", err)
	}
	a, ok := attrs.Get(AttrAIGP)
	if !ok {
		t.Fatalf("extended-length attribute missing after parse")
	}
	if !bytesEqual(a.Value, value) {
		t.Fatalf("extended-length value mismatch")
	}
}
