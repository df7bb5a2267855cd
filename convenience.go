package piv

import (
	"context"
	"crypto/x509"
)

// enumerableSlots is the fixed slot set EnumerateSlots walks: the four
// standard asymmetric slots plus the twenty retired key-management slots.
func enumerableSlots() []Slot {
	slots := []Slot{SlotAuthentication, SlotSignature, SlotKeyManagement, SlotCardAuthentication}
	for i := 1; i <= 20; i++ {
		s, _ := RetiredSlot(i)
		slots = append(slots, s)
	}
	return slots
}

// EnumerateSlots queries GetMetadata for every standard and retired slot and
// returns the ones that hold a key, keyed by Slot. Empty slots (NotFound)
// are silently skipped; any other error aborts and is returned. This is a
// host-side convenience loop, not a new wire operation.
func (s *Session) EnumerateSlots(ctx context.Context) (map[Slot]*SlotMetadata, error) {
	out := make(map[Slot]*SlotMetadata)
	for _, slot := range enumerableSlots() {
		md, err := s.GetMetadata(ctx, slot)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		out[slot] = md
	}
	return out, nil
}

// AttestationResult pairs a parsed attestation certificate with the public
// key it attests to, for convenience comparison against a slot's reported
// SlotMetadata.PublicKey. The certificate is parsed no further than
// crypto/x509.ParseCertificate; the body stays opaque DER.
type AttestationResult struct {
	Certificate *x509.Certificate
	PublicKey   any // concrete type matches crypto/x509.Certificate.PublicKey
}

// AttestParsed performs the wire Attest operation (see admin.go) and additionally
// parses the returned DER, exposing the attested public key for comparison
// against the slot's own metadata.
func (s *Session) AttestParsed(ctx context.Context, slot Slot) (*AttestationResult, error) {
	der, err := s.Attest(ctx, slot)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, &ProtocolError{Op: "attest", Msg: err.Error()}
	}
	return &AttestationResult{Certificate: cert, PublicKey: cert.PublicKey}, nil
}
