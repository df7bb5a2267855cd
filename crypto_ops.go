package piv

import "context"

// Tags for the GENERAL AUTHENTICATE asymmetric-operation body.
// tagGenAuthIndicator (0x82, empty) appears in both request and response;
// tagGenAuthData (0x81) carries the sign/decrypt payload, tagGenAuthPeerPoint
// (0x85) carries the ECDH peer public key.
const (
	tagGenAuthIndicator = 0x82
	tagGenAuthData      = 0x81
	tagGenAuthPeerPoint = 0x85
)

// generalAuthenticateAsym does not pre-check PIN/touch gating locally: that
// policy is only knowable via GetMetadata, an optional round trip the
// caller may not have made, so the device's own SW=0x6982 is the sole
// enforcement point (see statusError).
func generalAuthenticateAsym(ctx context.Context, s *Session, op string, slot Slot, alg Algorithm, payloadTag byte, payload []byte) ([]byte, error) {
	inner := EncodeTLV([]byte{tagGenAuthIndicator}, nil)
	inner = append(inner, EncodeTLV([]byte{payloadTag}, payload)...)
	body := EncodeTLV([]byte{tagDynAuthTemplate}, inner)

	resp, err := transmit(ctx, s, op, apdu{
		cla: 0x00, ins: insGeneralAuthenticate, p1: byte(alg), p2: byte(slot), data: body, le: 0,
	})
	if err != nil {
		return nil, err
	}
	if err := statusError(op, slot, resp.sw); err != nil {
		return nil, err
	}

	template, err := decodeExpectedTLV(resp.data, []byte{tagDynAuthTemplate})
	if err != nil {
		return nil, &ProtocolError{Op: op, Msg: err.Error()}
	}
	result, err := decodeExpectedTLV(template, []byte{tagGenAuthIndicator})
	if err != nil {
		return nil, &ProtocolError{Op: op, Msg: err.Error()}
	}
	return result, nil
}

// Sign signs digest (already hashed by the caller; this library never
// hashes) with the key in slot. For RSA the digest is padded
// externally by the caller (e.g. via crypto/rsa's PKCS1v15/PSS
// EMSA encoding) before calling Sign; the wire layer only left-pads or
// left-truncates to the modulus size. alg must match the slot's key.
func (s *Session) Sign(ctx context.Context, slot Slot, alg Algorithm, digest []byte) ([]byte, error) {
	s.notifyPrompt(ctx, slot)

	var payload []byte
	switch {
	case alg.isRSA():
		payload = fitToLength(digest, alg.rsaModulusBytes())
	case alg.isNISTEC():
		payload = fitECDigest(digest, alg.eccCurveBytes())
	case alg == AlgorithmEd25519:
		payload = digest
	case alg == AlgorithmX25519:
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: "X25519 does not support sign, only key agreement"}
	default:
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: "not a signing algorithm"}
	}
	return generalAuthenticateAsym(ctx, s, "sign", slot, alg, tagGenAuthData, payload)
}

// Decrypt performs RSA decryption (raw, no padding removed; callers strip
// PKCS1v15/OAEP padding themselves) with the key in slot.
func (s *Session) Decrypt(ctx context.Context, slot Slot, alg Algorithm, ciphertext []byte) ([]byte, error) {
	if !alg.isRSA() {
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: "decrypt is only defined for RSA slots"}
	}
	s.notifyPrompt(ctx, slot)
	payload := fitToLength(ciphertext, alg.rsaModulusBytes())
	return generalAuthenticateAsym(ctx, s, "decrypt", slot, alg, tagGenAuthData, payload)
}

// ECDH performs key agreement with the key in slot against peerPoint:
// peerPoint is the uncompressed NIST point (04||X||Y) for EC keys or
// the raw 32-byte u-coordinate for X25519. The device returns the shared
// secret as raw bytes; it is the caller's job to run it through a KDF.
func (s *Session) ECDH(ctx context.Context, slot Slot, alg Algorithm, peerPoint []byte) ([]byte, error) {
	if !alg.isNISTEC() && alg != AlgorithmX25519 {
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: "ECDH requires a NIST EC or X25519 slot"}
	}
	s.notifyPrompt(ctx, slot)
	return generalAuthenticateAsym(ctx, s, "ECDH", slot, alg, tagGenAuthPeerPoint, peerPoint)
}
