package piv

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
)

// General Authenticate is the single instruction PIV overloads for every
// challenge-response and sign/decrypt operation in the device; the tags
// below select the management-key mutual-authentication variant.
const (
	insGeneralAuthenticate = 0x87

	tagDynAuthTemplate = 0x7C
	tagWitness         = 0x80
	tagChallenge       = 0x81
	tagResponse        = 0x82
)

// authenticateManagementKey performs the two-round mutual challenge-response
// that proves the host holds the management key: request a witness, prove
// the host can decrypt it, present a host challenge, and verify the
// device's encryption of that challenge. The protocol derives no session
// keys; a successful exchange simply flips the session's
// management-authenticated bit.
//
// randReader supplies the host challenge and is always crypto/rand.Reader
// in production; tests substitute a deterministic reader so recorded
// exchanges reproduce byte-for-byte.
func authenticateManagementKey(ctx context.Context, t Transport, mkt ManagementKeyType, key *Secret, randReader io.Reader) error {
	defer key.Wipe()
	if key.Len() != mkt.KeyLen() {
		return &InvalidArgumentError{Field: "key", Msg: fmt.Sprintf("management key type %s requires a %d-byte key, got %d", mkt, mkt.KeyLen(), key.Len())}
	}
	if randReader == nil {
		randReader = rand.Reader
	}
	blockLen := mkt.BlockLen()

	// Round 1: request a witness.
	reqWitness := EncodeTLV([]byte{tagDynAuthTemplate}, EncodeTLV([]byte{tagWitness}, nil))
	resp, err := transmit(ctx, t, "authenticate management key (request witness)", apdu{
		cla: 0x00, ins: insGeneralAuthenticate, p1: mkt.algorithmByte(), p2: byte(Slot9B),
		data: reqWitness, le: 0,
	})
	if err != nil {
		return err
	}
	if err := statusError("authenticate management key", Slot9B, resp.sw); err != nil {
		return err
	}

	template, err := decodeExpectedTLV(resp.data, []byte{tagDynAuthTemplate})
	if err != nil {
		return &ProtocolError{Op: "authenticate management key", Msg: err.Error()}
	}
	encWitness, err := decodeExpectedTLV(template, []byte{tagWitness})
	if err != nil {
		return &ProtocolError{Op: "authenticate management key", Msg: err.Error()}
	}
	if len(encWitness) != blockLen {
		return &ProtocolError{Op: "authenticate management key", Msg: fmt.Sprintf("witness is %d bytes, want %d", len(encWitness), blockLen)}
	}
	witness, err := decryptECB(mkt, key.Bytes(), encWitness)
	if err != nil {
		return err
	}
	defer wipeBytes(witness)

	// Round 2: return the decrypted witness and present a fresh plaintext
	// host challenge. The device proves its own knowledge of the key by
	// sending back the challenge encrypted under it.
	hostChallenge := make([]byte, blockLen)
	if _, err := io.ReadFull(randReader, hostChallenge); err != nil {
		return &TransportError{Op: "authenticate management key", Err: err}
	}
	defer wipeBytes(hostChallenge)

	expected, err := encryptECB(mkt, key.Bytes(), hostChallenge)
	if err != nil {
		return err
	}
	defer wipeBytes(expected)

	inner := make([]byte, 0, 4+2*blockLen)
	inner = append(inner, tagWitness, byte(blockLen))
	inner = append(inner, witness...)
	inner = append(inner, tagChallenge, byte(blockLen))
	inner = append(inner, hostChallenge...)
	reqChallenge := EncodeTLV([]byte{tagDynAuthTemplate}, inner)
	wipeBytes(inner)
	defer wipeBytes(reqChallenge)
	resp, err = transmit(ctx, t, "authenticate management key (present challenge)", apdu{
		cla: 0x00, ins: insGeneralAuthenticate, p1: mkt.algorithmByte(), p2: byte(Slot9B),
		data: reqChallenge, le: 0,
	})
	if err != nil {
		return err
	}
	if err := statusError("authenticate management key", Slot9B, resp.sw); err != nil {
		return err
	}

	template, err = decodeExpectedTLV(resp.data, []byte{tagDynAuthTemplate})
	if err != nil {
		return &ProtocolError{Op: "authenticate management key", Msg: err.Error()}
	}
	encDeviceResponse, err := decodeExpectedTLV(template, []byte{tagResponse})
	if err != nil {
		return &ProtocolError{Op: "authenticate management key", Msg: err.Error()}
	}
	if len(encDeviceResponse) != blockLen {
		return &ProtocolError{Op: "authenticate management key", Msg: fmt.Sprintf("response is %d bytes, want %d", len(encDeviceResponse), blockLen)}
	}

	if !constantTimeEqual(encDeviceResponse, expected) {
		return ErrMutualAuthFailed
	}
	return nil
}

// setManagementKey installs a new management key of the given type. The
// caller must already hold an authenticated session on Slot9B (SP 800-73
// requires this for the standard instruction byte used here).
func setManagementKey(ctx context.Context, t Transport, mkt ManagementKeyType, newKey *Secret, touchPolicy TouchPolicy) error {
	defer newKey.Wipe()
	if newKey.Len() != mkt.KeyLen() {
		return &InvalidArgumentError{Field: "newKey", Msg: fmt.Sprintf("management key type %s requires a %d-byte key, got %d", mkt, mkt.KeyLen(), newKey.Len())}
	}
	const insSetManagementKey = 0xFF
	p2 := byte(0xFF)
	if touchPolicy == TouchPolicyAlways {
		p2 = 0xFE
	}
	data := append([]byte{byte(mkt), byte(Slot9B), byte(mkt.KeyLen())}, newKey.Bytes()...)
	defer wipeBytes(data)
	resp, err := transmit(ctx, t, "set management key", apdu{
		cla: 0x00, ins: insSetManagementKey, p1: 0xFF, p2: p2, data: data, le: -1,
	})
	if err != nil {
		return err
	}
	return statusError("set management key", Slot9B, resp.sw)
}

// DefaultManagementKey returns a fresh copy of the well-known factory 3DES
// management key (01 02 .. 08, three times) present on a device before any
// key ceremony has occurred. The caller owns the returned Secret and should
// Wipe it after use.
func DefaultManagementKey() *Secret {
	return NewSecret(bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, 3))
}
