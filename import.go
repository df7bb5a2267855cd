package piv

import "context"

const insImport = 0xFE

// ImportKeyOptions configures ImportKey beyond the required slot and key.
type ImportKeyOptions struct {
	PinPolicy   PinPolicy
	TouchPolicy TouchPolicy
}

// ImportKey issues IMPORT KEY for slot. key.Wipe() is called on every
// return path, success or failure. Requires management-key
// authentication. Importing into [SlotAttestation] replaces
// the attestation key; certificates issued by [Session.Attest] afterward
// chain to the imported key instead of the factory one.
func (s *Session) ImportKey(ctx context.Context, slot Slot, key *PrivateKey, opts ImportKeyOptions) error {
	defer key.Wipe()

	if !s.mgmtAuthenticated {
		return &AuthenticationRequiredError{Op: "import key", Slot: slot}
	}

	var keyTLV []byte
	switch {
	case key.Algorithm.isRSA():
		tlv, err := rsaCRTToTLV(key.Algorithm, key)
		if err != nil {
			return err
		}
		keyTLV = tlv
	case key.Algorithm.isNISTEC():
		n := key.Algorithm.eccCurveBytes()
		padded, err := leftZeroPad(key.ECPrivateValue.Bytes(), n)
		if err != nil {
			return err
		}
		keyTLV = EncodeTLV([]byte{tagECPrivate}, padded)
		wipeBytes(padded)
	case key.Algorithm == AlgorithmEd25519:
		if key.Curve25519Seed.Len() != 32 {
			return &InvalidArgumentError{Field: "seed", Msg: "Ed25519 seed must be 32 bytes"}
		}
		keyTLV = EncodeTLV([]byte{tagEd25519Seed}, key.Curve25519Seed.Bytes())
	case key.Algorithm == AlgorithmX25519:
		if key.Curve25519Seed.Len() != 32 {
			return &InvalidArgumentError{Field: "scalar", Msg: "X25519 scalar must be 32 bytes"}
		}
		keyTLV = EncodeTLV([]byte{tagX25519Scalar}, key.Curve25519Seed.Bytes())
	default:
		return &InvalidArgumentError{Field: "algorithm", Msg: "not a key algorithm accepted by IMPORT KEY"}
	}
	defer wipeBytes(keyTLV)

	// Reserving headroom for the two policy TLVs keeps append from
	// reallocating and stranding an unwiped copy of the key material.
	body := make([]byte, 0, len(keyTLV)+6)
	body = append(body, keyTLV...)
	if opts.PinPolicy != PinPolicyDefault {
		body = append(body, tagPinPolicy, 0x01, byte(opts.PinPolicy))
	}
	if opts.TouchPolicy != TouchPolicyDefault {
		body = append(body, tagTouchPolicy, 0x01, byte(opts.TouchPolicy))
	}
	defer wipeBytes(body)

	resp, err := transmit(ctx, s, "import key", apdu{
		cla: 0x00, ins: insImport, p1: byte(key.Algorithm), p2: byte(slot), data: body, le: -1,
	})
	if err != nil {
		return err
	}
	return statusError("import key", slot, resp.sw)
}
