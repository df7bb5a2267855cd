package piv

import "context"

const insGenerate = 0x47

// tagGenControlTemplate and its inner tags frame the GENERATE ASYMMETRIC KEY
// PAIR body.
const tagGenControlTemplate = 0xAC

// GenerateKeyOptions configures GenerateKey beyond the required algorithm.
type GenerateKeyOptions struct {
	PinPolicy   PinPolicy   // zero value omits the AA tag (device default)
	TouchPolicy TouchPolicy // zero value omits the AB tag (device default)
}

// GenerateKey issues GENERATE ASYMMETRIC KEY PAIR for slot and returns the
// device-reported public key. Requires management-key authentication.
func (s *Session) GenerateKey(ctx context.Context, slot Slot, alg Algorithm, opts GenerateKeyOptions) (*PublicKey, error) {
	if !s.mgmtAuthenticated {
		return nil, &AuthenticationRequiredError{Op: "generate key", Slot: slot}
	}
	if slot == SlotAttestation {
		return nil, &InvalidArgumentError{Field: "slot", Msg: "attestation slot cannot hold a generated key"}
	}

	inner := EncodeTLV([]byte{0x80}, []byte{byte(alg)})
	if opts.PinPolicy != PinPolicyDefault {
		inner = append(inner, EncodeTLV([]byte{tagPinPolicy}, []byte{byte(opts.PinPolicy)})...)
	}
	if opts.TouchPolicy != TouchPolicyDefault {
		inner = append(inner, EncodeTLV([]byte{tagTouchPolicy}, []byte{byte(opts.TouchPolicy)})...)
	}
	body := EncodeTLV([]byte{tagGenControlTemplate}, inner)

	resp, err := transmit(ctx, s, "generate key", apdu{
		cla: 0x00, ins: insGenerate, p1: 0x00, p2: byte(slot), data: body, le: 0,
	})
	if err != nil {
		return nil, err
	}
	if err := statusError("generate key", slot, resp.sw); err != nil {
		return nil, err
	}
	return parsePublicKeyTemplate(alg, resp.data)
}
