package piv

import (
	"context"
	"fmt"
)

const (
	insMoveOrDelete = 0xF6
	insGetSerial    = 0xF8
	insAttest       = 0xF9

	p1DeleteKey = 0xFF
)

// Serial returns the device serial number. Neither PIN verification nor
// management-key authentication is required.
func (s *Session) Serial(ctx context.Context) (uint32, error) {
	resp, err := transmit(ctx, s, "get serial", apdu{cla: 0x00, ins: insGetSerial, p1: 0x00, p2: 0x00, le: 0})
	if err != nil {
		return 0, err
	}
	if err := statusError("get serial", 0, resp.sw); err != nil {
		return 0, err
	}
	if len(resp.data) != 4 {
		return 0, &ProtocolError{Op: "get serial", Msg: fmt.Sprintf("serial is %d bytes, want 4", len(resp.data))}
	}
	return uint32(resp.data[0])<<24 | uint32(resp.data[1])<<16 | uint32(resp.data[2])<<8 | uint32(resp.data[3]), nil
}

// MoveKey relocates the key in src to dst (INS 0xF6, P1=dst, P2=src). The
// attestation slot (0xF9) may not be used as either endpoint. Requires
// management-key authentication.
func (s *Session) MoveKey(ctx context.Context, dst, src Slot) error {
	if !s.mgmtAuthenticated {
		return &AuthenticationRequiredError{Op: "move key", Slot: src}
	}
	if dst == SlotAttestation || src == SlotAttestation {
		return &InvalidArgumentError{Field: "slot", Msg: "attestation slot is not movable"}
	}
	resp, err := transmit(ctx, s, "move key", apdu{cla: 0x00, ins: insMoveOrDelete, p1: byte(dst), p2: byte(src), le: -1})
	if err != nil {
		return err
	}
	return statusError("move key", src, resp.sw)
}

// DeleteKey removes the key in slot (INS 0xF6 with P1=0xFF).
// Requires management-key authentication.
func (s *Session) DeleteKey(ctx context.Context, slot Slot) error {
	if !s.mgmtAuthenticated {
		return &AuthenticationRequiredError{Op: "delete key", Slot: slot}
	}
	resp, err := transmit(ctx, s, "delete key", apdu{cla: 0x00, ins: insMoveOrDelete, p1: p1DeleteKey, p2: byte(slot), le: -1})
	if err != nil {
		return err
	}
	return statusError("delete key", slot, resp.sw)
}

// Attest returns a DER X.509 certificate for the key in slot, signed by the
// attestation slot's key. No PIN or management-key
// authentication is required by the wire protocol itself; the attesting
// slot's own touch/PIN policy still applies via the device.
func (s *Session) Attest(ctx context.Context, slot Slot) ([]byte, error) {
	s.notifyPrompt(ctx, slot)
	resp, err := transmit(ctx, s, "attest", apdu{cla: 0x00, ins: insAttest, p1: byte(slot), p2: 0x00, le: -1})
	if err != nil {
		return nil, err
	}
	if err := statusError("attest", slot, resp.sw); err != nil {
		return nil, err
	}
	return resp.data, nil
}

// Reset performs the full PIV application reset: it blocks the PIN and PUK
// by exhausting their retry counters and then issues INS=0xFB. Reset
// refuses to start if biometric enrollment is present. On success the
// session's authentication flags are cleared and the management-key type is
// re-learned (via metadata if supported, else defaulted to TripleDES),
// matching the device's own post-reset state (default management key, PIN
// "123456", PUK "12345678").
func (s *Session) Reset(ctx context.Context) error {
	if present, err := bioEnrollmentPresent(ctx, s); err != nil {
		return err
	} else if present {
		return &InvalidArgumentError{Field: "reset", Msg: "device has a biometric enrollment; reset refused"}
	}

	if err := s.exhaustPIN(ctx); err != nil {
		return err
	}
	if err := s.exhaustPUK(ctx); err != nil {
		return err
	}

	resp, err := transmit(ctx, s, "reset", apdu{cla: 0x00, ins: insReset, p1: 0x00, p2: 0x00, le: -1})
	if err != nil {
		return err
	}
	if err := statusError("reset", 0, resp.sw); err != nil {
		return err
	}

	s.pinVerified = false
	s.mgmtAuthenticated = false
	s.mgmtKeyTypeKnown = false
	s.metadataSupported = triUnknown
	if _, err := s.managementKeyType(ctx); err != nil {
		return err
	}
	return nil
}

// exhaustPIN loops an empty verify until the PIN's retry counter reaches
// zero.
func (s *Session) exhaustPIN(ctx context.Context) error {
	for {
		resp, err := transmit(ctx, s, "reset: exhaust PIN", apdu{cla: 0x00, ins: insVerify, p1: 0x00, p2: p2PIN, le: -1})
		if err != nil {
			return err
		}
		if resp.sw == swAuthBlocked {
			return nil
		}
		if _, ok := retriesFromSW(resp.sw); !ok {
			return statusError("reset: exhaust PIN", 0, resp.sw)
		}
	}
}

// exhaustPUK loops unblock-with-empty-values until the PUK's retry counter
// reaches zero.
func (s *Session) exhaustPUK(ctx context.Context) error {
	allFF := make([]byte, 16)
	for i := range allFF {
		allFF[i] = 0xFF
	}
	for {
		resp, err := transmit(ctx, s, "reset: exhaust PUK", apdu{cla: 0x00, ins: insUnblock, p1: 0x00, p2: p2PIN, data: allFF, le: -1})
		if err != nil {
			return err
		}
		if resp.sw == swAuthBlocked {
			return nil
		}
		if _, ok := retriesFromSW(resp.sw); !ok {
			return statusError("reset: exhaust PUK", 0, resp.sw)
		}
	}
}
