package piv

import (
	"context"
	"log/slog"
)

const (
	insVerify     = 0x20
	insChange     = 0x24
	insUnblock    = 0x2C
	insSetRetries = 0xFA
	insReset      = 0xFB

	p2PIN = 0x80
	p2PUK = 0x81

	credentialLen = 8
)

// encodeCredential right-pads the UTF-8 bytes of a PIN or PUK with 0xFF to
// exactly 8 bytes. An empty string encodes as all-0xFF. Callers
// must pass a value of at most 8 bytes; longer values are an
// InvalidArgumentError rather than silent truncation.
func encodeCredential(field, s string) (*Secret, error) {
	b := []byte(s)
	if len(b) > credentialLen {
		return nil, &InvalidArgumentError{Field: field, Msg: "must encode to at most 8 bytes"}
	}
	out := make([]byte, credentialLen)
	copy(out, b)
	for i := len(b); i < credentialLen; i++ {
		out[i] = 0xFF
	}
	return wrapSecret(out), nil
}

// validateCredential enforces the 6-8 byte length precondition on a
// caller-supplied PIN or PUK before any APDU is built. The empty-verify
// retry probe bypasses this deliberately (it sends no credential at all).
func validateCredential(field, s string) error {
	if n := len(s); n < 6 || n > credentialLen {
		return &InvalidArgumentError{Field: field, Msg: "length must be in [6,8] bytes"}
	}
	return nil
}

// VerifyPIN verifies the PIN (INS 0x20, P2 0x80). On success the
// session transitions to PinVerified. A wrong PIN returns *WrongPINError
// with the remaining retry count and leaves the session in Selected.
func (s *Session) VerifyPIN(ctx context.Context, pin string) error {
	if err := validateCredential("pin", pin); err != nil {
		return err
	}
	enc, err := encodeCredential("pin", pin)
	if err != nil {
		return err
	}
	defer enc.Wipe()

	resp, err := transmit(ctx, s, "verify PIN", apdu{
		cla: 0x00, ins: insVerify, p1: 0x00, p2: p2PIN, data: enc.Bytes(), le: -1,
	})
	if err != nil {
		return err
	}
	if err := statusError("verify PIN", 0, resp.sw); err != nil {
		return err
	}
	s.pinVerified = true
	return nil
}

// ChangePIN replaces the PIN (INS 0x24, P2 0x80, 16-byte {old|new} body).
// Does not itself verify the PIN for subsequent operations; callers that
// need PinVerified afterward must call VerifyPIN with the new value.
func (s *Session) ChangePIN(ctx context.Context, oldPIN, newPIN string) error {
	return s.changeCredential(ctx, "change PIN", p2PIN, oldPIN, newPIN, func(retries int) error {
		return &WrongPINError{RetriesRemaining: retries}
	})
}

// ChangePUK replaces the PUK (INS 0x24, P2 0x81).
func (s *Session) ChangePUK(ctx context.Context, oldPUK, newPUK string) error {
	return s.changeCredential(ctx, "change PUK", p2PUK, oldPUK, newPUK, func(retries int) error {
		return &WrongPUKError{RetriesRemaining: retries}
	})
}

func (s *Session) changeCredential(ctx context.Context, op string, p2 byte, oldVal, newVal string, wrongErr func(int) error) error {
	if err := validateCredential("old", oldVal); err != nil {
		return err
	}
	if err := validateCredential("new", newVal); err != nil {
		return err
	}
	encOld, err := encodeCredential("old", oldVal)
	if err != nil {
		return err
	}
	defer encOld.Wipe()
	encNew, err := encodeCredential("new", newVal)
	if err != nil {
		return err
	}
	defer encNew.Wipe()

	body := make([]byte, 0, 16)
	body = append(body, encOld.Bytes()...)
	body = append(body, encNew.Bytes()...)
	defer wipeBytes(body)

	resp, err := transmit(ctx, s, op, apdu{cla: 0x00, ins: insChange, p1: 0x00, p2: p2, data: body, le: -1})
	if err != nil {
		return err
	}
	if retries, ok := retriesFromSW(resp.sw); ok && resp.sw != swSuccess {
		if resp.sw == swAuthBlocked {
			return ErrBlocked
		}
		return wrongErr(retries)
	}
	return statusError(op, 0, resp.sw)
}

// UnblockPIN resets the PIN to newPIN using the PUK (INS 0x2C, P2 0x80,
// 16-byte {puk|new_pin} body).
func (s *Session) UnblockPIN(ctx context.Context, puk, newPIN string) error {
	if err := validateCredential("puk", puk); err != nil {
		return err
	}
	if err := validateCredential("newPIN", newPIN); err != nil {
		return err
	}
	encPUK, err := encodeCredential("puk", puk)
	if err != nil {
		return err
	}
	defer encPUK.Wipe()
	encNew, err := encodeCredential("newPIN", newPIN)
	if err != nil {
		return err
	}
	defer encNew.Wipe()

	body := make([]byte, 0, 16)
	body = append(body, encPUK.Bytes()...)
	body = append(body, encNew.Bytes()...)
	defer wipeBytes(body)

	resp, err := transmit(ctx, s, "unblock PIN", apdu{cla: 0x00, ins: insUnblock, p1: 0x00, p2: p2PIN, data: body, le: -1})
	if err != nil {
		return err
	}
	if retries, ok := retriesFromSW(resp.sw); ok && resp.sw != swSuccess {
		if resp.sw == swAuthBlocked {
			return ErrBlocked
		}
		return &WrongPUKError{RetriesRemaining: retries}
	}
	return statusError("unblock PIN", 0, resp.sw)
}

// PINRetries reports the PIN's retry status, preferring GetMetadata and
// falling back to an empty verify probe only when metadata is unsupported,
// not found, or carries no retry pair. The fallback logs a warning, because the empty verify is
// documented as non-consuming on compliant firmware but has been observed
// to decrement the counter on some devices.
func (s *Session) PINRetries(ctx context.Context) (RetryStatus, error) {
	return s.retryStatus(ctx, "PIN retries", p2PIN)
}

// PUKRetries reports the PUK's retry status, analogous to PINRetries.
func (s *Session) PUKRetries(ctx context.Context) (RetryStatus, error) {
	return s.retryStatus(ctx, "PUK retries", p2PUK)
}

func (s *Session) retryStatus(ctx context.Context, op string, p2 byte) (RetryStatus, error) {
	slot := Slot(0)
	if p2 == p2PIN {
		slot = 0x80
	} else {
		slot = 0x81
	}
	if md, err := getSlotMetadataRaw(ctx, s, slot); err == nil {
		if rs, ok := retryStatusFromMetadata(md); ok {
			return rs, nil
		}
	} else if !isNotSupported(err) && !isNotFound(err) {
		return RetryStatus{}, err
	}

	slog.Warn("piv: falling back to empty-verify retry probe, metadata unsupported", "op", op)
	resp, err := transmit(ctx, s, op, apdu{cla: 0x00, ins: insVerify, p1: 0x00, p2: p2, le: -1})
	if err != nil {
		return RetryStatus{}, err
	}
	if resp.sw == swSuccess {
		return RetryStatus{}, &ProtocolError{Op: op, Msg: "empty verify succeeded: no retry count available without metadata support"}
	}
	retries, ok := retriesFromSW(resp.sw)
	if !ok {
		return RetryStatus{}, statusError(op, 0, resp.sw)
	}
	return RetryStatus{RetriesRemaining: retries}, nil
}

// SetRetries sets the PIN and PUK retry limits and resets the PIN
// to the default "123456" and the PUK to the default "12345678" as a side
// effect of the command itself (not something this library does
// separately). Requires management-key authentication.
func (s *Session) SetRetries(ctx context.Context, pinRetries, pukRetries int) error {
	if !s.mgmtAuthenticated {
		return &AuthenticationRequiredError{Op: "set retries", Slot: Slot9B}
	}
	if pinRetries < 1 || pinRetries > 0xFF || pukRetries < 1 || pukRetries > 0xFF {
		return &InvalidArgumentError{Field: "retries", Msg: "must be in [1,255]"}
	}
	resp, err := transmit(ctx, s, "set retries", apdu{
		cla: 0x00, ins: insSetRetries, p1: byte(pinRetries), p2: byte(pukRetries), le: -1,
	})
	if err != nil {
		return err
	}
	return statusError("set retries", 0, resp.sw)
}
