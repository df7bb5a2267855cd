package piv

import (
	"errors"
	"fmt"
)

// Status words the core recognizes. Unrecognized status words surface as
// DeviceError carrying the raw SW.
const (
	swSuccess                 = 0x9000
	swMoreDataMask            = 0xFF00
	swMoreData                = 0x6100
	swSecurityNotSatisfied    = 0x6982
	swAuthBlocked             = 0x6983
	swWrongPINMask            = 0xFFF0
	swWrongPINBase            = 0x63C0
	swFunctionNotSupported    = 0x6A81
	swFileOrRefNotFound       = 0x6A82
	swReferencedDataNotFound  = 0x6A88
	swInstructionNotSupported = 0x6D00
)

// TransportError wraps a failure at or below the Transport.Exchange call;
// the PIV layer never saw a response to interpret.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("piv: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed APDU or TLV structure returned by the
// device: a response that could not be parsed at all, as opposed to one
// that parsed but carried an unexpected status word.
type ProtocolError struct {
	Op  string
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("piv: protocol error during %s: %s", e.Op, e.Msg)
}

// DeviceError reports a status word the core has no specific mapping for.
type DeviceError struct {
	Op string
	SW uint16
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("piv: %s failed: device returned SW=%04X", e.Op, e.SW)
}

// AuthenticationRequiredError corresponds to SW=0x6982: the operation needs
// a PIN verification or touch that has not happened yet.
type AuthenticationRequiredError struct {
	Op   string
	Slot Slot
}

func (e *AuthenticationRequiredError) Error() string {
	return fmt.Sprintf("piv: %s on slot %s requires PIN verification or touch", e.Op, e.Slot)
}

// WrongPINError corresponds to SW=0x63CX for a PIN verify/change attempt.
type WrongPINError struct {
	RetriesRemaining int
}

func (e *WrongPINError) Error() string {
	return fmt.Sprintf("piv: wrong PIN, %d retries remaining", e.RetriesRemaining)
}

// WrongPUKError corresponds to SW=0x63CX for a PUK-bearing attempt.
type WrongPUKError struct {
	RetriesRemaining int
}

func (e *WrongPUKError) Error() string {
	return fmt.Sprintf("piv: wrong PUK, %d retries remaining", e.RetriesRemaining)
}

// ErrBlocked corresponds to SW=0x6983: the relevant retry counter has
// reached zero and the credential is locked.
var ErrBlocked = errors.New("piv: credential is blocked (retry counter exhausted)")

// NotSupportedError corresponds to SW=0x6D00 (instruction not supported) or
// SW=0x6A81 (function not supported): the firmware does not implement the
// attempted command. Feature gating should try-then-check this rather than
// compare version numbers.
type NotSupportedError struct {
	Op string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("piv: %s is not supported by this device", e.Op)
}

// NotFoundError corresponds to SW=0x6A82/0x6A88: an empty slot, missing
// data object, or missing certificate.
type NotFoundError struct {
	Op string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("piv: %s: not found", e.Op)
}

// InvalidArgumentError reports a precondition failure on caller-supplied
// data, caught before any APDU is ever sent.
type InvalidArgumentError struct {
	Field string
	Msg   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("piv: invalid argument %q: %s", e.Field, e.Msg)
}

// ErrMutualAuthFailed reports that the device's response to the host's
// challenge did not match the expected value under constant-time comparison.
var ErrMutualAuthFailed = errors.New("piv: management key mutual authentication failed")

// statusError maps a status word returned from a command exchange to one of
// the typed errors above. op and slot are used only to annotate the error;
// slot may be the zero Slot when not applicable. A nil return means sw was
// success and the caller should proceed to decode the response body.
func statusError(op string, slot Slot, sw uint16) error {
	switch {
	case sw == swSuccess:
		return nil
	case sw == swSecurityNotSatisfied:
		return &AuthenticationRequiredError{Op: op, Slot: slot}
	case sw&swWrongPINMask == swWrongPINBase:
		return &WrongPINError{RetriesRemaining: int(sw & 0x0F)}
	case sw == swAuthBlocked:
		return ErrBlocked
	case sw == swInstructionNotSupported || sw == swFunctionNotSupported:
		return &NotSupportedError{Op: op}
	case sw == swFileOrRefNotFound || sw == swReferencedDataNotFound:
		return &NotFoundError{Op: op}
	default:
		return &DeviceError{Op: op, SW: sw}
	}
}

// retriesFromSW extracts a retry count from a verify/unblock status word.
// ok is false when sw carries no retry information.
func retriesFromSW(sw uint16) (retries int, ok bool) {
	switch {
	case sw&swWrongPINMask == swWrongPINBase:
		return int(sw & 0x0F), true
	case sw == swAuthBlocked:
		return 0, true
	default:
		return 0, false
	}
}

// isNotSupported reports whether err indicates the device lacks support for
// the attempted instruction or function, the signal used for feature gating
// per the REDESIGN FLAGS guidance to prefer try-then-check over version
// comparison.
func isNotSupported(err error) bool {
	var nse *NotSupportedError
	return errors.As(err, &nse)
}

// isNotFound reports whether err indicates an empty slot or missing object.
func isNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
