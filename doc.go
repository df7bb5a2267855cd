/*
Package piv implements a host-side client for the PIV (Personal Identity
Verification) application defined by NIST SP 800-73, extended with the
vendor-specific instructions used by YubiKey PIV modules.

This package owns the wire protocol only: APDU/TLV framing, the PIV
session state machine, the symmetric mutual-auth handshake used to
unlock administrative commands, the key-material codecs, and one
handler per PIV command. It does not own a smart-card transport or a
device-discovery layer: callers supply a [Transport] that can send a
byte string and receive a byte string, and the core handles APDU
chaining, status-word interpretation, and secure zeroization of
secrets on top of it.

# Transport

The only thing this package asks of its caller is:

	type Transport interface {
		Exchange(ctx context.Context, request []byte) ([]byte, error)
	}

[transport/pcsc] provides a ready-made [Transport] backed by
github.com/ebfe/scard for real readers; [pivtest] provides an in-memory
virtual PIV applet for tests.

# Session lifecycle

	Unselected -> Selected -> {PinVerified}? x {MgmtAuthenticated}?

A [Session] is created by [Open], which selects the PIV application and
queries the application version. PIN verification and management-key
authentication are independent and both cleared by [Session.Close]. A
transport error does not clear either flag.

# Errors

Every command handler returns one of the typed errors in errors.go:
[TransportError], [ProtocolError], [DeviceError],
[AuthenticationRequiredError], [WrongPINError], [WrongPUKError],
[ErrBlocked], [NotSupportedError], [NotFoundError], [InvalidArgumentError],
[ErrMutualAuthFailed]. Callers that need to branch on the kind of failure
should use errors.As / errors.Is rather than comparing status words
directly.
*/
package piv
