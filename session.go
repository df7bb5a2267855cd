package piv

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Transport is the only thing this package asks of its caller: something
// that can send one APDU byte string and return one response byte string.
// [transport/pcsc] and [pivtest] both implement it.
type Transport interface {
	Exchange(ctx context.Context, request []byte) ([]byte, error)
}

// Prompter is invoked before an operation that may require physical
// presence (a touch) or a biometric match. The callback is fire-and-forget:
// it must not re-enter the session and returns nothing; it
// exists purely to let a caller show a UI prompt before the device blocks
// on touch.
type Prompter interface {
	Prompt(ctx context.Context, slot Slot)
}

// pivAID is the registered PIV application identifier selected at session
// open.
var pivAID = []byte{0xA0, 0x00, 0x00, 0x03, 0x08, 0x00, 0x00, 0x10, 0x00, 0x01, 0x00}

const (
	insSelect     = 0xA4
	insGetVersion = 0xFD
)

// Session is the single-threaded, cooperatively-owned handle for one PIV
// application instance on one transport. Exactly one operation may be in
// flight at a time; the package enforces this by requiring a pointer
// receiver for every command, not by any internal lock, since two
// concurrent callers cannot meaningfully share one physical card anyway.
type Session struct {
	transport Transport
	prompter  Prompter
	randomize io.Reader
	retry     retryOptions

	selected          bool
	appVersion        []byte // raw 3-byte application version from GET VERSION
	pinVerified       bool
	mgmtAuthenticated bool
	mgmtKeyType       ManagementKeyType
	mgmtKeyTypeKnown  bool

	metadataSupported triState
}

// triState records a try-then-check feature probe result: unknown until
// the first attempt, then sticky for the life of the session. Probing
// beats version comparison because several devices misreport the firmware
// version through the PIV application.
type triState int

const (
	triUnknown triState = iota
	triYes
	triNo
)

// retryOptions configures the optional transport retry/backoff wrapper,
// off by default.
type retryOptions struct {
	enabled  bool
	attempts int
	backoff  time.Duration
}

// Option configures a Session at Open time.
type Option func(*Session)

// WithPrompter installs a Prompter invoked before touch/biometric-gated
// operations.
func WithPrompter(p Prompter) Option {
	return func(s *Session) { s.prompter = p }
}

// WithRandom overrides the source of randomness used for the management-key
// mutual-auth host challenge. Production callers never need this; it lets
// tests make the host challenge reproducible.
func WithRandom(r io.Reader) Option {
	return func(s *Session) { s.randomize = r }
}

// WithRetry enables a bounded linear backoff around transport exchanges that
// fail with any error from the transport, for readers that report transient
// busy-ness.
// Off by default.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Session) {
		s.retry = retryOptions{enabled: attempts > 0, attempts: attempts, backoff: backoff}
	}
}

// Open selects the PIV application on t and returns a ready Session. Open
// issues GET VERSION immediately, recording the (likely application-level,
// not firmware-level) version for diagnostic purposes only; no behavior is
// gated on it directly.
func Open(ctx context.Context, t Transport, opts ...Option) (*Session, error) {
	s := &Session{transport: t, randomize: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}

	resp, err := transmit(ctx, s, "select PIV application", apdu{
		cla: 0x00, ins: insSelect, p1: 0x04, p2: 0x00, data: pivAID, le: 0,
	})
	if err != nil {
		return nil, err
	}
	if err := statusError("select PIV application", 0, resp.sw); err != nil {
		return nil, err
	}
	s.selected = true

	version, err := transmit(ctx, s, "get version", apdu{
		cla: 0x00, ins: insGetVersion, p1: 0x00, p2: 0x00, le: 0,
	})
	if err != nil {
		return nil, err
	}
	if err := statusError("get version", 0, version.sw); err != nil {
		return nil, err
	}
	s.appVersion = version.data

	slog.Debug("piv session opened", "version", fmt.Sprintf("%X", s.appVersion))
	return s, nil
}

// Exchange implements Transport by delegating to the underlying transport,
// optionally retrying on any transport error per WithRetry. Session itself
// satisfies Transport so that transmit() can be called with s directly.
func (s *Session) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	if !s.retry.enabled {
		return s.transport.Exchange(ctx, request)
	}
	var lastErr error
	for attempt := 0; attempt <= s.retry.attempts; attempt++ {
		resp, err := s.transport.Exchange(ctx, request)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt < s.retry.attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retry.backoff * time.Duration(attempt+1)):
			}
		}
	}
	return nil, lastErr
}

// AppVersion returns the raw 3-byte version GET VERSION reported at Open.
// Advisory only: many devices report an application version here, not the
// firmware version.
func (s *Session) AppVersion() []byte { return s.appVersion }

// Close clears both authentication flags. It does not close the underlying
// transport; the caller remains responsible for the transport's lifetime.
// After Close, the Session must not be reused.
func (s *Session) Close() {
	s.pinVerified = false
	s.mgmtAuthenticated = false
	s.selected = false
}

// reselect re-selects the PIV application, used after a cancellation or
// timeout to recover a session into a known state.
func (s *Session) reselect(ctx context.Context) error {
	resp, err := transmit(ctx, s, "re-select PIV application", apdu{
		cla: 0x00, ins: insSelect, p1: 0x04, p2: 0x00, data: pivAID, le: 0,
	})
	if err != nil {
		return err
	}
	if err := statusError("re-select PIV application", 0, resp.sw); err != nil {
		return err
	}
	s.pinVerified = false
	s.mgmtAuthenticated = false
	return nil
}

// Authenticate performs management-key mutual authentication with key
// under mkt. On success the session is MgmtAuthenticated until Close,
// session drop, or re-select. key is wiped before Authenticate returns, on
// every path.
func (s *Session) Authenticate(ctx context.Context, mkt ManagementKeyType, key *Secret) error {
	if err := authenticateManagementKey(ctx, s, mkt, key, s.randomize); err != nil {
		return err
	}
	s.mgmtAuthenticated = true
	s.mgmtKeyType = mkt
	s.mgmtKeyTypeKnown = true
	return nil
}

// SetManagementKey installs a new management key, requiring a prior
// Authenticate in the same session. newKey is wiped before
// SetManagementKey returns, on every path.
func (s *Session) SetManagementKey(ctx context.Context, mkt ManagementKeyType, newKey *Secret, touch TouchPolicy) error {
	if !s.mgmtAuthenticated {
		return &AuthenticationRequiredError{Op: "set management key", Slot: Slot9B}
	}
	if err := setManagementKey(ctx, s, mkt, newKey, touch); err != nil {
		return err
	}
	s.mgmtKeyType = mkt
	s.mgmtKeyTypeKnown = true
	return nil
}

// notifyPrompt invokes the installed Prompter, if any, before a touch- or
// biometric-gated operation. It never blocks on the prompter itself.
func (s *Session) notifyPrompt(ctx context.Context, slot Slot) {
	if s.prompter != nil {
		s.prompter.Prompt(ctx, slot)
	}
}

// managementKeyType returns the session's known management-key algorithm,
// probing GetMetadata on Slot9B the first time it's needed and falling
// back to the TripleDES factory default when metadata isn't supported. The
// type is learned by trying the metadata command, not by comparing version
// numbers.
func (s *Session) managementKeyType(ctx context.Context) (ManagementKeyType, error) {
	if s.mgmtKeyTypeKnown {
		return s.mgmtKeyType, nil
	}
	if s.metadataSupported != triNo {
		md, err := getSlotMetadataRaw(ctx, s, Slot9B)
		if err == nil {
			s.metadataSupported = triYes
			if mkt, ok := managementKeyTypeFromMetadata(md); ok {
				s.mgmtKeyType = mkt
				s.mgmtKeyTypeKnown = true
				return mkt, nil
			}
		} else if isNotSupported(err) {
			s.metadataSupported = triNo
		} else if !isNotFound(err) {
			return 0, err
		}
	}
	s.mgmtKeyType = ManagementKeyTripleDES
	s.mgmtKeyTypeKnown = true
	return s.mgmtKeyType, nil
}
