package piv

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestEncodeCredentialPadding(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"", bytes.Repeat([]byte{0xFF}, 8)},
		{"1", []byte{'1', 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"111111", []byte{'1', '1', '1', '1', '1', '1', 0xFF, 0xFF}},
		{"12345678", []byte{'1', '2', '3', '4', '5', '6', '7', '8'}},
	}
	for _, c := range cases {
		enc, err := encodeCredential("pin", c.in)
		if err != nil {
			t.Fatalf("encodeCredential(%q): %v", c.in, err)
		}
		if enc.Len() != credentialLen {
			t.Fatalf("encodeCredential(%q) length = %d, want 8", c.in, enc.Len())
		}
		if !bytes.Equal(enc.Bytes(), c.want) {
			t.Fatalf("encodeCredential(%q) = %X, want %X", c.in, enc.Bytes(), c.want)
		}
		enc.Wipe()
	}
}

func TestEncodeCredentialTooLong(t *testing.T) {
	if _, err := encodeCredential("pin", "123456789"); err == nil {
		t.Fatal("expected error for a 9-byte credential")
	}
}

func TestVerifyPINRejectsOutOfRangeLength(t *testing.T) {
	tr := &scriptedTransport{}
	sess := &Session{transport: tr, selected: true}
	for _, pin := range []string{"", "12345", "123456789"} {
		if err := sess.VerifyPIN(context.Background(), pin); err == nil {
			t.Fatalf("expected InvalidArgumentError for PIN %q", pin)
		}
	}
	if len(tr.requests) != 0 {
		t.Fatal("no APDU should be sent for an invalid-length PIN")
	}
}

func TestRetriesFromSW(t *testing.T) {
	for sw := uint16(0x63C0); sw <= 0x63CF; sw++ {
		retries, ok := retriesFromSW(sw)
		if !ok {
			t.Fatalf("retriesFromSW(%04X): ok = false", sw)
		}
		if want := int(sw & 0x0F); retries != want {
			t.Fatalf("retriesFromSW(%04X) = %d, want %d", sw, retries, want)
		}
	}
	if retries, ok := retriesFromSW(0x6983); !ok || retries != 0 {
		t.Fatalf("retriesFromSW(6983) = (%d, %v), want (0, true)", retries, ok)
	}
	if _, ok := retriesFromSW(0x9000); ok {
		t.Fatal("retriesFromSW(9000) should report ok = false")
	}
}

// scriptedTransport returns one fixed response per call, in order, and
// records every request it was given, for exercising exact wire byte
// expectations.
type scriptedTransport struct {
	responses [][]byte
	requests  [][]byte
	next      int
}

func (s *scriptedTransport) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	s.requests = append(s.requests, append([]byte(nil), request...))
	if s.next >= len(s.responses) {
		return []byte{0x6F, 0x00}, nil
	}
	resp := s.responses[s.next]
	s.next++
	return resp, nil
}

func TestVerifyPINWrongValueReportsRetries(t *testing.T) {
	tr := &scriptedTransport{responses: [][]byte{{0x63, 0xC2}}}
	sess := &Session{transport: tr, selected: true}

	err := sess.VerifyPIN(context.Background(), "111111")
	var wrongPIN *WrongPINError
	if !errors.As(err, &wrongPIN) {
		t.Fatalf("error is not *WrongPINError: %v", err)
	}
	if wrongPIN.RetriesRemaining != 2 {
		t.Fatalf("RetriesRemaining = %d, want 2", wrongPIN.RetriesRemaining)
	}
	if sess.pinVerified {
		t.Fatal("session must remain un-verified after a wrong PIN")
	}

	wantData := []byte{0x31, 0x31, 0x31, 0x31, 0x31, 0x31, 0xFF, 0xFF}
	gotData := tr.requests[0][5:]
	if !bytes.Equal(gotData, wantData) {
		t.Fatalf("VERIFY data = %X, want %X", gotData, wantData)
	}
}
