package pivtest

import (
	"bytes"
	"context"
	"testing"
)

func exchange(t *testing.T, a *Applet, req []byte) (data []byte, swHi, swLo byte) {
	t.Helper()
	resp, err := a.Exchange(context.Background(), req)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if len(resp) < 2 {
		t.Fatalf("response shorter than a status word: % X", resp)
	}
	return resp[:len(resp)-2], resp[len(resp)-2], resp[len(resp)-1]
}

func TestAppletSelectAndVersion(t *testing.T) {
	a := NewApplet()
	req := append([]byte{0x00, 0xA4, 0x04, 0x00, byte(len(pivAID))}, pivAID...)
	_, hi, lo := exchange(t, a, req)
	if hi != 0x90 || lo != 0x00 {
		t.Fatalf("SELECT sw = %02X%02X, want 9000", hi, lo)
	}

	data, hi, lo := exchange(t, a, []byte{0x00, 0xFD, 0x00, 0x00})
	if hi != 0x90 || lo != 0x00 {
		t.Fatalf("GET VERSION sw = %02X%02X, want 9000", hi, lo)
	}
	if !bytes.Equal(data, a.Version) {
		t.Fatalf("version = % X, want % X", data, a.Version)
	}
}

func TestAppletVerifyPINWrongValueDecrementsThenBlocks(t *testing.T) {
	a := NewApplet()
	wrong := padCredential("000000")

	for want := a.pinTotal - 1; want >= 1; want-- {
		_, hi, lo := exchange(t, a, append([]byte{0x00, 0x20, 0x00, 0x80, 0x08}, wrong...))
		if hi != 0x63 || lo != byte(0xC0|want) {
			t.Fatalf("retries = %02X%02X, want 63%02X", hi, lo, 0xC0|want)
		}
	}
	_, hi, lo := exchange(t, a, append([]byte{0x00, 0x20, 0x00, 0x80, 0x08}, wrong...))
	if hi != 0x69 || lo != 0x83 {
		t.Fatalf("final attempt sw = %02X%02X, want 6983 (blocked)", hi, lo)
	}
	if a.pinRetries != 0 {
		t.Fatalf("pinRetries = %d, want 0", a.pinRetries)
	}
}

func TestAppletVerifyPINCorrectResetsRetries(t *testing.T) {
	a := NewApplet()
	a.pinRetries = 1
	correct := padCredential(a.pin)
	_, hi, lo := exchange(t, a, append([]byte{0x00, 0x20, 0x00, 0x80, 0x08}, correct...))
	if hi != 0x90 || lo != 0x00 {
		t.Fatalf("sw = %02X%02X, want 9000", hi, lo)
	}
	if a.pinRetries != a.pinTotal {
		t.Fatalf("pinRetries = %d, want reset to %d", a.pinRetries, a.pinTotal)
	}
}

func TestAppletChangeReferenceDataUpdatesPIN(t *testing.T) {
	a := NewApplet()
	body := append(padCredential(a.pin), padCredential("999999")...)
	_, hi, lo := exchange(t, a, append([]byte{0x00, 0x24, 0x00, 0x80, byte(len(body))}, body...))
	if hi != 0x90 || lo != 0x00 {
		t.Fatalf("CHANGE sw = %02X%02X, want 9000", hi, lo)
	}
	if a.pin != "999999" {
		t.Fatalf("pin = %q, want 999999", a.pin)
	}
}

func TestAppletUnblockPINResetsBothCounters(t *testing.T) {
	a := NewApplet()
	a.pinRetries = 0
	a.pukRetries = 5
	body := append(padCredential(a.puk), padCredential("654321")...)
	_, hi, lo := exchange(t, a, append([]byte{0x00, 0x2C, 0x00, 0x00, byte(len(body))}, body...))
	if hi != 0x90 || lo != 0x00 {
		t.Fatalf("UNBLOCK sw = %02X%02X, want 9000", hi, lo)
	}
	if a.pin != "654321" || a.pinRetries != a.pinTotal || a.pukRetries != a.pukTotal {
		t.Fatalf("pin = %q, pinRetries = %d, pukRetries = %d, want 654321 / %d / %d", a.pin, a.pinRetries, a.pukRetries, a.pinTotal, a.pukTotal)
	}
}

func TestAppletPutThenGetDataRoundTrips(t *testing.T) {
	a := NewApplet()
	objID := []byte{0x5F, 0xC1, 0x05}
	wrapped := encodeTLV([]byte{0x53}, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	idTLV := encodeTLV([]byte{0x5C}, objID)
	body := append(append([]byte(nil), idTLV...), wrapped...)
	_, hi, lo := exchange(t, a, append([]byte{0x00, 0xDB, 0x3F, 0xFF, byte(len(body))}, body...))
	if hi != 0x90 || lo != 0x00 {
		t.Fatalf("PUT DATA sw = %02X%02X, want 9000", hi, lo)
	}

	getBody := encodeTLV([]byte{0x5C}, objID)
	data, hi, lo := exchange(t, a, append([]byte{0x00, 0xCB, 0x3F, 0xFF, byte(len(getBody))}, getBody...))
	if hi != 0x90 || lo != 0x00 {
		t.Fatalf("GET DATA sw = %02X%02X, want 9000", hi, lo)
	}
	if !bytes.Equal(data, wrapped) {
		t.Fatalf("GET DATA returned % X, want % X", data, wrapped)
	}
}

func TestAppletGetDataMissingObjectIsNotFound(t *testing.T) {
	a := NewApplet()
	getBody := encodeTLV([]byte{0x5C}, []byte{0x5F, 0xC1, 0x0A})
	_, hi, lo := exchange(t, a, append([]byte{0x00, 0xCB, 0x3F, 0xFF, byte(len(getBody))}, getBody...))
	if hi != 0x6A || lo != 0x82 {
		t.Fatalf("sw = %02X%02X, want 6A82", hi, lo)
	}
}

func TestAppletMutualAuthenticationSucceedsWithDefaultKey(t *testing.T) {
	a := NewApplet()

	reqWitness := encodeTLV([]byte{0x7C}, encodeTLV([]byte{0x80}, nil))
	out1, hi, lo := exchange(t, a, append([]byte{0x00, 0x87, 0x03, 0x9B, byte(len(reqWitness))}, reqWitness...))
	if hi != 0x90 || lo != 0x00 {
		t.Fatalf("round 1 sw = %02X%02X, want 9000", hi, lo)
	}
	template, err := decodeExpectedTLV(out1, []byte{0x7C})
	if err != nil {
		t.Fatalf("decodeExpectedTLV: %v", err)
	}
	encWitness, err := decodeExpectedTLV(template, []byte{0x80})
	if err != nil {
		t.Fatalf("decodeExpectedTLV witness: %v", err)
	}
	witness, err := decryptECB(a.mgmtKeyType, a.mgmtKey, encWitness)
	if err != nil {
		t.Fatalf("decryptECB: %v", err)
	}

	hostChallenge := bytes.Repeat([]byte{0x42}, 8)
	inner := append(encodeTLV([]byte{0x80}, witness), encodeTLV([]byte{0x81}, hostChallenge)...)
	reqChallenge := encodeTLV([]byte{0x7C}, inner)
	out2, hi, lo := exchange(t, a, append([]byte{0x00, 0x87, 0x03, 0x9B, byte(len(reqChallenge))}, reqChallenge...))
	if hi != 0x90 || lo != 0x00 {
		t.Fatalf("round 2 sw = %02X%02X, want 9000", hi, lo)
	}
	template2, err := decodeExpectedTLV(out2, []byte{0x7C})
	if err != nil {
		t.Fatalf("decodeExpectedTLV: %v", err)
	}
	encResp, err := decodeExpectedTLV(template2, []byte{0x82})
	if err != nil {
		t.Fatalf("decodeExpectedTLV response: %v", err)
	}
	resp, err := decryptECB(a.mgmtKeyType, a.mgmtKey, encResp)
	if err != nil {
		t.Fatalf("decryptECB: %v", err)
	}
	if !bytes.Equal(resp, hostChallenge) {
		t.Fatalf("device response = % X, want host challenge % X", resp, hostChallenge)
	}
}
