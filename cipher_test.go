package piv

import (
	"bytes"
	"testing"
)

func TestECBRoundTrip3DES(t *testing.T) {
	key := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, 3)
	block := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE, 0xBA, 0xBE}
	enc, err := encryptECB(ManagementKeyTripleDES, key, block)
	if err != nil {
		t.Fatalf("encryptECB: %v", err)
	}
	dec, err := decryptECB(ManagementKeyTripleDES, key, enc)
	if err != nil {
		t.Fatalf("decryptECB: %v", err)
	}
	if !bytes.Equal(dec, block) {
		t.Fatalf("round trip mismatch: got %X, want %X", dec, block)
	}
}

func TestECBRoundTripAES(t *testing.T) {
	for _, mkt := range []ManagementKeyType{ManagementKeyAES128, ManagementKeyAES192, ManagementKeyAES256} {
		key := bytes.Repeat([]byte{0xAA}, mkt.KeyLen())
		block := bytes.Repeat([]byte{0x11}, 16)
		enc, err := encryptECB(mkt, key, block)
		if err != nil {
			t.Fatalf("%s: encryptECB: %v", mkt, err)
		}
		dec, err := decryptECB(mkt, key, enc)
		if err != nil {
			t.Fatalf("%s: decryptECB: %v", mkt, err)
		}
		if !bytes.Equal(dec, block) {
			t.Fatalf("%s: round trip mismatch", mkt)
		}
	}
}

func TestBlockCipherForRejectsWrongKeyLength(t *testing.T) {
	if _, err := blockCipherFor(ManagementKeyAES128, []byte{0x01, 0x02}); err == nil {
		t.Fatal("expected an error for a short AES-128 key")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03}
	b := []byte{0x01, 0x02, 0x03}
	c := []byte{0x01, 0x02, 0x04}
	if !constantTimeEqual(a, b) {
		t.Fatal("expected equal slices to compare equal")
	}
	if constantTimeEqual(a, c) {
		t.Fatal("expected differing slices to compare unequal")
	}
	if constantTimeEqual(a, []byte{0x01, 0x02}) {
		t.Fatal("expected different-length slices to compare unequal")
	}
}
