package piv

import (
	"bytes"
	"testing"
)

func TestEncodeTLVRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		tag  []byte
		val  []byte
	}{
		{"empty", []byte{0x80}, nil},
		{"short", []byte{0x81}, []byte{0x01, 0x02, 0x03}},
		{"one-byte-length-boundary", []byte{0x53}, bytes.Repeat([]byte{0xAB}, 0x7F)},
		{"two-byte-length", []byte{0x53}, bytes.Repeat([]byte{0xCD}, 0x100)},
		{"three-byte-length", []byte{0x53}, bytes.Repeat([]byte{0xEF}, 0x10001)},
		{"two-byte-tag", encodeTag2(0x7F, 0x49), []byte{0x86, 0x02, 0x04, 0x05}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded := EncodeTLV(c.tag, c.val)
			got, err := decodeExpectedTLV(encoded, c.tag)
			if err != nil {
				t.Fatalf("decodeExpectedTLV: %v", err)
			}
			if !bytes.Equal(got, c.val) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(c.val))
			}
		})
	}
}

func TestTLVDecoderRejectsIndefiniteLength(t *testing.T) {
	buf := []byte{0x53, 0x80, 0x01, 0x02}
	d := NewTLVDecoder(buf)
	if _, _, err := d.Next(); err == nil {
		t.Fatal("expected error decoding length byte 0x80")
	}
}

func TestTLVDecoderRejectsLengthByteAbove0x83(t *testing.T) {
	buf := []byte{0x53, 0x84, 0x01, 0x02, 0x03, 0x04}
	d := NewTLVDecoder(buf)
	if _, _, err := d.Next(); err == nil {
		t.Fatal("expected error decoding length byte 0x84")
	}
}

func TestDecodeTLVMapMultipleTags(t *testing.T) {
	buf := append(EncodeTLV([]byte{0x80}, []byte{0x01}), EncodeTLV([]byte{0x81}, []byte{0x02, 0x03})...)
	m, err := DecodeTLVMap(buf)
	if err != nil {
		t.Fatalf("DecodeTLVMap: %v", err)
	}
	if !bytes.Equal(m[string([]byte{0x80})], []byte{0x01}) {
		t.Fatalf("tag 0x80: got %X", m[string([]byte{0x80})])
	}
	if !bytes.Equal(m[string([]byte{0x81})], []byte{0x02, 0x03}) {
		t.Fatalf("tag 0x81: got %X", m[string([]byte{0x81})])
	}
}

func TestDecodeTLVMapDuplicateTagKeepsLast(t *testing.T) {
	buf := append(EncodeTLV([]byte{0x80}, []byte{0x01}), EncodeTLV([]byte{0x80}, []byte{0x02})...)
	m, err := DecodeTLVMap(buf)
	if err != nil {
		t.Fatalf("DecodeTLVMap: %v", err)
	}
	if !bytes.Equal(m[string([]byte{0x80})], []byte{0x02}) {
		t.Fatalf("expected the later occurrence to win, got %X", m[string([]byte{0x80})])
	}
}
