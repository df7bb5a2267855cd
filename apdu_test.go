package piv

import (
	"bytes"
	"context"
	"testing"
)

func TestAPDUEncodeCases(t *testing.T) {
	cases := []struct {
		name string
		a    apdu
		want []byte
	}{
		{
			name: "case 1: no data, no le",
			a:    apdu{cla: 0x00, ins: 0xA4, p1: 0x04, p2: 0x00, le: -1},
			want: []byte{0x00, 0xA4, 0x04, 0x00},
		},
		{
			name: "case 2s: no data, short le",
			a:    apdu{cla: 0x00, ins: 0xC0, p1: 0x00, p2: 0x00, le: 0xFF},
			want: []byte{0x00, 0xC0, 0x00, 0x00, 0xFF},
		},
		{
			name: "case 2e: no data, extended le (256)",
			a:    apdu{cla: 0x00, ins: 0xC0, p1: 0x00, p2: 0x00, le: 0x100},
			want: []byte{0x00, 0xC0, 0x00, 0x00, 0x00, 0x01, 0x00},
		},
		{
			name: "case 3s: short data (1 byte), no le",
			a:    apdu{cla: 0x00, ins: 0x20, p1: 0x00, p2: 0x80, data: []byte{0xFF}, le: -1},
			want: []byte{0x00, 0x20, 0x00, 0x80, 0x01, 0xFF},
		},
		{
			name: "case 3e: extended data (256 bytes), no le",
			a:    apdu{cla: 0x00, ins: 0xDB, p1: 0x3F, p2: 0xFF, data: bytes.Repeat([]byte{0x11}, 0x100), le: -1},
			want: append([]byte{0x00, 0xDB, 0x3F, 0xFF, 0x00, 0x01, 0x00}, bytes.Repeat([]byte{0x11}, 0x100)...),
		},
		{
			name: "case 4s: short data (255 bytes) with le",
			a:    apdu{cla: 0x00, ins: 0xCB, p1: 0x3F, p2: 0xFF, data: bytes.Repeat([]byte{0x33}, 0xFF), le: 0},
			want: append(append([]byte{0x00, 0xCB, 0x3F, 0xFF, 0xFF}, bytes.Repeat([]byte{0x33}, 0xFF)...), 0x00),
		},
		{
			name: "case 4e: extended data (65535 bytes) with le",
			a:    apdu{cla: 0x00, ins: 0xDB, p1: 0x3F, p2: 0xFF, data: bytes.Repeat([]byte{0x22}, 0xFFFF), le: 0},
			want: append(append([]byte{0x00, 0xDB, 0x3F, 0xFF, 0x00, 0xFF, 0xFF}, bytes.Repeat([]byte{0x22}, 0xFFFF)...), 0x00, 0x00),
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.a.encode()
			if !bytes.Equal(got, c.want) {
				t.Fatalf("encode mismatch:\n got  %d bytes\n want %d bytes", len(got), len(c.want))
			}
		})
	}
}

// chainingTransport models a chained read: the first exchange returns a partial
// payload with SW=0x61XX, and a single GET RESPONSE completes it.
type chainingTransport struct {
	calls [][]byte
}

func (c *chainingTransport) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	c.calls = append(c.calls, append([]byte(nil), request...))
	switch len(c.calls) {
	case 1:
		return []byte{0xAA, 0xBB, 0x61, 0x07}, nil
	case 2:
		return []byte{0xCC, 0xDD, 0xEE, 0x90, 0x00}, nil
	default:
		return []byte{0x6F, 0x00}, nil
	}
}

func TestTransmitAbsorbsGetResponseChaining(t *testing.T) {
	tr := &chainingTransport{}
	resp, err := transmit(context.Background(), tr, "test", apdu{cla: 0x00, ins: 0xCB, p1: 0x3F, p2: 0xFF, le: 0})
	if err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if !bytes.Equal(resp.data, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}) {
		t.Fatalf("concatenated payload mismatch: got %X", resp.data)
	}
	if resp.sw != 0x9000 {
		t.Fatalf("final SW = %04X, want 9000", resp.sw)
	}
	if len(tr.calls) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(tr.calls))
	}
	wantGetResponse := apdu{cla: 0x00, ins: insGetResponse, p1: 0x00, p2: 0x00, le: 7}.encode()
	if !bytes.Equal(tr.calls[1], wantGetResponse) {
		t.Fatalf("GET RESPONSE request = %X, want %X", tr.calls[1], wantGetResponse)
	}
}
