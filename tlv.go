package piv

import (
	"bytes"
	"fmt"
)

// EncodeTLV encodes a single tag-length-value triple using BER definite-length
// encoding. tag is emitted verbatim (one byte for ordinary PIV tags, two bytes
// for the 0x7F49 public-key template tag; the codec does not special-case
// that tag, it simply accepts whatever byte string the caller passes).
func EncodeTLV(tag []byte, value []byte) []byte {
	out := make([]byte, 0, len(tag)+4+len(value))
	out = append(out, tag...)
	out = append(out, encodeLength(len(value))...)
	out = append(out, value...)
	return out
}

// encodeLength encodes n in the definite-length forms: one byte below 0x80,
// 0x81+1 byte below 0x100, 0x82+2 bytes below 0x10000, 0x83+3 bytes below
// 0x1000000.
func encodeLength(n int) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n < 0x100:
		return []byte{0x81, byte(n)}
	case n < 0x10000:
		return []byte{0x82, byte(n >> 8), byte(n)}
	case n < 0x1000000:
		return []byte{0x83, byte(n >> 16), byte(n >> 8), byte(n)}
	default:
		panic("piv: TLV value too long to encode")
	}
}

// TLV is one decoded tag-length-value triple. Tag retains however many bytes
// the tag occupied (1, or 2 for the 0x7F49 form); Value aliases the input
// slice and must be copied by the caller before the input buffer is reused.
type TLV struct {
	Tag   []byte
	Value []byte
}

// TLVDecoder walks a buffer of concatenated BER-TLV triples.
type TLVDecoder struct {
	buf []byte
}

// NewTLVDecoder returns a decoder positioned at the start of buf.
func NewTLVDecoder(buf []byte) *TLVDecoder {
	return &TLVDecoder{buf: buf}
}

// Len reports the number of bytes left to decode.
func (d *TLVDecoder) Len() int { return len(d.buf) }

// Next decodes one TLV triple and advances past it. ok is false once the
// buffer is exhausted; err is non-nil on truncation or a malformed length.
func (d *TLVDecoder) Next() (t TLV, ok bool, err error) {
	if len(d.buf) == 0 {
		return TLV{}, false, nil
	}

	tagLen := 1
	// The only two-byte tag the PIV wire protocol uses is 0x7F49, but the
	// codec generalizes: any tag whose low 5 bits of the first byte are all
	// set (the BER "tag number follows" escape) is treated as two bytes.
	if len(d.buf) >= 1 && d.buf[0]&0x1F == 0x1F {
		tagLen = 2
	}
	if len(d.buf) < tagLen+1 {
		return TLV{}, false, fmt.Errorf("piv: TLV truncated in tag/length, %d bytes left", len(d.buf))
	}
	tag := d.buf[:tagLen]

	lengthByte := d.buf[tagLen]
	var length, lenFieldSize int
	switch {
	case lengthByte == 0x80:
		return TLV{}, false, fmt.Errorf("piv: TLV indefinite length (0x80) is not supported")
	case lengthByte <= 0x7F:
		length = int(lengthByte)
		lenFieldSize = 1
	case lengthByte == 0x81:
		if len(d.buf) < tagLen+2 {
			return TLV{}, false, fmt.Errorf("piv: TLV truncated in 1-byte length field")
		}
		length = int(d.buf[tagLen+1])
		lenFieldSize = 2
	case lengthByte == 0x82:
		if len(d.buf) < tagLen+3 {
			return TLV{}, false, fmt.Errorf("piv: TLV truncated in 2-byte length field")
		}
		length = int(d.buf[tagLen+1])<<8 | int(d.buf[tagLen+2])
		lenFieldSize = 3
	case lengthByte == 0x83:
		if len(d.buf) < tagLen+4 {
			return TLV{}, false, fmt.Errorf("piv: TLV truncated in 3-byte length field")
		}
		length = int(d.buf[tagLen+1])<<16 | int(d.buf[tagLen+2])<<8 | int(d.buf[tagLen+3])
		lenFieldSize = 4
	default:
		return TLV{}, false, fmt.Errorf("piv: TLV length byte 0x%02X exceeds 0x83", lengthByte)
	}

	headerLen := tagLen + lenFieldSize
	if len(d.buf) < headerLen+length {
		return TLV{}, false, fmt.Errorf("piv: TLV truncated in value: need %d bytes, have %d", length, len(d.buf)-headerLen)
	}

	value := d.buf[headerLen : headerLen+length]
	d.buf = d.buf[headerLen+length:]
	return TLV{Tag: tag, Value: value}, true, nil
}

// DecodeTLVMap decodes every triple in buf into a map keyed by the string
// form of the tag bytes. Order is not preserved; a duplicate tag overwrites
// the earlier occurrence.
func DecodeTLVMap(buf []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	d := NewTLVDecoder(buf)
	for {
		t, ok, err := d.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out[string(t.Tag)] = t.Value
	}
	return out, nil
}

// decodeExpectedTLV decodes the first triple in buf and requires its tag to
// equal want; any bytes after that triple are ignored, and a tag mismatch is
// an error.
func decodeExpectedTLV(buf []byte, want []byte) ([]byte, error) {
	d := NewTLVDecoder(buf)
	t, ok, err := d.Next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("piv: expected TLV tag %X, got empty buffer", want)
	}
	if !bytes.Equal(t.Tag, want) {
		return nil, fmt.Errorf("piv: expected TLV tag %X, got %X", want, t.Tag)
	}
	return t.Value, nil
}
