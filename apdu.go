package piv

import (
	"context"
	"fmt"
)

// insGetResponse is the ISO 7816 GET RESPONSE instruction used to pull
// additional data after a 0x61XX status word.
const insGetResponse = 0xC0

// apdu is a single command APDU: header plus the optional data/Le bodies.
// Encoding follows short or extended form depending on the size of
// data/le.
type apdu struct {
	cla, ins, p1, p2 byte
	data             []byte
	le               int // -1 means "no Le byte"
}

func (a apdu) encode() []byte {
	hasData := len(a.data) > 0
	hasLe := a.le >= 0

	out := []byte{a.cla, a.ins, a.p1, a.p2}

	switch {
	case !hasData && !hasLe:
		return out
	case !hasData && hasLe:
		if a.le > 0xFF {
			return append(out, 0x00, byte(a.le>>8), byte(a.le))
		}
		return append(out, byte(a.le))
	default:
		// Short and extended bodies cannot be mixed: once either Lc or Le
		// needs the extended form, both fields use it. In the extended form
		// the leading 0x00 marker appears once (on Lc), and Le shrinks to
		// two bytes.
		extended := len(a.data) > 0xFF || (hasLe && a.le > 0xFF)
		if extended {
			out = append(out, 0x00, byte(len(a.data)>>8), byte(len(a.data)))
		} else {
			out = append(out, byte(len(a.data)))
		}
		out = append(out, a.data...)
		if hasLe {
			if extended {
				out = append(out, byte(a.le>>8), byte(a.le))
			} else {
				out = append(out, byte(a.le))
			}
		}
		return out
	}
}

// response is a parsed APDU response: the payload (status word stripped) and
// the 2-byte status word.
type response struct {
	data []byte
	sw   uint16
}

func parseResponse(raw []byte) (response, error) {
	if len(raw) < 2 {
		return response{}, fmt.Errorf("piv: response shorter than the 2-byte status word (%d bytes)", len(raw))
	}
	n := len(raw)
	sw := uint16(raw[n-2])<<8 | uint16(raw[n-1])
	return response{data: raw[:n-2], sw: sw}, nil
}

// transmit sends a single APDU over t and returns the parsed response,
// transparently absorbing 0x61XX "more data" chaining by issuing the
// necessary GET RESPONSE calls and concatenating their payloads; chained
// GET RESPONSE calls are sent before any other command.
func transmit(ctx context.Context, t Transport, op string, req apdu) (response, error) {
	raw, err := t.Exchange(ctx, req.encode())
	if err != nil {
		return response{}, &TransportError{Op: op, Err: err}
	}
	resp, err := parseResponse(raw)
	if err != nil {
		return response{}, &ProtocolError{Op: op, Msg: err.Error()}
	}

	var payload []byte
	payload = append(payload, resp.data...)

	for resp.sw&swMoreDataMask == swMoreData {
		// Le is SW2 verbatim; an Le byte of 0x00 means 256 on the wire.
		le := int(resp.sw & 0xFF)
		getResp := apdu{cla: 0x00, ins: insGetResponse, p1: 0x00, p2: 0x00, le: le}
		raw, err = t.Exchange(ctx, getResp.encode())
		if err != nil {
			return response{}, &TransportError{Op: op, Err: err}
		}
		resp, err = parseResponse(raw)
		if err != nil {
			return response{}, &ProtocolError{Op: op, Msg: err.Error()}
		}
		payload = append(payload, resp.data...)
	}

	return response{data: payload, sw: resp.sw}, nil
}
