// Package pivtest provides an in-memory virtual PIV applet implementing
// enough of the wire protocol for piv's unit tests to drive without a real
// token.
package pivtest

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"fmt"
	"io"
)

// defaultManagementKey is the well-known factory 3DES management key.
var defaultManagementKey = bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, 3)

var pivAID = []byte{0xA0, 0x00, 0x00, 0x03, 0x08, 0x00, 0x00, 0x10, 0x00, 0x01, 0x00}

// Applet is a minimal, stateful virtual PIV card: it understands SELECT,
// GET VERSION, VERIFY/CHANGE/UNBLOCK PIN and PUK, GENERAL AUTHENTICATE
// management-key mutual auth, GET/PUT DATA, and GET METADATA for the PIN,
// PUK, and 0x9B slots. It exists to drive piv's unit tests end to end
// through a real Transport, not to be a complete card implementation.
type Applet struct {
	Version []byte
	Serial  uint32

	mgmtKeyType   byte // 0x03 (3DES), 0x08/0x0A/0x0C (AES)
	mgmtKey       []byte
	selected      bool
	authChallenge []byte // card's pending plaintext witness during a mutual-auth exchange

	pin          string
	pinRetries   int
	pinTotal     int
	puk          string
	pukRetries   int
	pukTotal     int

	dataObjects map[string][]byte // keyed by hex of the object ID

	Rand io.Reader
}

// NewApplet returns a freshly "factory reset" applet: default management
// key (3DES), PIN "123456", PUK "12345678", 10 retries each.
func NewApplet() *Applet {
	return &Applet{
		Version:     []byte{0x05, 0x03, 0x01},
		Serial:      10753541,
		mgmtKeyType: 0x03,
		mgmtKey:     append([]byte(nil), defaultManagementKey...),
		pin:         "123456",
		pinRetries:  10,
		pinTotal:    10,
		puk:         "12345678",
		pukRetries:  10,
		pukTotal:    10,
		dataObjects: make(map[string][]byte),
		Rand:        rand.Reader,
	}
}

// Exchange implements piv.Transport against the virtual applet.
func (a *Applet) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	if len(request) < 4 {
		return sw(0x6700), nil
	}
	ins := request[1]
	p1 := request[2]
	p2 := request[3]
	data, _ := splitLcData(request[4:])

	switch ins {
	case 0xA4: // SELECT
		if !bytes.Equal(data, pivAID) {
			return sw(0x6A82), nil
		}
		a.selected = true
		return sw(0x9000), nil
	case 0xFD: // GET VERSION
		return withSW(a.Version, 0x9000), nil
	case 0xF8: // GET SERIAL
		return withSW([]byte{byte(a.Serial >> 24), byte(a.Serial >> 16), byte(a.Serial >> 8), byte(a.Serial)}, 0x9000), nil
	case 0x20: // VERIFY
		return a.verify(p2, data), nil
	case 0x24: // CHANGE REFERENCE DATA
		return a.change(p2, data), nil
	case 0x2C: // RESET RETRY COUNTER (unblock)
		return a.unblock(data), nil
	case 0x87: // GENERAL AUTHENTICATE
		return a.generalAuthenticate(p1, p2, data), nil
	case 0xCB: // GET DATA
		return a.getData(data), nil
	case 0xDB: // PUT DATA
		return a.putData(data), nil
	case 0xF7: // GET METADATA
		return a.getMetadata(p2), nil
	default:
		return sw(0x6D00), nil
	}
}

func (a *Applet) verify(p2 byte, data []byte) []byte {
	want, retries, total := a.credentialFor(p2)
	if len(data) == 0 {
		if *retries == 0 {
			return sw(0x6983)
		}
		return sw(0x9000) // non-consuming probe on this virtual applet
	}
	if *retries == 0 {
		return sw(0x6983)
	}
	if !bytes.Equal(data, padCredential(want)) {
		*retries--
		if *retries <= 0 {
			*retries = 0
			return sw(0x6983)
		}
		return sw(uint16(0x63C0 | *retries))
	}
	*retries = total
	return sw(0x9000)
}

func (a *Applet) change(p2 byte, data []byte) []byte {
	if len(data) != 16 {
		return sw(0x6700)
	}
	want, retries, total := a.credentialFor(p2)
	if *retries == 0 {
		return sw(0x6983)
	}
	if !bytes.Equal(data[:8], padCredential(want)) {
		*retries--
		if *retries <= 0 {
			*retries = 0
			return sw(0x6983)
		}
		return sw(uint16(0x63C0 | *retries))
	}
	newVal := unpadCredential(data[8:])
	if p2 == 0x80 {
		a.pin = newVal
	} else {
		a.puk = newVal
	}
	*retries = total
	return sw(0x9000)
}

func (a *Applet) unblock(data []byte) []byte {
	if len(data) != 16 {
		return sw(0x6700)
	}
	if a.pukRetries == 0 {
		return sw(0x6983)
	}
	if !bytes.Equal(data[:8], padCredential(a.puk)) {
		a.pukRetries--
		if a.pukRetries <= 0 {
			a.pukRetries = 0
			return sw(0x6983)
		}
		return sw(uint16(0x63C0 | a.pukRetries))
	}
	a.pin = unpadCredential(data[8:])
	a.pinRetries = a.pinTotal
	a.pukRetries = a.pukTotal
	return sw(0x9000)
}

func (a *Applet) credentialFor(p2 byte) (value string, retries *int, total int) {
	if p2 == 0x80 {
		return a.pin, &a.pinRetries, a.pinTotal
	}
	return a.puk, &a.pukRetries, a.pukTotal
}

func padCredential(s string) []byte {
	out := make([]byte, 8)
	copy(out, s)
	for i := len(s); i < 8; i++ {
		out[i] = 0xFF
	}
	return out
}

func unpadCredential(b []byte) string {
	i := bytes.IndexByte(b, 0xFF)
	if i < 0 {
		i = len(b)
	}
	return string(b[:i])
}

func (a *Applet) generalAuthenticate(p1, p2 byte, data []byte) []byte {
	if p2 != 0x9B {
		return sw(0x6A86) // this test double only models the management-key exchange
	}
	template, err := decodeExpectedTLV(data, []byte{0x7C})
	if err != nil {
		return sw(0x6700)
	}
	m, err := decodeTLVMap(template)
	if err != nil {
		return sw(0x6700)
	}
	if _, wantsWitness := m[string([]byte{0x80})]; wantsWitness && len(m[string([]byte{0x80})]) == 0 {
		blockLen := blockLenFor(a.mgmtKeyType)
		witness := make([]byte, blockLen)
		_, _ = io.ReadFull(a.Rand, witness)
		a.authChallenge = witness
		enc, err := encryptECB(a.mgmtKeyType, a.mgmtKey, witness)
		if err != nil {
			return sw(0x6A80)
		}
		inner := encodeTLV([]byte{0x80}, enc)
		return withSW(encodeTLV([]byte{0x7C}, inner), 0x9000)
	}

	witnessBack := m[string([]byte{0x80})]
	challenge := m[string([]byte{0x81})]
	if !bytes.Equal(witnessBack, a.authChallenge) {
		return sw(0x6982)
	}
	if len(challenge) != blockLenFor(a.mgmtKeyType) {
		return sw(0x6700)
	}
	encResp, err := encryptECB(a.mgmtKeyType, a.mgmtKey, challenge)
	if err != nil {
		return sw(0x6A80)
	}
	inner := encodeTLV([]byte{0x82}, encResp)
	return withSW(encodeTLV([]byte{0x7C}, inner), 0x9000)
}

func (a *Applet) getData(data []byte) []byte {
	id, err := decodeExpectedTLV(data, []byte{0x5C})
	if err != nil {
		return sw(0x6700)
	}
	obj, ok := a.dataObjects[fmt.Sprintf("%X", id)]
	if !ok {
		return sw(0x6A82)
	}
	return withSW(obj, 0x9000)
}

func (a *Applet) putData(data []byte) []byte {
	d := newTLVDecoder(data)
	idTLV, ok, err := d.next()
	if err != nil || !ok {
		return sw(0x6700)
	}
	id := idTLV.value
	wrapped := d.buf
	key := fmt.Sprintf("%X", id)
	if len(wrapped) <= 2 {
		delete(a.dataObjects, key)
	} else {
		a.dataObjects[key] = append([]byte(nil), wrapped...)
	}
	return sw(0x9000)
}

func (a *Applet) getMetadata(p2 byte) []byte {
	switch p2 {
	case 0x80:
		return withSW(encodeTLV([]byte{0x06}, []byte{byte(a.pinTotal), byte(a.pinRetries)}), 0x9000)
	case 0x81:
		return withSW(encodeTLV([]byte{0x06}, []byte{byte(a.pukTotal), byte(a.pukRetries)}), 0x9000)
	case 0x9B:
		return withSW(encodeTLV([]byte{0x01}, []byte{a.mgmtKeyType}), 0x9000)
	case 0x96:
		return sw(0x6A88) // no biometric enrollment modeled
	default:
		return sw(0x6A88)
	}
}

func blockLenFor(mkt byte) int {
	if mkt == 0x03 {
		return 8
	}
	return 16
}

func encryptECB(mkt byte, key, block []byte) ([]byte, error) {
	c, err := blockCipherFor(mkt, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(block))
	c.Encrypt(out, block)
	return out, nil
}

func decryptECB(mkt byte, key, block []byte) ([]byte, error) {
	c, err := blockCipherFor(mkt, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(block))
	c.Decrypt(out, block)
	return out, nil
}

func blockCipherFor(mkt byte, key []byte) (cipher.Block, error) {
	if mkt == 0x03 {
		return des.NewTripleDESCipher(key)
	}
	return aes.NewCipher(key)
}

func sw(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

func withSW(data []byte, v uint16) []byte {
	return append(append([]byte(nil), data...), byte(v>>8), byte(v))
}

// splitLcData strips the Lc length prefix from the APDU body, handling the
// short and extended forms; it does not need to reproduce Le handling
// because the applet always returns its full response in one shot (no
// chaining is modeled).
func splitLcData(b []byte) (data []byte, rest []byte) {
	if len(b) == 0 {
		return nil, nil
	}
	if b[0] != 0x00 {
		n := int(b[0])
		if len(b) < 1+n {
			return nil, nil
		}
		return b[1 : 1+n], b[1+n:]
	}
	if len(b) < 3 {
		return nil, nil
	}
	n := int(b[1])<<8 | int(b[2])
	if len(b) < 3+n {
		return nil, nil
	}
	return b[3 : 3+n], b[3+n:]
}
