package piv

import (
	"bytes"
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"
)

// Tags used inside the 0x7F49 public-key template and the IMPORT KEY body.
const (
	tagPublicKeyTemplate = 0x7F49 // encoded as two bytes, 0x7F 0x49

	tagRSAModulus  = 0x81
	tagRSAExponent = 0x82
	tagECPoint     = 0x86

	tagRSAPrime1      = 0x01
	tagRSAPrime2      = 0x02
	tagRSAExponent1   = 0x03
	tagRSAExponent2   = 0x04
	tagRSACoefficient = 0x05
	tagECPrivate      = 0x06
	tagEd25519Seed    = 0x07
	tagX25519Scalar   = 0x08

	tagPinPolicy   = 0xAA
	tagTouchPolicy = 0xAB
)

func encodeTag2(hi, lo byte) []byte { return []byte{hi, lo} }

// parsePublicKeyTemplate decodes a 0x7F49 public-key template into a
// PublicKey.
func parsePublicKeyTemplate(alg Algorithm, buf []byte) (*PublicKey, error) {
	inner, err := decodeExpectedTLV(buf, encodeTag2(0x7F, 0x49))
	if err != nil {
		return nil, &ProtocolError{Op: "parse public key template", Msg: err.Error()}
	}
	m, err := DecodeTLVMap(inner)
	if err != nil {
		return nil, &ProtocolError{Op: "parse public key template", Msg: err.Error()}
	}

	pk := &PublicKey{Algorithm: alg}
	switch {
	case alg.isRSA():
		mod, ok := m[string([]byte{tagRSAModulus})]
		if !ok {
			return nil, &ProtocolError{Op: "parse public key template", Msg: "missing RSA modulus tag 0x81"}
		}
		exp, ok := m[string([]byte{tagRSAExponent})]
		if !ok {
			return nil, &ProtocolError{Op: "parse public key template", Msg: "missing RSA exponent tag 0x82"}
		}
		if !bytes.Equal(exp, rsaExponent) {
			return nil, &ProtocolError{Op: "parse public key template", Msg: fmt.Sprintf("RSA exponent is %X, want 010001", exp)}
		}
		pk.Modulus = append([]byte(nil), mod...)
		pk.Exponent = append([]byte(nil), exp...)
	case alg.isNISTEC():
		point, ok := m[string([]byte{tagECPoint})]
		if !ok {
			return nil, &ProtocolError{Op: "parse public key template", Msg: "missing EC point tag 0x86"}
		}
		n := alg.eccCurveBytes()
		if len(point) != 1+2*n || point[0] != 0x04 {
			return nil, &ProtocolError{Op: "parse public key template", Msg: "EC point is not uncompressed form"}
		}
		pk.X = append([]byte(nil), point[1:1+n]...)
		pk.Y = append([]byte(nil), point[1+n:1+2*n]...)
	case alg == AlgorithmEd25519 || alg == AlgorithmX25519:
		point, ok := m[string([]byte{tagECPoint})]
		if !ok || len(point) != 32 {
			return nil, &ProtocolError{Op: "parse public key template", Msg: "missing or malformed Curve25519 point tag 0x86"}
		}
		pk.X = append([]byte(nil), point...)
	default:
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: fmt.Sprintf("%s has no public key template", alg)}
	}
	return pk, nil
}

// rsaCRTToTLV encodes RSA CRT private-key parts into the five IMPORT KEY
// TLVs, each zero-padded to half the modulus length. The TLVs are
// appended directly into one output buffer so no intermediate copy of the
// key parts is left behind unwiped; the caller owns wiping the result.
func rsaCRTToTLV(alg Algorithm, key *PrivateKey) ([]byte, error) {
	half := alg.rsaModulusBytes() / 2
	parts := []struct {
		tag byte
		s   *Secret
	}{
		{tagRSAPrime1, key.RSAPrime1},
		{tagRSAPrime2, key.RSAPrime2},
		{tagRSAExponent1, key.RSAExponent1},
		{tagRSAExponent2, key.RSAExponent2},
		{tagRSACoefficient, key.RSACoefficient},
	}
	out := make([]byte, 0, 5*(1+len(encodeLength(half))+half))
	for _, p := range parts {
		padded, err := leftZeroPad(p.s.Bytes(), half)
		if err != nil {
			wipeBytes(out)
			return nil, err
		}
		out = append(out, p.tag)
		out = append(out, encodeLength(half)...)
		out = append(out, padded...)
		wipeBytes(padded)
	}
	return out, nil
}

// leftZeroPad left-pads b with zeros to exactly n bytes, rejecting input
// already longer than n.
func leftZeroPad(b []byte, n int) ([]byte, error) {
	if len(b) > n {
		return nil, &InvalidArgumentError{Field: "key part", Msg: fmt.Sprintf("is %d bytes, exceeds the %d-byte field", len(b), n)}
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out, nil
}

// fitToLength implements the RSA data-preparation rule: left-pad with
// zeros if shorter than want, left-truncate (drop leading bytes) if longer.
func fitToLength(b []byte, want int) []byte {
	if len(b) == want {
		return b
	}
	if len(b) < want {
		out := make([]byte, want)
		copy(out[want-len(b):], b)
		return out
	}
	return b[len(b)-want:]
}

// fitECDigest implements the NIST EC sign rule: truncate from the left if
// longer than n, else right-pad with zeros.
func fitECDigest(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	if len(b) == n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// toRSAPublicKey converts a decoded PublicKey into an *rsa.PublicKey.
func (pk *PublicKey) toRSAPublicKey() (*rsa.PublicKey, error) {
	if !pk.Algorithm.isRSA() {
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: "not an RSA key"}
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(pk.Modulus),
		E: int(new(big.Int).SetBytes(pk.Exponent).Int64()),
	}, nil
}

// toECDSAPublicKey converts a decoded PublicKey into an *ecdsa.PublicKey.
func (pk *PublicKey) toECDSAPublicKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch pk.Algorithm {
	case AlgorithmECCP256:
		curve = elliptic.P256()
	case AlgorithmECCP384:
		curve = elliptic.P384()
	default:
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: "not a NIST EC key"}
	}
	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(pk.X),
		Y:     new(big.Int).SetBytes(pk.Y),
	}, nil
}

// toEd25519PublicKey converts a decoded PublicKey into an ed25519.PublicKey.
func (pk *PublicKey) toEd25519PublicKey() (ed25519.PublicKey, error) {
	if pk.Algorithm != AlgorithmEd25519 {
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: "not an Ed25519 key"}
	}
	return ed25519.PublicKey(pk.X), nil
}

// toX25519PublicKey converts a decoded PublicKey into an *ecdh.PublicKey.
func (pk *PublicKey) toX25519PublicKey() (*ecdh.PublicKey, error) {
	if pk.Algorithm != AlgorithmX25519 {
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: "not an X25519 key"}
	}
	return ecdh.X25519().NewPublicKey(pk.X)
}

// CryptoPublicKey converts pk into the matching standard-library key type:
// *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey, or (for X25519)
// *ecdh.PublicKey.
func (pk *PublicKey) CryptoPublicKey() (crypto.PublicKey, error) {
	switch {
	case pk.Algorithm.isRSA():
		return pk.toRSAPublicKey()
	case pk.Algorithm.isNISTEC():
		return pk.toECDSAPublicKey()
	case pk.Algorithm == AlgorithmEd25519:
		return pk.toEd25519PublicKey()
	case pk.Algorithm == AlgorithmX25519:
		return pk.toX25519PublicKey()
	default:
		return nil, &InvalidArgumentError{Field: "algorithm", Msg: fmt.Sprintf("%s is not an asymmetric public key algorithm", pk.Algorithm)}
	}
}

// MarshalSPKI returns pk encoded as SubjectPublicKeyInfo DER, the form
// certificate-request tooling expects.
func (pk *PublicKey) MarshalSPKI() ([]byte, error) {
	key, err := pk.CryptoPublicKey()
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, &InvalidArgumentError{Field: "publicKey", Msg: err.Error()}
	}
	return der, nil
}

// NewRSAPrivateKey builds a PrivateKey ready for ImportKey from a standard
// library RSA key, validating that the public exponent is 0x010001 (the
// device never receives the exponent; it is fixed in firmware, so any
// other value would silently produce a key the caller cannot actually
// use).
func NewRSAPrivateKey(priv *rsa.PrivateKey) (*PrivateKey, error) {
	if priv.PublicKey.E != 0x10001 {
		return nil, &InvalidArgumentError{Field: "exponent", Msg: "PIV requires public exponent 0x010001"}
	}
	priv.Precompute()
	var alg Algorithm
	switch priv.N.BitLen() {
	case 1024:
		alg = AlgorithmRSA1024
	case 2048:
		alg = AlgorithmRSA2048
	case 3072:
		alg = AlgorithmRSA3072
	case 4096:
		alg = AlgorithmRSA4096
	default:
		return nil, &InvalidArgumentError{Field: "key size", Msg: "RSA modulus must be 1024, 2048, 3072, or 4096 bits"}
	}
	return &PrivateKey{
		Algorithm:      alg,
		RSAPrime1:      NewSecret(priv.Primes[0].Bytes()),
		RSAPrime2:      NewSecret(priv.Primes[1].Bytes()),
		RSAExponent1:   NewSecret(priv.Precomputed.Dp.Bytes()),
		RSAExponent2:   NewSecret(priv.Precomputed.Dq.Bytes()),
		RSACoefficient: NewSecret(priv.Precomputed.Qinv.Bytes()),
	}, nil
}

// NewECPrivateKey builds a PrivateKey ready for ImportKey from a standard
// library P-256 or P-384 key.
func NewECPrivateKey(priv *ecdsa.PrivateKey) (*PrivateKey, error) {
	var alg Algorithm
	switch priv.Curve {
	case elliptic.P256():
		alg = AlgorithmECCP256
	case elliptic.P384():
		alg = AlgorithmECCP384
	default:
		return nil, &InvalidArgumentError{Field: "curve", Msg: "only P-256 and P-384 keys can be imported"}
	}
	return &PrivateKey{Algorithm: alg, ECPrivateValue: NewSecret(priv.D.Bytes())}, nil
}

// NewEd25519PrivateKey builds a PrivateKey ready for ImportKey from a
// standard library Ed25519 key; the device receives only the 32-byte seed.
func NewEd25519PrivateKey(priv ed25519.PrivateKey) (*PrivateKey, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, &InvalidArgumentError{Field: "key", Msg: "malformed Ed25519 private key"}
	}
	return &PrivateKey{Algorithm: AlgorithmEd25519, Curve25519Seed: NewSecret(priv.Seed())}, nil
}

// NewX25519PrivateKey builds a PrivateKey ready for ImportKey from a
// standard library X25519 key.
func NewX25519PrivateKey(priv *ecdh.PrivateKey) (*PrivateKey, error) {
	if priv.Curve() != ecdh.X25519() {
		return nil, &InvalidArgumentError{Field: "curve", Msg: "not an X25519 key"}
	}
	return &PrivateKey{Algorithm: AlgorithmX25519, Curve25519Seed: NewSecret(priv.Bytes())}, nil
}

// NewPrivateKeyFromPKCS8 parses a PKCS#8 DER blob and extracts the
// parameters IMPORT KEY needs, dispatching on the parsed key type.
func NewPrivateKeyFromPKCS8(der []byte) (*PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, &InvalidArgumentError{Field: "der", Msg: err.Error()}
	}
	switch key := parsed.(type) {
	case *rsa.PrivateKey:
		return NewRSAPrivateKey(key)
	case *ecdsa.PrivateKey:
		return NewECPrivateKey(key)
	case ed25519.PrivateKey:
		return NewEd25519PrivateKey(key)
	case *ecdh.PrivateKey:
		return NewX25519PrivateKey(key)
	default:
		return nil, &InvalidArgumentError{Field: "der", Msg: fmt.Sprintf("unsupported PKCS#8 key type %T", parsed)}
	}
}
