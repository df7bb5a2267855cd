package piv

import "fmt"

// Slot identifies a numbered key-storage location on the token.
type Slot byte

// The fixed PIV slot enumeration. Slot9B is the symmetric management-key
// slot; SlotAttestation is attestation-only and cannot receive a moved key.
const (
	SlotAuthentication     Slot = 0x9A
	Slot9B                 Slot = 0x9B // management key
	SlotSignature          Slot = 0x9C
	SlotKeyManagement      Slot = 0x9D
	SlotCardAuthentication Slot = 0x9E
	SlotAttestation        Slot = 0xF9

	// Retired key-management slots 0x82-0x95.
	SlotRetired1  Slot = 0x82
	SlotRetired20 Slot = 0x95
)

// RetiredSlot returns the retired key-management slot numbered n (1-20),
// mapping onto the 0x82..0x95 range.
func RetiredSlot(n int) (Slot, error) {
	if n < 1 || n > 20 {
		return 0, &InvalidArgumentError{Field: "n", Msg: "retired slot index must be in [1,20]"}
	}
	return Slot(0x82 + n - 1), nil
}

func (s Slot) String() string {
	switch s {
	case SlotAuthentication:
		return "9A (PIV Authentication)"
	case Slot9B:
		return "9B (Management Key)"
	case SlotSignature:
		return "9C (Digital Signature)"
	case SlotKeyManagement:
		return "9D (Key Management)"
	case SlotCardAuthentication:
		return "9E (Card Authentication)"
	case SlotAttestation:
		return "F9 (Attestation)"
	default:
		if s >= SlotRetired1 && s <= SlotRetired20 {
			return fmt.Sprintf("%02X (Retired %d)", byte(s), int(s)-int(SlotRetired1)+1)
		}
		return fmt.Sprintf("%02X", byte(s))
	}
}

// dataObjectIDFor returns the fixed 3-byte data object identifier associated
// with a certificate-bearing slot.
func dataObjectIDFor(s Slot) ([]byte, error) {
	switch s {
	case SlotAuthentication:
		return []byte{0x5F, 0xC1, 0x05}, nil
	case SlotSignature:
		return []byte{0x5F, 0xC1, 0x0A}, nil
	case SlotKeyManagement:
		return []byte{0x5F, 0xC1, 0x0B}, nil
	case SlotCardAuthentication:
		return []byte{0x5F, 0xC1, 0x01}, nil
	case SlotAttestation:
		return []byte{0x5F, 0xC1, 0x21}, nil
	default:
		if s >= SlotRetired1 && s <= SlotRetired20 {
			// 0x5FC10D..0x5FC120 map onto retired slots 1..20 in order.
			base := 0x5FC10D
			id := base + (int(s) - int(SlotRetired1))
			return []byte{byte(id >> 16), byte(id >> 8), byte(id)}, nil
		}
		return nil, &InvalidArgumentError{Field: "slot", Msg: fmt.Sprintf("slot %s has no associated certificate data object", s)}
	}
}

// Well-known, non-slot-keyed data object IDs.
var (
	DataObjectCHUID        = []byte{0x5F, 0xC1, 0x02}
	DataObjectCapability   = []byte{0x5F, 0xC1, 0x07}
	DataObjectDiscovery    = []byte{0x7E}
	DataObjectKeyHistory   = []byte{0x5F, 0xC1, 0x0C}
	DataObjectPrintedInfo  = []byte{0x5F, 0xC1, 0x09}
	DataObjectFingerprints = []byte{0x5F, 0xC1, 0x03}
	DataObjectFacialImage  = []byte{0x5F, 0xC1, 0x08}
	DataObjectSecurity     = []byte{0x5F, 0xC1, 0x06}
)

// Algorithm enumerates every key/credential algorithm the PIV wire protocol
// recognizes.
type Algorithm byte

const (
	AlgorithmRSA1024   Algorithm = 0x06
	AlgorithmRSA2048   Algorithm = 0x07
	AlgorithmRSA3072   Algorithm = 0x05
	AlgorithmRSA4096   Algorithm = 0x16
	AlgorithmECCP256   Algorithm = 0x11
	AlgorithmECCP384   Algorithm = 0x14
	AlgorithmEd25519   Algorithm = 0xE0
	AlgorithmX25519    Algorithm = 0xE1
	AlgorithmTripleDES Algorithm = 0x03
	AlgorithmAES128    Algorithm = 0x08
	AlgorithmAES192    Algorithm = 0x0A
	AlgorithmAES256    Algorithm = 0x0C
	AlgorithmPin       Algorithm = 0x80
	AlgorithmNone      Algorithm = 0x00
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmRSA1024:
		return "RSA1024"
	case AlgorithmRSA2048:
		return "RSA2048"
	case AlgorithmRSA3072:
		return "RSA3072"
	case AlgorithmRSA4096:
		return "RSA4096"
	case AlgorithmECCP256:
		return "ECCP256"
	case AlgorithmECCP384:
		return "ECCP384"
	case AlgorithmEd25519:
		return "Ed25519"
	case AlgorithmX25519:
		return "X25519"
	case AlgorithmTripleDES:
		return "TripleDES"
	case AlgorithmAES128:
		return "AES128"
	case AlgorithmAES192:
		return "AES192"
	case AlgorithmAES256:
		return "AES256"
	case AlgorithmPin:
		return "PIN"
	default:
		return fmt.Sprintf("Algorithm(0x%02X)", byte(a))
	}
}

// KeyBits returns the key size in bits for algorithms that have one.
func (a Algorithm) KeyBits() int {
	switch a {
	case AlgorithmRSA1024:
		return 1024
	case AlgorithmRSA2048:
		return 2048
	case AlgorithmRSA3072:
		return 3072
	case AlgorithmRSA4096:
		return 4096
	case AlgorithmECCP256, AlgorithmEd25519, AlgorithmX25519:
		return 256
	case AlgorithmECCP384:
		return 384
	case AlgorithmTripleDES:
		return 192
	case AlgorithmAES128:
		return 128
	case AlgorithmAES192:
		return 192
	case AlgorithmAES256:
		return 256
	default:
		return 0
	}
}

func (a Algorithm) isRSA() bool {
	switch a {
	case AlgorithmRSA1024, AlgorithmRSA2048, AlgorithmRSA3072, AlgorithmRSA4096:
		return true
	}
	return false
}

func (a Algorithm) isNISTEC() bool {
	return a == AlgorithmECCP256 || a == AlgorithmECCP384
}

// rsaModulusBytes returns the modulus length in bytes for an RSA algorithm.
func (a Algorithm) rsaModulusBytes() int { return a.KeyBits() / 8 }

// eccCurveBytes returns the scalar/coordinate byte length for a NIST EC
// algorithm.
func (a Algorithm) eccCurveBytes() int {
	switch a {
	case AlgorithmECCP256:
		return 32
	case AlgorithmECCP384:
		return 48
	default:
		return 0
	}
}

// PinPolicy governs how often PIN verification is required to use a slot's
// key, set at key creation and immutable thereafter.
type PinPolicy byte

const (
	PinPolicyDefault     PinPolicy = 0x00
	PinPolicyNever       PinPolicy = 0x01
	PinPolicyOnce        PinPolicy = 0x02
	PinPolicyAlways      PinPolicy = 0x03
	PinPolicyMatchOnce   PinPolicy = 0x04
	PinPolicyMatchAlways PinPolicy = 0x05
)

func (p PinPolicy) String() string {
	switch p {
	case PinPolicyDefault:
		return "Default"
	case PinPolicyNever:
		return "Never"
	case PinPolicyOnce:
		return "Once"
	case PinPolicyAlways:
		return "Always"
	case PinPolicyMatchOnce:
		return "MatchOnce"
	case PinPolicyMatchAlways:
		return "MatchAlways"
	default:
		return fmt.Sprintf("PinPolicy(0x%02X)", byte(p))
	}
}

// TouchPolicy governs whether a physical touch is required to use a slot's
// key, set at key creation and immutable thereafter.
type TouchPolicy byte

const (
	TouchPolicyDefault TouchPolicy = 0x00
	TouchPolicyNever   TouchPolicy = 0x01
	TouchPolicyAlways  TouchPolicy = 0x02
	TouchPolicyCached  TouchPolicy = 0x03
)

func (t TouchPolicy) String() string {
	switch t {
	case TouchPolicyDefault:
		return "Default"
	case TouchPolicyNever:
		return "Never"
	case TouchPolicyAlways:
		return "Always"
	case TouchPolicyCached:
		return "Cached"
	default:
		return fmt.Sprintf("TouchPolicy(0x%02X)", byte(t))
	}
}

// ManagementKeyType identifies the symmetric algorithm and key/block length
// of the management key.
type ManagementKeyType byte

const (
	ManagementKeyTripleDES ManagementKeyType = 0x03
	ManagementKeyAES128    ManagementKeyType = 0x08
	ManagementKeyAES192    ManagementKeyType = 0x0A
	ManagementKeyAES256    ManagementKeyType = 0x0C
)

// KeyLen returns the management key's required key length in bytes.
func (m ManagementKeyType) KeyLen() int {
	switch m {
	case ManagementKeyTripleDES:
		return 24
	case ManagementKeyAES128:
		return 16
	case ManagementKeyAES192:
		return 24
	case ManagementKeyAES256:
		return 32
	default:
		return 0
	}
}

// BlockLen returns the management key's cipher block length in bytes.
func (m ManagementKeyType) BlockLen() int {
	switch m {
	case ManagementKeyTripleDES:
		return 8
	case ManagementKeyAES128, ManagementKeyAES192, ManagementKeyAES256:
		return 16
	default:
		return 0
	}
}

func (m ManagementKeyType) String() string {
	switch m {
	case ManagementKeyTripleDES:
		return "TripleDES"
	case ManagementKeyAES128:
		return "AES128"
	case ManagementKeyAES192:
		return "AES192"
	case ManagementKeyAES256:
		return "AES256"
	default:
		return fmt.Sprintf("ManagementKeyType(0x%02X)", byte(m))
	}
}

// algorithmByte returns the GENERAL AUTHENTICATE P1 algorithm byte for a
// management key type. The wire value happens to equal the ManagementKeyType
// byte itself (both are drawn from the same PIV algorithm enumeration), but
// this indirection keeps the two concepts distinct in the API.
func (m ManagementKeyType) algorithmByte() byte { return byte(m) }

// PublicKey is the host-side representation of a key returned by GENERATE
// ASYMMETRIC KEY PAIR or GET METADATA.
type PublicKey struct {
	Algorithm Algorithm

	// RSA
	Modulus  []byte // big-endian, unpadded
	Exponent []byte // always 3 bytes, 0x01 0x00 0x01

	// EC (NIST P-256/P-384) and Curve25519 (Ed25519/X25519)
	X []byte // EC X coordinate, or the 32-byte Curve25519 point
	Y []byte // EC Y coordinate; empty for Curve25519
}

// rsaExponent is the only public exponent PIV devices support.
var rsaExponent = []byte{0x01, 0x00, 0x01}

// PrivateKey is the host-side representation of key material to be imported
// via IMPORT KEY. Exactly one of the field groups is populated,
// selected by Algorithm.
type PrivateKey struct {
	Algorithm Algorithm

	// RSA CRT components, big-endian; each may be shorter than half the
	// modulus length and is zero-padded to it by ImportKey.
	RSAPrime1, RSAPrime2       *Secret // P, Q
	RSAExponent1, RSAExponent2 *Secret // DP, DQ
	RSACoefficient             *Secret // InvQ

	// NIST EC scalar, big-endian; may be shorter than the curve's byte
	// length and is zero-padded to it by ImportKey.
	ECPrivateValue *Secret

	// Curve25519 (Ed25519 seed or X25519 scalar), always 32 bytes.
	Curve25519Seed *Secret
}

// Wipe zeroes every secret component held by the key. Safe to call more than
// once.
func (k *PrivateKey) Wipe() {
	if k == nil {
		return
	}
	k.RSAPrime1.Wipe()
	k.RSAPrime2.Wipe()
	k.RSAExponent1.Wipe()
	k.RSAExponent2.Wipe()
	k.RSACoefficient.Wipe()
	k.ECPrivateValue.Wipe()
	k.Curve25519Seed.Wipe()
}

// SlotMetadata is the read-only view returned by GetMetadata for an
// asymmetric slot.
type SlotMetadata struct {
	Algorithm        Algorithm
	PinPolicy        PinPolicy
	TouchPolicy      TouchPolicy
	GeneratedOnDevice bool
	PublicKey        *PublicKey // nil when the response has no public key or it does not parse
	IsDefault        bool
}

// RetryStatus is the read-only view returned for the PIN or PUK slot.
type RetryStatus struct {
	IsDefault        bool
	TotalRetries     int
	RetriesRemaining int
}

// Blocked reports whether the credential has no attempts left.
func (r RetryStatus) Blocked() bool { return r.RetriesRemaining == 0 }
