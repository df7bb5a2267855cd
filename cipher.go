package piv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/subtle"
	"fmt"
)

// blockCipherFor returns a fresh cipher.Block for the management-key
// variant on every call rather than caching one on a session (symmetric
// mutual-auth runs once per authentication, the cost is immaterial).
func blockCipherFor(mkt ManagementKeyType, key []byte) (cipher.Block, error) {
	if len(key) != mkt.KeyLen() {
		return nil, &InvalidArgumentError{Field: "key", Msg: fmt.Sprintf("management key type %s requires a %d-byte key, got %d", mkt, mkt.KeyLen(), len(key))}
	}
	switch mkt {
	case ManagementKeyTripleDES:
		// des.NewTripleDESCipher wants the 24-byte form (no K1==K3 folding).
		return des.NewTripleDESCipher(key)
	case ManagementKeyAES128, ManagementKeyAES192, ManagementKeyAES256:
		return aes.NewCipher(key)
	default:
		return nil, &InvalidArgumentError{Field: "managementKeyType", Msg: "unknown management key type"}
	}
}

// encryptECB encrypts exactly one cipher block under key using the
// management key type's cipher. Used only by the mutual-auth handshake,
// which operates strictly in single-block ECB mode.
func encryptECB(mkt ManagementKeyType, key, block []byte) ([]byte, error) {
	c, err := blockCipherFor(mkt, key)
	if err != nil {
		return nil, err
	}
	if len(block) != c.BlockSize() {
		return nil, fmt.Errorf("piv: ECB block must be %d bytes, got %d", c.BlockSize(), len(block))
	}
	out := make([]byte, len(block))
	c.Encrypt(out, block)
	return out, nil
}

// decryptECB is the inverse of encryptECB.
func decryptECB(mkt ManagementKeyType, key, block []byte) ([]byte, error) {
	c, err := blockCipherFor(mkt, key)
	if err != nil {
		return nil, err
	}
	if len(block) != c.BlockSize() {
		return nil, fmt.Errorf("piv: ECB block must be %d bytes, got %d", c.BlockSize(), len(block))
	}
	out := make([]byte, len(block))
	c.Decrypt(out, block)
	return out, nil
}

// constantTimeEqual reports whether a and b are equal, taking time
// independent of where they first differ. Used for the mutual-auth
// challenge-response comparison, never for anything that
// isn't a secret comparison.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
