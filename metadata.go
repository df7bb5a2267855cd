package piv

import "context"

const insGetMetadata = 0xF7

// Tags inside a GET METADATA response TLV map.
const (
	tagMetaAlgorithm = 0x01
	tagMetaPolicy    = 0x02
	tagMetaOrigin    = 0x03
	tagMetaPublicKey = 0x04
	tagMetaIsDefault = 0x05
	tagMetaRetries   = 0x06
)

// pseudoSlotBio is the vendor pseudo-slot queried to learn whether
// biometric (fingerprint) enrollment is present before a reset.
const pseudoSlotBio Slot = 0x96

const (
	originGenerated = 0x01
	originImported  = 0x02
)

// getSlotMetadataRaw issues GET METADATA for slot and returns the decoded
// TLV map; an empty slot surfaces as a typed NotFoundError.
func getSlotMetadataRaw(ctx context.Context, t Transport, slot Slot) (map[string][]byte, error) {
	resp, err := transmit(ctx, t, "get metadata", apdu{
		cla: 0x00, ins: insGetMetadata, p1: 0x00, p2: byte(slot), le: 0,
	})
	if err != nil {
		return nil, err
	}
	if err := statusError("get metadata", slot, resp.sw); err != nil {
		return nil, err
	}
	m, err := DecodeTLVMap(resp.data)
	if err != nil {
		return nil, &ProtocolError{Op: "get metadata", Msg: err.Error()}
	}
	return m, nil
}

// GetMetadata returns slot's read-only metadata. A nil *SlotMetadata with
// a nil error is never returned; an empty slot surfaces as a
// *NotFoundError.
func (s *Session) GetMetadata(ctx context.Context, slot Slot) (*SlotMetadata, error) {
	m, err := getSlotMetadataRaw(ctx, s, slot)
	if err != nil {
		return nil, err
	}

	md := &SlotMetadata{}
	if alg, ok := m[string([]byte{tagMetaAlgorithm})]; ok && len(alg) == 1 {
		md.Algorithm = Algorithm(alg[0])
	}
	if policy, ok := m[string([]byte{tagMetaPolicy})]; ok && len(policy) == 2 {
		md.PinPolicy = PinPolicy(policy[0])
		md.TouchPolicy = TouchPolicy(policy[1])
	}
	if origin, ok := m[string([]byte{tagMetaOrigin})]; ok && len(origin) == 1 {
		md.GeneratedOnDevice = origin[0] == originGenerated
	}
	if isDefault, ok := m[string([]byte{tagMetaIsDefault})]; ok && len(isDefault) == 1 {
		md.IsDefault = isDefault[0] != 0x00
	}
	if pubTLV, ok := m[string([]byte{tagMetaPublicKey})]; ok {
		pk, err := parsePublicKeyTemplate(md.Algorithm, pubTLV)
		if err == nil {
			md.PublicKey = pk
		}
	}
	return md, nil
}

// retryStatusFromMetadata extracts a RetryStatus from a decoded GET
// METADATA map for the PIN or PUK pseudo-slot (tag 0x06 retry pair).
func retryStatusFromMetadata(m map[string][]byte) (RetryStatus, bool) {
	retries, ok := m[string([]byte{tagMetaRetries})]
	if !ok || len(retries) != 2 {
		return RetryStatus{}, false
	}
	rs := RetryStatus{TotalRetries: int(retries[0]), RetriesRemaining: int(retries[1])}
	if isDefault, ok := m[string([]byte{tagMetaIsDefault})]; ok && len(isDefault) == 1 {
		rs.IsDefault = isDefault[0] != 0x00
	}
	return rs, true
}

// managementKeyTypeFromMetadata extracts a ManagementKeyType from a decoded
// GET METADATA map for slot 0x9B (tag 0x01).
func managementKeyTypeFromMetadata(m map[string][]byte) (ManagementKeyType, bool) {
	b, ok := m[string([]byte{tagMetaAlgorithm})]
	if !ok || len(b) != 1 {
		return 0, false
	}
	switch ManagementKeyType(b[0]) {
	case ManagementKeyTripleDES, ManagementKeyAES128, ManagementKeyAES192, ManagementKeyAES256:
		return ManagementKeyType(b[0]), true
	default:
		return 0, false
	}
}

// bioEnrollmentPresent reports whether the device has a biometric
// (fingerprint) enrollment: an SW
// indicating "not supported" is treated as absent.
func bioEnrollmentPresent(ctx context.Context, s *Session) (bool, error) {
	m, err := getSlotMetadataRaw(ctx, s, pseudoSlotBio)
	if err != nil {
		if isNotSupported(err) || isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if isDefault, ok := m[string([]byte{tagMetaIsDefault})]; ok && len(isDefault) == 1 {
		return isDefault[0] != 0x00, nil
	}
	return len(m) > 0, nil
}
