package piv

import "context"

const (
	insGetData = 0xCB
	insPutData = 0xDB

	tagGetDataTemplate = 0x5C // 1-byte "tag list" wrapper for GET DATA's P1/P2=0x3FFF form
	tagPutDataTemplate = 0x5C
	tagPutDataContent  = 0x53
)

// GetDataObject reads the data object identified by objectID (a 1-3 byte
// BER tag, typically one of the DataObject* constants), per the generic
// GET DATA command. The returned bytes are the content of the 0x53 wrapper
// with the wrapper itself stripped; callers that want certificate semantics
// should use ReadCertificate instead.
func (s *Session) GetDataObject(ctx context.Context, objectID []byte) ([]byte, error) {
	body := EncodeTLV([]byte{tagGetDataTemplate}, objectID)
	resp, err := transmit(ctx, s, "get data object", apdu{
		cla: 0x00, ins: insGetData, p1: 0x3F, p2: 0xFF, data: body, le: 0,
	})
	if err != nil {
		return nil, err
	}
	if err := statusError("get data object", 0, resp.sw); err != nil {
		return nil, err
	}
	content, err := decodeExpectedTLV(resp.data, []byte{tagPutDataContent})
	if err != nil {
		return nil, &ProtocolError{Op: "get data object", Msg: err.Error()}
	}
	return content, nil
}

// PutDataObject writes content (already 0x53-wrapped; WriteCertificate
// builds the certificate form) to objectID via the generic PUT DATA
// command. Requires management-key authentication. A zero-length content
// wrapper deletes the object.
func (s *Session) PutDataObject(ctx context.Context, objectID []byte, wrapped []byte) error {
	if !s.mgmtAuthenticated {
		return &AuthenticationRequiredError{Op: "put data object"}
	}
	body := EncodeTLV([]byte{tagPutDataTemplate}, objectID)
	body = append(body, wrapped...)
	resp, err := transmit(ctx, s, "put data object", apdu{
		cla: 0x00, ins: insPutData, p1: 0x3F, p2: 0xFF, data: body, le: -1,
	})
	if err != nil {
		return err
	}
	return statusError("put data object", 0, resp.sw)
}
