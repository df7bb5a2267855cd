package piv

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
)

// Tags inside the certificate data-object wrapper.
const (
	tagCertWrapper    = 0x53
	tagCertDER        = 0x70
	tagCertCompressed = 0x71
	tagCertLRC        = 0xFE
)

// compressionThreshold is the DER length above which WriteCertificate
// gzip-compresses automatically.
const compressionThreshold = 1856

// WriteCertificateOptions configures WriteCertificate's compression
// behavior.
type WriteCertificateOptions struct {
	// ForceNoCompress skips automatic gzip compression even when der
	// exceeds compressionThreshold.
	ForceNoCompress bool
}

// WriteCertificate stores a DER-encoded X.509 certificate in the data
// object associated with slot. DER is compressed with gzip
// automatically when it exceeds 1856 bytes unless opts.ForceNoCompress is
// set. Requires management-key authentication.
func (s *Session) WriteCertificate(ctx context.Context, slot Slot, der []byte, opts WriteCertificateOptions) error {
	objectID, err := dataObjectIDFor(slot)
	if err != nil {
		return err
	}

	payload := der
	compressed := false
	if !opts.ForceNoCompress && len(der) > compressionThreshold {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(der); err != nil {
			return &ProtocolError{Op: "write certificate", Msg: err.Error()}
		}
		if err := w.Close(); err != nil {
			return &ProtocolError{Op: "write certificate", Msg: err.Error()}
		}
		payload = buf.Bytes()
		compressed = true
	}

	compressedFlag := byte(0x00)
	if compressed {
		compressedFlag = 0x01
	}
	inner := EncodeTLV([]byte{tagCertDER}, payload)
	inner = append(inner, EncodeTLV([]byte{tagCertCompressed}, []byte{compressedFlag})...)
	inner = append(inner, EncodeTLV([]byte{tagCertLRC}, nil)...)
	wrapped := EncodeTLV([]byte{tagCertWrapper}, inner)

	return s.PutDataObject(ctx, objectID, wrapped)
}

// ReadCertificate reads and decodes the DER-encoded X.509 certificate
// stored in slot's data object, transparently decompressing if
// the stored object indicates gzip compression.
func (s *Session) ReadCertificate(ctx context.Context, slot Slot) ([]byte, error) {
	objectID, err := dataObjectIDFor(slot)
	if err != nil {
		return nil, err
	}
	wrapped, err := s.GetDataObject(ctx, objectID)
	if err != nil {
		return nil, err
	}
	m, err := DecodeTLVMap(wrapped)
	if err != nil {
		return nil, &ProtocolError{Op: "read certificate", Msg: err.Error()}
	}
	der, ok := m[string([]byte{tagCertDER})]
	if !ok {
		return nil, &NotFoundError{Op: "read certificate"}
	}
	if flag, ok := m[string([]byte{tagCertCompressed})]; ok && len(flag) == 1 && flag[0] == 0x01 {
		r, err := gzip.NewReader(bytes.NewReader(der))
		if err != nil {
			return nil, &ProtocolError{Op: "read certificate", Msg: err.Error()}
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, &ProtocolError{Op: "read certificate", Msg: err.Error()}
		}
		return out, nil
	}
	return append([]byte(nil), der...), nil
}

// DeleteCertificate removes the certificate stored in slot's data object by
// writing a zero-length 0x53 wrapper, which the device treats as removal.
func (s *Session) DeleteCertificate(ctx context.Context, slot Slot) error {
	objectID, err := dataObjectIDFor(slot)
	if err != nil {
		return err
	}
	return s.PutDataObject(ctx, objectID, []byte{tagCertWrapper, 0x00})
}
