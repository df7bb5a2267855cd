package piv

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyTransport fails its first failCount calls, then succeeds.
type flakyTransport struct {
	failCount int
	calls     int
	succeed   []byte
}

func (f *flakyTransport) Exchange(ctx context.Context, request []byte) ([]byte, error) {
	f.calls++
	if f.calls <= f.failCount {
		return nil, errors.New("reader busy")
	}
	return f.succeed, nil
}

func TestSessionExchangeRetriesOnTransportError(t *testing.T) {
	tr := &flakyTransport{failCount: 2, succeed: []byte{0x90, 0x00}}
	sess := &Session{transport: tr}
	WithRetry(3, time.Microsecond)(sess)

	resp, err := sess.Exchange(context.Background(), []byte{0x00, 0xA4, 0x04, 0x00})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if string(resp) != string([]byte{0x90, 0x00}) {
		t.Fatalf("unexpected response: % X", resp)
	}
	if tr.calls != 3 {
		t.Fatalf("calls = %d, want 3 (2 failures + 1 success)", tr.calls)
	}
}

func TestSessionExchangeGivesUpAfterExhaustingRetries(t *testing.T) {
	tr := &flakyTransport{failCount: 100}
	sess := &Session{transport: tr}
	WithRetry(2, time.Microsecond)(sess)

	if _, err := sess.Exchange(context.Background(), []byte{0x00}); err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}
	if tr.calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 initial + 2 retries)", tr.calls)
	}
}

func TestSessionExchangeWithoutRetryFailsImmediately(t *testing.T) {
	tr := &flakyTransport{failCount: 1}
	sess := &Session{transport: tr}

	if _, err := sess.Exchange(context.Background(), []byte{0x00}); err == nil {
		t.Fatal("expected an immediate error with no retry configured")
	}
	if tr.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry)", tr.calls)
	}
}

func TestReselectClearsAuthenticationFlags(t *testing.T) {
	tr := &scriptedTransport{responses: [][]byte{{0x90, 0x00}}}
	sess := &Session{transport: tr, selected: true, pinVerified: true, mgmtAuthenticated: true}

	if err := sess.reselect(context.Background()); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if sess.pinVerified || sess.mgmtAuthenticated {
		t.Fatal("reselect must clear both authentication flags")
	}
}

func TestManagementKeyTypeFallsBackToTripleDESWhenNotSupported(t *testing.T) {
	tr := &scriptedTransport{responses: [][]byte{{0x6D, 0x00}}}
	sess := &Session{transport: tr, selected: true}

	mkt, err := sess.managementKeyType(context.Background())
	if err != nil {
		t.Fatalf("managementKeyType: %v", err)
	}
	if mkt != ManagementKeyTripleDES {
		t.Fatalf("mkt = %s, want TripleDES", mkt)
	}
	if sess.metadataSupported != triNo {
		t.Fatal("expected metadataSupported to be recorded as triNo")
	}
}

func TestManagementKeyTypeUsesMetadataWhenSupported(t *testing.T) {
	body := EncodeTLV([]byte{tagMetaAlgorithm}, []byte{byte(ManagementKeyAES256)})
	tr := &scriptedTransport{responses: [][]byte{append(body, 0x90, 0x00)}}
	sess := &Session{transport: tr, selected: true}

	mkt, err := sess.managementKeyType(context.Background())
	if err != nil {
		t.Fatalf("managementKeyType: %v", err)
	}
	if mkt != ManagementKeyAES256 {
		t.Fatalf("mkt = %s, want AES256", mkt)
	}
	if sess.metadataSupported != triYes {
		t.Fatal("expected metadataSupported to be recorded as triYes")
	}
	if !sess.mgmtKeyTypeKnown {
		t.Fatal("expected mgmtKeyTypeKnown to be cached")
	}
}
