package piv

import (
	"bytes"
	"context"
	"testing"
)

func TestSetManagementKeyRequiresPriorAuthenticate(t *testing.T) {
	tr := &scriptedTransport{}
	sess := &Session{transport: tr, selected: true}
	newKey := NewSecret(bytes.Repeat([]byte{0x09}, 24))
	if err := sess.SetManagementKey(context.Background(), ManagementKeyTripleDES, newKey, TouchPolicyDefault); err == nil {
		t.Fatal("expected AuthenticationRequiredError")
	}
}

func TestSetManagementKeyRejectsWrongLength(t *testing.T) {
	tr := &scriptedTransport{}
	sess := &Session{transport: tr, selected: true, mgmtAuthenticated: true}
	newKey := NewSecret([]byte{0x01, 0x02})
	if err := sess.SetManagementKey(context.Background(), ManagementKeyAES256, newKey, TouchPolicyDefault); err == nil {
		t.Fatal("expected InvalidArgumentError for a too-short key")
	}
}

func TestSetManagementKeyEncodesBodyAndUpdatesSessionType(t *testing.T) {
	tr := &scriptedTransport{responses: [][]byte{{0x90, 0x00}}}
	sess := &Session{transport: tr, selected: true, mgmtAuthenticated: true, mgmtKeyType: ManagementKeyTripleDES}

	newKeyBytes := bytes.Repeat([]byte{0x0B}, 32)
	newKey := NewSecret(append([]byte(nil), newKeyBytes...))

	if err := sess.SetManagementKey(context.Background(), ManagementKeyAES256, newKey, TouchPolicyDefault); err != nil {
		t.Fatalf("SetManagementKey: %v", err)
	}
	if sess.mgmtKeyType != ManagementKeyAES256 || !sess.mgmtKeyTypeKnown {
		t.Fatal("expected the session's recorded management key type to be updated")
	}

	req := tr.requests[0]
	if req[1] != 0xFF || req[2] != 0xFF || req[3] != 0xFF {
		t.Fatalf("unexpected APDU header: % X", req[:4])
	}
	wantData := append([]byte{byte(ManagementKeyAES256), byte(Slot9B), byte(ManagementKeyAES256.KeyLen())}, newKeyBytes...)
	gotData := req[5 : 5+len(wantData)]
	if !bytes.Equal(gotData, wantData) {
		t.Fatalf("request body mismatch:\n got  %X\n want %X", gotData, wantData)
	}
}

func TestSetManagementKeyTouchAlwaysSetsP2(t *testing.T) {
	tr := &scriptedTransport{responses: [][]byte{{0x90, 0x00}}}
	sess := &Session{transport: tr, selected: true, mgmtAuthenticated: true}

	newKey := NewSecret(bytes.Repeat([]byte{0x0C}, 24))
	if err := sess.SetManagementKey(context.Background(), ManagementKeyTripleDES, newKey, TouchPolicyAlways); err != nil {
		t.Fatalf("SetManagementKey: %v", err)
	}
	req := tr.requests[0]
	if req[3] != 0xFE {
		t.Fatalf("P2 = %02X, want FE for TouchPolicyAlways", req[3])
	}
}
