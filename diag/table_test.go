package diag

import (
	"strings"
	"testing"

	"github.com/cardkit/piv"
)

func TestFormatSlotTableIncludesSlotAndAlgorithm(t *testing.T) {
	slots := map[piv.Slot]*piv.SlotMetadata{
		piv.SlotSignature: {
			Algorithm:         piv.AlgorithmECCP256,
			PinPolicy:         piv.PinPolicyOnce,
			TouchPolicy:       piv.TouchPolicyAlways,
			GeneratedOnDevice: true,
			PublicKey:         &piv.PublicKey{X: make([]byte, 32), Y: make([]byte, 32)},
		},
	}
	out := FormatSlotTable(slots)
	for _, want := range []string{"PIV SLOTS", piv.SlotSignature.String(), "ECCP256", "generated", "64 bytes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("slot table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatSlotTableShowsNoneForEmptyPublicKey(t *testing.T) {
	slots := map[piv.Slot]*piv.SlotMetadata{
		piv.SlotAuthentication: {Algorithm: piv.AlgorithmRSA2048},
	}
	out := FormatSlotTable(slots)
	if !strings.Contains(out, "(none)") {
		t.Fatalf("expected a (none) public-key summary:\n%s", out)
	}
}

func TestFormatRetryTableFlagsBlockedAndLow(t *testing.T) {
	pin := piv.RetryStatus{IsDefault: true, TotalRetries: 3, RetriesRemaining: 0}
	puk := piv.RetryStatus{TotalRetries: 10, RetriesRemaining: 2}

	out := FormatRetryTable(pin, puk)
	if !strings.Contains(out, "BLOCKED") {
		t.Fatalf("expected BLOCKED for a PIN with 0 retries remaining:\n%s", out)
	}
	if !strings.Contains(out, "LOW") {
		t.Fatalf("expected a LOW warning for 2 retries remaining:\n%s", out)
	}
}
