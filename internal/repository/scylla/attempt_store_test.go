package scylla

import (
	"strings"
	"testing"
)

func TestFinalizeGuardListsOnlyOpenStatuses(t *testing.T) {
	if finalizeGuard != "'pending', 'dialing', 'connected'" {
		t.Fatalf("finalize guard = %s", finalizeGuard)
	}
	for _, s := range attemptStatuses {
		quoted := "'" + string(s) + "'"
		if s.Terminal() == strings.Contains(finalizeGuard, quoted) {
			t.Errorf("status %s: guard must admit exactly the non-terminal statuses", s)
		}
	}
}
