package xid

import (
	"strings"
	"testing"
)

func TestNewShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := New("audit")
		if !strings.HasPrefix(id, "audit-") {
			t.Fatalf("id %q missing prefix", id)
		}
		if len(strings.Split(id, "-")) != 3 {
			t.Fatalf("id %q does not have three segments", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
