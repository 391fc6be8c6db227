package repos

import (
	"testing"
	"time"
)

func TestNewRefIDFormat(t *testing.T) {
	day := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		id := NewRefID(day)
		if !RefIDPattern.MatchString(id) {
			t.Fatalf("ref id %q does not match pattern", id)
		}
		if id[4:12] != "20260115" {
			t.Fatalf("ref id %q has wrong date segment", id)
		}
	}
}

func TestLooksLikeRefID(t *testing.T) {
	ok := []string{"CMP-20260115-1234", "cmp-20260115-1234", "  CMP-20251231-9999 "}
	for _, s := range ok {
		if !LooksLikeRefID(s) {
			t.Fatalf("expected %q to look like a ref id", s)
		}
	}
	bad := []string{"CMP-2026-1234", "CMP-20260115-12", "ไฟดับ", "", "CMP20260115-1234"}
	for _, s := range bad {
		if LooksLikeRefID(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}
