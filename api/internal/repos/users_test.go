package repos

import (
	"testing"

	"municipal-complaint-service/api/internal/models"
)

func TestIdentityColumnCoversEveryPlatform(t *testing.T) {
	cases := []struct {
		platform string
		col      string
	}{
		{models.PlatformLine, "line_user_id"},
		{models.PlatformFacebook, "facebook_psid"},
		{models.PlatformWeb, "web_id"},
	}
	for _, tc := range cases {
		col, err := identityColumn(tc.platform)
		if err != nil {
			t.Fatalf("identityColumn(%q): %v", tc.platform, err)
		}
		if col != tc.col {
			t.Fatalf("identityColumn(%q) = %q, want %q", tc.platform, col, tc.col)
		}
	}

	if _, err := identityColumn("telegram"); err == nil {
		t.Fatalf("expected error for unknown platform")
	}
}
