package config

import (
	"testing"
	"time"
)

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	cfg, problems := Load("api", 8080)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected request timeout: %v", cfg.RequestTimeout)
	}
	if cfg.SurveyDelaySec != 60 {
		t.Fatalf("unexpected survey delay: %d", cfg.SurveyDelaySec)
	}
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("HTTP_PORT", "not-a-port")
	cfg, problems := Load("api", 8080)
	if len(problems) == 0 {
		t.Fatalf("expected a problem for HTTP_PORT")
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected fallback port 8080, got %d", cfg.HTTPPort)
	}
}
