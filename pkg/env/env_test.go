package env

import "testing"

func TestGetPrefersPrefixedValue(t *testing.T) {
	t.Setenv("STKPUSH_LOG_FORMAT", "console")
	t.Setenv("LOG_FORMAT", "json")
	if got := Get("LOG_FORMAT", "json"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
	if got := Get("STKPUSH_LOG_FORMAT", "json"); got != "console" {
		t.Fatalf("expected prefixed key to resolve, got %q", got)
	}
}

func TestGetFallsBack(t *testing.T) {
	t.Setenv("STKPUSH_PORT", "")
	t.Setenv("PORT", "8081")
	if got := Get("PORT", "8080"); got != "8081" {
		t.Fatalf("expected bare value, got %q", got)
	}
	t.Setenv("PORT", " ")
	if got := Get("PORT", "8080"); got != "8080" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
