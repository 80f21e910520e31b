package tokenizer

import (
	"testing"
)

func TestCountTokens(t *testing.T) {
	// Loading an encoding may hit the network; skip rather than fail in
	// restricted environments.
	tok, err := New()
	if err != nil {
		t.Skipf("tokenizer unavailable in this environment: %v", err)
	}

	if got := tok.CountTokens(""); got != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", got)
	}

	short := tok.CountTokens("hello world")
	if short == 0 {
		t.Error("CountTokens returned 0 for non-empty text")
	}

	long := tok.CountTokens("hello world hello world hello world")
	if long <= short {
		t.Errorf("longer text counted %d tokens, want more than %d", long, short)
	}

	if tok.Encoding() != DefaultEncoding {
		t.Errorf("Encoding() = %q, want %q", tok.Encoding(), DefaultEncoding)
	}
}

func TestNewWithEncodingUnknown(t *testing.T) {
	if _, err := NewWithEncoding("no-such-encoding"); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
		{"123456789", 3},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
