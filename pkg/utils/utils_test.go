package utils

import "testing"

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"", true},
		{"   ", true},
		{"\t\n", true},
		{"rec-001", false},
		{" device-7 ", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := IsEmpty(tt.input)
			if result != tt.expected {
				t.Errorf("expected %t, got %t", tt.expected, result)
			}
		})
	}
}

func TestPtr(t *testing.T) {
	v := uint32(16000)
	p := Ptr(v)
	if p == nil || *p != v {
		t.Fatalf("expected pointer to %d", v)
	}
}

func TestFirstNonZero(t *testing.T) {
	if got := FirstNonZero(0, 0, 8000, 16000); got != 8000 {
		t.Errorf("expected 8000, got %d", got)
	}
	if got := FirstNonZero("", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	if got := FirstNonZero(0, 0); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
