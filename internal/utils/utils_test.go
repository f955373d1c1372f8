package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestFmtTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{65, "00:01:05"},
		{3661, "01:01:01"},
		{59.9, "00:00:59"},
	}

	for _, tt := range tests {
		if got := FmtTime(tt.seconds); got != tt.want {
			t.Errorf("FmtTime(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestSafeCommandWrap(t *testing.T) {
	s := NewSafeCommand(context.Background(), "ffmpeg", "-version")

	if err := s.Wrap("decode", nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}

	base := errors.New("exit status 1")
	err := s.Wrap("decode", base)
	if !errors.Is(err, base) {
		t.Errorf("Wrapped error lost its cause: %v", err)
	}
	if err.Error() != "decode: exit status 1" {
		t.Errorf("Unexpected message without logs: %q", err.Error())
	}

	// Simulate the child writing to stderr
	s.Stderr.WriteString("moov atom not found\n")
	err = s.Wrap("decode", base)
	if !strings.Contains(err.Error(), "moov atom not found") {
		t.Errorf("Expected stderr in error, got %q", err.Error())
	}
}

func TestRequireBinary(t *testing.T) {
	if err := RequireBinary("definitely-not-a-real-binary-xyz"); err == nil {
		t.Error("Expected error for missing binary")
	}
}
