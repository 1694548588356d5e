package util

import (
	"testing"
	"time"
)

func TestFirstEnv(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_SID", "AC123")
	if got := FirstEnv("TWILIO_ACCOUNT_SID", "TWILIO_SID"); got != "AC123" {
		t.Errorf("FirstEnv = %q, want alias value", got)
	}
	t.Setenv("TWILIO_ACCOUNT_SID", "AC999")
	if got := FirstEnv("TWILIO_ACCOUNT_SID", "TWILIO_SID"); got != "AC999" {
		t.Errorf("FirstEnv = %q, want primary value", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("LR_BOOL", tt.value)
		if got := ParseBoolEnv("LR_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 5 * time.Second},
		{"20", 20 * time.Second},
		{"1m30s", 90 * time.Second},
		{"soon", 5 * time.Second},
		{"-3s", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("LR_DURATION", tt.value)
		if got := ParseDurationEnv("LR_DURATION", 5*time.Second); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseNumericEnv(t *testing.T) {
	t.Setenv("LR_INT", "8")
	t.Setenv("LR_FLOAT", "0.7")
	if got := ParseIntEnv("LR_INT", 4); got != 8 {
		t.Errorf("ParseIntEnv = %d", got)
	}
	if got := ParseFloatEnv("LR_FLOAT", 1); got != 0.7 {
		t.Errorf("ParseFloatEnv = %v", got)
	}
	t.Setenv("LR_INT", "eight")
	if got := ParseIntEnv("LR_INT", 4); got != 4 {
		t.Errorf("ParseIntEnv invalid = %d", got)
	}
}
