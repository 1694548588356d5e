package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/LeadRelay/internal/twiliosms"
)

func TestSMSService_ValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewSMSService(twiliosms.NewMockClient())
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+15551234567", "+15551234567", false},
		{"+1 (555) 123-4567", "+15551234567", false},
		{"00447911123456", "+447911123456", false},
		{"5551234567", "", true},
		{"447911123456", "", true},
		{"", "", true},
		{"+12", "", true},
		{"+1555abc4567", "", true},
		{"+0123456789", "", true},
	}
	for _, tt := range tests {
		got, err := svc.ValidateAndCanonicalizeRecipient(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSMSService_DefaultCountryCode(t *testing.T) {
	svc := NewSMSService(twiliosms.NewMockClient(), WithDefaultCountryCode("+44"))
	tests := []struct {
		in   string
		want string
	}{
		{"07911 123456", "+447911123456"},
		{"7911123456", "+447911123456"},
		{"+1 555 123 4567", "+15551234567"},
		{"0015551234567", "+15551234567"},
	}
	for _, tt := range tests {
		got, err := svc.ValidateAndCanonicalizeRecipient(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestSMSService_InvalidDefaultCountryCodeIgnored(t *testing.T) {
	svc := NewSMSService(twiliosms.NewMockClient(), WithDefaultCountryCode("abc"))
	if _, err := svc.ValidateAndCanonicalizeRecipient("5551234567"); err == nil {
		t.Error("expected national number to be rejected without a valid country code")
	}
}

func TestSMSService_SendMessage(t *testing.T) {
	mock := twiliosms.NewMockClient()
	svc := NewSMSService(mock)

	sid, err := svc.SendMessage(context.Background(), "+1 555 123 4567", "hello")
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if sid == "" {
		t.Error("expected a message sid")
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].To != "+15551234567" || sent[0].Body != "hello" {
		t.Fatalf("unexpected sends: %+v", sent)
	}
}

func TestSMSService_SendMessage_InvalidRecipientSkipsProvider(t *testing.T) {
	mock := twiliosms.NewMockClient()
	svc := NewSMSService(mock)
	if _, err := svc.SendMessage(context.Background(), "abc", "hello"); err == nil {
		t.Fatal("expected validation error")
	}
	if len(mock.Sent()) != 0 {
		t.Fatal("provider must not be called for invalid recipients")
	}
}

func TestSMSService_Stop(t *testing.T) {
	mock := twiliosms.NewMockClient()
	svc := NewSMSService(mock)
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	_ = svc.Stop()
	if _, err := svc.SendMessage(context.Background(), "+15551234567", "late"); !errors.Is(err, ErrServiceStopped) {
		t.Fatalf("expected ErrServiceStopped, got %v", err)
	}
}
