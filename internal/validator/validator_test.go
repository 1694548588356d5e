package validator

import (
	"strings"
	"testing"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

func TestValidate_InboundMessage(t *testing.T) {
	err := Validate(models.InboundMessage{From: "+15551234567"})
	if !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "'Body' is required") {
		t.Errorf("expected JSON field name in message, got %q", err.Error())
	}
	if err := Validate(models.InboundMessage{From: "+15551234567", Body: "Hi"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_InitialRequest(t *testing.T) {
	err := Validate(models.InitialRequest{Phone: "+15551234567"})
	if err == nil || !strings.Contains(err.Error(), "'first_name' is required") {
		t.Fatalf("expected first_name error, got %v", err)
	}
	err = Validate(models.InitialRequest{Phone: "+15551234567", FirstName: strings.Repeat("a", 101)})
	if err == nil || !strings.Contains(err.Error(), "must not exceed 100") {
		t.Fatalf("expected max length error, got %v", err)
	}
}
