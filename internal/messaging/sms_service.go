package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/BTreeMap/LeadRelay/internal/metrics"
	"github.com/BTreeMap/LeadRelay/internal/twiliosms"
)

// Phone numbers are E.164 after formatting characters are removed.
var (
	phoneFormattingRegex = regexp.MustCompile(`[\s\-().]`)
	e164Regex            = regexp.MustCompile(`^\+[1-9][0-9]{5,14}$`)
	countryCodeRegex     = regexp.MustCompile(`^[1-9][0-9]{0,2}$`)
)

// SMSOpts holds configuration options for SMSService.
type SMSOpts struct {
	DefaultCountryCode string // digits only, e.g. "1"; empty rejects national numbers
}

// SMSOption defines a configuration option for SMSService.
type SMSOption func(*SMSOpts)

// WithDefaultCountryCode sets the calling code applied to numbers written
// without a leading "+". A leading "+" on code is ignored.
func WithDefaultCountryCode(code string) SMSOption {
	return func(o *SMSOpts) {
		o.DefaultCountryCode = strings.TrimPrefix(strings.TrimSpace(code), "+")
	}
}

// SMSService implements Service on top of a twiliosms.Sender.
type SMSService struct {
	client      twiliosms.Sender // real Twilio client or MockClient
	countryCode string
	mu          sync.RWMutex
	stopped     bool
}

// Compile-time check that SMSService implements Service.
var _ Service = (*SMSService)(nil)

// NewSMSService creates a new SMSService. An invalid default country code is
// ignored with a warning.
func NewSMSService(client twiliosms.Sender, opts ...SMSOption) *SMSService {
	var cfg SMSOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DefaultCountryCode != "" && !countryCodeRegex.MatchString(cfg.DefaultCountryCode) {
		slog.Warn("SMSService ignoring invalid default country code", "code", cfg.DefaultCountryCode)
		cfg.DefaultCountryCode = ""
	}
	return &SMSService{client: client, countryCode: cfg.DefaultCountryCode}
}

// ValidateAndCanonicalizeRecipient strips formatting characters and requires
// an E.164 number. A number without "+" is accepted only in international
// form ("00" prefix) or when a default country code is configured, in which
// case one national trunk "0" is dropped before the code is prepended.
func (s *SMSService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if strings.TrimSpace(recipient) == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneFormattingRegex.ReplaceAllString(strings.TrimSpace(recipient), "")
	switch {
	case strings.HasPrefix(canonical, "+"):
	case strings.HasPrefix(canonical, "00"):
		canonical = "+" + strings.TrimPrefix(canonical, "00")
	case s.countryCode != "":
		canonical = "+" + s.countryCode + strings.TrimPrefix(canonical, "0")
	default:
		return "", fmt.Errorf("invalid phone number %q: missing country code, expected E.164 starting with +", recipient)
	}
	if !e164Regex.MatchString(canonical) {
		return "", fmt.Errorf("invalid phone number %q: expected E.164 (+ and 6-15 digits)", recipient)
	}
	if canonical != recipient {
		slog.Debug("SMSService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendMessage validates the recipient and sends body through the SMS client.
func (s *SMSService) SendMessage(ctx context.Context, to string, body string) (string, error) {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return "", ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("SMSService SendMessage validation error", "error", err, "to", to)
		return "", err
	}
	sid, err := s.client.SendSMS(ctx, canonicalTo, body)
	metrics.ObserveSMS(err)
	if err != nil {
		return "", err
	}
	slog.Info("SMSService message sent", "to", canonicalTo, "sid", sid, "body_length", len(body))
	return sid, nil
}

// Stop marks the service stopped. It is safe to call more than once.
func (s *SMSService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}
