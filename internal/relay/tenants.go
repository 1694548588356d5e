package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

// Tenant modes accepted by ParseTenantMode.
const (
	TenantModeNone        = "none"
	TenantModeDestination = "destination"
	TenantModeNumbers     = "numbers"
)

// TenantResolver derives the owning tenant for a brand-new inbound contact.
// Implementations return an error wrapping apperrors.ErrTenantUnresolved when
// no tenant can be determined.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, msg models.InboundMessage) (string, error)
}

// NoTenants is the single-tenant resolver. Every lead gets an empty tenant.
type NoTenants struct{}

func (NoTenants) ResolveTenant(context.Context, models.InboundMessage) (string, error) {
	return "", nil
}

// DestinationTenants uses the number the lead texted as the tenant id.
type DestinationTenants struct{}

func (DestinationTenants) ResolveTenant(_ context.Context, msg models.InboundMessage) (string, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return "", fmt.Errorf("%w: inbound message has no destination number", apperrors.ErrTenantUnresolved)
	}
	return to, nil
}

// NumberTenants maps destination numbers to tenant ids through an explicit table.
type NumberTenants map[string]string

func (n NumberTenants) ResolveTenant(_ context.Context, msg models.InboundMessage) (string, error) {
	tenant, ok := n[strings.TrimSpace(msg.To)]
	if !ok || tenant == "" {
		return "", fmt.Errorf("%w: no tenant mapped to destination %q", apperrors.ErrTenantUnresolved, msg.To)
	}
	return tenant, nil
}

// ParseTenantNumbers parses "+15550001=acme,+15550002=globex".
func ParseTenantNumbers(s string) (NumberTenants, error) {
	out := NumberTenants{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		number, tenant, ok := strings.Cut(pair, "=")
		number, tenant = strings.TrimSpace(number), strings.TrimSpace(tenant)
		if !ok || number == "" || tenant == "" {
			return nil, fmt.Errorf("invalid tenant mapping %q, expected number=tenant", pair)
		}
		out[number] = tenant
	}
	return out, nil
}

// NewTenantResolver builds the resolver for a tenant mode. numbers is only
// read in TenantModeNumbers.
func NewTenantResolver(mode, numbers string) (TenantResolver, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", TenantModeNone:
		return NoTenants{}, nil
	case TenantModeDestination:
		return DestinationTenants{}, nil
	case TenantModeNumbers:
		table, err := ParseTenantNumbers(numbers)
		if err != nil {
			return nil, err
		}
		if len(table) == 0 {
			return nil, fmt.Errorf("tenant mode %q requires TENANT_NUMBERS", TenantModeNumbers)
		}
		return table, nil
	default:
		return nil, fmt.Errorf("unknown tenant mode %q", mode)
	}
}
