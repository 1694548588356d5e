package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LeadRelay/internal/apperrors"
	"github.com/BTreeMap/LeadRelay/internal/models"
)

func TestParseTenantNumbers(t *testing.T) {
	table, err := ParseTenantNumbers(" +15550001=acme, +15550002 = globex ,")
	require.NoError(t, err)
	assert.Equal(t, NumberTenants{"+15550001": "acme", "+15550002": "globex"}, table)

	_, err = ParseTenantNumbers("+15550001")
	assert.Error(t, err)
}

func TestNewTenantResolver(t *testing.T) {
	tests := []struct {
		mode    string
		numbers string
		want    TenantResolver
		wantErr bool
	}{
		{"", "", NoTenants{}, false},
		{"none", "", NoTenants{}, false},
		{"Destination", "", DestinationTenants{}, false},
		{"numbers", "+1555=acme", NumberTenants{"+1555": "acme"}, false},
		{"numbers", "", nil, true},
		{"region", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := NewTenantResolver(tt.mode, tt.numbers)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumberTenants_Unmapped(t *testing.T) {
	_, err := NumberTenants{"+1555": "acme"}.ResolveTenant(context.Background(), models.InboundMessage{To: "+1666"})
	assert.ErrorIs(t, err, apperrors.ErrTenantUnresolved)

	tenant, err := NumberTenants{"+1555": "acme"}.ResolveTenant(context.Background(), models.InboundMessage{To: "+1555"})
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant)
}
