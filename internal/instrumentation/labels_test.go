package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMailDomain(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"jane@example.com", "example.com"},
		{"Billing@Contoso.OnMicrosoft.com", "contoso.onmicrosoft.com"},
		{" newsletter@shop.example ", "shop.example"},
		{"invalid", "unknown"},
		{"", "unknown"},
		{"user@", "unknown"},
		{"a@b@c", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, mailDomain(tt.address))
		})
	}
}
